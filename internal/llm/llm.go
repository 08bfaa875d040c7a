// Package llm asks an OpenAI-compatible model to explain answers the
// question bank left unexplained.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mshcbt/cbthub/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Explanation is the model's reply for one question.
type Explanation struct {
	Explanation string `json:"explanation"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the endpoint answers and lists models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Explain asks why item's correct answer is right.
func (c *Client) Explain(ctx context.Context, item model.ResultItem) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildExplainSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildExplainUserPrompt(item)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseExplanation(raw)
}

func parseExplanation(raw string) (string, error) {
	var e Explanation
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	text := strings.TrimSpace(e.Explanation)
	if text == "" {
		return "", fmt.Errorf("LLM returned an empty explanation")
	}
	return text, nil
}

func buildExplainSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a tutor helping a student prepare for a standardized multiple-choice exam.\n")
	sb.WriteString("Explain in two or three sentences why the correct option is right.\n")
	sb.WriteString("If the student chose a different option, say briefly why it is wrong.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"explanation": "<explanation>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildExplainUserPrompt(item model.ResultItem) string {
	var sb strings.Builder
	sb.WriteString("SUBJECT: " + item.Subject + "\n\n")
	if item.Passage != "" {
		sb.WriteString("PASSAGE:\n" + item.Passage + "\n\n")
	}
	sb.WriteString("QUESTION: " + item.Prompt + "\n\n")
	sb.WriteString("OPTIONS:\n")
	for _, o := range item.Options {
		sb.WriteString(fmt.Sprintf("%s. %s\n", o.Label, o.Text))
	}
	sb.WriteString("\nCORRECT ANSWER: " + item.CorrectAnswer + "\n")
	if item.Chosen == "" {
		sb.WriteString("STUDENT ANSWER: (none)\n")
	} else if !item.IsCorrect {
		sb.WriteString("STUDENT ANSWER: " + item.Chosen + "\n")
	}
	return sb.String()
}
