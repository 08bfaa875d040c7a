package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mshcbt/cbthub/internal/model"
)

func testItem() model.ResultItem {
	return model.ResultItem{
		Subject: "physics",
		Prompt:  "What is the SI unit of force?",
		Options: []model.Option{
			{Label: "A", Text: "Joule"},
			{Label: "B", Text: "Newton"},
			{Label: "C", Text: "Watt"},
		},
		Chosen:        "A",
		CorrectAnswer: "B",
	}
}

func TestBuildExplainUserPrompt(t *testing.T) {
	t.Run("wrong answer", func(t *testing.T) {
		item := testItem()
		prompt := buildExplainUserPrompt(item)
		for _, want := range []string{item.Prompt, "B. Newton", "CORRECT ANSWER: B", "STUDENT ANSWER: A"} {
			if !strings.Contains(prompt, want) {
				t.Errorf("prompt should contain %q", want)
			}
		}
		if strings.Contains(prompt, "PASSAGE") {
			t.Error("prompt should not contain passage section when empty")
		}
	})

	t.Run("correct answer", func(t *testing.T) {
		item := testItem()
		item.Chosen, item.IsCorrect = "B", true
		if strings.Contains(buildExplainUserPrompt(item), "STUDENT ANSWER") {
			t.Error("prompt should omit a correct student answer")
		}
	})

	t.Run("no answer with passage", func(t *testing.T) {
		item := testItem()
		item.Chosen = ""
		item.Passage = "Read the passage."
		prompt := buildExplainUserPrompt(item)
		if !strings.Contains(prompt, "STUDENT ANSWER: (none)") {
			t.Error("prompt should mark a blank answer")
		}
		if !strings.Contains(prompt, "PASSAGE:\nRead the passage.") {
			t.Error("prompt should contain the passage")
		}
	})
}

func TestParseExplanation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"valid", `{"explanation": " Force is measured in newtons. "}`, "Force is measured in newtons.", false},
		{"empty", `{"explanation": ""}`, "", true},
		{"not json", `newtons`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExplanation(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseExplanation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseExplanation() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExplain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "test-model",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "{\"explanation\": \"The newton is the SI unit of force.\"}"},
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "test", "test-model")
	got, err := c.Explain(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if got != "The newton is the SI unit of force." {
		t.Errorf("Explain() = %q", got)
	}
}
