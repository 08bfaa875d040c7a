package exam

import (
	"math"
	"strings"

	"github.com/mshcbt/cbthub/internal/model"
)

// Outcome is the scoring of one submission.
type Outcome struct {
	Score      int
	Total      int
	Percentage float64
	PerSubject map[string]model.SubjectScore
	Items      []model.ResultItem
}

// Grade scores answers against the canonical questions. Answers are matched
// by position and compared case-insensitively; a missing or blank answer is
// wrong.
func Grade(questions []model.Question, answers model.Answers) Outcome {
	out := Outcome{
		Total:      len(questions),
		PerSubject: make(map[string]model.SubjectScore),
		Items:      make([]model.ResultItem, 0, len(questions)),
	}
	for i, q := range questions {
		chosen := strings.TrimSpace(answers[i])
		correct := chosen != "" && strings.EqualFold(chosen, strings.TrimSpace(q.CorrectAnswer))

		ss := out.PerSubject[q.Subject]
		ss.Total++
		if correct {
			ss.Correct++
			out.Score++
		}
		out.PerSubject[q.Subject] = ss

		out.Items = append(out.Items, model.ResultItem{
			Index:         i,
			Subject:       q.Subject,
			Prompt:        q.Prompt,
			Passage:       q.Passage,
			Options:       q.Options,
			Chosen:        chosen,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct,
			Explanation:   q.Explanation,
		})
	}
	out.Percentage = Percentage(out.Score, out.Total)
	return out
}

// Percentage returns 100*correct/total rounded to two decimals, or 0 when
// total is 0.
func Percentage(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(10000*float64(correct)/float64(total)) / 100
}
