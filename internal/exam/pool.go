package exam

import (
	"context"
	"fmt"
	"slices"

	"github.com/mshcbt/cbthub/internal/model"
)

type poolKey struct {
	format  model.ExamFormat
	subject string
}

// Pool is the read-only question bank, grouped by format and subject. It is
// never modified after construction and needs no locking.
type Pool struct {
	questions map[poolKey][]model.Question
	size      int
}

// QuestionSource supplies the full question bank.
type QuestionSource interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
}

// LoadPool reads the whole bank from src.
func LoadPool(ctx context.Context, src QuestionSource) (*Pool, error) {
	questions, err := src.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return NewPool(questions), nil
}

// NewPool groups questions by format and normalized subject, keeping their
// order.
func NewPool(questions []model.Question) *Pool {
	p := &Pool{questions: make(map[poolKey][]model.Question)}
	for _, q := range questions {
		q.Subject = NormalizeSubject(q.Subject)
		k := poolKey{format: q.Format, subject: q.Subject}
		p.questions[k] = append(p.questions[k], q)
		p.size++
	}
	return p
}

// Questions returns the pool for one format and subject. A missing pool is
// empty, not an error. The returned slice must not be modified.
func (p *Pool) Questions(format model.ExamFormat, subject string) []model.Question {
	return p.questions[poolKey{format: format, subject: NormalizeSubject(subject)}]
}

// Subjects lists the subjects that have at least one question for format.
func (p *Pool) Subjects(format model.ExamFormat) []string {
	var out []string
	for k := range p.questions {
		if k.format == format {
			out = append(out, k.subject)
		}
	}
	slices.Sort(out)
	return out
}

// Size is the total number of questions in the pool.
func (p *Pool) Size() int {
	return p.size
}
