package exam

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/mshcbt/cbthub/internal/model"
)

// Shortfall records a subject whose pool could not cover its blueprint weight.
type Shortfall struct {
	Subject   string `json:"subject"`
	Wanted    int    `json:"wanted"`
	Available int    `json:"available"`
}

// Assembly is a canonical question set. A question's position in Questions
// is the index the exam taker answers by.
type Assembly struct {
	Questions  []model.Question
	Shortfalls []Shortfall
}

// Sampler draws canonical question sets from a Pool.
type Sampler struct {
	rng Rand
}

// NewSampler returns a sampler drawing from rng, or from the global source
// when rng is nil.
func NewSampler(rng Rand) *Sampler {
	if rng == nil {
		rng = globalRand{}
	}
	return &Sampler{rng: rng}
}

// Sample fills bp from pool. Short subjects are backfilled from unused
// language questions first, then from the other subjects' leftovers. No two
// questions share a prompt. The result is shuffled so position says nothing
// about subject.
func (s *Sampler) Sample(bp model.Blueprint, pool *Pool, format model.ExamFormat, language string) (Assembly, error) {
	subjects := make([]string, 0, len(bp))
	for subj := range bp {
		subjects = append(subjects, subj)
	}
	slices.Sort(subjects)

	var out Assembly
	seen := make(map[string]bool)
	leftovers := make(map[string][]model.Question, len(subjects))

	for _, subj := range subjects {
		want := bp[subj]
		candidates := s.shuffled(pool.Questions(format, subj))
		taken, i := 0, 0
		for ; i < len(candidates) && taken < want; i++ {
			key := promptKey(candidates[i])
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Questions = append(out.Questions, candidates[i])
			taken++
		}
		leftovers[subj] = candidates[i:]
		if taken < want {
			out.Shortfalls = append(out.Shortfalls, Shortfall{Subject: subj, Wanted: want, Available: taken})
		}
	}

	if len(out.Questions) < model.TotalQuestions {
		out.Questions = s.backfill(out.Questions, leftovers, language, seen)
	}

	if len(out.Questions) > model.TotalQuestions {
		s.shuffle(out.Questions)
		out.Questions = out.Questions[:model.TotalQuestions]
	}

	if len(out.Questions) == 0 {
		return Assembly{}, model.ErrNoQuestions
	}

	s.shuffle(out.Questions)

	if len(out.Shortfalls) > 0 {
		slog.Warn("question pool shortfall",
			"format", format,
			"shortfalls", out.Shortfalls,
			"assembled", len(out.Questions))
	}
	return out, nil
}

func (s *Sampler) backfill(questions []model.Question, leftovers map[string][]model.Question, language string, seen map[string]bool) []model.Question {
	order := make([]string, 0, len(leftovers))
	for subj := range leftovers {
		if subj != language {
			order = append(order, subj)
		}
	}
	slices.Sort(order)
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	if _, ok := leftovers[language]; ok {
		order = append([]string{language}, order...)
	}

	for _, subj := range order {
		for _, q := range leftovers[subj] {
			if len(questions) >= model.TotalQuestions {
				return questions
			}
			key := promptKey(q)
			if seen[key] {
				continue
			}
			seen[key] = true
			questions = append(questions, q)
		}
	}
	return questions
}

func (s *Sampler) shuffled(qs []model.Question) []model.Question {
	out := slices.Clone(qs)
	s.shuffle(out)
	return out
}

func (s *Sampler) shuffle(qs []model.Question) {
	s.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

func promptKey(q model.Question) string {
	return strings.ToLower(strings.Join(strings.Fields(q.Prompt), " "))
}

// Sanitize strips answers and explanations and attaches position indexes.
func Sanitize(questions []model.Question) []model.SanitizedQuestion {
	out := make([]model.SanitizedQuestion, len(questions))
	for i, q := range questions {
		out[i] = model.SanitizedQuestion{
			Index:   i,
			Subject: q.Subject,
			Prompt:  q.Prompt,
			Passage: q.Passage,
			Options: slices.Clone(q.Options),
		}
	}
	return out
}
