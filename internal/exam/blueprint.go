package exam

import (
	"slices"

	"github.com/mshcbt/cbthub/internal/model"
)

// Planner decides how many questions each selected subject contributes.
type Planner struct {
	rng Rand
}

// NewPlanner returns a planner drawing from rng, or from the global source
// when rng is nil.
func NewPlanner(rng Rand) *Planner {
	if rng == nil {
		rng = globalRand{}
	}
	return &Planner{rng: rng}
}

// Plan returns a blueprint summing to exactly model.TotalQuestions. The
// language weight is drawn uniformly from the format's range and the rest is
// split evenly across the other subjects, with the remainder handed out one
// unit each to randomly chosen subjects. subjects must already be validated.
func (p *Planner) Plan(req model.SubjectRequirement, subjects []string) (model.Blueprint, error) {
	if !slices.Contains(subjects, req.LanguageSubject) {
		return nil, model.ErrMandatorySubject.With(
			map[string]any{"Format": string(req.Format), "Subject": req.LanguageSubject},
			"%s requires %s", req.Format, req.LanguageSubject)
	}

	others := make([]string, 0, len(subjects)-1)
	for _, s := range subjects {
		if s != req.LanguageSubject {
			others = append(others, s)
		}
	}
	// Sorted so a seeded source gives the same plan for any input order.
	slices.Sort(others)

	bp := make(model.Blueprint, len(subjects))
	if len(others) == 0 {
		bp[req.LanguageSubject] = model.TotalQuestions
		return bp, nil
	}

	lo, hi := req.LanguageWeightMin, req.LanguageWeightMax
	if hi < lo {
		lo, hi = hi, lo
	}
	langWeight := lo + p.rng.IntN(hi-lo+1)
	bp[req.LanguageSubject] = langWeight

	remaining := model.TotalQuestions - langWeight
	base, extra := remaining/len(others), remaining%len(others)
	for _, s := range others {
		bp[s] = base
	}

	lucky := slices.Clone(others)
	p.rng.Shuffle(len(lucky), func(i, j int) { lucky[i], lucky[j] = lucky[j], lucky[i] })
	for _, s := range lucky[:extra] {
		bp[s]++
	}

	return bp, nil
}
