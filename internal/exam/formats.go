package exam

import (
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/mshcbt/cbthub/internal/model"
)

// LanguageSubject is the primary-language subject every format requires.
const LanguageSubject = "english"

var requirements = map[model.ExamFormat]model.SubjectRequirement{
	model.FormatJAMB: {
		Format:               model.FormatJAMB,
		RequiredSubjectCount: 4,
		MaxSubjects:          4,
		MandatorySubjects:    []string{LanguageSubject},
		LanguageSubject:      LanguageSubject,
		LanguageWeightMin:    10,
		LanguageWeightMax:    15,
		TimeAllowed:          2 * time.Hour,
	},
	model.FormatWAEC: {
		Format:            model.FormatWAEC,
		MaxSubjects:       9,
		MandatorySubjects: []string{LanguageSubject},
		LanguageSubject:   LanguageSubject,
		LanguageWeightMin: 5,
		LanguageWeightMax: 10,
		TimeAllowed:       150 * time.Minute,
	},
}

// Requirement returns the subject policy of a format.
func Requirement(f model.ExamFormat) (model.SubjectRequirement, bool) {
	req, ok := requirements[f]
	return req, ok
}

// Formats lists the supported exam formats.
func Formats() []model.ExamFormat {
	out := make([]model.ExamFormat, 0, len(requirements))
	for f := range requirements {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(s string) (model.ExamFormat, error) {
	f := model.ExamFormat(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := requirements[f]; !ok {
		return "", model.ErrUnknownFormat.With(map[string]any{"Format": s}, "%q", s)
	}
	return f, nil
}

// NormalizeSubject lower-cases and trims a subject name.
func NormalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateSubjects checks a subject selection against req and returns the
// normalized subject names in their original order.
func ValidateSubjects(req model.SubjectRequirement, subjects []string) ([]string, error) {
	if len(subjects) == 0 {
		return nil, model.ErrNoSubjects
	}
	out := make([]string, 0, len(subjects))
	seen := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		n := NormalizeSubject(s)
		if n == "" {
			return nil, model.ErrNoSubjects
		}
		if seen[n] {
			return nil, model.ErrDuplicateSubject.With(map[string]any{"Subject": n}, "%s", n)
		}
		seen[n] = true
		out = append(out, n)
	}

	if req.RequiredSubjectCount > 0 && len(out) != req.RequiredSubjectCount {
		return nil, model.ErrSubjectCount.With(
			map[string]any{"Format": string(req.Format), "Count": req.RequiredSubjectCount},
			"%s requires exactly %d subjects, got %d", req.Format, req.RequiredSubjectCount, len(out))
	}
	if req.MaxSubjects > 0 && len(out) > req.MaxSubjects {
		return nil, model.ErrSubjectCount.With(
			map[string]any{"Format": string(req.Format), "Count": req.MaxSubjects},
			"%s allows at most %d subjects, got %d", req.Format, req.MaxSubjects, len(out))
	}
	for _, m := range req.MandatorySubjects {
		if !seen[m] {
			return nil, model.ErrMandatorySubject.With(
				map[string]any{"Format": string(req.Format), "Subject": m},
				"%s requires %s", req.Format, m)
		}
	}
	return out, nil
}

// Rand is the randomness the planner and sampler draw from. *rand.Rand from
// math/rand/v2 satisfies it; it need not be safe for concurrent use unless
// it is shared between goroutines.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) IntN(n int) int                     { return rand.IntN(n) }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }
