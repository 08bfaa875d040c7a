package exam

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/mshcbt/cbthub/internal/model"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func makeQuestions(format model.ExamFormat, subject string, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:      int64(i + 1),
			Format:  format,
			Subject: subject,
			Prompt:  fmt.Sprintf("%s question %d", subject, i),
			Options: []model.Option{
				{Label: "A", Text: "first"},
				{Label: "B", Text: "second"},
				{Label: "C", Text: "third"},
				{Label: "D", Text: "fourth"},
			},
			CorrectAnswer: "B",
		}
	}
	return qs
}

func jambPool(perSubject map[string]int) *Pool {
	var all []model.Question
	for subj, n := range perSubject {
		all = append(all, makeQuestions(model.FormatJAMB, subj, n)...)
	}
	return NewPool(all)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    model.ExamFormat
		wantErr bool
	}{
		{"JAMB", model.FormatJAMB, false},
		{" waec ", model.FormatWAEC, false},
		{"neco", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, model.ErrUnknownFormat) {
			t.Errorf("ParseFormat(%q) error = %v, want unknown format", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateSubjects(t *testing.T) {
	jamb, _ := Requirement(model.FormatJAMB)
	waec, _ := Requirement(model.FormatWAEC)

	tests := []struct {
		name     string
		req      model.SubjectRequirement
		subjects []string
		want     error
	}{
		{"jamb ok", jamb, []string{"English", "mathematics", "physics", "chemistry"}, nil},
		{"jamb three subjects", jamb, []string{"english", "mathematics", "physics"}, model.ErrSubjectCount},
		{"jamb five subjects", jamb, []string{"english", "mathematics", "physics", "chemistry", "biology"}, model.ErrSubjectCount},
		{"jamb without english", jamb, []string{"mathematics", "physics", "chemistry", "biology"}, model.ErrMandatorySubject},
		{"duplicate", jamb, []string{"english", "Physics", "physics ", "chemistry"}, model.ErrDuplicateSubject},
		{"empty", waec, nil, model.ErrNoSubjects},
		{"blank name", waec, []string{"english", "  "}, model.ErrNoSubjects},
		{"waec english only", waec, []string{"english"}, nil},
		{"waec nine", waec, []string{"english", "a", "b", "c", "d", "e", "f", "g", "h"}, nil},
		{"waec ten", waec, []string{"english", "a", "b", "c", "d", "e", "f", "g", "h", "i"}, model.ErrSubjectCount},
		{"waec without english", waec, []string{"biology"}, model.ErrMandatorySubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSubjects(tt.req, tt.subjects)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(got) != len(tt.subjects) {
					t.Errorf("got %d subjects, want %d", len(got), len(tt.subjects))
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPlanJAMB(t *testing.T) {
	req, _ := Requirement(model.FormatJAMB)
	subjects := []string{"english", "mathematics", "physics", "chemistry"}

	for seed := uint64(0); seed < 200; seed++ {
		bp, err := NewPlanner(seeded(seed)).Plan(req, subjects)
		if err != nil {
			t.Fatalf("seed %d: Plan: %v", seed, err)
		}
		if bp.Total() != model.TotalQuestions {
			t.Fatalf("seed %d: total = %d, want %d", seed, bp.Total(), model.TotalQuestions)
		}
		lang := bp["english"]
		if lang < req.LanguageWeightMin || lang > req.LanguageWeightMax {
			t.Fatalf("seed %d: english weight %d outside [%d,%d]", seed, lang, req.LanguageWeightMin, req.LanguageWeightMax)
		}
		base := (model.TotalQuestions - lang) / 3
		for _, s := range subjects[1:] {
			if bp[s] != base && bp[s] != base+1 {
				t.Fatalf("seed %d: %s weight %d, want %d or %d", seed, s, bp[s], base, base+1)
			}
		}
	}
}

func TestPlanWAECSubjectCounts(t *testing.T) {
	req, _ := Requirement(model.FormatWAEC)
	all := []string{"english", "mathematics", "physics", "chemistry", "biology", "economics", "government", "geography", "literature"}

	for n := 1; n <= len(all); n++ {
		bp, err := NewPlanner(seeded(uint64(n))).Plan(req, all[:n])
		if err != nil {
			t.Fatalf("%d subjects: Plan: %v", n, err)
		}
		if bp.Total() != model.TotalQuestions {
			t.Errorf("%d subjects: total = %d", n, bp.Total())
		}
		if len(bp) != n {
			t.Errorf("%d subjects: blueprint has %d entries", n, len(bp))
		}
		if n == 1 && bp["english"] != model.TotalQuestions {
			t.Errorf("english only: weight = %d, want %d", bp["english"], model.TotalQuestions)
		}
	}
}

func TestPlanRequiresLanguage(t *testing.T) {
	req, _ := Requirement(model.FormatJAMB)
	_, err := NewPlanner(nil).Plan(req, []string{"mathematics", "physics", "chemistry", "biology"})
	if !errors.Is(err, model.ErrMandatorySubject) {
		t.Errorf("err = %v, want missing mandatory subject", err)
	}
}

func countBySubject(qs []model.Question) map[string]int {
	out := make(map[string]int)
	for _, q := range qs {
		out[q.Subject]++
	}
	return out
}

func assertUniquePrompts(t *testing.T, qs []model.Question) {
	t.Helper()
	seen := make(map[string]bool)
	for _, q := range qs {
		k := promptKey(q)
		if seen[k] {
			t.Fatalf("duplicate prompt %q", q.Prompt)
		}
		seen[k] = true
	}
}

func TestSampleFullPool(t *testing.T) {
	pool := jambPool(map[string]int{"english": 40, "mathematics": 40, "physics": 40, "chemistry": 40})
	req, _ := Requirement(model.FormatJAMB)
	subjects := []string{"english", "mathematics", "physics", "chemistry"}

	for seed := uint64(0); seed < 50; seed++ {
		bp, err := NewPlanner(seeded(seed)).Plan(req, subjects)
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		asm, err := NewSampler(seeded(seed)).Sample(bp, pool, model.FormatJAMB, LanguageSubject)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if len(asm.Questions) != model.TotalQuestions {
			t.Fatalf("seed %d: got %d questions", seed, len(asm.Questions))
		}
		if len(asm.Shortfalls) != 0 {
			t.Errorf("seed %d: unexpected shortfalls %+v", seed, asm.Shortfalls)
		}
		assertUniquePrompts(t, asm.Questions)
		counts := countBySubject(asm.Questions)
		for subj, want := range bp {
			if counts[subj] != want {
				t.Errorf("seed %d: %s has %d questions, want %d", seed, subj, counts[subj], want)
			}
		}
	}
}

func TestSampleBackfillsFromLanguage(t *testing.T) {
	pool := jambPool(map[string]int{"english": 40, "mathematics": 5, "physics": 40, "chemistry": 40})
	req, _ := Requirement(model.FormatJAMB)
	bp, err := NewPlanner(seeded(7)).Plan(req, []string{"english", "mathematics", "physics", "chemistry"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	asm, err := NewSampler(seeded(7)).Sample(bp, pool, model.FormatJAMB, LanguageSubject)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(asm.Questions) != model.TotalQuestions {
		t.Fatalf("got %d questions, want %d", len(asm.Questions), model.TotalQuestions)
	}
	assertUniquePrompts(t, asm.Questions)

	counts := countBySubject(asm.Questions)
	if counts["mathematics"] != 5 {
		t.Errorf("mathematics = %d, want 5", counts["mathematics"])
	}
	if want := bp["english"] + bp["mathematics"] - 5; counts["english"] != want {
		t.Errorf("english = %d, want %d (backfilled)", counts["english"], want)
	}
	if len(asm.Shortfalls) != 1 || asm.Shortfalls[0].Subject != "mathematics" || asm.Shortfalls[0].Available != 5 {
		t.Errorf("shortfalls = %+v", asm.Shortfalls)
	}
}

func TestSampleSkipsDuplicatePrompts(t *testing.T) {
	english := makeQuestions(model.FormatWAEC, "english", 30)
	physics := makeQuestions(model.FormatWAEC, "physics", 30)
	physics[3].Prompt = "  ENGLISH   question 3 "
	pool := NewPool(append(english, physics...))

	bp := model.Blueprint{"english": 30, "physics": 30}
	asm, err := NewSampler(seeded(1)).Sample(bp, pool, model.FormatWAEC, LanguageSubject)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(asm.Questions) != 59 {
		t.Errorf("got %d questions, want 59", len(asm.Questions))
	}
	assertUniquePrompts(t, asm.Questions)
}

func TestSampleSmallPool(t *testing.T) {
	pool := jambPool(map[string]int{"english": 3, "mathematics": 2})
	bp := model.Blueprint{"english": 15, "mathematics": 15, "physics": 15, "chemistry": 15}

	asm, err := NewSampler(seeded(3)).Sample(bp, pool, model.FormatJAMB, LanguageSubject)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(asm.Questions) != 5 {
		t.Errorf("got %d questions, want every available one (5)", len(asm.Questions))
	}
	if len(asm.Shortfalls) != 4 {
		t.Errorf("shortfalls = %+v", asm.Shortfalls)
	}
}

func TestSampleEmptyPool(t *testing.T) {
	bp := model.Blueprint{"english": 60}
	_, err := NewSampler(nil).Sample(bp, NewPool(nil), model.FormatWAEC, LanguageSubject)
	if !errors.Is(err, model.ErrNoQuestions) {
		t.Errorf("err = %v, want no questions", err)
	}
}

func TestSampleIgnoresOtherFormat(t *testing.T) {
	pool := NewPool(makeQuestions(model.FormatWAEC, "english", 60))
	_, err := NewSampler(nil).Sample(model.Blueprint{"english": 60}, pool, model.FormatJAMB, LanguageSubject)
	if !errors.Is(err, model.ErrNoQuestions) {
		t.Errorf("err = %v, want no questions", err)
	}
}

func TestSanitize(t *testing.T) {
	qs := makeQuestions(model.FormatJAMB, "english", 2)
	qs[0].Explanation = "because"
	out := Sanitize(qs)
	if len(out) != 2 || out[1].Index != 1 || out[0].Prompt != qs[0].Prompt {
		t.Fatalf("Sanitize() = %+v", out)
	}
	out[0].Options[0].Text = "changed"
	if qs[0].Options[0].Text != "first" {
		t.Error("Sanitize must copy options")
	}
}

func TestGrade(t *testing.T) {
	qs := makeQuestions(model.FormatJAMB, "english", 2)
	qs[0].CorrectAnswer = "b"
	qs[1].CorrectAnswer = "D"
	qs[1].Subject = "physics"

	out := Grade(qs, model.Answers{0: "B", 1: "C"})
	if out.Score != 1 || out.Total != 2 || out.Percentage != 50.0 {
		t.Errorf("Grade() = %d/%d (%.2f%%), want 1/2 (50%%)", out.Score, out.Total, out.Percentage)
	}
	if out.PerSubject["english"] != (model.SubjectScore{Correct: 1, Total: 1}) {
		t.Errorf("english breakdown = %+v", out.PerSubject["english"])
	}
	if out.PerSubject["physics"] != (model.SubjectScore{Correct: 0, Total: 1}) {
		t.Errorf("physics breakdown = %+v", out.PerSubject["physics"])
	}
	if !out.Items[0].IsCorrect || out.Items[1].IsCorrect || out.Items[1].Chosen != "C" {
		t.Errorf("items = %+v", out.Items)
	}
}

func TestGradeBlankAndMissing(t *testing.T) {
	qs := makeQuestions(model.FormatWAEC, "english", 3)
	out := Grade(qs, model.Answers{0: "  ", 2: " b "})
	if out.Score != 1 {
		t.Errorf("score = %d, want 1", out.Score)
	}
	if out.Items[0].IsCorrect || out.Items[1].IsCorrect || !out.Items[2].IsCorrect {
		t.Errorf("items = %+v", out.Items)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		correct, total int
		want           float64
	}{
		{0, 0, 0},
		{0, 60, 0},
		{60, 60, 100},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{45, 60, 75},
	}
	for _, tt := range tests {
		if got := Percentage(tt.correct, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.correct, tt.total, got, tt.want)
		}
	}
}
