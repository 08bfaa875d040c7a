package bank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mshcbt/cbthub/internal/model"
)

type memStore struct {
	questions []model.Question
	sourceIDs []string
	hashes    map[string]string
	fail      error
}

func newMemStore() *memStore {
	return &memStore{hashes: make(map[string]string)}
}

func (m *memStore) GetImportedFileHash(_ context.Context, name string) (string, error) {
	return m.hashes[name], nil
}

func (m *memStore) ImportQuestionFile(_ context.Context, name, hash string, qs []model.Question, ids []string) error {
	if m.fail != nil {
		return m.fail
	}
	m.questions = append(m.questions, qs...)
	m.sourceIDs = append(m.sourceIDs, ids...)
	m.hashes[name] = hash
	return nil
}

func TestParseName(t *testing.T) {
	tests := []struct {
		path    string
		format  model.ExamFormat
		subject string
		wantErr bool
	}{
		{"questions/jamb_mathematics.json", model.FormatJAMB, "mathematics", false},
		{"WAEC_English.json", model.FormatWAEC, "english", false},
		{"waec_further_mathematics.json", model.FormatWAEC, "further mathematics", false},
		{"mathematics.json", "", "", true},
		{"neco_physics.json", "", "", true},
		{"jamb_.json", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, subject, err := ParseName(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if format != tt.format || subject != tt.subject {
				t.Errorf("got (%q, %q), want (%q, %q)", format, subject, tt.format, tt.subject)
			}
		})
	}
}

const sampleBank = `{"questions": [
  {"id": 1, "question": "  What is 2 + 2? ", "options": {"D": "5", "a": "3", "B": "4", "C": "6"}, "correct_answer": "b", "explanation": "Addition."},
  {"id": "q2", "question": "Pick the noun", "passage": " Read this. ", "options": {"A": "run", "B": "table"}, "correct_answer": "B"},
  {"id": 3, "question": "", "options": {"A": "x", "B": "y"}, "correct_answer": "A"},
  {"id": 4, "question": "One option only", "options": {"A": "x"}, "correct_answer": "A"},
  {"id": 5, "question": "Answer not offered", "options": {"A": "x", "B": "y"}, "correct_answer": "E"}
]}`

func TestParse(t *testing.T) {
	qs, ids, skipped, err := Parse([]byte(sampleBank), model.FormatJAMB, "mathematics")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(qs) != 2 || skipped != 3 {
		t.Fatalf("parsed %d, skipped %d; want 2 and 3", len(qs), skipped)
	}
	if ids[0] != "1" || ids[1] != "q2" {
		t.Errorf("source ids = %v", ids)
	}

	q := qs[0]
	if q.Prompt != "What is 2 + 2?" || q.CorrectAnswer != "B" || q.Explanation != "Addition." {
		t.Errorf("first question = %+v", q)
	}
	if q.Format != model.FormatJAMB || q.Subject != "mathematics" {
		t.Errorf("format/subject = %q/%q", q.Format, q.Subject)
	}
	labels := ""
	for _, o := range q.Options {
		labels += o.Label
	}
	if labels != "ABCD" {
		t.Errorf("option order = %q, want ABCD", labels)
	}
	if qs[1].Passage != "Read this." {
		t.Errorf("passage = %q", qs[1].Passage)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, _, _, err := Parse([]byte(`{"questions": [`), model.FormatJAMB, "x"); err == nil {
		t.Error("expected a decode error")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := newMemStore()

	path := writeFile(t, dir, "jamb_mathematics.json", sampleBank)
	writeFile(t, dir, "waec_english.json", `{"questions": [{"id": 1, "question": "Q", "options": {"A": "a", "B": "b"}, "correct_answer": "A"}]}`)
	writeFile(t, dir, "notes.json", `{}`)
	writeFile(t, dir, "readme.txt", `ignored`)

	rep, err := ImportDir(ctx, st, dir)
	if err != nil {
		t.Fatalf("ImportDir: %v", err)
	}
	want := Report{Files: 2, Imported: 3, Skipped: 3}
	if rep != want {
		t.Errorf("first run = %+v, want %+v", rep, want)
	}

	rep, err = ImportDir(ctx, st, dir)
	if err != nil {
		t.Fatalf("ImportDir: %v", err)
	}
	if rep != (Report{Files: 2, Unchanged: 2}) || len(st.questions) != 3 {
		t.Errorf("second run = %+v with %d questions", rep, len(st.questions))
	}

	writeFile(t, dir, filepath.Base(path), `{"questions": []}`)
	rep, err = ImportDir(ctx, st, dir)
	if err != nil {
		t.Fatalf("ImportDir: %v", err)
	}
	if rep.Changed != 1 || rep.Unchanged != 1 || len(st.questions) != 3 {
		t.Errorf("changed file run = %+v with %d questions", rep, len(st.questions))
	}
}

func TestImportDirMissing(t *testing.T) {
	rep, err := ImportDir(context.Background(), newMemStore(), filepath.Join(t.TempDir(), "absent"))
	if err != nil || rep.Files != 0 {
		t.Errorf("rep = %+v, err = %v", rep, err)
	}
}

func TestImportDataBadJSON(t *testing.T) {
	st := newMemStore()
	var rep Report
	if err := ImportData(context.Background(), st, "jamb_physics.json", []byte("not json"), &rep); err == nil {
		t.Fatal("expected a parse error")
	}
	if len(st.hashes) != 0 {
		t.Error("failed import was recorded as done")
	}
}

func TestImportTracksFilesByBaseName(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := newMemStore()

	const content = `{"questions": [{"id": 1, "question": "Q", "options": {"A": "a", "B": "b"}, "correct_answer": "A"}]}`
	writeFile(t, dir, "jamb_english.json", content)
	if _, err := ImportDir(ctx, st, dir); err != nil {
		t.Fatalf("ImportDir: %v", err)
	}

	var rep Report
	if err := ImportData(ctx, st, "jamb_english.json", []byte(content), &rep); err != nil {
		t.Fatalf("ImportData: %v", err)
	}
	if rep.Unchanged != 1 || rep.Imported != 0 || len(st.questions) != 1 {
		t.Errorf("same file as upload: %+v with %d questions", rep, len(st.questions))
	}

	rep = Report{}
	if err := ImportData(ctx, st, "uploads/jamb_english.json", []byte(`{"questions": []}`), &rep); err != nil {
		t.Fatalf("ImportData: %v", err)
	}
	if rep.Changed != 1 || len(st.questions) != 1 {
		t.Errorf("changed upload: %+v with %d questions", rep, len(st.questions))
	}
}

func TestImportDataStoreFailure(t *testing.T) {
	st := newMemStore()
	st.fail = errors.New("disk full")
	var rep Report
	err := ImportData(context.Background(), st, "jamb_physics.json", []byte(sampleBank), &rep)
	if !errors.Is(err, st.fail) {
		t.Fatalf("err = %v, want store failure", err)
	}
	if len(st.hashes) != 0 || rep.Imported != 0 {
		t.Errorf("failed import counted: %+v, hashes %v", rep, st.hashes)
	}
}
