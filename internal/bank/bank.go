// Package bank reads question bank files and imports them into the store.
//
// A bank file is named {format}_{subject}.json and holds
//
//	{"questions": [{"id": 1, "question": "...", "passage": "...",
//	  "options": {"A": "...", "B": "..."}, "correct_answer": "B",
//	  "explanation": "..."}]}
package bank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mshcbt/cbthub/internal/exam"
	"github.com/mshcbt/cbthub/internal/model"
)

// Store is where imported questions and file hashes go. ImportQuestionFile
// must insert the questions and record the hash atomically.
type Store interface {
	GetImportedFileHash(ctx context.Context, name string) (string, error)
	ImportQuestionFile(ctx context.Context, name, hash string, questions []model.Question, sourceIDs []string) error
}

// ParseName splits a bank file name into its format and subject.
func ParseName(path string) (model.ExamFormat, string, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix, subject, ok := strings.Cut(base, "_")
	if !ok || subject == "" {
		return "", "", fmt.Errorf("%s: name must be <format>_<subject>.json", path)
	}
	format, err := exam.ParseFormat(prefix)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", path, err)
	}
	return format, exam.NormalizeSubject(strings.ReplaceAll(subject, "_", " ")), nil
}

// Parse decodes a bank file. Entries without a prompt, with fewer than two
// options, or whose answer is not one of the option labels are skipped and
// counted in skipped.
func Parse(data []byte, format model.ExamFormat, subject string) (questions []model.Question, sourceIDs []string, skipped int, err error) {
	var f model.QuestionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, 0, err
	}
	for _, qi := range f.Questions {
		q, ok := convert(qi, format, subject)
		if !ok {
			skipped++
			continue
		}
		questions = append(questions, q)
		sourceIDs = append(sourceIDs, sourceID(qi.ID))
	}
	return questions, sourceIDs, skipped, nil
}

func convert(qi model.QuestionImport, format model.ExamFormat, subject string) (model.Question, bool) {
	prompt := strings.TrimSpace(qi.Question)
	if prompt == "" || len(qi.Options) < 2 {
		return model.Question{}, false
	}
	opts := make([]model.Option, 0, len(qi.Options))
	for label, text := range qi.Options {
		opts = append(opts, model.Option{Label: strings.ToUpper(strings.TrimSpace(label)), Text: text})
	}
	slices.SortFunc(opts, func(a, b model.Option) int { return strings.Compare(a.Label, b.Label) })

	answer := strings.ToUpper(strings.TrimSpace(qi.CorrectAnswer))
	if !slices.ContainsFunc(opts, func(o model.Option) bool { return o.Label == answer }) {
		return model.Question{}, false
	}
	return model.Question{
		Format:        format,
		Subject:       subject,
		Prompt:        prompt,
		Passage:       strings.TrimSpace(qi.Passage),
		Options:       opts,
		CorrectAnswer: answer,
		Explanation:   strings.TrimSpace(qi.Explanation),
	}, true
}

func sourceID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// Report summarizes an import run.
type Report struct {
	Files     int `json:"files"`
	Unchanged int `json:"unchanged"`
	Changed   int `json:"changed"`
	Imported  int `json:"imported"`
	Skipped   int `json:"skipped"`
}

// ImportFile loads one bank file from disk.
func ImportFile(ctx context.Context, st Store, path string, rep *Report) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return ImportData(ctx, st, path, data, rep)
}

// ImportData imports the contents of a bank file. Files are tracked by base
// name, so the same file reached through a directory, a CLI path or an
// upload is one file. Content already imported is skipped; content that
// changed since its import is skipped with a warning, since its questions
// may back live sessions.
func ImportData(ctx context.Context, st Store, name string, data []byte, rep *Report) error {
	format, subject, err := ParseName(name)
	if err != nil {
		return err
	}
	name = filepath.Base(name)
	rep.Files++

	hash := sha256sum(data)
	storedHash, err := st.GetImportedFileHash(ctx, name)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", name, err)
	}
	if storedHash == hash {
		slog.Debug("question file unchanged, skipping", "path", name)
		rep.Unchanged++
		return nil
	}
	if storedHash != "" {
		slog.Warn("question file changed since last import, skipping", "path", name)
		rep.Changed++
		return nil
	}

	questions, ids, skipped, err := Parse(data, format, subject)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if err := st.ImportQuestionFile(ctx, name, hash, questions, ids); err != nil {
		return err
	}
	rep.Imported += len(questions)
	rep.Skipped += skipped
	if skipped > 0 {
		slog.Warn("skipped malformed questions", "path", name, "count", skipped)
	}
	slog.Info("imported questions",
		"path", name,
		"format", format,
		"subject", subject,
		"count", len(questions))
	return nil
}

// ImportDir imports every *.json file directly under dir. Files not named
// after a known format are ignored; a missing directory imports nothing.
func ImportDir(ctx context.Context, st Store, dir string) (Report, error) {
	var rep Report
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return rep, err
	}
	slices.Sort(paths)
	for _, p := range paths {
		if _, _, err := ParseName(p); err != nil {
			slog.Warn("ignoring file in questions directory", "path", p, "error", err)
			continue
		}
		if err := ImportFile(ctx, st, p, &rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
