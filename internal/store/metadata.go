package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mshcbt/cbthub/internal/model"
)

// GetImportedFileHash returns the recorded hash for a question file.
// Returns empty string and nil error if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// ImportQuestionFile inserts the questions of one bank file and records its
// hash in a single transaction, so a file is either fully imported or not
// at all. sourceIDs is parallel to questions.
func (s *Store) ImportQuestionFile(ctx context.Context, name, hash string, questions []model.Question, sourceIDs []string) error {
	if len(sourceIDs) != len(questions) {
		return fmt.Errorf("import %s: %d source ids for %d questions", name, len(sourceIDs), len(questions))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, q := range questions {
		if _, err := insertQuestion(ctx, tx, q, sourceIDs[i]); err != nil {
			return fmt.Errorf("insert question %d of %s: %w", i, name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO imported_files (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?`,
		name, hash, hash,
	); err != nil {
		return fmt.Errorf("record import of %s: %w", name, err)
	}
	return tx.Commit()
}
