package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mshcbt/cbthub/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertResult(ctx context.Context, e execer, r model.GradedResult) error {
	subjectsJSON, err := json.Marshal(r.Subjects)
	if err != nil {
		return err
	}
	perSubjectJSON, err := json.Marshal(r.PerSubject)
	if err != nil {
		return err
	}
	itemsJSON, err := json.Marshal(r.Items)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx,
		`INSERT INTO results (id, owner_id, handle, format, subjects_json, score, total_questions, percentage,
		                      per_subject_json, items_json, duration_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.Handle, r.Format, string(subjectsJSON), r.Score, r.TotalQuestions, r.Percentage,
		string(perSubjectJSON), string(itemsJSON), r.DurationSeconds, toUnix(r.CreatedAt),
	)
	return err
}

const resultColumns = `id, owner_id, handle, format, subjects_json, score, total_questions, percentage,
	per_subject_json, items_json, duration_seconds, created_at`

func scanResult(row rowScanner, withItems bool) (*model.GradedResult, error) {
	var r model.GradedResult
	var subjectsJSON, perSubjectJSON, itemsJSON string
	var created int64
	err := row.Scan(&r.ID, &r.OwnerID, &r.Handle, &r.Format, &subjectsJSON, &r.Score, &r.TotalQuestions,
		&r.Percentage, &perSubjectJSON, &itemsJSON, &r.DurationSeconds, &created)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = fromUnix(created)
	if err := json.Unmarshal([]byte(subjectsJSON), &r.Subjects); err != nil {
		return nil, fmt.Errorf("decode subjects of result %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(perSubjectJSON), &r.PerSubject); err != nil {
		return nil, fmt.Errorf("decode breakdown of result %s: %w", r.ID, err)
	}
	if withItems {
		if err := json.Unmarshal([]byte(itemsJSON), &r.Items); err != nil {
			return nil, fmt.Errorf("decode items of result %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

// ListResults returns the owner's results, newest first. A limit of zero or
// less returns all of them. Per-question items are not loaded.
func (s *Store) ListResults(ctx context.Context, ownerID int64, limit int) ([]model.GradedResult, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE owner_id = ? ORDER BY created_at DESC, id`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.GradedResult
	for rows.Next() {
		r, err := scanResult(rows, false)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// GetResult returns one of the owner's results with its items, or nil if the
// result does not exist or belongs to someone else.
func (s *Store) GetResult(ctx context.Context, id string, ownerID int64) (*model.GradedResult, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE id = ? AND owner_id = ?`, id, ownerID), true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// CountResults returns how many results the owner has.
func (s *Store) CountResults(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}
