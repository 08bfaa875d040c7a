package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mshcbt/cbthub/internal/model"
)

// CreateExamSession materializes a canonical question set under a fresh,
// unguessable handle that expires ttl after now.
func (s *Store) CreateExamSession(ctx context.Context, ownerID int64, format model.ExamFormat, subjects []string, questions []model.Question, now time.Time, ttl time.Duration) (model.ExamSession, error) {
	handle, err := generateToken()
	if err != nil {
		return model.ExamSession{}, fmt.Errorf("generate handle: %w", err)
	}
	subjectsJSON, err := json.Marshal(subjects)
	if err != nil {
		return model.ExamSession{}, err
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return model.ExamSession{}, err
	}
	now = now.UTC()
	sess := model.ExamSession{
		Handle:    handle,
		OwnerID:   ownerID,
		Format:    format,
		Subjects:  subjects,
		Questions: questions,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exam_sessions (handle, owner_id, format, subjects_json, questions_json, created_at, expires_at, consumed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		handle, ownerID, format, string(subjectsJSON), string(questionsJSON), toUnix(sess.CreatedAt), toUnix(sess.ExpiresAt),
	)
	if err != nil {
		return model.ExamSession{}, err
	}
	return sess, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadExamSession(ctx context.Context, q queryRower, handle string) (*model.ExamSession, error) {
	var sess model.ExamSession
	var subjectsJSON, questionsJSON string
	var created, expires int64
	err := q.QueryRowContext(ctx,
		`SELECT handle, owner_id, format, subjects_json, questions_json, created_at, expires_at, consumed
		 FROM exam_sessions WHERE handle = ?`, handle,
	).Scan(&sess.Handle, &sess.OwnerID, &sess.Format, &subjectsJSON, &questionsJSON, &created, &expires, &sess.Consumed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(subjectsJSON), &sess.Subjects); err != nil {
		return nil, fmt.Errorf("decode subjects of session: %w", err)
	}
	if err := json.Unmarshal([]byte(questionsJSON), &sess.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of session: %w", err)
	}
	sess.CreatedAt = fromUnix(created)
	sess.ExpiresAt = fromUnix(expires)
	return &sess, nil
}

// checkExamSession applies the ownership, consumption and expiry rules.
// Sessions of another owner are reported as not found.
func checkExamSession(sess *model.ExamSession, ownerID int64, now time.Time) error {
	switch {
	case sess == nil || sess.OwnerID != ownerID:
		return model.ErrSessionNotFound
	case sess.Consumed:
		return model.ErrSessionAlreadyConsumed
	case !now.Before(sess.ExpiresAt):
		return model.ErrSessionExpired
	}
	return nil
}

// GetExamSession returns a live session of the owner without consuming it.
func (s *Store) GetExamSession(ctx context.Context, handle string, ownerID int64, now time.Time) (model.ExamSession, error) {
	sess, err := loadExamSession(ctx, s.db, handle)
	if err != nil {
		return model.ExamSession{}, err
	}
	if err := checkExamSession(sess, ownerID, now); err != nil {
		return model.ExamSession{}, err
	}
	return *sess, nil
}

// ConsumeExamSession fetches a live session, lets build turn it into a
// graded result, appends that result and marks the session consumed, all in
// one transaction. If build or any write fails nothing is persisted and the
// session stays gradable.
func (s *Store) ConsumeExamSession(ctx context.Context, handle string, ownerID int64, now time.Time, build func(model.ExamSession) (model.GradedResult, error)) (model.GradedResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.GradedResult{}, err
	}
	defer tx.Rollback()

	sess, err := loadExamSession(ctx, tx, handle)
	if err != nil {
		return model.GradedResult{}, err
	}
	if err := checkExamSession(sess, ownerID, now); err != nil {
		return model.GradedResult{}, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE exam_sessions SET consumed = 1 WHERE handle = ? AND consumed = 0`, handle)
	if err != nil {
		return model.GradedResult{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.GradedResult{}, err
	}
	if n == 0 {
		return model.GradedResult{}, model.ErrSessionAlreadyConsumed
	}

	result, err := build(*sess)
	if err != nil {
		return model.GradedResult{}, err
	}
	result.ID = uuid.NewString()
	result.Handle = handle
	result.OwnerID = sess.OwnerID
	if result.CreatedAt.IsZero() {
		result.CreatedAt = now.UTC()
	}
	if err := insertResult(ctx, tx, result); err != nil {
		return model.GradedResult{}, fmt.Errorf("append result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.GradedResult{}, err
	}
	return result, nil
}

// DeleteExpiredExamSessions removes every session whose TTL has passed,
// consumed or not.
func (s *Store) DeleteExpiredExamSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exam_sessions WHERE expires_at <= ?`, toUnix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
