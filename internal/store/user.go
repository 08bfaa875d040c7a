package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/mshcbt/cbthub/internal/model"
)

const userColumns = `id, full_name, email, password_hash, role, active, trial_started_at, activated, activation_code, created_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var trial, lastLogin sql.NullInt64
	var created int64
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&trial, &u.Activated, &u.ActivationCode, &created, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.TrialStartedAt = nullableTime(trial)
	u.LastLogin = nullableTime(lastLogin)
	u.CreatedAt = fromUnix(created)
	return &u, nil
}

// CreateUser inserts a new user. Emails are stored lower-cased; a duplicate
// email yields model.ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, u model.User) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = model.UserRoleCandidate
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (full_name, email, password_hash, role, active, trial_started_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.FullName, email, u.PasswordHash, u.Role, u.Active, nullableUnix(u.TrialStartedAt), toUnix(time.Now()),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, model.ErrEmailTaken
		}
		slog.Error("failed to create user", "email", email, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created user", "id", id, "email", email, "role", u.Role)
	return id, nil
}

// GetUserByEmail returns a user by email, or nil if none exists.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetUserByID returns a user by ID, or nil if none exists.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// RecordLogin stamps the user's last login time.
func (s *Store) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, toUnix(at), id)
	return err
}

// GetAccessState returns the trial and activation fields of an account.
func (s *Store) GetAccessState(ctx context.Context, id int64) (model.AccessState, error) {
	var st model.AccessState
	var trial sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT trial_started_at, activated, activation_code FROM users WHERE id = ?`, id,
	).Scan(&trial, &st.Activated, &st.ActivationCode)
	if err == sql.ErrNoRows {
		return st, model.ErrAccountNotFound
	}
	if err != nil {
		return st, err
	}
	st.TrialStartedAt = nullableTime(trial)
	return st, nil
}

// StartTrial sets the trial start if it has never been set. Calling it again
// is a no-op.
func (s *Store) StartTrial(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET trial_started_at = ? WHERE id = ? AND trial_started_at IS NULL`,
		toUnix(at), id,
	)
	return err
}

// ToggleUserActive flips a user's active flag. Deactivated users cannot log
// in and their existing sessions are rejected.
func (s *Store) ToggleUserActive(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = NOT active WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}
