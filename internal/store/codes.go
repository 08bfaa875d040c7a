package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/mshcbt/cbthub/internal/model"
)

// CreateActivationCode stores a new unused code. A code that already exists
// is reported as model.ErrCodeAlreadyUsed so callers can retry with another.
func (s *Store) CreateActivationCode(ctx context.Context, code string, expiresAt *time.Time) (model.ActivationCode, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activation_codes (code, created_at, expires_at, used) VALUES (?, ?, ?, 0)`,
		code, toUnix(now), nullableUnix(expiresAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.ActivationCode{}, model.ErrCodeAlreadyUsed
		}
		return model.ActivationCode{}, err
	}
	return model.ActivationCode{Code: code, CreatedAt: now, ExpiresAt: expiresAt}, nil
}

func scanCode(row rowScanner) (*model.ActivationCode, error) {
	var c model.ActivationCode
	var created int64
	var expires, usedAt, usedBy sql.NullInt64
	if err := row.Scan(&c.Code, &created, &expires, &c.Used, &usedBy, &usedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromUnix(created)
	c.ExpiresAt = nullableTime(expires)
	c.UsedAt = nullableTime(usedAt)
	if usedBy.Valid {
		id := usedBy.Int64
		c.UsedBy = &id
	}
	return &c, nil
}

const codeColumns = `code, created_at, expires_at, used, used_by, used_at`

// ListActivationCodes returns all codes, newest first.
func (s *Store) ListActivationCodes(ctx context.Context) ([]model.ActivationCode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+codeColumns+` FROM activation_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []model.ActivationCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

// GetActivationCode returns a code, or nil if it does not exist.
func (s *Store) GetActivationCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	c, err := scanCode(s.db.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM activation_codes WHERE code = ?`, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ActivationCodeCount returns the number of codes ever issued.
func (s *Store) ActivationCodeCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activation_codes`).Scan(&count)
	return count, err
}

// RedeemCode marks an unused, unexpired code as used by userID and activates
// the account in a single transaction. An account that is already activated
// burns no code. The conditional update guarantees a
// code is used at most once even under concurrent redemption.
func (s *Store) RedeemCode(ctx context.Context, code string, userID int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var activated bool
	err = tx.QueryRowContext(ctx, `SELECT activated FROM users WHERE id = ?`, userID).Scan(&activated)
	if err == sql.ErrNoRows {
		return model.ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if activated {
		return model.ErrAlreadyActivated
	}

	c, err := scanCode(tx.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM activation_codes WHERE code = ?`, code))
	if err == sql.ErrNoRows {
		return model.ErrCodeNotFound
	}
	if err != nil {
		return err
	}
	if c.Used {
		return model.ErrCodeAlreadyUsed
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return model.ErrCodeExpired
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE activation_codes SET used = 1, used_by = ?, used_at = ? WHERE code = ? AND used = 0`,
		userID, toUnix(now), code,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrCodeAlreadyUsed
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE users SET activated = 1, activation_code = ? WHERE id = ?`, code, userID)
	if err != nil {
		return err
	}
	if n, err = res.RowsAffected(); err != nil {
		return err
	}
	if n == 0 {
		return model.ErrAccountNotFound
	}

	return tx.Commit()
}
