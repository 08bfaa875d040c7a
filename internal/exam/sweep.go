package exam

import (
	"context"
	"log/slog"
	"time"
)

// SweepStore removes data that outlived its TTL.
type SweepStore interface {
	DeleteExpiredExamSessions(ctx context.Context, now time.Time) (int64, error)
	CleanupExpiredAuthSessions(ctx context.Context, now time.Time) (int64, error)
}

// Sweep deletes expired exam and login sessions once.
func Sweep(ctx context.Context, st SweepStore, now time.Time) error {
	exams, err := st.DeleteExpiredExamSessions(ctx, now)
	if err != nil {
		return err
	}
	logins, err := st.CleanupExpiredAuthSessions(ctx, now)
	if err != nil {
		return err
	}
	if exams > 0 || logins > 0 {
		slog.Info("swept expired sessions", "exam_sessions", exams, "auth_sessions", logins)
	}
	return nil
}

// RunSweeper sweeps every interval until ctx is done. Failures are logged
// and retried on the next tick.
func RunSweeper(ctx context.Context, st SweepStore, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := Sweep(ctx, st, now); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}
