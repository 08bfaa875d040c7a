// Package access decides what an account may do based on its trial and
// activation state.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/mshcbt/cbthub/internal/model"
)

// Status is the derived access state of an account.
type Status string

const (
	NoTrial      Status = "no_trial"
	TrialActive  Status = "trial"
	TrialExpired Status = "trial_expired"
	Activated    Status = "activated"
)

// Operation names a gated action.
type Operation string

const (
	OpAssemble Operation = "assemble_exam"
	OpGrade    Operation = "grade_exam"
	OpProfile  Operation = "profile"
	OpRedeem   Operation = "redeem_code"
	OpStatus   Operation = "check_access"
)

// Evaluate derives the status from stored state and the current time. It has
// no side effects.
func Evaluate(st model.AccessState, trial time.Duration, now time.Time) Status {
	switch {
	case st.Activated:
		return Activated
	case st.TrialStartedAt == nil:
		return NoTrial
	case now.Before(st.TrialStartedAt.Add(trial)):
		return TrialActive
	default:
		return TrialExpired
	}
}

// Allowed reports whether an account in status s may perform op. An expired
// trial may only check its status or redeem a code.
func Allowed(s Status, op Operation) bool {
	switch s {
	case Activated, TrialActive, NoTrial:
		return true
	case TrialExpired:
		return op == OpRedeem || op == OpStatus
	}
	return false
}

// Summary describes an account's access at a point in time.
type Summary struct {
	Status         Status     `json:"status"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`
	DaysLeft       int        `json:"days_left"`
}

// Summarize builds a Summary for st at now.
func Summarize(st model.AccessState, trial time.Duration, now time.Time) Summary {
	sum := Summary{Status: Evaluate(st, trial, now)}
	if st.TrialStartedAt != nil {
		start := *st.TrialStartedAt
		end := start.Add(trial)
		sum.TrialStartedAt = &start
		sum.TrialEndsAt = &end
		if sum.Status == TrialActive {
			const day = 24 * time.Hour
			sum.DaysLeft = int((end.Sub(now) + day - 1) / day)
		}
	}
	return sum
}

// AccountStore reads and lazily initializes access state.
type AccountStore interface {
	GetAccessState(ctx context.Context, userID int64) (model.AccessState, error)
	StartTrial(ctx context.Context, userID int64, at time.Time) error
}

// Gate guards every exam and profile operation.
type Gate struct {
	accounts AccountStore
	trial    time.Duration
	now      func() time.Time
}

// NewGate returns a gate granting trials of the given length. now defaults
// to time.Now.
func NewGate(accounts AccountStore, trial time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{accounts: accounts, trial: trial, now: now}
}

// TrialDuration is the configured trial length.
func (g *Gate) TrialDuration() time.Duration {
	return g.trial
}

// Check returns the account's current access. An account that has never
// been seen starts its trial here; later checks leave it untouched.
func (g *Gate) Check(ctx context.Context, userID int64) (Summary, error) {
	now := g.now()
	st, err := g.accounts.GetAccessState(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if !st.Activated && st.TrialStartedAt == nil {
		if err := g.accounts.StartTrial(ctx, userID, now); err != nil {
			return Summary{}, fmt.Errorf("start trial: %w", err)
		}
		if st, err = g.accounts.GetAccessState(ctx, userID); err != nil {
			return Summary{}, err
		}
	}
	return Summarize(st, g.trial, now), nil
}

// Authorize checks access and rejects op with model.ErrTrialExpired when the
// account's status does not permit it.
func (g *Gate) Authorize(ctx context.Context, userID int64, op Operation) (Summary, error) {
	sum, err := g.Check(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if !Allowed(sum.Status, op) {
		return sum, model.ErrTrialExpired.With(map[string]any{"Operation": string(op)}, "%s not permitted", op)
	}
	return sum, nil
}
