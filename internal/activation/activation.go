// Package activation issues and redeems single-use activation codes.
package activation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/mshcbt/cbthub/internal/model"
)

const (
	// Prefix starts every code.
	Prefix   = "MSH"
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codePattern = regexp.MustCompile(`^` + Prefix + `-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// Normalize trims a user-typed code and upper-cases it.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidFormat reports whether code matches PREFIX-XXXX-XXXX.
func ValidFormat(code string) bool {
	return codePattern.MatchString(code)
}

// Generate returns a fresh random code.
func Generate() (string, error) {
	var sb strings.Builder
	sb.WriteString(Prefix)
	for group := 0; group < 2; group++ {
		sb.WriteByte('-')
		for i := 0; i < 4; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return "", err
			}
			sb.WriteByte(alphabet[n.Int64()])
		}
	}
	return sb.String(), nil
}

// Store persists codes and performs the atomic redemption.
type Store interface {
	CreateActivationCode(ctx context.Context, code string, expiresAt *time.Time) (model.ActivationCode, error)
	RedeemCode(ctx context.Context, code string, userID int64, now time.Time) error
	GetAccessState(ctx context.Context, userID int64) (model.AccessState, error)
}

// Ledger is the only place codes change state.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger returns a ledger over store. now defaults to time.Now.
func NewLedger(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// Redeem activates userID's account with code. The format is checked before
// any lookup; the lookup, the use mark and the activation happen atomically
// in the store, so of two concurrent redemptions of one code exactly one
// succeeds.
func (l *Ledger) Redeem(ctx context.Context, userID int64, code string) error {
	code = Normalize(code)
	if !ValidFormat(code) {
		return model.ErrCodeInvalidFormat
	}

	st, err := l.store.GetAccessState(ctx, userID)
	if err != nil {
		return err
	}
	if st.Activated {
		return model.ErrAlreadyActivated
	}

	if err := l.store.RedeemCode(ctx, code, userID, l.now()); err != nil {
		return err
	}
	slog.Info("activation code redeemed", "user_id", userID, "code", code)
	return nil
}

// Issue creates n new codes valid for validFor (no expiry when zero).
func (l *Ledger) Issue(ctx context.Context, n int, validFor time.Duration) ([]model.ActivationCode, error) {
	codes := make([]model.ActivationCode, 0, n)
	for len(codes) < n {
		code, err := Generate()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		var expires *time.Time
		if validFor > 0 {
			t := l.now().Add(validFor).UTC()
			expires = &t
		}
		c, err := l.store.CreateActivationCode(ctx, code, expires)
		if errors.Is(err, model.ErrCodeAlreadyUsed) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store code: %w", err)
		}
		codes = append(codes, c)
	}
	slog.Info("issued activation codes", "count", len(codes), "valid_for", validFor)
	return codes, nil
}
