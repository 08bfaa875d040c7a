package activation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mshcbt/cbthub/internal/model"
	"github.com/mshcbt/cbthub/internal/store"
)

func TestNormalizeAndValidFormat(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"MSH-AB12-CD34", true},
		{"  msh-ab12-cd34 ", true},
		{"MSH-AB12-CD3", false},
		{"MSH-AB12CD34", false},
		{"XYZ-AB12-CD34", false},
		{"MSH-AB!2-CD34", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidFormat(Normalize(tt.in)); got != tt.want {
			t.Errorf("ValidFormat(Normalize(%q)) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !ValidFormat(code) {
			t.Fatalf("generated %q does not match the code format", code)
		}
		seen[code] = true
	}
	if len(seen) < 195 {
		t.Errorf("only %d distinct codes out of 200", len(seen))
	}
}

type fixture struct {
	ledger *Ledger
	store  *store.Store
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	f := &fixture{store: st, now: time.Now()}
	f.ledger = NewLedger(st, func() time.Time { return f.now })
	return f
}

func (f *fixture) user(t *testing.T, email string) int64 {
	t.Helper()
	id, err := f.store.CreateUser(context.Background(), model.User{
		FullName: "Test", Email: email, PasswordHash: "x", Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func (f *fixture) code(t *testing.T, validFor time.Duration) string {
	t.Helper()
	codes, err := f.ledger.Issue(context.Background(), 1, validFor)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return codes[0].Code
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	codes, err := f.ledger.Issue(ctx, 5, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(codes) != 5 {
		t.Fatalf("issued %d codes, want 5", len(codes))
	}
	want := f.now.Add(30 * 24 * time.Hour)
	for _, c := range codes {
		if c.Used || c.ExpiresAt == nil || !c.ExpiresAt.Equal(want) {
			t.Errorf("unexpected code %+v", c)
		}
	}
	if n, _ := f.store.ActivationCodeCount(ctx); n != 5 {
		t.Errorf("stored %d codes, want 5", n)
	}

	codes, err = f.ledger.Issue(ctx, 1, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if codes[0].ExpiresAt != nil {
		t.Errorf("code without validity has expiry %v", codes[0].ExpiresAt)
	}
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice@example.com")
	code := f.code(t, 0)

	if err := f.ledger.Redeem(ctx, alice, "nonsense"); !errors.Is(err, model.ErrCodeInvalidFormat) {
		t.Errorf("malformed code: err = %v", err)
	}
	if err := f.ledger.Redeem(ctx, alice, "MSH-0000-0000"); !errors.Is(err, model.ErrCodeNotFound) {
		t.Errorf("unknown code: err = %v", err)
	}

	if err := f.ledger.Redeem(ctx, alice, " "+strings.ToLower(code)+" "); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	st, err := f.store.GetAccessState(ctx, alice)
	if err != nil {
		t.Fatalf("GetAccessState: %v", err)
	}
	if !st.Activated || st.ActivationCode != code {
		t.Errorf("access state = %+v", st)
	}

	other := f.code(t, 0)
	if err := f.ledger.Redeem(ctx, alice, other); !errors.Is(err, model.ErrAlreadyActivated) {
		t.Errorf("second activation: err = %v", err)
	}
	c, _ := f.store.GetActivationCode(ctx, other)
	if c == nil || c.Used {
		t.Errorf("refused activation burned the code: %+v", c)
	}

	bob := f.user(t, "bob@example.com")
	if err := f.ledger.Redeem(ctx, bob, code); !errors.Is(err, model.ErrCodeAlreadyUsed) {
		t.Errorf("reuse: err = %v", err)
	}
}

func TestRedeemExpired(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice@example.com")
	code := f.code(t, time.Hour)

	f.now = f.now.Add(time.Hour)
	if err := f.ledger.Redeem(context.Background(), alice, code); !errors.Is(err, model.ErrCodeExpired) {
		t.Errorf("err = %v, want code expired", err)
	}
}

func TestConcurrentRedeemOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t, 0)

	users := []int64{f.user(t, "a@example.com"), f.user(t, "b@example.com")}
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, id := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.ledger.Redeem(ctx, id, code)
		}()
	}
	wg.Wait()

	ok, used := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrCodeAlreadyUsed):
			used++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || used != 1 {
		t.Errorf("ok = %d, already used = %d; want 1 and 1", ok, used)
	}
}
