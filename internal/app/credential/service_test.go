package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, bcrypt.MinCost), store
}

func TestLoginRegistersFirstTimeIdentity(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	outcome, err := svc.Login(ctx, "alice", []byte("secret1"))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if outcome != Registered {
		t.Fatalf("Login() = %v, want registered", outcome)
	}

	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("store has %d credentials, want exactly 1", n)
	}

	hash, err := store.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if strings.Contains(hash, "secret1") || strings.Contains(hash, Digest([]byte("secret1"))) {
		t.Error("stored hash contains the secret or its bare digest")
	}
}

func TestLoginReturningIdentity(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Login(ctx, "alice", []byte("secret1")); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	tests := []struct {
		secret string
		want   Outcome
	}{
		{"secret1", Authenticated},
		{"secret2", Rejected},
		{"", Rejected},
		{"secret1\n", Rejected},
	}

	for _, tt := range tests {
		outcome, err := svc.Login(ctx, "alice", []byte(tt.secret))
		if err != nil {
			t.Fatalf("Login(%q) error = %v", tt.secret, err)
		}
		if outcome != tt.want {
			t.Errorf("Login(%q) = %v, want %v", tt.secret, outcome, tt.want)
		}
	}

	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("store has %d credentials after logins, want 1", n)
	}
}

func TestLoginLongSecret(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	long := []byte(strings.Repeat("x", 500))

	if outcome, err := svc.Login(ctx, "bob", long); err != nil || outcome != Registered {
		t.Fatalf("Login() = %v, %v; want registered", outcome, err)
	}
	if outcome, err := svc.Login(ctx, "bob", long); err != nil || outcome != Authenticated {
		t.Fatalf("Login() = %v, %v; want authenticated", outcome, err)
	}
}

func TestConcurrentFirstTimeRegistration(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	const n = 8
	outcomes := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := svc.Login(ctx, "carol", []byte("pw"))
			if err != nil {
				t.Errorf("Login() error = %v", err)
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	registered := 0
	for _, o := range outcomes {
		switch o {
		case Registered:
			registered++
		case Authenticated:
		default:
			t.Errorf("unexpected outcome %v", o)
		}
	}
	if registered != 1 {
		t.Errorf("%d logins registered, want exactly 1", registered)
	}
	if c, _ := store.Count(ctx); c != 1 {
		t.Errorf("store has %d credentials, want 1", c)
	}
}

func TestVerifyUnknownIdentity(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Verify(context.Background(), "nobody", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Verify() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreInsertExisting(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, "alice", "h1"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := store.Insert(ctx, "alice", "h2"); !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("second Insert() error = %v, want ErrIdentityExists", err)
	}
	if hash, _ := store.Lookup(ctx, "alice"); hash != "h1" {
		t.Errorf("Lookup() = %q, want first hash h1", hash)
	}
}
