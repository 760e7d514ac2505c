package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"relaychat/internal/pkg/logx"
)

// Outcome is the result of a login attempt.
type Outcome int

const (
	// Rejected means the identity exists and the secret did not match.
	Rejected Outcome = iota

	// Registered means the identity was new and its credential was stored.
	Registered

	// Authenticated means the identity exists and the secret matched.
	Authenticated
)

func (o Outcome) String() string {
	switch o {
	case Registered:
		return "registered"
	case Authenticated:
		return "authenticated"
	default:
		return "rejected"
	}
}

// Service decides between registration and authentication for a login attempt.
type Service struct {
	store  Store
	cost   int
	logger zerolog.Logger
}

// NewService returns a Service hashing with the given bcrypt cost.
func NewService(store Store, cost int) *Service {
	return &Service{
		store:  store,
		cost:   cost,
		logger: logx.Component("credential"),
	}
}

// Digest returns the hex SHA-256 of secret. Only digests are ever handed to bcrypt,
// which keeps secrets longer than bcrypt's 72-byte limit usable.
func Digest(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}

// Register stores a new credential for identity. It returns ErrIdentityExists if one is present.
func (s *Service) Register(ctx context.Context, identity string, secret []byte) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(Digest(secret)), s.cost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	return s.store.Insert(ctx, identity, string(hash))
}

// Verify reports whether secret matches the stored credential of identity.
// It returns ErrNotFound if identity has no credential.
func (s *Service) Verify(ctx context.Context, identity string, secret []byte) (bool, error) {
	hash, err := s.store.Lookup(ctx, identity)
	if err != nil {
		return false, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(Digest(secret)))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare secret: %w", err)
	}
	return true, nil
}

// Login registers identity if it is unknown, otherwise verifies secret against it.
// When two first-time logins race, the loser is verified against the winner's credential.
func (s *Service) Login(ctx context.Context, identity string, secret []byte) (Outcome, error) {
	ok, err := s.Verify(ctx, identity, secret)
	switch {
	case err == nil && ok:
		return Authenticated, nil
	case err == nil:
		return Rejected, nil
	case !errors.Is(err, ErrNotFound):
		return Rejected, err
	}

	err = s.Register(ctx, identity, secret)
	if err == nil {
		return Registered, nil
	}
	if !errors.Is(err, ErrIdentityExists) {
		return Rejected, err
	}

	s.logger.Info().Str("identity", identity).Msg("Concurrent registration lost the race; verifying against stored credential.")

	ok, err = s.Verify(ctx, identity, secret)
	if err != nil {
		return Rejected, err
	}
	if ok {
		return Authenticated, nil
	}
	return Rejected, nil
}

// Count returns the number of stored credentials.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
