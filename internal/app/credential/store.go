/*
Package credential implements the relay's identity → secret-hash table and the
register-or-authenticate decision made during login.

A Store persists hashes only. The Service digests the received password with SHA-256 and
salts/stretches the hex digest with bcrypt before it ever reaches a Store.
*/
package credential

import (
	"context"
	"errors"
)

var (
	// ErrIdentityExists is returned by Store.Insert when the identity already has a credential.
	ErrIdentityExists = errors.New("credential: identity already registered")

	// ErrInvalidIdentity is returned by Store.Insert when the backend refuses the identity.
	ErrInvalidIdentity = errors.New("credential: invalid identity")

	// ErrNotFound is returned by Store.Lookup when the identity has no credential.
	ErrNotFound = errors.New("credential: identity not found")
)

// Store is the persistence contract for credentials.
// Insert must be atomic with respect to concurrent Inserts of the same identity.
type Store interface {
	// Lookup returns the stored hash for identity, or ErrNotFound.
	Lookup(ctx context.Context, identity string) (string, error)

	// Insert stores hash for identity, or returns ErrIdentityExists.
	Insert(ctx context.Context, identity, hash string) error

	// Count returns the number of stored credentials.
	Count(ctx context.Context) (int, error)
}
