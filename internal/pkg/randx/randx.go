/*
Package randx provides identifiers for relay sessions.

Session IDs are UUID v4 strings; the short form is used in log lines and console output.
*/
package randx

import (
	"github.com/google/uuid"
)

// SessionIDShortLength is the number of leading characters kept by ShortID.
const SessionIDShortLength = 8

// SessionID generates a standard UUID v4 string to serve as a unique identifier for a session.
func SessionID() string {
	return uuid.New().String()
}

// ShortID returns the leading SessionIDShortLength characters of id.
func ShortID(id string) string {
	if len(id) <= SessionIDShortLength {
		return id
	}
	return id[:SessionIDShortLength]
}

// IsValidSessionID reports whether id parses as a UUID.
func IsValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
