/*
Package errs provides custom error types and application-level error code constants.

The codes identify relay and admin API failures. Relay failures surface to a client as the
in-band protocol reply carried in the code's Message; admin API failures surface as JSON.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request or connection rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Relay Content Errors
const (
	// ErrMessageEmpty indicates an operator announcement with no content.
	ErrMessageEmpty = 2201

	// ErrMessageContentTooLong indicates content larger than a single relay chunk.
	ErrMessageContentTooLong = 2202
)

// 3xxx: Login, Session, and Security Errors
const (
	// ErrLoginFailed indicates a password mismatch for an existing identity.
	ErrLoginFailed = 3101

	// ErrInvalidIdentity indicates an empty or unusable username.
	ErrInvalidIdentity = 3102

	// ErrSessionReplaced indicates the session was closed because the identity logged in again.
	ErrSessionReplaced = 3004

	// ErrUnauthorized indicates a missing or invalid admin token.
	ErrUnauthorized = 3005

	// ErrSessionNotFound indicates no registered session has the requested ID.
	ErrSessionNotFound = 3006
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrCredentialBackend indicates the credential store could not be consulted.
	ErrCredentialBackend = 5001
)
