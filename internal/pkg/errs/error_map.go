/*
Package errs provides custom error types and application-level error code constants.

This file maps every error code to its CustomError template. Login failures reuse the exact
protocol reply so that callers can write Message straight to the client socket.
*/
package errs

import "net/http"

// LoginFailedReply is the literal in-band reply for any rejected login.
const LoginFailedReply = "Login Failed"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Relay Content Errors
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message is empty.", Status: http.StatusBadRequest},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is longer than %d bytes.", Status: http.StatusBadRequest},

	// 3xxx: Login, Session, and Security Errors
	ErrLoginFailed:     {Code: ErrLoginFailed, Message: LoginFailedReply},
	ErrInvalidIdentity: {Code: ErrInvalidIdentity, Message: LoginFailedReply},
	ErrSessionReplaced: {Code: ErrSessionReplaced, Message: "Session replaced by a new login."},
	ErrUnauthorized:    {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrSessionNotFound: {Code: ErrSessionNotFound, Message: "Session not found.", Status: http.StatusNotFound},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrCredentialBackend: {Code: ErrCredentialBackend, Message: LoginFailedReply, Status: http.StatusInternalServerError},
}
