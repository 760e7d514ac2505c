/*
Package errs provides custom error types and application-level error code constants.

This file defines CustomError, which implements the error interface and carries a code,
the client-facing message and, for admin API use, an HTTP status.
*/
package errs

import (
	"fmt"
	"net/http"
	"strings"

	"relaychat/internal/pkg/logx"
)

// CustomError is a coded failure. Message is what the peer sees: the in-band reply for relay
// codes, the JSON message for admin API codes.
type CustomError struct {
	Code    int
	Message string

	// Status is the admin API HTTP status; 0 for codes that never reach HTTP.
	Status int
}

func (e CustomError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// Is reports whether target is a CustomError with the same code, so that
// errors.Is(err, errs.NewError(errs.ErrLoginFailed)) matches by code.
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	return ok && t.Code == e.Code
}

// NewError returns a copy of the template for code. details fill a printf-style Message;
// for ErrUnknown the first detail may be the underlying error, which is logged. An unregistered
// code yields ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			logx.Error(
				originalErr,
				"Handling ErrUnknown with underlying error",
			)
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
			)
		}
	}

	return &customErr
}
