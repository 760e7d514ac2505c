/*
Package req provides request parsing helpers for the admin HTTP API.

BindJSON enforces the JSON content type, a body size cap and strict field matching, mapping
each failure to an errs code.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"relaychat/internal/pkg/errs"
)

// MaxJSONBodyBytes caps the admin API request body.
const MaxJSONBodyBytes int64 = 64 << 10 // 64 KB

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrMessageContentTooLong, MaxJSONBodyBytes)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
