// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/keystone-auth/keystone/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
//
// Token failures are deliberately collapsed into a single unauthorized
// outcome so clients cannot probe why a token was rejected.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrDuplicateEmail):
		Problem(w, http.StatusBadRequest, "Registration Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusBadRequest, "Login Failed", shared.ErrInvalidCredentials.Error())
	case errors.Is(err, shared.ErrAlreadyVerified):
		Problem(w, http.StatusBadRequest, "Verification Failed", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
