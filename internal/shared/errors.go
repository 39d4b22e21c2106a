package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown email, wrong
	// password and inactive account all collapse into this error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail occurs when a registration collides with an existing account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUnauthorized indicates a request without a usable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates malformed or policy-violating input.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyVerified occurs when verifying an already verified account.
	ErrAlreadyVerified = errors.New("account already verified")
)
