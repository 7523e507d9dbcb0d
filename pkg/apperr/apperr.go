// Package apperr defines the error taxonomy shared by the service layer.
// Route handlers map these onto HTTP status codes; anything unwrapped is
// treated as internal.
package apperr

import "errors"

var (
	// ErrUnauthorized means no valid session accompanied the request.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the session is valid but the role or ownership
	// check failed.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the entity id did not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means the payload failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict means the operation contradicts current state, e.g.
	// deleting an invitation that has already been redeemed.
	ErrConflict = errors.New("conflict")
)
