// Package service implements the authentication and session use cases on
// top of the repositories, the token issuer and the revocation registry.
package service

import (
	"errors"
	"fmt"
)

// Outcomes surfaced to the HTTP layer.  Handlers map them with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrRateLimited        = errors.New("rate limited")
	ErrForbidden          = errors.New("forbidden")
	ErrPersistence        = errors.New("persistence failure")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidInput       = errors.New("invalid input")
)

// persistence wraps a store failure so callers can match ErrPersistence
// while logs keep the driver message.
func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPersistence, err)
}
