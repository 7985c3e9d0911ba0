package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrOwnershipMismatch = errors.New("requested email does not match token email")

	ErrInvalidTransition = errors.New("booking status transition not allowed")
)
