package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound       = errors.New("domain: not found")
	ErrUnauthorized   = errors.New("domain: unauthorized")
	ErrForbidden      = errors.New("domain: forbidden")
	ErrInvalidRequest = errors.New("domain: invalid request")
	ErrBusy           = errors.New("domain: a turn is already in progress for this session")
)
