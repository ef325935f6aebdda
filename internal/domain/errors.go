package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTokenExpired       = errors.New("token expired or already used")
	ErrCompletionFailed   = errors.New("ai completion failed")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrUnsupported        = errors.New("unsupported")
)
