package auth

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown identity and a wrong
	// password. The two are deliberately indistinguishable at this boundary
	// to prevent identity enumeration; audit logging keeps the distinction
	// for operators.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrRateLimited        = errors.New("auth: rate limited")
	ErrStorageUnavailable = errors.New("auth: credential storage unavailable")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrForbidden          = errors.New("auth: forbidden")
)
