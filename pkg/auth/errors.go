package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrKeyNotFound is returned when the key-pair private key file is missing.
	ErrKeyNotFound = errors.New("private key not found")
)
