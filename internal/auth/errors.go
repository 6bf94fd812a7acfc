package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown subject and wrong password;
	// callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid indicates a malformed, tampered, or expired token.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenRevoked indicates the token id appears in the blocklist.
	ErrTokenRevoked = errors.New("auth: token revoked")

	// ErrDeviceRevoked indicates the token's device has been revoked.
	ErrDeviceRevoked = errors.New("auth: device revoked")

	// ErrDeviceConflict indicates the device id is bound to another subject.
	ErrDeviceConflict = errors.New("auth: device bound to another subject")

	// ErrInsufficientRole indicates the role claim does not satisfy the endpoint.
	ErrInsufficientRole = errors.New("auth: insufficient role")

	// ErrNotFound indicates a missing principal record.
	ErrNotFound = errors.New("auth: not found")

	// ErrAlreadyExists indicates a duplicate principal at registration.
	ErrAlreadyExists = errors.New("auth: already exists")
)
