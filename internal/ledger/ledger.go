// Package ledger defines the revocation ledger consulted on every
// authenticated request: blocked token ids and device records.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrConflict indicates a device id is already bound to a different subject.
	ErrConflict = errors.New("ledger: device bound to another subject")

	// ErrUnavailable indicates the ledger store could not be reached.
	// Authorization checks must fail closed when they see it.
	ErrUnavailable = errors.New("ledger: unavailable")
)

// Device binds a client device identifier to the subject that first
// authenticated from it. ExpiresAt is advisory; enforcement happens
// through the Revoked flag.
type Device struct {
	DeviceID   string
	NIK        int64
	DeviceName string
	Revoked    bool
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// BlockEntry retires a token id. Entries are append-only; a token id
// present in the blocklist stays invalid for its natural lifetime.
type BlockEntry struct {
	TokenID   string
	TokenType string
	Subject   string
	Reason    string
	BlockedAt time.Time
	ExpiresAt time.Time
}

// Ledger is the durable store of blocked token ids and device records.
// Implementations must provide atomic idempotent per-key writes; no
// multi-key transactions are required.
type Ledger interface {
	// BlockToken appends a block entry. Blocking an already-blocked id is a no-op.
	BlockToken(ctx context.Context, entry BlockEntry) error
	// IsTokenBlocked reports whether the token id appears in the blocklist.
	IsTokenBlocked(ctx context.Context, tokenID string) (bool, error)
	// CreateDevice registers a device. Returns ErrConflict when the device id
	// exists with a different owner; succeeds idempotently for the same owner.
	CreateDevice(ctx context.Context, device Device) error
	// GetDevice returns the device record or ErrNotFound.
	GetDevice(ctx context.Context, deviceID string) (*Device, error)
	// RevokeDevice marks the device revoked. Idempotent.
	RevokeDevice(ctx context.Context, deviceID string) error
	// IsDeviceRevoked reports whether the device is marked revoked.
	// An unknown device id is not revoked.
	IsDeviceRevoked(ctx context.Context, deviceID string) (bool, error)
}
