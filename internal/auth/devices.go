package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"pelayanan.org/internal/ledger"
)

// bindDevice resolves the effective device id for a login. A missing id is
// generated server-side; an existing id must belong to the same subject.
// Binding runs before any token is issued, so an ownership conflict never
// leaves partial tokens behind.
func (s *Service) bindDevice(ctx context.Context, deviceID string, nik int64, deviceName string) (string, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	existing, err := s.ledger.GetDevice(ctx, deviceID)
	switch {
	case err == nil:
		if existing.NIK != nik {
			return "", ErrDeviceConflict
		}
		return deviceID, nil
	case errors.Is(err, ledger.ErrNotFound):
	default:
		return "", err
	}

	device := ledger.Device{
		DeviceID:   deviceID,
		NIK:        nik,
		DeviceName: deviceName,
		IssuedAt:   s.now().UTC(),
		ExpiresAt:  s.now().UTC().Add(s.codec.offlineTTL),
	}
	if err := s.ledger.CreateDevice(ctx, device); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return "", ErrDeviceConflict
		}
		return "", err
	}
	return deviceID, nil
}

// RevokeDevice marks the device revoked in the ledger, invalidating every
// token carrying its device id. Idempotent.
func (s *Service) RevokeDevice(ctx context.Context, deviceID string) error {
	return s.ledger.RevokeDevice(ctx, deviceID)
}
