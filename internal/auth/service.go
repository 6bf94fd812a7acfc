// Package auth implements credential issuance, rotation, and revocation for
// the two principal classes: ordinary citizens (keyed by NIK) and staff
// (keyed by NIP). All cross-request state lives in the revocation ledger.
package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pelayanan.org/internal/ledger"
)

// Service orchestrates login, logout, refresh rotation, and per-request
// authorization checks.
type Service struct {
	principals PrincipalStore
	ledger     ledger.Ledger
	codec      *Codec
	now        func() time.Time
	log        *zap.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithLogger sets the application logger.
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the session issuer.
func NewService(principals PrincipalStore, led ledger.Ledger, codec *Codec, opts ...ServiceOption) *Service {
	s := &Service{
		principals: principals,
		ledger:     led,
		codec:      codec,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a citizen record with a hashed password.
func (s *Service) Register(ctx context.Context, c Citizen, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	return s.principals.CreateCitizen(ctx, c)
}

// Login authenticates a citizen, binds the device, and issues the token set.
// The device binding happens before issuance; an ownership conflict or a
// revoked device blocks issuance entirely.
func (s *Service) Login(ctx context.Context, nik int64, password, deviceID, deviceName string) (LoginResult, error) {
	citizen, err := s.principals.CitizenByNIK(ctx, nik)
	if err != nil {
		// Unknown subject and wrong password are indistinguishable to callers.
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := VerifyPassword(citizen.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	deviceID, err = s.bindDevice(ctx, deviceID, nik, deviceName)
	if err != nil {
		return LoginResult{}, err
	}
	revoked, err := s.ledger.IsDeviceRevoked(ctx, deviceID)
	if err != nil {
		return LoginResult{}, err
	}
	if revoked {
		return LoginResult{}, ErrDeviceRevoked
	}

	subject := strconv.FormatInt(nik, 10)
	pair, err := s.issuePair(subject, RoleCitizen, deviceID)
	if err != nil {
		return LoginResult{}, err
	}
	result := LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		DeviceID:     deviceID,
	}

	offline, err := s.codec.IssueOffline(subject, deviceID)
	switch {
	case err == nil:
		result.OfflineToken = offline
	case errors.Is(err, ErrOfflineDisabled):
		// Feature availability, not an error: omit the token.
	default:
		s.log.Warn("offline token issuance failed", zap.Error(err))
	}
	return result, nil
}

// StaffLogin authenticates a staff principal and issues access and refresh
// tokens carrying the role claim from the record. No device binding.
func (s *Service) StaffLogin(ctx context.Context, nip int64, password string) (LoginResult, error) {
	staff, err := s.principals.StaffByNIP(ctx, nip)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := VerifyPassword(staff.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(strconv.FormatInt(nip, 10), staff.Role, "")
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Role:         staff.Role,
	}, nil
}

func (s *Service) issuePair(subject, role, deviceID string) (TokenPair, error) {
	access, _, err := s.codec.Issue(subject, role, TokenAccess, deviceID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.codec.Issue(subject, role, TokenRefresh, deviceID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout retires the presented token id, regardless of class. Device
// revocation is best-effort: once the token block succeeded, a failed
// device revoke is logged but does not fail the logout.
func (s *Service) Logout(ctx context.Context, claims *Claims, deviceID string) error {
	if claims == nil || claims.ID == "" {
		return ErrTokenInvalid
	}
	entry := ledger.BlockEntry{
		TokenID:   claims.ID,
		TokenType: claims.TokenType,
		Subject:   claims.Subject,
		Reason:    "logout",
	}
	if claims.ExpiresAt != nil {
		entry.ExpiresAt = claims.ExpiresAt.Time
	}
	if err := s.ledger.BlockToken(ctx, entry); err != nil {
		return err
	}
	if deviceID != "" {
		if err := s.ledger.RevokeDevice(ctx, deviceID); err != nil {
			s.log.Warn("device revoke during logout failed",
				zap.String("device_id", deviceID), zap.Error(err))
		}
	}
	return nil
}

// Refresh rotates a refresh token: the presented id is blocked first, then a
// fresh pair is issued for the same subject, role, and device lineage.
// Refresh tokens are single-use; replay fails the guard's revocation check.
func (s *Service) Refresh(ctx context.Context, claims *Claims) (TokenPair, error) {
	if claims == nil || claims.TokenType != string(TokenRefresh) {
		return TokenPair{}, ErrTokenInvalid
	}
	entry := ledger.BlockEntry{
		TokenID:   claims.ID,
		TokenType: claims.TokenType,
		Subject:   claims.Subject,
		Reason:    "rotated",
	}
	if claims.ExpiresAt != nil {
		entry.ExpiresAt = claims.ExpiresAt.Time
	}
	if err := s.ledger.BlockToken(ctx, entry); err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(claims.Subject, claims.Role, claims.DeviceID)
}

// Authenticate runs the per-request guard checks: signature and expiry,
// token-id blocklist, and device revocation when the token carries a device
// id. A ledger failure propagates so the caller rejects the request; a
// token is never authorized without proof it is unblocked.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	blocked, err := s.ledger.IsTokenBlocked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrTokenRevoked
	}
	if claims.DeviceID != "" {
		revoked, err := s.ledger.IsDeviceRevoked(ctx, claims.DeviceID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrDeviceRevoked
		}
	}
	return claims, nil
}
