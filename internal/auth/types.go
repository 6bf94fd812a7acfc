package auth

import (
	"context"
	"time"
)

// Role values carried in the token's role claim. The empty string is the
// citizen role; ordinary-citizen tokens carry no role claim at all.
const (
	RoleCitizen = ""
	RolePetugas = "petugas"
	RoleAdmin   = "admin"
)

// Citizen is an ordinary principal, keyed by NIK.
type Citizen struct {
	NIK          int64
	Nama         string
	JenisKelamin string
	Email        string
	NomorHP      string
	PasswordHash string
	CreatedAt    time.Time
}

// Staff is a staff/administrator principal, keyed by NIP.
type Staff struct {
	NIP          int64
	NIK          int64
	PasswordHash string
	Role         string
}

// PrincipalStore provides the identity records the issuer reads at login.
// The records themselves are owned by the identity-records subsystem.
type PrincipalStore interface {
	CreateCitizen(ctx context.Context, c Citizen) error
	CitizenByNIK(ctx context.Context, nik int64) (Citizen, error)
	StaffByNIP(ctx context.Context, nip int64) (Staff, error)
}

// TokenPair holds a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is the outcome of a successful login. OfflineToken is empty
// when offline issuance is disabled; DeviceID is empty for staff logins.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	OfflineToken string
	DeviceID     string
	Role         string
}
