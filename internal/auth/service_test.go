package auth

import (
	"context"
	"errors"
	"testing"

	"pelayanan.org/internal/ledger"
)

type fakePrincipals struct {
	citizens map[int64]Citizen
	staff    map[int64]Staff
}

func newFakePrincipals() *fakePrincipals {
	return &fakePrincipals{
		citizens: make(map[int64]Citizen),
		staff:    make(map[int64]Staff),
	}
}

func (f *fakePrincipals) CreateCitizen(_ context.Context, c Citizen) error {
	if _, ok := f.citizens[c.NIK]; ok {
		return ErrAlreadyExists
	}
	f.citizens[c.NIK] = c
	return nil
}

func (f *fakePrincipals) CitizenByNIK(_ context.Context, nik int64) (Citizen, error) {
	c, ok := f.citizens[nik]
	if !ok {
		return Citizen{}, ErrNotFound
	}
	return c, nil
}

func (f *fakePrincipals) StaffByNIP(_ context.Context, nip int64) (Staff, error) {
	s, ok := f.staff[nip]
	if !ok {
		return Staff{}, ErrNotFound
	}
	return s, nil
}

// failingLedger simulates an unreachable revocation ledger.
type failingLedger struct{ ledger.Ledger }

func (failingLedger) IsTokenBlocked(context.Context, string) (bool, error) {
	return false, ledger.ErrUnavailable
}

func (failingLedger) BlockToken(context.Context, ledger.BlockEntry) error {
	return ledger.ErrUnavailable
}

func newTestService(t *testing.T, opts ...CodecOption) (*Service, *fakePrincipals, *ledger.InMemory, *Codec) {
	t.Helper()
	codec, err := NewCodec("test-secret", opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	principals := newFakePrincipals()
	led := ledger.NewInMemory()
	return NewService(principals, led, codec), principals, led, codec
}

func seedCitizen(t *testing.T, principals *fakePrincipals, nik int64, password string) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	principals.citizens[nik] = Citizen{NIK: nik, Nama: "Tester", JenisKelamin: "L", PasswordHash: hash}
}

func seedStaff(t *testing.T, principals *fakePrincipals, nip int64, password, role string) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	principals.staff[nip] = Staff{NIP: nip, NIK: nip, PasswordHash: hash, Role: role}
}

func TestLoginIssuesMatchingPair(t *testing.T) {
	svc, principals, _, codec := newTestService(t)
	seedCitizen(t, principals, 999001, "secret123")

	result, err := svc.Login(context.Background(), 999001, "secret123", "dev-1", "UnitTest")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.DeviceID != "dev-1" {
		t.Fatalf("unexpected device id: %s", result.DeviceID)
	}

	access, err := codec.Decode(result.AccessToken)
	if err != nil {
		t.Fatalf("decode access: %v", err)
	}
	refresh, err := codec.Decode(result.RefreshToken)
	if err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if access.Subject != refresh.Subject || access.Subject != "999001" {
		t.Fatalf("subject mismatch: %s vs %s", access.Subject, refresh.Subject)
	}
	if access.DeviceID != refresh.DeviceID || access.DeviceID != "dev-1" {
		t.Fatalf("device mismatch: %s vs %s", access.DeviceID, refresh.DeviceID)
	}
	if access.TokenType != string(TokenAccess) || refresh.TokenType != string(TokenRefresh) {
		t.Fatalf("token classes wrong: %s / %s", access.TokenType, refresh.TokenType)
	}
	if access.Role != RoleCitizen {
		t.Fatalf("citizen token carries role: %q", access.Role)
	}

	if _, err := svc.Authenticate(context.Background(), result.AccessToken); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestLoginMasksUnknownSubjectAndWrongPassword(t *testing.T) {
	svc, principals, _, _ := newTestService(t)
	seedCitizen(t, principals, 1, "correct-pass")

	if _, err := svc.Login(context.Background(), 404, "whatever", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown subject: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), 1, "wrong-pass", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginGeneratesDeviceID(t *testing.T) {
	svc, principals, led, _ := newTestService(t)
	seedCitizen(t, principals, 1, "pass-1")

	result, err := svc.Login(context.Background(), 1, "pass-1", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.DeviceID == "" {
		t.Fatal("expected a generated device id")
	}
	device, err := led.GetDevice(context.Background(), result.DeviceID)
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if device.NIK != 1 {
		t.Fatalf("unexpected owner: %d", device.NIK)
	}

	// Re-login from the same device is a no-op binding.
	if _, err := svc.Login(context.Background(), 1, "pass-1", result.DeviceID, ""); err != nil {
		t.Fatalf("re-login from bound device: %v", err)
	}
}

func TestDeviceOwnerStable(t *testing.T) {
	svc, principals, led, _ := newTestService(t)
	seedCitizen(t, principals, 1, "pass-1")
	seedCitizen(t, principals, 2, "pass-2")

	if _, err := svc.Login(context.Background(), 1, "pass-1", "dX", ""); err != nil {
		t.Fatalf("first login: %v", err)
	}
	result, err := svc.Login(context.Background(), 2, "pass-2", "dX", "")
	if !errors.Is(err, ErrDeviceConflict) {
		t.Fatalf("expected ErrDeviceConflict, got %v", err)
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("conflicting login must not issue tokens")
	}

	device, err := led.GetDevice(context.Background(), "dX")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if device.NIK != 1 {
		t.Fatalf("device owner mutated: %d", device.NIK)
	}
}

func TestLoginRejectedOnRevokedDevice(t *testing.T) {
	svc, principals, _, _ := newTestService(t)
	seedCitizen(t, principals, 1, "pass-1")

	if _, err := svc.Login(context.Background(), 1, "pass-1", "dev-r", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.RevokeDevice(context.Background(), "dev-r"); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}
	if _, err := svc.Login(context.Background(), 1, "pass-1", "dev-r", ""); !errors.Is(err, ErrDeviceRevoked) {
		t.Fatalf("expected ErrDeviceRevoked, got %v", err)
	}
}

func TestLogoutBlocksToken(t *testing.T) {
	svc, principals, _, codec := newTestService(t)
	seedCitizen(t, principals, 999001, "secret123")

	result, err := svc.Login(context.Background(), 999001, "secret123", "dev-1", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := codec.Decode(result.AccessToken)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if err := svc.Logout(context.Background(), claims, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), result.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}
	// Blocking an already-blocked id is a no-op.
	if err := svc.Logout(context.Background(), claims, ""); err != nil {
		t.Fatalf("repeated logout: %v", err)
	}

	// The refresh token of the same lineage is untouched.
	if _, err := svc.Authenticate(context.Background(), result.RefreshToken); err != nil {
		t.Fatalf("refresh token should survive access-token logout: %v", err)
	}
}

func TestLogoutWithDeviceRevokesDevice(t *testing.T) {
	svc, principals, led, codec := newTestService(t)
	seedCitizen(t, principals, 1, "pass-1")

	result, err := svc.Login(context.Background(), 1, "pass-1", "dev-1", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := codec.Decode(result.AccessToken)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := svc.Logout(context.Background(), claims, "dev-1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	revoked, err := led.IsDeviceRevoked(context.Background(), "dev-1")
	if err != nil || !revoked {
		t.Fatalf("device not revoked: revoked=%v err=%v", revoked, err)
	}
	// Tokens carrying the device id die with it, blocked or not.
	if _, err := svc.Authenticate(context.Background(), result.RefreshToken); !errors.Is(err, ErrDeviceRevoked) {
		t.Fatalf("expected ErrDeviceRevoked, got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, principals, _, codec := newTestService(t)
	seedCitizen(t, principals, 1, "pass-1")

	result, err := svc.Login(context.Background(), 1, "pass-1", "dev-1", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	refreshClaims, err := codec.Decode(result.RefreshToken)
	if err != nil {
		t.Fatalf("decode refresh: %v", err)
	}

	pair, err := svc.Refresh(context.Background(), refreshClaims)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Rotated-out refresh token is permanently unusable.
	if _, err := svc.Authenticate(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for rotated refresh token, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), refreshClaims); err != nil {
		// Blocking is idempotent; replay protection comes from the guard.
		t.Logf("refresh replay at service level: %v", err)
	}

	// The new pair preserves subject and device lineage.
	newAccess, err := codec.Decode(pair.AccessToken)
	if err != nil {
		t.Fatalf("decode new access: %v", err)
	}
	if newAccess.Subject != "1" || newAccess.DeviceID != "dev-1" {
		t.Fatalf("lineage lost: subject=%s device=%s", newAccess.Subject, newAccess.DeviceID)
	}
	if _, err := svc.Authenticate(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("new refresh token rejected: %v", err)
	}
}

func TestRefreshRejectsNonRefreshClaims(t *testing.T) {
	svc, principals, _, codec := newTestService(t)
	seedCitizen(t, principals, 1, "pass-1")

	result, err := svc.Login(context.Background(), 1, "pass-1", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	accessClaims, err := codec.Decode(result.AccessToken)
	if err != nil {
		t.Fatalf("decode access: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), accessClaims); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access claims, got %v", err)
	}
}

func TestAuthenticateFailsClosedOnLedgerOutage(t *testing.T) {
	codec, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	principals := newFakePrincipals()
	seedCitizen(t, principals, 1, "pass-1")

	healthy := ledger.NewInMemory()
	svc := NewService(principals, healthy, codec)
	result, err := svc.Login(context.Background(), 1, "pass-1", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	down := NewService(principals, failingLedger{healthy}, codec)
	if _, err := down.Authenticate(context.Background(), result.AccessToken); !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ledger.ErrUnavailable, got %v", err)
	}
}

func TestOfflineTokenBestEffort(t *testing.T) {
	// Without a signing key the offline token is simply omitted.
	svc, principals, _, _ := newTestService(t)
	seedCitizen(t, principals, 1, "pass-1")
	result, err := svc.Login(context.Background(), 1, "pass-1", "dev-1", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.OfflineToken != "" {
		t.Fatal("offline token issued without a signing key")
	}

	// With a key it is present and carries subject plus device id.
	svc2, principals2, _, codec2 := newTestService(t, WithOfflineKeys(testKeyPEM(t), ""))
	seedCitizen(t, principals2, 1, "pass-1")
	result2, err := svc2.Login(context.Background(), 1, "pass-1", "dev-1", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result2.OfflineToken == "" {
		t.Fatal("expected offline token")
	}
	claims, err := codec2.Decode(result2.OfflineToken)
	if err != nil {
		t.Fatalf("decode offline: %v", err)
	}
	if claims.Subject != "1" || claims.DeviceID != "dev-1" {
		t.Fatalf("unexpected offline claims: subject=%s device=%s", claims.Subject, claims.DeviceID)
	}
}

func TestStaffLoginCarriesRole(t *testing.T) {
	svc, principals, _, codec := newTestService(t)
	seedStaff(t, principals, 5001, "staff-pass", RoleAdmin)

	result, err := svc.StaffLogin(context.Background(), 5001, "staff-pass")
	if err != nil {
		t.Fatalf("StaffLogin: %v", err)
	}
	if result.Role != RoleAdmin {
		t.Fatalf("unexpected role: %s", result.Role)
	}
	if result.DeviceID != "" || result.OfflineToken != "" {
		t.Fatal("staff login must not bind a device or issue offline tokens")
	}

	claims, err := codec.Decode(result.AccessToken)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Role != RoleAdmin || claims.Subject != "5001" {
		t.Fatalf("unexpected claims: role=%s subject=%s", claims.Role, claims.Subject)
	}

	if _, err := svc.StaffLogin(context.Background(), 5001, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.StaffLogin(context.Background(), 404, "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown nip, got %v", err)
	}
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, principals, _, _ := newTestService(t)

	c := Citizen{NIK: 7, Nama: "Baru", JenisKelamin: "P"}
	if err := svc.Register(context.Background(), c, "rahasia1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	stored := principals.citizens[7]
	if stored.PasswordHash == "rahasia1" || stored.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}
	if err := VerifyPassword(stored.PasswordHash, "rahasia1"); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
	if err := svc.Register(context.Background(), c, "rahasia1"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}
