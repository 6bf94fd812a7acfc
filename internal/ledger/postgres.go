package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pelayanan.org/internal/ids"
)

const defaultOpTimeout = 3 * time.Second

// PgxPool is the subset of pgxpool.Pool the store needs. It is implemented
// by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements Ledger on PostgreSQL. Every call runs under a bounded
// timeout; failures other than not-found/conflict surface as ErrUnavailable
// so callers reject rather than optimistically authorize.
type Store struct {
	pool      PgxPool
	opTimeout time.Duration
}

var _ Ledger = (*Store)(nil)

// StoreOption configures Store behavior.
type StoreOption func(*Store)

// WithOpTimeout overrides the per-operation timeout.
func WithOpTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// NewStore wraps an existing pool.
func NewStore(pool PgxPool, opts ...StoreOption) *Store {
	s := &Store{pool: pool, opTimeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a connection pool for the given DSN and returns a Store over it.
func Open(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open pool: %w", err)
	}
	return NewStore(pool, opts...), nil
}

// Close shuts down the underlying pool.
func (s *Store) Close() { s.pool.Close() }

// Ping verifies connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// unavailable wraps any unexpected store error so authorization callers
// can fail closed on it.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *Store) BlockToken(ctx context.Context, entry BlockEntry) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	const q = `
INSERT INTO token_blocklist (id, jti, token_type, subject, reason, blocked_at, expires_at)
VALUES ($1, $2, $3, $4, $5, now(), $6)
ON CONFLICT (jti) DO NOTHING`
	_, err := s.pool.Exec(ctx, q,
		ids.New(), entry.TokenID, entry.TokenType, entry.Subject,
		nullableString(entry.Reason), nullableTime(entry.ExpiresAt))
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) IsTokenBlocked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	const q = `SELECT EXISTS (SELECT 1 FROM token_blocklist WHERE jti = $1)`
	var blocked bool
	if err := s.pool.QueryRow(ctx, q, tokenID).Scan(&blocked); err != nil {
		return false, unavailable(err)
	}
	return blocked, nil
}

func (s *Store) CreateDevice(ctx context.Context, device Device) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	const q = `
INSERT INTO device (device_id, nik, device_name, revoked, issued_at, expires_at)
VALUES ($1, $2, $3, FALSE, now(), $4)
ON CONFLICT (device_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, q,
		device.DeviceID, device.NIK, nullableString(device.DeviceName), nullableTime(device.ExpiresAt))
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Row already existed; the insert is idempotent only for the same owner.
	var owner int64
	if err := s.pool.QueryRow(ctx, `SELECT nik FROM device WHERE device_id = $1`, device.DeviceID).Scan(&owner); err != nil {
		return unavailable(err)
	}
	if owner != device.NIK {
		return ErrConflict
	}
	return nil
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	const q = `
SELECT device_id, nik, device_name, revoked, issued_at, expires_at
FROM device WHERE device_id = $1`
	var (
		d    Device
		name *string
		exp  *time.Time
	)
	err := s.pool.QueryRow(ctx, q, deviceID).Scan(&d.DeviceID, &d.NIK, &name, &d.Revoked, &d.IssuedAt, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if name != nil {
		d.DeviceName = *name
	}
	if exp != nil {
		d.ExpiresAt = *exp
	}
	return &d, nil
}

func (s *Store) RevokeDevice(ctx context.Context, deviceID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	const q = `UPDATE device SET revoked = TRUE WHERE device_id = $1`
	if _, err := s.pool.Exec(ctx, q, deviceID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) IsDeviceRevoked(ctx context.Context, deviceID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	const q = `SELECT revoked FROM device WHERE device_id = $1`
	var revoked bool
	err := s.pool.QueryRow(ctx, q, deviceID).Scan(&revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	return revoked, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
