// Package pg implements the principal store over PostgreSQL using
// database/sql with the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pelayanan.org/internal/auth"
)

type Store struct {
	db *sql.DB
}

var _ auth.PrincipalStore = (*Store)(nil)

// Open connects to the principal database with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle, for tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateCitizen(ctx context.Context, c auth.Citizen) error {
	const q = `
insert into masyarakat (nik, nama, jenis_kelamin, email, nomor_hp, password_hash)
values ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, q, c.NIK, c.Nama, c.JenisKelamin, c.Email, c.NomorHP, c.PasswordHash)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) CitizenByNIK(ctx context.Context, nik int64) (auth.Citizen, error) {
	const q = `
select nik, nama, jenis_kelamin, email, nomor_hp, password_hash, created_at
from masyarakat where nik = $1`
	var c auth.Citizen
	err := s.db.QueryRowContext(ctx, q, nik).Scan(
		&c.NIK, &c.Nama, &c.JenisKelamin, &c.Email, &c.NomorHP, &c.PasswordHash, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Citizen{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Citizen{}, err
	}
	return c, nil
}

func (s *Store) StaffByNIP(ctx context.Context, nip int64) (auth.Staff, error) {
	const q = `select nip, nik, password_hash, role from petugas where nip = $1`
	var st auth.Staff
	err := s.db.QueryRowContext(ctx, q, nip).Scan(&st.NIP, &st.NIK, &st.PasswordHash, &st.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Staff{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Staff{}, err
	}
	return st, nil
}

func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
