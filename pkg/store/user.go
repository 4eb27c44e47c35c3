package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint
// conflict, used to detect a clashing username on upsert.
const uniqueViolation = "23505"

// UserProfile is a persisted profile row.
type UserProfile struct {
	SigningPubkey    []byte
	EncryptionPubkey []byte
	FirstName        string
	Username         *string
	LastName         *string
	CustomAvatar     []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserStore persists UserProfile rows in the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore over pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// SetProfile upserts the profile row keyed by signingPubkey. A clashing
// username returns ErrUsernameTaken and leaves the row untouched.
func (s *UserStore) SetProfile(ctx context.Context, signingPubkey, encPubkey []byte, firstName string, username, lastName *string, customAvatar []byte) (*UserProfile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (signing_pubkey, enc_pubkey, first_name, username, last_name, custom_avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (signing_pubkey) DO UPDATE
		SET enc_pubkey = $2, first_name = $3, username = $4, last_name = $5, custom_avatar = $6, updated_at = now()
		RETURNING signing_pubkey, enc_pubkey, first_name, username, last_name, custom_avatar, created_at, updated_at
	`, signingPubkey, encPubkey, firstName, username, lastName, customAvatar)

	profile, err := scanUserProfile(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return profile, nil
}

// FindByPubkey fetches the profile row for signingPubkey, or ErrNotFound.
func (s *UserStore) FindByPubkey(ctx context.Context, signingPubkey []byte) (*UserProfile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT signing_pubkey, enc_pubkey, first_name, username, last_name, custom_avatar, created_at, updated_at
		FROM users WHERE signing_pubkey = $1
	`, signingPubkey)

	profile, err := scanUserProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return profile, err
}

// FindByUsername performs an exact-match lookup, or ErrNotFound.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*UserProfile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT signing_pubkey, enc_pubkey, first_name, username, last_name, custom_avatar, created_at, updated_at
		FROM users WHERE username = $1
	`, username)

	profile, err := scanUserProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return profile, err
}

// HasProfile reports whether a profile row exists for signingPubkey.
// Implements auth.ProfileChecker.
func (s *UserStore) HasProfile(signingPubkey [32]byte) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM users WHERE signing_pubkey = $1)`,
		signingPubkey[:],
	).Scan(&exists)
	return exists, err
}

func scanUserProfile(row pgx.Row) (*UserProfile, error) {
	var p UserProfile
	err := row.Scan(&p.SigningPubkey, &p.EncryptionPubkey, &p.FirstName, &p.Username, &p.LastName, &p.CustomAvatar, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
