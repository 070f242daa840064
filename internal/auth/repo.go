package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeboard/tradeboard/internal/shared"
)

// Repository defines read access to the users store.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const createUsers = `CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	display_name  TEXT,
	role          TEXT NOT NULL,
	member_id     TEXT,
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the users table when it does not exist.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, createUsers)
	return err
}

const selectUser = `SELECT username, display_name, role, member_id, password_hash, is_active, created_at
FROM users WHERE username = $1`

// FindByUsername fetches a user by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var (
		user      User
		display   pgtype.Text
		memberID  pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, selectUser, username).Scan(
		&user.Username, &display, &user.Role, &memberID, &user.PasswordHash, &user.IsActive, &createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.DisplayName = display.String
	user.MemberID = memberID.String
	user.CreatedAt = createdAt.Time
	return &user, nil
}

const insertUser = `INSERT INTO users (username, display_name, role, member_id, password_hash, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6)
ON CONFLICT (username) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	role = EXCLUDED.role,
	member_id = EXCLUDED.member_id,
	password_hash = EXCLUDED.password_hash,
	is_active = TRUE`

// UpsertUser creates the user or replaces its profile and password hash.
func (r *PGRepository) UpsertUser(ctx context.Context, user User) error {
	_, err := r.pool.Exec(ctx, insertUser,
		user.Username,
		pgtype.Text{String: user.DisplayName, Valid: user.DisplayName != ""},
		user.Role,
		pgtype.Text{String: user.MemberID, Valid: user.MemberID != ""},
		user.PasswordHash,
		pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
	)
	return err
}

var _ Repository = (*PGRepository)(nil)
