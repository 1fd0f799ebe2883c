package postgres

import (
	"context"
	"errors"

	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, username, display_name, pwd_hash, salt_auth, session_gen, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PwdHash, &u.SaltAuth, &u.SessionGen, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, display_name, pwd_hash, salt_auth)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.DisplayName, u.PwdHash, u.SaltAuth)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE username=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

// UpdateProfile changes username and display name.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, username, displayName string) (*model.User, error) {
	q := `
UPDATE users SET username=$2, display_name=$3, updated_at=now()
WHERE id=$1
RETURNING ` + userCols
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, id, username, displayName))
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	return u, err
}

// SetPassword replaces the stored hash and salt. Sessions issued before the
// change stop resolving.
func (r *UserRepo) SetPassword(ctx context.Context, id uuid.UUID, pwdHash, salt []byte) (*model.User, error) {
	q := `
UPDATE users SET pwd_hash=$2, salt_auth=$3, session_gen=session_gen+1, updated_at=now()
WHERE id=$1
RETURNING ` + userCols
	return scanUser(r.db.Pool.QueryRow(ctx, q, id, pwdHash, salt))
}

// SessionGeneration reads the current session generation.
func (r *UserRepo) SessionGeneration(ctx context.Context, id uuid.UUID) (int64, error) {
	const q = `SELECT session_gen FROM users WHERE id=$1`
	return scanGeneration(r.db.Pool.QueryRow(ctx, q, id))
}

// BumpSessionGeneration increments the session generation.
func (r *UserRepo) BumpSessionGeneration(ctx context.Context, id uuid.UUID) (int64, error) {
	const q = `UPDATE users SET session_gen=session_gen+1 WHERE id=$1 RETURNING session_gen`
	return scanGeneration(r.db.Pool.QueryRow(ctx, q, id))
}

func scanGeneration(row pgx.Row) (int64, error) {
	var gen int64
	if err := row.Scan(&gen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return gen, nil
}
