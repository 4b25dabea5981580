package repositories

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wshchocolatine/ake-api/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserConflict = errors.New("user already exists")
)

// tagAttempts bounds the retry loop for the per-username numeric tag.
const tagAttempts = 5

// UserRepository abstracts user persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByIdentity(ctx context.Context, username string, tag int) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash, privateKeyEncrypted string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a user, picking a random tag unique per username. The
// tag is retried a bounded number of times; exhaustion surfaces as conflict.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `INSERT INTO users (id, username, tag, email, password_hash, private_key_encrypted, public_key, description)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, username, tag, email, password_hash, private_key_encrypted, public_key, description, created_at, updated_at`

	for attempt := 0; attempt < tagAttempts; attempt++ {
		user.Tag = rand.Intn(10000)
		var created models.User
		err := r.db.QueryRowxContext(ctx, query,
			user.ID, user.Username, user.Tag, user.Email,
			user.PasswordHash, user.PrivateKeyEncrypted, user.PublicKey, user.Description).
			StructScan(&created)
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return models.User{}, err
		}
	}
	return models.User{}, ErrUserConflict
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByEmail fetches a user by email, for login.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByIdentity resolves a username+tag pair.
func (r *UserRepo) GetByIdentity(ctx context.Context, username string, tag int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE username=$1 AND tag=$2`, username, tag)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpdatePassword stores a new password hash together with the private key
// re-encrypted under the new password.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash, privateKeyEncrypted string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash=$2, private_key_encrypted=$3, updated_at=NOW() WHERE id=$1`,
		id, passwordHash, privateKeyEncrypted)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
