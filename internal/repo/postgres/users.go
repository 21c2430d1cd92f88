package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stagepass/stagepass/internal/domain/user"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone, bio, role, is_verified, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

// Create inserts the user unconditionally and lets the unique index on
// lower(email) arbitrate duplicate registrations; a check-then-insert
// would race under concurrent submissions of the same email. Musician
// registrations also get their profile row in the same transaction so
// the side effect happens exactly once or not at all.
func (r *UsersRepo) Create(ctx context.Context, req user.CreateRequest) (user.User, error) {
	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: req.PasswordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         req.Role,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return user.User{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Bio, string(u.Role), u.IsVerified, u.CreatedAt, u.UpdatedAt,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailTaken
		}

		return user.User{}, err
	}

	if u.Role == user.RoleMusician {
		_, err = tx.Exec(ctx,
			`INSERT INTO musician_profiles (id, user_id, created_at)
			VALUES ($1,$2,$3)
			`,
			uuid.NewString(), u.ID, now,
		)

		if err != nil {
			return user.User{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = lower($1)`,
		email,
	)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
}

func (r *UsersRepo) getOne(ctx context.Context, query string, arg any) (user.User, error) {
	var u user.User
	var role string

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.Bio,
		&role,
		&u.IsVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	u.Role = user.Role(role)
	return u, nil
}

func (r *UsersRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
		`, id, hash)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

// UpdatePasswordHashTx is the reset-flow variant so the hash swap and the
// token consumption commit together.
func (r *UsersRepo) UpdatePasswordHashTx(ctx context.Context, tx pgx.Tx, id, hash string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
		`, id, hash)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

// MarkVerifiedTx flips is_verified. One-way: nothing ever resets it.
func (r *UsersRepo) MarkVerifiedTx(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users
		SET is_verified = TRUE, updated_at = NOW()
		WHERE id = $1
		`, id)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

func (r *UsersRepo) UpdateRole(ctx context.Context, id string, role user.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		SET role = $2, updated_at = NOW()
		WHERE id = $1
		`, id, string(role))

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}
