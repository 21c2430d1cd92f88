package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrActionTokenNotFound = errors.New("action token not found")

// TokenPurpose partitions the single-use token space. A reset token can
// never be replayed as a verification token.
type TokenPurpose string

const (
	PurposePasswordReset     TokenPurpose = "password_reset"
	PurposeEmailVerification TokenPurpose = "email_verification"
)

type ActionTokenRow struct {
	ID        string
	UserID    string
	Purpose   TokenPurpose
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type ActionTokensRepo struct {
	pool *pgxpool.Pool
}

func NewActionTokensRepo(pool *pgxpool.Pool) *ActionTokensRepo {
	return &ActionTokensRepo{pool: pool}
}

// CreateTx stores the hash of a freshly minted token, replacing any
// outstanding token of the same purpose so only the latest link works.
// Runs inside the caller's transaction so the token can commit together
// with the job that carries the raw value.
func (r *ActionTokensRepo) CreateTx(ctx context.Context, tx pgx.Tx, userID string, purpose TokenPurpose, tokenHash string, expiresAt time.Time) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM action_tokens WHERE user_id = $1 AND purpose = $2`,
		userID, string(purpose),
	)

	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO action_tokens (id, user_id, purpose, token_hash, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		`,
		uuid.NewString(), userID, string(purpose), tokenHash, expiresAt, time.Now().UTC(),
	)

	return err
}

// ConsumeTx deletes the matching unexpired token and returns its user id
// in a single statement. Two concurrent presenters of the same token race
// on the DELETE; exactly one sees the row, the other gets
// ErrActionTokenNotFound. Runs inside the caller's transaction so the
// consumption commits together with the password/verification update.
func (r *ActionTokensRepo) ConsumeTx(ctx context.Context, tx pgx.Tx, tokenHash string, purpose TokenPurpose) (string, error) {
	var userID string

	err := tx.QueryRow(ctx,
		`DELETE FROM action_tokens
		WHERE token_hash = $1
		  AND purpose = $2
		  AND expires_at > NOW()
		RETURNING user_id
		`, tokenHash, string(purpose),
	).Scan(&userID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrActionTokenNotFound
		}

		return "", err
	}

	return userID, nil
}

// DeleteExpired is housekeeping for tokens that were never used.
func (r *ActionTokensRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM action_tokens WHERE expires_at <= NOW()`,
	)

	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
