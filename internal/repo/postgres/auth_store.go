package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/stagepass/internal/domain/job"
)

// AuthStore composes the operations that must commit atomically across
// the users, action_tokens and jobs tables.
type AuthStore struct {
	pool   *pgxpool.Pool
	users  *UsersRepo
	tokens *ActionTokensRepo
	jobs   *JobsRepo
}

func NewAuthStore(pool *pgxpool.Pool, users *UsersRepo, tokens *ActionTokensRepo, jobs *JobsRepo) *AuthStore {
	return &AuthStore{pool: pool, users: users, tokens: tokens, jobs: jobs}
}

// SaveTokenAndJob persists an action token digest and the email job
// carrying its raw value in one transaction. Either both exist or
// neither: no orphaned token, no email pointing at a missing token.
func (s *AuthStore) SaveTokenAndJob(ctx context.Context, userID string, purpose TokenPurpose, tokenHash string, expiresAt time.Time, jobReq job.CreateRequest) (job.Job, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return job.Job{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.tokens.CreateTx(ctx, tx, userID, purpose, tokenHash, expiresAt); err != nil {
		return job.Job{}, err
	}

	j, err := s.jobs.CreateTx(ctx, tx, jobReq)

	if err != nil {
		return job.Job{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return job.Job{}, err
	}

	return j, nil
}

// ResetPassword consumes an unexpired reset token and swaps the password
// hash in one transaction, so the token can never succeed twice and a
// consumed token always means the hash changed.
func (s *AuthStore) ResetPassword(ctx context.Context, tokenHash, newPasswordHash string) (string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return "", err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	userID, err := s.tokens.ConsumeTx(ctx, tx, tokenHash, PurposePasswordReset)

	if err != nil {
		return "", err
	}

	if err := s.users.UpdatePasswordHashTx(ctx, tx, userID, newPasswordHash); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}

	return userID, nil
}

// VerifyEmail has the same single-use contract, flipping is_verified.
func (s *AuthStore) VerifyEmail(ctx context.Context, tokenHash string) (string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return "", err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	userID, err := s.tokens.ConsumeTx(ctx, tx, tokenHash, PurposeEmailVerification)

	if err != nil {
		return "", err
	}

	if err := s.users.MarkVerifiedTx(ctx, tx, userID); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}

	return userID, nil
}
