package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stagepass/stagepass/internal/config"
	"github.com/stagepass/stagepass/internal/security"
)

// EnsureBootstrapManager seeds a verified band-manager account on first
// boot so the admin endpoints are reachable before any organic signups.
// No-op when the bootstrap env vars are unset or the account exists.
func EnsureBootstrapManager(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.BootstrapEmail == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = lower($1)`, cfg.BootstrapEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.BootstrapPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, phone, bio, role, is_verified, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, '', '', '', 'band_manager', TRUE, $5, $5)
		`,
		uuid.NewString(), cfg.BootstrapEmail, hash, cfg.BootstrapName, now,
	)

	return err
}
