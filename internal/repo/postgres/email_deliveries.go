package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmailDeliveriesRepo records one row per successfully delivered
// notification, keyed by job id. The worker checks it before sending so a
// retried job that already reached the provider is not sent twice.
type EmailDeliveriesRepo struct {
	pool *pgxpool.Pool
}

type EmailDeliveryRow struct {
	ID          string
	JobID       string
	UserID      string
	Email       string
	Kind        string
	DeliveredAt time.Time
}

func NewEmailDeliveriesRepo(pool *pgxpool.Pool) *EmailDeliveriesRepo {
	return &EmailDeliveriesRepo{pool: pool}
}

func (r *EmailDeliveriesRepo) Record(ctx context.Context, jobID, userID, email, kind string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO email_deliveries (id, job_id, user_id, email, kind, delivered_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (job_id) DO NOTHING
		`,
		uuid.NewString(), jobID, userID, email, kind, time.Now().UTC(),
	)

	return err
}

func (r *EmailDeliveriesRepo) ExistsForJob(ctx context.Context, jobID string) (bool, error) {
	var one int

	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM email_deliveries WHERE job_id = $1`,
		jobID,
	).Scan(&one)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}
