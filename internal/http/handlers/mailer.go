package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/stagepass/stagepass/internal/domain/job"
	"github.com/stagepass/stagepass/internal/domain/user"
	"github.com/stagepass/stagepass/internal/jobs"
	"github.com/stagepass/stagepass/internal/repo/postgres"
	"github.com/stagepass/stagepass/internal/security"
)

// MailStore commits a token digest and its carrier job atomically.
type MailStore interface {
	SaveTokenAndJob(ctx context.Context, userID string, purpose postgres.TokenPurpose, tokenHash string, expiresAt time.Time, jobReq job.CreateRequest) (job.Job, error)
}

type JobNudger interface {
	NudgeJob(ctx context.Context, jobID string) error
}

// Mailer mints a single-use action token and enqueues the email job that
// carries it. Only the SHA-256 digest is persisted; the raw value lives
// in the job payload and nowhere else.
type Mailer struct {
	store     MailStore
	nudger    JobNudger // optional wake signal for the worker
	resetTTL  time.Duration
	verifyTTL time.Duration
}

func NewMailer(store MailStore, nudger JobNudger, resetTTL, verifyTTL time.Duration) *Mailer {
	return &Mailer{
		store:     store,
		nudger:    nudger,
		resetTTL:  resetTTL,
		verifyTTL: verifyTTL,
	}
}

func (m *Mailer) EnqueuePasswordReset(ctx context.Context, u user.User, requestID string) error {
	raw, err := security.NewActionToken()

	if err != nil {
		return err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.resetTTL)

	payload, err := jobs.EncodePayload(jobs.JobSendPasswordReset, jobs.PasswordResetPayload{
		UserID:      u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		RawToken:    raw,
		ExpiresAt:   expiresAt,
		RequestedAt: now,
		RequestID:   requestID,
	})

	if err != nil {
		return err
	}

	return m.save(ctx, u.ID, postgres.PurposePasswordReset, security.HashActionToken(raw), expiresAt, string(jobs.JobSendPasswordReset), payload)
}

func (m *Mailer) EnqueueEmailVerification(ctx context.Context, u user.User, requestID string) error {
	raw, err := security.NewActionToken()

	if err != nil {
		return err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.verifyTTL)

	payload, err := jobs.EncodePayload(jobs.JobSendEmailVerification, jobs.EmailVerificationPayload{
		UserID:      u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		RawToken:    raw,
		ExpiresAt:   expiresAt,
		RequestedAt: now,
		RequestID:   requestID,
	})

	if err != nil {
		return err
	}

	return m.save(ctx, u.ID, postgres.PurposeEmailVerification, security.HashActionToken(raw), expiresAt, string(jobs.JobSendEmailVerification), payload)
}

func (m *Mailer) save(ctx context.Context, userID string, purpose postgres.TokenPurpose, tokenHash string, expiresAt time.Time, jobType string, payload []byte) error {
	j, err := m.store.SaveTokenAndJob(ctx, userID, purpose, tokenHash, expiresAt, job.CreateRequest{
		Type:    jobType,
		Payload: payload,
		UserID:  &userID,
	})

	if err != nil {
		return err
	}

	if m.nudger != nil {
		// best effort: the worker's poll will find the row regardless
		if err := m.nudger.NudgeJob(ctx, j.ID); err != nil {
			slog.Default().WarnContext(ctx, "job nudge failed", "job_id", j.ID, "err", err)
		}
	}

	return nil
}
