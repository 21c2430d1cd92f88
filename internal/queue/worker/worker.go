package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stagepass/stagepass/internal/domain/job"
	"github.com/stagepass/stagepass/internal/jobs"
	"github.com/stagepass/stagepass/internal/notifications"
	"github.com/stagepass/stagepass/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type DeliveriesRepository interface {
	Record(ctx context.Context, jobID, userID, email, kind string) error
	ExistsForJob(ctx context.Context, jobID string) (bool, error)
}

// Nudger wakes the worker when the API enqueues a job. Optional: with a
// nil nudger the worker relies on its poll ticker alone.
type Nudger interface {
	WaitForNudge(ctx context.Context, timeout time.Duration) (string, error)
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	LockTTL       time.Duration
}

type Worker struct {
	cfg        Config
	repo       JobsRepository
	deliveries DeliveriesRepository
	notifier   notifications.Notifier
	nudger     Nudger
	metrics    *observability.JobMetrics
	prom       *observability.Prom // optional scrape-side counters

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, deliveries DeliveriesRepository, notifier notifications.Notifier, nudger Nudger, metrics *observability.JobMetrics) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if metrics == nil {
		metrics = observability.NewJobMetrics()
	}

	return &Worker{
		cfg:        cfg,
		repo:       repo,
		deliveries: deliveries,
		notifier:   notifier,
		nudger:     nudger,
		metrics:    metrics,
	}
}

func (w *Worker) Metrics() *observability.JobMetrics { return w.metrics }

// WithProm additionally publishes per-job outcomes to the prometheus
// registry. The atomic counters stay the source for /stats.
func (w *Worker) WithProm(p *observability.Prom) *Worker {
	w.prom = p
	return w
}

func (w *Worker) observeOutcome(jobType, result string, d time.Duration) {
	if w.prom == nil {
		return
	}

	w.prom.JobResults.WithLabelValues(jobType, result).Inc()
	w.prom.JobDuration.WithLabelValues(jobType, result).Observe(d.Seconds())
}

// Run drives Concurrency loops until ctx is cancelled, then waits up to
// ShutdownGrace for in-flight jobs to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	// a crashed worker leaves rows stuck in processing; sweep them back
	// on a slow ticker so a sibling can pick them up
	go w.sweepStale(ctx)

	if w.nudger != nil {
		go w.listenNudges(ctx)
	}

	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		wg.Wait()
	}()

	<-ctx.Done()

	select {
	case <-done:
		log.Println("worker shutdown: all loops drained")
		return nil

	case <-time.After(w.cfg.ShutdownGrace):
		log.Println("worker shutdown: grace period elapsed with jobs in flight")
		return nil
	}
}

func (w *Worker) loop(ctx context.Context, n int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker loop %d received shutdown signal", n)
			return

		case <-ticker.C:
			// drain the queue before sleeping again
			for {
				processed, err := w.ProcessOne(ctx)

				if err != nil {
					log.Printf("process error: %v", err)
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}

func (w *Worker) listenNudges(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		id, err := w.nudger.WaitForNudge(ctx, 5*time.Second)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("nudge wait error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if id == "" {
			continue
		}

		// we don't chase the specific id: any claimable job will do
		if _, err := w.ProcessOne(ctx); err != nil {
			log.Printf("process error: %v", err)
		}
	}
}

func (w *Worker) sweepStale(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)

			if err != nil {
				log.Printf("stale sweep error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("requeued %d stale jobs", n)
			}
		}
	}
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)

	if err != nil {
		return err
	}

	userID := ""
	if j.UserID != nil {
		userID = *j.UserID
	}

	switch p := payload.(type) {
	case jobs.PasswordResetPayload:
		// a retried job whose send already went out must not send twice
		sent, err := w.deliveries.ExistsForJob(ctx, j.ID)
		if err != nil {
			return err
		}
		if sent {
			log.Printf("job=%s already delivered, skipping send", j.ID)
			return nil
		}

		err = w.notifier.SendPasswordReset(ctx, notifications.SendPasswordResetInput{
			Email:     p.Email,
			FirstName: p.FirstName,
			RawToken:  p.RawToken,
		})
		if err != nil {
			return err
		}

		return w.deliveries.Record(ctx, j.ID, userID, p.Email, j.Type)

	case jobs.EmailVerificationPayload:
		sent, err := w.deliveries.ExistsForJob(ctx, j.ID)
		if err != nil {
			return err
		}
		if sent {
			log.Printf("job=%s already delivered, skipping send", j.ID)
			return nil
		}

		err = w.notifier.SendEmailVerification(ctx, notifications.SendEmailVerificationInput{
			Email:     p.Email,
			FirstName: p.FirstName,
			RawToken:  p.RawToken,
		})
		if err != nil {
			return err
		}

		return w.deliveries.Record(ctx, j.ID, userID, p.Email, j.Type)

	default:
		return fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type)
	}
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, execErr error, took time.Duration) {
	// the claim bumped attempts, so j.Attempts counts the execution that
	// just failed; at max there is nothing left to retry
	if j.Attempts >= j.MaxAttempts {
		w.metrics.IncDeadLettered()
		w.observeOutcome(j.Type, "failed", took)

		if err := w.repo.MarkFailed(ctx, j.ID, execErr.Error()); err != nil {
			log.Printf("mark failed error: %v", err)
		}

		log.Printf("job=%s dead-lettered after %d attempts: %v", j.ID, j.Attempts, execErr)
		return
	}

	w.metrics.IncRetried()
	w.observeOutcome(j.Type, "retry", took)

	// attempts start at 1 after the first claim; the first retry waits
	// the base delay
	runAt := time.Now().UTC().Add(ExponentialBackoff(j.Attempts - 1))

	if err := w.repo.Reschedule(ctx, j.ID, runAt, execErr.Error()); err != nil {
		log.Printf("reschedule error: %v", err)
	}

	log.Printf("job=%s attempt %d/%d failed, retrying at %s: %v", j.ID, j.Attempts, j.MaxAttempts, runAt.Format(time.RFC3339), execErr)
}

func (w *Worker) setReady(ready bool) {
	w.readyMu.Lock()
	w.ready = ready
	w.readyMu.Unlock()
}
