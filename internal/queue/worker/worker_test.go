package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stagepass/stagepass/internal/domain/job"
	"github.com/stagepass/stagepass/internal/jobs"
	"github.com/stagepass/stagepass/internal/notifications"
)

type fakeJobsRepo struct {
	claimNextFn  func(ctx context.Context, workerID string) (job.Job, error)
	markDoneFn   func(ctx context.Context, id string) error
	markFailedFn func(ctx context.Context, id string, errMsg string) error
	rescheduleFn func(ctx context.Context, id string, runAt time.Time, errMsg string) error
	requeueFn    func(ctx context.Context, lockTTL time.Duration) (int64, error)
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	return f.claimNextFn(ctx, workerID)
}

func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	return f.markDoneFn(ctx, id)
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return f.markFailedFn(ctx, id, errMsg)
}

func (f *fakeJobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return f.rescheduleFn(ctx, id, runAt, errMsg)
}

func (f *fakeJobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	if f.requeueFn == nil {
		return 0, nil
	}
	return f.requeueFn(ctx, lockTTL)
}

type fakeDeliveries struct {
	recorded map[string]bool
}

func newFakeDeliveries() *fakeDeliveries {
	return &fakeDeliveries{recorded: make(map[string]bool)}
}

func (f *fakeDeliveries) Record(ctx context.Context, jobID, userID, email, kind string) error {
	f.recorded[jobID] = true
	return nil
}

func (f *fakeDeliveries) ExistsForJob(ctx context.Context, jobID string) (bool, error) {
	return f.recorded[jobID], nil
}

type fakeSender struct {
	resets        int
	verifications int
	err           error
}

func (f *fakeSender) SendPasswordReset(ctx context.Context, in notifications.SendPasswordResetInput) error {
	f.resets++
	return f.err
}

func (f *fakeSender) SendEmailVerification(ctx context.Context, in notifications.SendEmailVerificationInput) error {
	f.verifications++
	return f.err
}

func resetJob(t *testing.T, id string, attempts, maxAttempts int) job.Job {
	t.Helper()

	payload, err := jobs.EncodePayload(jobs.JobSendPasswordReset, jobs.PasswordResetPayload{
		UserID:   "u-1",
		Email:    "mia@example.com",
		RawToken: "raw-token",
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	uid := "u-1"
	return job.Job{
		ID:          id,
		Type:        string(jobs.JobSendPasswordReset),
		Payload:     payload,
		Status:      job.StatusProcessing,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		UserID:      &uid,
	}
}

func TestProcessOne_NoJobIsNotAnError(t *testing.T) {
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return job.Job{}, job.ErrJobNotFound
		},
	}

	w := New(Config{WorkerID: "w-1"}, repo, newFakeDeliveries(), &fakeSender{}, nil, nil)

	processed, err := w.ProcessOne(context.Background())

	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if processed {
		t.Fatal("processed = true, want false")
	}
}

func TestProcessOne_SendsAndMarksDone(t *testing.T) {
	j := resetJob(t, "j-1", 1, 5)

	doneID := ""
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return j, nil
		},
		markDoneFn: func(ctx context.Context, id string) error {
			doneID = id
			return nil
		},
	}

	sender := &fakeSender{}
	deliveries := newFakeDeliveries()

	w := New(Config{WorkerID: "w-1"}, repo, deliveries, sender, nil, nil)

	processed, err := w.ProcessOne(context.Background())

	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !processed {
		t.Fatal("processed = false, want true")
	}
	if sender.resets != 1 {
		t.Fatalf("resets = %d, want 1", sender.resets)
	}
	if doneID != "j-1" {
		t.Fatalf("marked done %q, want j-1", doneID)
	}
	if !deliveries.recorded["j-1"] {
		t.Fatal("delivery not recorded")
	}
}

func TestProcessOne_SkipsAlreadyDeliveredJob(t *testing.T) {
	j := resetJob(t, "j-1", 2, 5)

	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return j, nil
		},
		markDoneFn: func(ctx context.Context, id string) error { return nil },
	}

	sender := &fakeSender{}
	deliveries := newFakeDeliveries()
	deliveries.recorded["j-1"] = true

	w := New(Config{WorkerID: "w-1"}, repo, deliveries, sender, nil, nil)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if sender.resets != 0 {
		t.Fatalf("resets = %d, want 0 (send must not repeat)", sender.resets)
	}
}

func TestProcessOne_ReschedulesOnFailure(t *testing.T) {
	j := resetJob(t, "j-1", 1, 5)

	var gotRunAt time.Time
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return j, nil
		},
		rescheduleFn: func(ctx context.Context, id string, runAt time.Time, errMsg string) error {
			gotRunAt = runAt
			return nil
		},
		markFailedFn: func(ctx context.Context, id string, errMsg string) error {
			t.Fatal("job with attempts left must be rescheduled, not failed")
			return nil
		},
	}

	w := New(Config{WorkerID: "w-1"}, repo, newFakeDeliveries(), &fakeSender{err: errors.New("smtp down")}, nil, nil)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !gotRunAt.After(time.Now().UTC()) {
		t.Fatalf("runAt = %s, want in the future", gotRunAt)
	}
}

// queueFake mirrors the queue table's claim semantics: a claim matches
// only pending rows with run_at due and attempts below the cap, and the
// claim itself consumes an attempt. Reschedule returns the row to
// pending untouched.
type queueFake struct {
	j           job.Job
	now         time.Time
	rescheduled int
}

func (q *queueFake) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	if q.j.Status != job.StatusPending || q.j.Attempts >= q.j.MaxAttempts || q.j.RunAt.After(q.now) {
		return job.Job{}, job.ErrJobNotFound
	}

	q.j.Status = job.StatusProcessing
	q.j.Attempts++
	return q.j, nil
}

func (q *queueFake) MarkDone(ctx context.Context, id string) error {
	q.j.Status = job.StatusDone
	return nil
}

func (q *queueFake) MarkFailed(ctx context.Context, id string, errMsg string) error {
	q.j.Status = job.StatusFailed
	return nil
}

func (q *queueFake) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	q.j.Status = job.StatusPending
	q.j.RunAt = runAt
	q.rescheduled++
	return nil
}

func (q *queueFake) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	return 0, nil
}

// A job whose sends always fail must walk the whole retry ladder and end
// up failed, where the admin retry endpoints can reach it. It must not
// strand as pending with exhausted attempts.
func TestRetryLadder_EndsInFailedStatus(t *testing.T) {
	j := resetJob(t, "j-1", 0, 5)
	j.Status = job.StatusPending

	q := &queueFake{j: j, now: time.Now().UTC()}
	sender := &fakeSender{err: errors.New("smtp down")}

	w := New(Config{WorkerID: "w-1"}, q, newFakeDeliveries(), sender, nil, nil)

	for i := 0; i < 2*j.MaxAttempts; i++ {
		processed, err := w.ProcessOne(context.Background())
		if err != nil {
			t.Fatalf("ProcessOne: %v", err)
		}
		if !processed {
			break
		}
		// make the backoff due
		q.now = q.now.Add(time.Hour)
	}

	if sender.resets != 5 {
		t.Fatalf("sends = %d, want 5 (one per allowed attempt)", sender.resets)
	}
	if q.rescheduled != 4 {
		t.Fatalf("reschedules = %d, want 4", q.rescheduled)
	}
	if q.j.Status != job.StatusFailed {
		t.Fatalf("final status = %s, want failed (job stranded out of admin reach)", q.j.Status)
	}
	if got := w.Metrics().Snapshot().DeadLettered; got != 1 {
		t.Fatalf("dead-lettered = %d, want 1", got)
	}
}

func TestProcessOne_DeadLettersWhenAttemptsExhausted(t *testing.T) {
	// the fifth claim of a max_attempts=5 job returns attempts=5
	j := resetJob(t, "j-1", 5, 5)

	failedID := ""
	repo := &fakeJobsRepo{
		claimNextFn: func(ctx context.Context, workerID string) (job.Job, error) {
			return j, nil
		},
		markFailedFn: func(ctx context.Context, id string, errMsg string) error {
			failedID = id
			return nil
		},
		rescheduleFn: func(ctx context.Context, id string, runAt time.Time, errMsg string) error {
			t.Fatal("exhausted job must not be rescheduled")
			return nil
		},
	}

	w := New(Config{WorkerID: "w-1"}, repo, newFakeDeliveries(), &fakeSender{err: errors.New("smtp down")}, nil, nil)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if failedID != "j-1" {
		t.Fatalf("marked failed %q, want j-1", failedID)
	}
	if w.Metrics().Snapshot().DeadLettered != 1 {
		t.Fatalf("dead-lettered = %d, want 1", w.Metrics().Snapshot().DeadLettered)
	}
}

func TestExponentialBackoff_GrowsAndCaps(t *testing.T) {
	prev := time.Duration(0)

	for attempt := 0; attempt < 5; attempt++ {
		d := ExponentialBackoff(attempt)
		if d <= prev {
			t.Fatalf("attempt %d: %s not greater than previous %s", attempt, d, prev)
		}
		prev = d
	}

	if d := ExponentialBackoff(20); d > 5*time.Minute+time.Second {
		t.Fatalf("backoff %s exceeds cap", d)
	}
}
