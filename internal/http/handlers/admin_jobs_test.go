package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/stagepass/internal/domain/job"
	"github.com/stagepass/stagepass/internal/jobs"
)

type fakeAdminJobsRepo struct {
	listFn    func(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error)
	getByIDFn func(ctx context.Context, id string) (job.Job, error)
	retryFn   func(ctx context.Context, id string) error
}

func (f *fakeAdminJobsRepo) ListCursor(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error) {
	return f.listFn(ctx, status, limit, afterUpdatedAt, afterID)
}

func (f *fakeAdminJobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeAdminJobsRepo) Retry(ctx context.Context, id string) error {
	return f.retryFn(ctx, id)
}

func (f *fakeAdminJobsRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}

func adminRouter(repo AdminJobsRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAdminJobsHandler(repo)

	r := gin.New()
	r.GET("/admin/jobs", h.List)
	r.GET("/admin/jobs/:id", h.GetByID)
	return r
}

func queuedResetJob(t *testing.T, rawToken string) job.Job {
	t.Helper()

	payload, err := jobs.EncodePayload(jobs.JobSendPasswordReset, jobs.PasswordResetPayload{
		UserID:   "u-1",
		Email:    "mia@example.com",
		RawToken: rawToken,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	j := job.New(job.CreateRequest{
		Type:    string(jobs.JobSendPasswordReset),
		Payload: payload,
	})
	j.ID = "3f2f7a3e-9a1b-4c5d-8e6f-0a1b2c3d4e5f"
	return j
}

func TestAdminJobs_ResponsesNeverCarryPayload(t *testing.T) {
	const rawToken = "super-secret-reset-token"
	j := queuedResetJob(t, rawToken)

	repo := &fakeAdminJobsRepo{
		listFn: func(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error) {
			return []job.Job{j}, nil, false, nil
		},
		getByIDFn: func(ctx context.Context, id string) (job.Job, error) {
			return j, nil
		},
	}

	r := adminRouter(repo)

	for _, path := range []string{"/admin/jobs", "/admin/jobs/" + j.ID} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", path, rec.Code, rec.Body.String())
		}

		body := rec.Body.String()
		if strings.Contains(body, rawToken) {
			t.Fatalf("%s leaks the raw token: %s", path, body)
		}
		if strings.Contains(body, "rawToken") || strings.Contains(body, `"payload"`) {
			t.Fatalf("%s exposes the job payload: %s", path, body)
		}
		// the queue metadata an operator needs is still there
		if !strings.Contains(body, j.ID) || !strings.Contains(body, `"attempts"`) {
			t.Fatalf("%s missing job metadata: %s", path, body)
		}
	}
}
