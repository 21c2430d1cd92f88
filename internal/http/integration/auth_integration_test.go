package integration__test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/stagepass/internal/auth"
	"github.com/stagepass/stagepass/internal/config"
	"github.com/stagepass/stagepass/internal/db"
	apphttp "github.com/stagepass/stagepass/internal/http"
	"github.com/stagepass/stagepass/internal/notifications"
	"github.com/stagepass/stagepass/internal/queue/worker"
	"github.com/stagepass/stagepass/internal/repo/postgres"
)

func testConfig() config.Config {
	return config.Config{
		Env:              "test",
		JWTAccessSecret:  "test-access-secret",
		JWTRefreshSecret: "test-refresh-secret",
		AccessTTL:        time.Hour,
		RefreshTTL:       24 * time.Hour,
		ResetTokenTTL:    time.Hour,
		VerifyTokenTTL:   24 * time.Hour,
	}
}

func setupTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool, config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set; skipping integration test")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pg pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	cfg := testConfig()

	jwtManager := auth.NewManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)

	router := apphttp.NewRouter(apphttp.Deps{
		Cfg:  cfg,
		Pool: pool,
		JWT:  jwtManager,
	})

	return router, pool, cfg
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		TRUNCATE email_deliveries, jobs, action_tokens, musician_profiles, users RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func postJSON(t *testing.T, router *gin.Engine, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type recordingNotifier struct {
	mu     sync.Mutex
	resets []notifications.SendPasswordResetInput
	mails  []notifications.SendEmailVerificationInput
}

func (n *recordingNotifier) SendPasswordReset(ctx context.Context, in notifications.SendPasswordResetInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, in)
	return nil
}

func (n *recordingNotifier) SendEmailVerification(ctx context.Context, in notifications.SendEmailVerificationInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mails = append(n.mails, in)
	return nil
}

func (n *recordingNotifier) lastReset() (notifications.SendPasswordResetInput, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		return notifications.SendPasswordResetInput{}, false
	}
	return n.resets[len(n.resets)-1], true
}

// drainJobs runs the worker loop body until the queue is empty.
func drainJobs(t *testing.T, pool *pgxpool.Pool, notifier notifications.Notifier) {
	t.Helper()

	jobsRepo := postgres.NewJobsRepo(pool, nil)
	deliveries := postgres.NewEmailDeliveriesRepo(pool)

	w := worker.New(worker.Config{WorkerID: "itest"}, jobsRepo, deliveries, notifier, nil, nil)

	for i := 0; i < 20; i++ {
		processed, err := w.ProcessOne(context.Background())
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if !processed {
			return
		}
	}
	t.Fatal("queue did not drain")
}

func TestAuthFlow_EndToEnd(t *testing.T) {
	router, pool, _ := setupTestRouter(t)
	resetDB(t, pool)
	defer resetDB(t, pool)

	reg := postJSON(t, router, "/auth/register", "", gin.H{
		"email":     "mia@example.com",
		"password":  "correct horse",
		"firstName": "Mia",
		"lastName":  "Verde",
		"role":      "musician",
	})
	if reg.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", reg.Code, reg.Body.String())
	}

	var regResp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(reg.Body.Bytes(), &regResp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// me with the fresh access token
	meReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+regResp.AccessToken)
	meRec := httptest.NewRecorder()
	router.ServeHTTP(meRec, meReq)
	if meRec.Code != http.StatusOK {
		t.Fatalf("me = %d, body %s", meRec.Code, meRec.Body.String())
	}

	// refresh mints a usable access token
	ref := postJSON(t, router, "/auth/refresh", "", gin.H{"refreshToken": regResp.RefreshToken})
	if ref.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body %s", ref.Code, ref.Body.String())
	}

	// login round trip
	login := postJSON(t, router, "/auth/login", "", gin.H{
		"email":    "mia@example.com",
		"password": "correct horse",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login = %d, body %s", login.Code, login.Body.String())
	}
}

func TestPasswordResetPipeline_EndToEnd(t *testing.T) {
	router, pool, _ := setupTestRouter(t)
	resetDB(t, pool)
	defer resetDB(t, pool)

	reg := postJSON(t, router, "/auth/register", "", gin.H{
		"email":     "mia@example.com",
		"password":  "correct horse",
		"firstName": "Mia",
		"lastName":  "Verde",
		"role":      "producer",
	})
	if reg.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", reg.Code, reg.Body.String())
	}

	forgot := postJSON(t, router, "/auth/forgot-password", "", gin.H{"email": "mia@example.com"})
	if forgot.Code != http.StatusOK {
		t.Fatalf("forgot = %d", forgot.Code)
	}

	// run the worker against the real queue
	notifier := &recordingNotifier{}
	drainJobs(t, pool, notifier)

	sent, ok := notifier.lastReset()
	if !ok {
		t.Fatal("no reset email was delivered")
	}
	if sent.Email != "mia@example.com" || sent.RawToken == "" {
		t.Fatalf("unexpected delivery: %+v", sent)
	}

	reset := postJSON(t, router, "/auth/reset-password", "", gin.H{
		"token":       sent.RawToken,
		"newPassword": "a brand new pass",
	})
	if reset.Code != http.StatusOK {
		t.Fatalf("reset = %d, body %s", reset.Code, reset.Body.String())
	}

	// replay is refused
	replay := postJSON(t, router, "/auth/reset-password", "", gin.H{
		"token":       sent.RawToken,
		"newPassword": "yet another pass",
	})
	if replay.Code != http.StatusBadRequest {
		t.Fatalf("replay = %d, want 400", replay.Code)
	}

	// only the new password logs in
	if rec := postJSON(t, router, "/auth/login", "", gin.H{
		"email":    "mia@example.com",
		"password": "a brand new pass",
	}); rec.Code != http.StatusOK {
		t.Fatalf("new password login = %d", rec.Code)
	}
	if rec := postJSON(t, router, "/auth/login", "", gin.H{
		"email":    "mia@example.com",
		"password": "correct horse",
	}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password login = %d, want 401", rec.Code)
	}

	// worker deliveries are recorded for idempotency
	var deliveries int
	if err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM email_deliveries`).Scan(&deliveries); err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if deliveries == 0 {
		t.Fatal("no rows in email_deliveries")
	}
}
