package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/stagepass/internal/jobs"
)

func (e *testEnv) lastRawToken(t *testing.T, jobType jobs.JobType) string {
	t.Helper()

	queued := e.jobs.byType(jobType)
	if len(queued) == 0 {
		t.Fatalf("no %s job queued", jobType)
	}

	payload, err := jobs.DecodePayload(queued[len(queued)-1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	switch p := payload.(type) {
	case jobs.PasswordResetPayload:
		return p.RawToken
	case jobs.EmailVerificationPayload:
		return p.RawToken
	default:
		t.Fatalf("unexpected payload type %T", payload)
		return ""
	}
}

func (e *testEnv) login(t *testing.T, email, password string) int {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"email":    email,
		"password": password,
	})
	return rec.Code
}

func TestChangePassword_WrongCurrentLeavesHashUntouched(t *testing.T) {
	e := newTestEnv(t)
	resp := e.register(t, "mia@example.com", "correct horse", "musician")
	access := resp["accessToken"].(string)

	rec := e.do(t, http.MethodPut, "/auth/change-password", access, gin.H{
		"currentPassword": "not the password",
		"newPassword":     "a brand new pass",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wrong_password") {
		t.Fatalf("body %s missing wrong_password", rec.Body.String())
	}

	// old password still works
	if code := e.login(t, "mia@example.com", "correct horse"); code != http.StatusOK {
		t.Fatalf("old password login = %d, want 200", code)
	}
}

func TestChangePassword_Success(t *testing.T) {
	e := newTestEnv(t)
	resp := e.register(t, "mia@example.com", "correct horse", "musician")
	access := resp["accessToken"].(string)

	rec := e.do(t, http.MethodPut, "/auth/change-password", access, gin.H{
		"currentPassword": "correct horse",
		"newPassword":     "a brand new pass",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if code := e.login(t, "mia@example.com", "a brand new pass"); code != http.StatusOK {
		t.Fatalf("new password login = %d, want 200", code)
	}
	if code := e.login(t, "mia@example.com", "correct horse"); code != http.StatusUnauthorized {
		t.Fatalf("old password login = %d, want 401", code)
	}
}

func TestForgotPassword_SameAnswerEitherWay(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "mia@example.com", "correct horse", "musician")

	known := e.do(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "mia@example.com"})
	unknown := e.do(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "ghost@example.com"})

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("statuses = %d/%d, want 200/200", known.Code, unknown.Code)
	}

	// the ack body must not depend on account existence
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ:\n%s\n%s", known.Body.String(), unknown.Body.String())
	}

	// but only the real account got a reset job
	if got := len(e.jobs.byType(jobs.JobSendPasswordReset)); got != 1 {
		t.Fatalf("reset jobs = %d, want 1", got)
	}
}

func TestResetPassword_FullFlow(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "mia@example.com", "correct horse", "musician")

	e.do(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "mia@example.com"})
	raw := e.lastRawToken(t, jobs.JobSendPasswordReset)

	rec := e.do(t, http.MethodPost, "/auth/reset-password", "", gin.H{
		"token":       raw,
		"newPassword": "a brand new pass",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, body %s", rec.Code, rec.Body.String())
	}

	if code := e.login(t, "mia@example.com", "a brand new pass"); code != http.StatusOK {
		t.Fatalf("new password login = %d, want 200", code)
	}
	if code := e.login(t, "mia@example.com", "correct horse"); code != http.StatusUnauthorized {
		t.Fatalf("old password login = %d, want 401", code)
	}
}

func TestResetPassword_TokenIsSingleUse(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "mia@example.com", "correct horse", "musician")

	e.do(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "mia@example.com"})
	raw := e.lastRawToken(t, jobs.JobSendPasswordReset)

	first := e.do(t, http.MethodPost, "/auth/reset-password", "", gin.H{
		"token":       raw,
		"newPassword": "a brand new pass",
	})
	second := e.do(t, http.MethodPost, "/auth/reset-password", "", gin.H{
		"token":       raw,
		"newPassword": "yet another pass",
	})

	if first.Code != http.StatusOK {
		t.Fatalf("first reset = %d, want 200", first.Code)
	}
	if second.Code != http.StatusBadRequest {
		t.Fatalf("second reset = %d, want 400", second.Code)
	}
	if !strings.Contains(second.Body.String(), "invalid_or_expired_token") {
		t.Fatalf("body %s missing invalid_or_expired_token", second.Body.String())
	}

	// the replay must not have changed anything
	if code := e.login(t, "mia@example.com", "a brand new pass"); code != http.StatusOK {
		t.Fatalf("first reset's password login = %d, want 200", code)
	}
}

func TestResetPassword_NewRequestInvalidatesOldToken(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "mia@example.com", "correct horse", "musician")

	e.do(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "mia@example.com"})
	oldToken := e.lastRawToken(t, jobs.JobSendPasswordReset)

	e.do(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "mia@example.com"})
	newToken := e.lastRawToken(t, jobs.JobSendPasswordReset)

	if oldToken == newToken {
		t.Fatal("second request reused the same token")
	}

	rec := e.do(t, http.MethodPost, "/auth/reset-password", "", gin.H{
		"token":       oldToken,
		"newPassword": "a brand new pass",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("old token status = %d, want 400", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/auth/reset-password", "", gin.H{
		"token":       newToken,
		"newPassword": "a brand new pass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("new token status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestResetPassword_GarbageToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/auth/reset-password", "", gin.H{
		"token":       "completely made up",
		"newPassword": "a brand new pass",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestVerifyEmail_FlipsFlagOnce(t *testing.T) {
	e := newTestEnv(t)
	resp := e.register(t, "mia@example.com", "correct horse", "musician")
	access := resp["accessToken"].(string)

	raw := e.lastRawToken(t, jobs.JobSendEmailVerification)

	first := e.do(t, http.MethodPost, "/auth/verify-email", "", gin.H{"token": raw})
	if first.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", first.Code, first.Body.String())
	}

	me := e.do(t, http.MethodGet, "/auth/me", access, nil)
	if !strings.Contains(me.Body.String(), `"isVerified":true`) {
		t.Fatalf("profile not verified: %s", me.Body.String())
	}

	second := e.do(t, http.MethodPost, "/auth/verify-email", "", gin.H{"token": raw})
	if second.Code != http.StatusBadRequest {
		t.Fatalf("second verify = %d, want 400 (single use)", second.Code)
	}
}

func TestVerifyEmail_ResetTokenDoesNotVerify(t *testing.T) {
	// purposes are not interchangeable
	e := newTestEnv(t)
	e.register(t, "mia@example.com", "correct horse", "musician")

	e.do(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "mia@example.com"})
	resetToken := e.lastRawToken(t, jobs.JobSendPasswordReset)

	rec := e.do(t, http.MethodPost, "/auth/verify-email", "", gin.H{"token": resetToken})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
