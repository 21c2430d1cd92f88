package notifications

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// LogNotifier is the dev/test delivery backend. It logs the recipient,
// never the raw token.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) SendPasswordReset(ctx context.Context, in SendPasswordResetInput) error {
	if err := simulateProvider(ctx); err != nil {
		return err
	}

	log.Printf("notification.password_reset email=%s name=%s", in.Email, in.FirstName)
	return nil
}

func (n *LogNotifier) SendEmailVerification(ctx context.Context, in SendEmailVerificationInput) error {
	if err := simulateProvider(ctx); err != nil {
		return err
	}

	log.Printf("notification.email_verification email=%s name=%s", in.Email, in.FirstName)
	return nil
}

// Optional: simulate a slow or failing provider via env for local
// testing of the worker's retry path.
func simulateProvider(ctx context.Context) error {
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	return nil
}
