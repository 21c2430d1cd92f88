package notifications

import "context"

type SendPasswordResetInput struct {
	Email     string
	FirstName string
	// RawToken is the unhashed single-use value. It goes into the email
	// link and nowhere else.
	RawToken string
}

type SendEmailVerificationInput struct {
	Email     string
	FirstName string
	RawToken  string
}

type Notifier interface {
	SendPasswordReset(ctx context.Context, input SendPasswordResetInput) error
	SendEmailVerification(ctx context.Context, input SendEmailVerificationInput) error
}
