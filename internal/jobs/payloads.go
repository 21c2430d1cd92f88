package jobs

import "time"

// PasswordResetPayload carries everything the mail worker needs to send a
// reset link. RawToken is the only place the unhashed token travels.
type PasswordResetPayload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	RawToken    string    `json:"rawToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RequestedAt time.Time `json:"requestedAt"`
	RequestID   string    `json:"requestId,omitempty"`
}

// EmailVerificationPayload is enqueued right after registration.
type EmailVerificationPayload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	RawToken    string    `json:"rawToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RequestedAt time.Time `json:"requestedAt"`
	RequestID   string    `json:"requestId,omitempty"`
}
