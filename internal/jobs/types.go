package jobs

type JobType string

const (
	JobSendPasswordReset     JobType = "send_password_reset"
	JobSendEmailVerification JobType = "send_email_verification"
)

// check that the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobSendPasswordReset, JobSendEmailVerification:
		return true
	default:
		return false
	}
}
