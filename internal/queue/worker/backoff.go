package worker

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// ExponentialBackoff returns the delay before retrying a failed email
// job: 2s, 4s, 8s, ... capped at five minutes, plus up to 250ms of
// jitter so a batch of failures does not retry in lockstep.
func ExponentialBackoff(attempt int) time.Duration {
	delay := backoffBase << uint(attempt)

	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}

	return delay + time.Duration(rand.Intn(250))*time.Millisecond
}
