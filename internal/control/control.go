// Package control paces the update poller when the messaging platform fails.
// It never retries inference calls.
package control

import "time"

// MaxPollBackoff caps the delay between failing polls.
const MaxPollBackoff = 30 * time.Second

// PollBackoff computes exponential backoff for consecutive poll failures,
// starting at base and capped at MaxPollBackoff.
func PollBackoff(base time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= MaxPollBackoff {
			return MaxPollBackoff
		}
	}
	return delay
}
