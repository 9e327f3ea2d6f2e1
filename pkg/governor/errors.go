package governor

import (
	"fmt"
	"time"
)

// RateLimitError reports a rejected admission. The call may be retried after
// RetryAfter; the governor never retries on the caller's behalf.
type RateLimitError struct {
	Category   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Category, e.RetryAfter.Round(time.Millisecond))
}

// TimeoutError reports an upstream call aborted at its deadline.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call exceeded %s deadline", e.Limit)
}
