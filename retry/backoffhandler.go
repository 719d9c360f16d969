// Package retry implements exponential backoff for Client.DialWithRetry's
// reconnect loop. Unlike a package-level time source, the clock hook lives
// on BackoffHandler itself so concurrent dialers (and their tests) never
// share mutable state through a global — consistent with the rest of this
// module's rule against hidden singletons (Router, TlsConfig are always
// passed in explicitly, never reached for through a package global).
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Clock supplies the time source BackoffHandler waits on. A nil Clock
// field on BackoffHandler falls back to the real wall clock; tests supply
// their own to make backoff deterministic and instant.
type Clock struct {
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

func realClock() Clock {
	return Clock{Now: time.Now, After: time.After}
}

// BackoffHandler manages exponential backoff and limits the maximum number of retries.
// The base time period is 1 second, doubling with each retry.
// After initial success, a grace period can be set to reset the backoff timer if
// a connection is maintained successfully for a long enough period. The base grace period
// is 2 seconds, doubling with each retry.
type BackoffHandler struct {
	// MaxRetries sets the maximum number of retries to perform. The default value
	// of 0 disables retry completely.
	MaxRetries uint
	// RetryForever caps the exponential backoff period according to MaxRetries
	// but allows you to retry indefinitely.
	RetryForever bool
	// BaseTime sets the initial backoff period.
	BaseTime time.Duration
	// Clock overrides the time source used to schedule waits. Nil uses the
	// real wall clock; tests set it to make Backoff resolve immediately
	// and to control what Clock.Now reports.
	Clock *Clock

	retries       uint
	resetDeadline time.Time
}

func (b BackoffHandler) clock() Clock {
	if b.Clock != nil {
		return *b.Clock
	}
	return realClock()
}

func (b BackoffHandler) GetMaxBackoffDuration(ctx context.Context) (time.Duration, bool) {
	// Follows the same logic as Backoff, but without mutating the receiver.
	// This select has to happen first to reflect the actual behaviour of the Backoff function.
	select {
	case <-ctx.Done():
		return time.Duration(0), false
	default:
	}
	clk := b.clock()
	retries := b.retries
	if !b.resetDeadline.IsZero() && clk.Now().After(b.resetDeadline) {
		// b.retries would be set to 0 at this point
		retries = 0
	}
	if retries >= b.MaxRetries && !b.RetryForever {
		return time.Duration(0), false
	}
	if retries < b.MaxRetries {
		retries++
	}
	maxTimeToWait := b.GetBaseTime() * 1 << retries
	return maxTimeToWait, true
}

// BackoffTimer returns a channel that sends the current time when the exponential backoff timeout expires.
// Returns nil if the maximum number of retries have been used.
func (b *BackoffHandler) BackoffTimer() <-chan time.Time {
	clk := b.clock()
	if !b.resetDeadline.IsZero() && clk.Now().After(b.resetDeadline) {
		b.retries = 0
		b.resetDeadline = time.Time{}
	}
	if b.retries >= b.MaxRetries {
		if !b.RetryForever {
			return nil
		}
	} else {
		b.retries++
	}
	maxTimeToWait := time.Duration(b.GetBaseTime() * 1 << (b.retries))
	timeToWait := time.Duration(rand.Int63n(maxTimeToWait.Nanoseconds()))
	return clk.After(timeToWait)
}

// Backoff is used to wait according to exponential backoff. Returns false if the
// maximum number of retries have been used or if the underlying context has been cancelled.
func (b *BackoffHandler) Backoff(ctx context.Context) bool {
	c := b.BackoffTimer()
	if c == nil {
		return false
	}
	select {
	case <-c:
		return true
	case <-ctx.Done():
		return false
	}
}

// SetGracePeriod sets a grace period within which the backoff timer is maintained. After
// the grace period expires, the number of retries & backoff duration is reset.
func (b *BackoffHandler) SetGracePeriod() {
	maxTimeToWait := b.GetBaseTime() * 2 << b.retries
	timeToWait := time.Duration(rand.Int63n(maxTimeToWait.Nanoseconds()))
	b.resetDeadline = b.clock().Now().Add(timeToWait)
}

func (b BackoffHandler) GetBaseTime() time.Duration {
	if b.BaseTime == 0 {
		return time.Second
	}
	return b.BaseTime
}

// Retries returns the number of retries consumed so far.
func (b *BackoffHandler) Retries() int {
	return int(b.retries)
}

func (b *BackoffHandler) ReachedMaxRetries() bool {
	return b.retries == b.MaxRetries
}

func (b *BackoffHandler) ResetNow() {
	b.resetDeadline = b.clock().Now()
}
