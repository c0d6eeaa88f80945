package finauth

import (
	"os"
	"sync"
	"time"
)

const (
	// renewalMargin is how far ahead of expiry the renewal fires.
	renewalMargin = 15 * time.Second
	// shortTimeoutCap bounds the delay when re-arming right after a
	// renewal, so drifting clocks cannot push the next renewal out to the
	// full session lifetime.
	shortTimeoutCap = 5 * time.Minute
)

// EnvironmentVariable names the process-level marker the scheduler checks.
// When it carries [EnvironmentCI] the scheduler never arms, which keeps
// automated test runs deterministic.
const (
	EnvironmentVariable = "FINAUTH_ENV"
	EnvironmentCI       = "ci"
)

func inCIEnvironment() bool {
	return os.Getenv(EnvironmentVariable) == EnvironmentCI
}

// renewalScheduler owns the expiry timer. At most one timer is outstanding
// at any time; arming always cancels the previous timer first, and the
// enabled flag is re-checked when the timer fires, not only when it is
// armed.
//
// Arm receives an owned snapshot of what it needs (expiry, timeout) rather
// than reaching into mutable session state from the callback.
type renewalScheduler struct {
	enabled  func() bool
	onExpiry func()

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
}

func newRenewalScheduler(enabled func() bool, onExpiry func()) *renewalScheduler {
	return &renewalScheduler{
		enabled:  enabled,
		onExpiry: onExpiry,
	}
}

// renewalDelay computes how long to wait before renewing. The short form is
// used when re-arming immediately after a renewal: the delay is capped at
// min(session timeout, shortTimeoutCap) instead of the remaining lifetime.
func renewalDelay(remaining, timeout time.Duration, short bool) time.Duration {
	delay := remaining
	if short {
		delay = timeout
		if delay > shortTimeoutCap {
			delay = shortTimeoutCap
		}
	}
	delay -= renewalMargin
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Arm schedules the next renewal. Any previously armed timer is cancelled
// first. No-op when self-renewal is disabled, when running in the CI
// environment, or when no expiry is known.
func (s *renewalScheduler) Arm(expiresAt time.Time, timeout time.Duration, short bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	if !s.enabled() || inCIEnvironment() {
		return
	}
	if expiresAt.IsZero() {
		return
	}

	delay := renewalDelay(time.Until(expiresAt), timeout, short)
	s.generation++
	gen := s.generation
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *renewalScheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		// A Disarm or re-Arm beat the callback; this timer is stale.
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	// The flag may have flipped while the timer was pending.
	if !s.enabled() {
		return
	}
	s.onExpiry()
}

// Disarm cancels any outstanding timer. Idempotent.
func (s *renewalScheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *renewalScheduler) cancelLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// armed reports whether a timer is outstanding. Test helper.
func (s *renewalScheduler) armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
