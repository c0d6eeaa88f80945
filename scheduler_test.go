package finauth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRenewalDelayArithmetic(t *testing.T) {
	cases := []struct {
		name      string
		remaining time.Duration
		timeout   time.Duration
		short     bool
		want      time.Duration
	}{
		{"full remaining minus margin", 600 * time.Second, 600 * time.Second, false, 585 * time.Second},
		{"short uses timeout not remaining", 45 * time.Minute, 60 * time.Second, true, 45 * time.Second},
		{"short capped at five minutes", 60 * time.Minute, 60 * time.Minute, true, 285 * time.Second},
		{"never negative", 5 * time.Second, 5 * time.Second, false, 0},
	}
	for _, tc := range cases {
		if got := renewalDelay(tc.remaining, tc.timeout, tc.short); got != tc.want {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, got)
		}
	}
}

func newTestScheduler(enabled *atomic.Bool, fired *atomic.Int32) *renewalScheduler {
	return newRenewalScheduler(enabled.Load, func() {
		if fired != nil {
			fired.Add(1)
		}
	})
}

func TestSchedulerDisabledNeverArms(t *testing.T) {
	var enabled atomic.Bool
	s := newTestScheduler(&enabled, nil)

	s.Arm(time.Now().Add(time.Hour), time.Hour, false)
	if s.armed() {
		t.Fatal("disabled scheduler armed a timer")
	}

	// Disabling also cancels a previously armed timer on the next Arm.
	enabled.Store(true)
	s.Arm(time.Now().Add(time.Hour), time.Hour, false)
	if !s.armed() {
		t.Fatal("enabled scheduler did not arm")
	}
	enabled.Store(false)
	s.Arm(time.Now().Add(time.Hour), time.Hour, false)
	if s.armed() {
		t.Fatal("re-arm while disabled left a timer outstanding")
	}
}

func TestSchedulerCIEnvironmentNeverArms(t *testing.T) {
	t.Setenv(EnvironmentVariable, EnvironmentCI)

	var enabled atomic.Bool
	enabled.Store(true)
	s := newTestScheduler(&enabled, nil)

	s.Arm(time.Now().Add(time.Hour), time.Hour, false)
	if s.armed() {
		t.Fatal("scheduler armed inside the CI environment")
	}
}

func TestSchedulerSingleOutstandingTimer(t *testing.T) {
	var enabled atomic.Bool
	enabled.Store(true)
	var fired atomic.Int32
	s := newTestScheduler(&enabled, &fired)

	// Re-arming replaces the previous timer; the stale callback must not
	// run even if it had already been scheduled.
	s.Arm(time.Now().Add(30*time.Millisecond+renewalMargin), time.Hour, false)
	s.Arm(time.Now().Add(time.Hour), time.Hour, false)

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("stale timer fired %d times", got)
	}
	if !s.armed() {
		t.Fatal("replacement timer missing")
	}
	s.Disarm()
	if s.armed() {
		t.Fatal("disarm left a timer outstanding")
	}
	s.Disarm() // idempotent
}

func TestSchedulerChecksFlagAtFireTime(t *testing.T) {
	var enabled atomic.Bool
	enabled.Store(true)
	var fired atomic.Int32
	s := newTestScheduler(&enabled, &fired)

	s.Arm(time.Now().Add(time.Hour), time.Hour, false)

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	// The flag flipped while the timer was pending; the callback must
	// observe that and do nothing.
	enabled.Store(false)
	s.fire(gen)
	if fired.Load() != 0 {
		t.Fatal("callback ran despite the flag being cleared at fire time")
	}
}

func TestSchedulerFires(t *testing.T) {
	var enabled atomic.Bool
	enabled.Store(true)
	var fired atomic.Int32
	s := newTestScheduler(&enabled, &fired)

	// Expiry already inside the margin: delay clamps to zero and the
	// callback runs promptly.
	s.Arm(time.Now().Add(time.Second), time.Hour, false)

	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("expected exactly one fire, got %d", fired.Load())
	}
}

func TestGenerateSessionArmsScheduler(t *testing.T) {
	ft := &fakeTransport{handler: defaultHandler(t)}
	cfg := testConfig()
	cfg.Session.SelfRenew = true
	client := bootstrapped(t, cfg, ft, nil)

	if err := client.EnsureSession(context.Background()); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if !client.scheduler.armed() {
		t.Fatal("successful renewal must arm the expiry timer")
	}

	client.SetSelfRenew(false)
	if client.scheduler.armed() {
		t.Fatal("disabling self-renewal must cancel the armed timer")
	}

	client.SetSelfRenew(true)
	if !client.scheduler.armed() {
		t.Fatal("re-enabling with a valid session must re-arm")
	}
}

func TestSelfRenewDisabledByConfig(t *testing.T) {
	ft := &fakeTransport{handler: defaultHandler(t)}
	client := bootstrapped(t, testConfig(), ft, nil) // SelfRenew false in testConfig

	if err := client.EnsureSession(context.Background()); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if client.scheduler.armed() {
		t.Fatal("scheduler armed although self-renewal is disabled")
	}
}
