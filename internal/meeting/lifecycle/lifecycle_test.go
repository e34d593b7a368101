package lifecycle

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"emeet/backend/internal/meeting/domain"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestComputeStatus(t *testing.T) {
	start := base.Add(time.Hour)
	testCases := []struct {
		name    string
		current domain.Status
		now     time.Time
		want    domain.Status
	}{
		{"closed before start", domain.StatusClosed, start.Add(-time.Second), domain.StatusClosed},
		{"closed at start", domain.StatusClosed, start, domain.StatusOpen},
		{"closed inside window", domain.StatusClosed, start.Add(5 * time.Minute), domain.StatusOpen},
		{"closed at end", domain.StatusClosed, start.Add(30 * time.Minute), domain.StatusOpen},
		{"closed after end", domain.StatusClosed, start.Add(31 * time.Minute), domain.StatusClosed},
		{"open inside window", domain.StatusOpen, start.Add(10 * time.Minute), domain.StatusOpen},
		{"open at end", domain.StatusOpen, start.Add(30 * time.Minute), domain.StatusOpen},
		{"open after end", domain.StatusOpen, start.Add(30*time.Minute + time.Second), domain.StatusExpired},
		{"expired stays", domain.StatusExpired, start.Add(10 * time.Minute), domain.StatusExpired},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeStatus(tc.current, start, 30, tc.now); got != tc.want {
				t.Errorf("ComputeStatus = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestComputeStatus_RandomizedWindow(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		start := base.Add(time.Duration(r.Intn(1000)) * time.Minute)
		dur := domain.MinDurationMinutes + r.Intn(domain.MaxDurationMinutes-domain.MinDurationMinutes+1)
		end := start.Add(time.Duration(dur) * time.Minute)

		inside := start.Add(time.Duration(r.Int63n(int64(end.Sub(start)) + 1)))
		if got := ComputeStatus(domain.StatusClosed, start, dur, inside); got != domain.StatusOpen {
			t.Fatalf("closed inside window at %v: got %q", inside, got)
		}
		before := start.Add(-time.Duration(r.Int63n(int64(48*time.Hour))) - time.Nanosecond)
		if got := ComputeStatus(domain.StatusClosed, start, dur, before); got != domain.StatusClosed {
			t.Fatalf("closed before start at %v: got %q", before, got)
		}
		after := end.Add(time.Duration(r.Int63n(int64(48*time.Hour))) + time.Nanosecond)
		if got := ComputeStatus(domain.StatusOpen, start, dur, after); got != domain.StatusExpired {
			t.Fatalf("open after end at %v: got %q", after, got)
		}
		if got := ComputeStatus(domain.StatusClosed, start, dur, after); got != domain.StatusClosed {
			t.Fatalf("closed after end at %v: got %q", after, got)
		}
	}
}

func TestForceExpire(t *testing.T) {
	got, err := ForceExpire(domain.StatusOpen)
	if err != nil || got != domain.StatusExpired {
		t.Fatalf("ForceExpire(open) = %q, %v", got, err)
	}

	got, err = ForceExpire(domain.StatusExpired)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ForceExpire(expired) err = %v, want ErrInvalidTransition", err)
	}
	if got != domain.StatusExpired {
		t.Errorf("ForceExpire(expired) status = %q, want expired", got)
	}

	// Idempotent at the call site: forcing twice converges on expired.
	again, _ := ForceExpire(got)
	if again != domain.StatusExpired {
		t.Errorf("second ForceExpire = %q", again)
	}

	if _, err := ForceExpire(domain.StatusClosed); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("ForceExpire(closed) err = %v, want ErrInvalidTransition", err)
	}
}

func TestReconcile(t *testing.T) {
	start := base.Add(time.Hour)

	if steps := Reconcile(domain.StatusClosed, start, 30, base); len(steps) != 0 {
		t.Errorf("before start: steps = %v, want none", steps)
	}

	steps := Reconcile(domain.StatusClosed, start, 30, start.Add(5*time.Minute))
	if len(steps) != 1 || steps[0] != (Step{domain.StatusClosed, domain.StatusOpen}) {
		t.Errorf("inside window: steps = %v", steps)
	}

	steps = Reconcile(domain.StatusClosed, start, 30, start.Add(2*time.Hour))
	want := []Step{{domain.StatusClosed, domain.StatusOpen}, {domain.StatusOpen, domain.StatusExpired}}
	if len(steps) != 2 || steps[0] != want[0] || steps[1] != want[1] {
		t.Errorf("missed window: steps = %v, want %v", steps, want)
	}

	steps = Reconcile(domain.StatusOpen, start, 30, start.Add(31*time.Minute))
	if len(steps) != 1 || steps[0] != (Step{domain.StatusOpen, domain.StatusExpired}) {
		t.Errorf("open after end: steps = %v", steps)
	}

	if steps := Reconcile(domain.StatusExpired, start, 30, start.Add(2*time.Hour)); len(steps) != 0 {
		t.Errorf("expired: steps = %v, want none", steps)
	}
}
