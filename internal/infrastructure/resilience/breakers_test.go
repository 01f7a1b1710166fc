package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBreakersOpenAfterConsecutiveFailures(t *testing.T) {
	var trips []string
	var mu sync.Mutex
	b := NewBreakers(Config{FailureThreshold: 3, CoolDown: time.Minute}, func(key string) {
		mu.Lock()
		trips = append(trips, key)
		mu.Unlock()
	})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := b.Execute("p1", func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: got %v, want wrapped failure", i+1, err)
		}
	}

	err := b.Execute("p1", func() error {
		t.Fatalf("fn must not run while open")
		return nil
	})
	if !IsOpen(err) {
		t.Fatalf("expected open-state rejection, got %v", err)
	}
	if !b.IsQuarantined(err) {
		t.Fatalf("IsQuarantined must report the rejection")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(trips) != 1 || trips[0] != "p1" {
		t.Fatalf("trips = %v, want exactly one for p1", trips)
	}
}

func TestBreakersKeysAreIndependent(t *testing.T) {
	b := NewBreakers(Config{FailureThreshold: 1, CoolDown: time.Minute}, nil)

	if err := b.Execute("p1", func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected failure")
	}
	if err := b.Execute("p2", func() error { return nil }); err != nil {
		t.Fatalf("other key must stay closed: %v", err)
	}
}

func TestBreakersSuccessResetsConsecutiveCount(t *testing.T) {
	b := NewBreakers(Config{FailureThreshold: 3, CoolDown: time.Minute}, nil)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = b.Execute("p1", func() error { return boom })
	}
	if err := b.Execute("p1", func() error { return nil }); err != nil {
		t.Fatalf("success: %v", err)
	}
	for i := 0; i < 2; i++ {
		_ = b.Execute("p1", func() error { return boom })
	}
	if err := b.Execute("p1", func() error { return nil }); err != nil {
		t.Fatalf("breaker must still be closed after interleaved success: %v", err)
	}
}

func TestBreakersHalfOpenProbeCloses(t *testing.T) {
	b := NewBreakers(Config{FailureThreshold: 1, CoolDown: 30 * time.Millisecond, HalfOpenMaxCalls: 1}, nil)

	_ = b.Execute("p1", func() error { return errors.New("boom") })
	if err := b.Execute("p1", func() error { return nil }); !IsOpen(err) {
		t.Fatalf("expected open rejection, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if err := b.Execute("p1", func() error { return nil }); err != nil {
		t.Fatalf("half-open probe: %v", err)
	}
	if err := b.Execute("p1", func() error { return nil }); err != nil {
		t.Fatalf("breaker must be closed after successful probe: %v", err)
	}
}

func TestIsOpenRejectsOrdinaryErrors(t *testing.T) {
	if IsOpen(errors.New("boom")) {
		t.Fatalf("ordinary errors are not breaker rejections")
	}
	if IsOpen(nil) {
		t.Fatalf("nil is not a breaker rejection")
	}
}
