package connection

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, OpenCooldown: 10 * time.Millisecond, MaxCooldown: time.Second})
	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != BreakerClosed {
			t.Fatalf("expected closed after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after threshold reached")
	}
	if b.Allow() {
		t.Fatal("expected Allow() to reject while open and within cooldown")
	}
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenCooldown: time.Millisecond, MaxCooldown: time.Second})
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected probe to be allowed after cooldown")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half_open, got %v", b.State())
	}
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after successful probe")
	}
}

func TestBreakerHalfOpenProbeFailureDoublesCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenCooldown: time.Millisecond, MaxCooldown: 100 * time.Millisecond})
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	b.Allow() // transitions to half-open
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after failed probe")
	}
	if b.cooldown != 2*time.Millisecond {
		t.Fatalf("expected cooldown doubled to 2ms, got %v", b.cooldown)
	}
}

func TestBreakerCooldownCapped(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenCooldown: 10 * time.Millisecond, MaxCooldown: 15 * time.Millisecond})
	b.RecordFailure()
	for i := 0; i < 5; i++ {
		time.Sleep(b.cooldown + time.Millisecond)
		b.Allow()
		b.RecordFailure()
	}
	if b.cooldown > 15*time.Millisecond {
		t.Fatalf("expected cooldown capped at 15ms, got %v", b.cooldown)
	}
}
