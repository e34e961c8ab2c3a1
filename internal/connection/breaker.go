// Package connection implements the connection pool (C1): per-host SSH
// session leasing, the command-construction contract, file transfer
// primitives, and the per-host circuit breaker.
package connection

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's state.
//
//	Closed ──(k consecutive failures)──► Open ──(cooldown elapses)──► HalfOpen
//	  ▲                                                                    │
//	  └─────────────────(probe succeeds)─────────────────────────────────┘
//	                     (probe fails, cooldown doubles, capped) ───► Open
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig configures one host's breaker (§4.1).
type BreakerConfig struct {
	FailureThreshold int
	OpenCooldown     time.Duration
	MaxCooldown      time.Duration
}

// Breaker is a per-host consecutive-failure circuit breaker. Unlike a
// sliding-window error-rate breaker, a single count of consecutive
// failures is enough here: the pool only cares whether the most recent
// streak of lease/connect attempts is unbroken, not about overall traffic
// volume.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	fails    int
	cooldown time.Duration
	openedAt time.Time
}

// NewBreaker returns a Breaker in the Closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.OpenCooldown <= 0 {
		cfg.OpenCooldown = time.Second
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = cfg.OpenCooldown
	}
	return &Breaker{cfg: cfg, cooldown: cfg.OpenCooldown}
}

// Allow reports whether a lease attempt should proceed. It transitions
// Open to HalfOpen once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default: // HalfOpen: exactly one probe in flight
		return false
	}
}

// RecordSuccess clears the failure streak and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails = 0
	b.cooldown = b.cfg.OpenCooldown
	b.state = BreakerClosed
}

// RecordFailure increments the failure streak, opening the breaker once
// the threshold is reached. A failed HalfOpen probe reopens immediately
// and doubles the cooldown, capped at MaxCooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.cooldown *= 2
		if b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		b.state = BreakerOpen
		b.openedAt = time.Now()
		return
	}
	b.fails++
	if b.fails >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// State returns the current state, for diagnostics and the `inventory
// graph` / status surfaces.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
