package connection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/credentials"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/logging"
)

// Pool is the connection pool (C1): per-host session leasing bounded by a
// global forks permit, circuit breaking, retry-with-backoff, and the sole
// place in the engine that dials SSH or builds shell command strings.
type Pool struct {
	cfg       config.PoolConfig
	breaker   config.BreakerConfig
	resolver  *credentials.Resolver
	globalSem chan struct{}

	mu      sync.Mutex
	byHost  map[string]*hostPool
}

type hostPool struct {
	mu          sync.Mutex
	breaker     *Breaker
	idle        []*Session
	unreachable bool
	authOnce    sync.Mutex // serializes "at most one active authentication attempt per host"
}

// New builds a Pool bounded to forks concurrent in-flight leases.
func New(cfg config.PoolConfig, breakerCfg config.BreakerConfig, forks int, resolver *credentials.Resolver) *Pool {
	if forks <= 0 {
		forks = 1
	}
	return &Pool{
		cfg:       cfg,
		breaker:   breakerCfg,
		resolver:  resolver,
		globalSem: make(chan struct{}, forks),
		byHost:    make(map[string]*hostPool),
	}
}

func (p *Pool) hostState(name string) *hostPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	hp, ok := p.byHost[name]
	if !ok {
		hp = &hostPool{breaker: NewBreaker(BreakerConfig{
			FailureThreshold: p.breaker.FailureThreshold,
			OpenCooldown:     p.breaker.OpenCooldown,
			MaxCooldown:      p.breaker.MaxCooldown,
		})}
		p.byHost[name] = hp
	}
	return hp
}

// Lease returns a ready session for host, per §4.1.
func (p *Pool) Lease(ctx context.Context, host *domain.Host) (*Session, error) {
	hp := p.hostState(host.Name)

	hp.mu.Lock()
	if hp.unreachable {
		hp.mu.Unlock()
		return nil, kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("%w: %s permanently unreachable this run", kestrelerr.ErrUnreachable, host.Name))
	}
	if !hp.breaker.Allow() {
		hp.mu.Unlock()
		return nil, kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("%w: %s", kestrelerr.ErrCircuitOpen, host.Name))
	}
	for len(hp.idle) > 0 {
		s := hp.idle[len(hp.idle)-1]
		hp.idle = hp.idle[:len(hp.idle)-1]
		if s.idleSince() <= p.cfg.IdleTTL {
			hp.mu.Unlock()
			if err := p.acquireGlobal(ctx); err != nil {
				return nil, err
			}
			s.touch()
			s.beginInflight()
			return s, nil
		}
		_ = s.close()
	}
	hp.mu.Unlock()

	if err := p.acquireGlobal(ctx); err != nil {
		return nil, err
	}

	// At most one active authentication attempt per host; concurrent
	// lessees of a down host await the result instead of piling on.
	hp.authOnce.Lock()
	defer hp.authOnce.Unlock()

	s, err := p.dialWithRetry(ctx, host)
	if err != nil {
		<-p.globalSem
		hp.mu.Lock()
		if kestrelerr.ClassOf(err) == kestrelerr.ClassConnection && isPermanent(err) {
			hp.unreachable = true
		}
		hp.breaker.RecordFailure()
		hp.mu.Unlock()
		return nil, err
	}
	hp.mu.Lock()
	hp.breaker.RecordSuccess()
	hp.mu.Unlock()
	s.beginInflight()
	return s, nil
}

// acquireGlobal blocks for a slot in the global forks-wide permit pool,
// respecting LeaseTimeout and ctx cancellation.
func (p *Pool) acquireGlobal(ctx context.Context) error {
	timeout := p.cfg.LeaseTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p.globalSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return kestrelerr.New(kestrelerr.ClassCancelled, kestrelerr.ErrCancelled)
	case <-timer.C:
		return kestrelerr.New(kestrelerr.ClassConnection, kestrelerr.ErrPoolExhausted)
	}
}

// Release returns session to the pool. On failure the pool ejects it
// instead of returning it to the idle set (§4.1 release()).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

func (p *Pool) Release(s *Session, outcome Outcome) {
	s.endInflight()
	defer func() { <-p.globalSem }()

	hp := p.hostState(s.Host)
	if outcome == OutcomeFailure {
		_ = s.close()
		hp.mu.Lock()
		hp.breaker.RecordFailure()
		hp.mu.Unlock()
		return
	}
	hp.mu.Lock()
	if len(hp.idle) >= p.cfg.SessionsPerHost {
		hp.mu.Unlock()
		_ = s.close()
		return
	}
	hp.idle = append(hp.idle, s)
	hp.mu.Unlock()
}

func (p *Pool) dialWithRetry(ctx context.Context, host *domain.Host) (*Session, error) {
	retries := p.cfg.ConnectRetries
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(backoff/2 + 1)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return nil, kestrelerr.New(kestrelerr.ClassCancelled, kestrelerr.ErrCancelled)
			}
		}
		s, err := p.dial(ctx, host)
		if err == nil {
			return s, nil
		}
		lastErr = err
		if isPermanent(err) {
			return nil, err
		}
		logging.Op().Warn("ssh dial attempt failed", "host", host.Name, "attempt", attempt+1, "error", err)
	}
	return nil, kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("%w: %s: %v", kestrelerr.ErrUnreachable, host.Name, lastErr))
}

func (p *Pool) dial(ctx context.Context, host *domain.Host) (*Session, error) {
	material, err := p.resolver.Resolve(ctx, host.Connection.Auth)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := BuildHostKeyCallback(HostKeyPolicy(p.cfg.HostKeyPolicy), p.cfg.KnownHostsFile)
	if err != nil {
		return nil, err
	}

	port := host.Connection.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host.Connection.Address, strconv.Itoa(port))

	clientCfg := &ssh.ClientConfig{
		User:            host.Connection.User,
		Auth:            material.AuthMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         p.cfg.ConnectTimeout,
	}

	client, err := ssh.Dial("tcp", addr, clientCfg)
	if material.KeyMaterial != nil {
		material.KeyMaterial.Release()
	}
	if err != nil {
		return nil, classifyDialError(host.Name, err)
	}
	return newSession(host.Name, client), nil
}

func classifyDialError(host string, err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "unable to authenticate", "no supported methods remain"):
		return kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("%w: %s: %v", kestrelerr.ErrAuthFailed, host, err))
	case containsAny(msg, "host key mismatch", "knownhosts: key mismatch"):
		return kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("%w: %s: %v", kestrelerr.ErrHostKeyMismatch, host, err))
	default:
		return kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("%w: %s: %v", kestrelerr.ErrUnreachable, host, err))
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, kestrelerr.ErrAuthFailed) || errors.Is(err, kestrelerr.ErrHostKeyMismatch)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
