// Package handler implements the handler manager (C6): per-host
// notification sets and flush-point firing in handler-declaration order
// (§4.6).
package handler

import (
	"sync"

	"github.com/kestrelops/kestrel/internal/domain"
)

// FlushPoint names where a handler flush may occur (§4.6).
type FlushPoint string

const (
	FlushAfterPreTasks  FlushPoint = "after_pre_tasks"
	FlushAfterTasks     FlushPoint = "after_tasks"
	FlushAfterPostTasks FlushPoint = "after_post_tasks"
	FlushExplicit       FlushPoint = "explicit"
	FlushRoleStart      FlushPoint = "role_start"
)

// Manager tracks, per host, which handlers have been notified and which
// have already fired at the current flush point.
type Manager struct {
	handlers []*domain.Handler // declaration order, defines flush order
	index    map[string]*domain.Handler

	mu       sync.Mutex
	notified map[string]map[string]bool // host -> handler name -> pending
	fired    map[string]map[string]bool // host -> handler name -> fired at this flush point

	warnOnMissing bool
}

// New builds a Manager from a play's handler list.
func New(handlers []*domain.Handler, warnOnMissing bool) *Manager {
	m := &Manager{
		handlers:      handlers,
		index:         make(map[string]*domain.Handler, len(handlers)),
		notified:      make(map[string]map[string]bool),
		fired:         make(map[string]map[string]bool),
		warnOnMissing: warnOnMissing,
	}
	for _, h := range handlers {
		m.index[h.Task.Name] = h
	}
	return m
}

// ErrMissingHandler is returned by Notify when a notified name matches no
// handler and warn-only mode is not enabled.
type ErrMissingHandler struct{ Name string }

func (e *ErrMissingHandler) Error() string {
	return "notify: no handler named " + e.Name
}

// Notify records that host has notified the named handlers (only called
// after a task completes with changed=true, per §4.4). Returns
// ErrMissingHandler for an unknown name unless warn-only mode is set, in
// which case the name is silently ignored.
func (m *Manager) Notify(host string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		if _, ok := m.index[name]; !ok {
			if m.warnOnMissing {
				continue
			}
			return &ErrMissingHandler{Name: name}
		}
		if m.notified[host] == nil {
			m.notified[host] = make(map[string]bool)
		}
		m.notified[host][name] = true
	}
	return nil
}

// PendingRun is one (handler, hosts) pair ready to execute at the current
// flush point, in handler-declaration order.
type PendingRun struct {
	Handler *domain.Handler
	Hosts   []string
}

// Flush returns the handlers that have pending notifications among hosts,
// in handler-declaration order, consumes those notifications, and marks
// them fired at this flush point so a re-notification before the next
// flush point does not run them again
// (§4.6 Idempotence). hosts is the batch's active host list, iterated in
// that order to keep per-handler host lists deterministic.
func (m *Manager) Flush(hosts []string) []PendingRun {
	m.mu.Lock()
	defer m.mu.Unlock()

	var runs []PendingRun
	for _, h := range m.handlers {
		name := h.Task.Name
		var targets []string
		for _, host := range hosts {
			if !m.notified[host][name] {
				continue
			}
			if m.fired[host] != nil && m.fired[host][name] {
				continue
			}
			targets = append(targets, host)
		}
		if len(targets) == 0 {
			continue
		}
		runs = append(runs, PendingRun{Handler: h, Hosts: targets})
		for _, host := range targets {
			if m.fired[host] == nil {
				m.fired[host] = make(map[string]bool)
			}
			m.fired[host][name] = true
			delete(m.notified[host], name)
		}
	}
	return runs
}

// ResetFlushPoint clears the fired set so handlers notified again after this
// point may run again at the next flush (§4.6: "across distinct flush
// points it may run again if re-notified").
func (m *Manager) ResetFlushPoint() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired = make(map[string]map[string]bool)
}
