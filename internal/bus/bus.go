// Package bus implements the result and callback bus (C9): an in-process
// event stream with bounded, backpressure-blocking per-observer delivery
// (§4.9).
package bus

import (
	"context"
	"sync"

	"github.com/kestrelops/kestrel/internal/domain"
)

// Kind identifies an event kind an observer may filter on.
type Kind string

const (
	PlaybookStart   Kind = "playbook_start"
	PlaybookEnd     Kind = "playbook_end"
	PlayStart       Kind = "play_start"
	PlayEnd         Kind = "play_end"
	TaskStart       Kind = "task_start"
	TaskResult      Kind = "task_result"
	HandlerNotified Kind = "handler_notified"
	HostUnreachable Kind = "host_unreachable"
	Retry           Kind = "retry"
)

// Event is one lifecycle event (§4.9). Only the fields relevant to Kind are
// populated; the rest are zero.
type Event struct {
	Kind    Kind
	Host    string
	Play    string
	Task    string
	Handler string
	Attempt int
	Result  *domain.ModuleResult
	Err     error
}

// Bus delivers events to subscribed observers in production order. Each
// observer owns a bounded queue; when that queue is full, Publish blocks
// until the observer drains it. This makes a slow observer throttle the
// whole engine, which is intentional (§4.9).
type Bus struct {
	mu        sync.RWMutex
	observers []*observer
}

type observer struct {
	kinds map[Kind]bool // nil means "all kinds"
	ch    chan Event
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new observer with the given queue depth and an
// optional kind filter (empty means subscribe to everything). The returned
// channel is closed when ctx is cancelled or Close is called on the bus.
func (b *Bus) Subscribe(ctx context.Context, queueDepth int, kinds ...Kind) <-chan Event {
	if queueDepth <= 0 {
		queueDepth = 1
	}
	var filter map[Kind]bool
	if len(kinds) > 0 {
		filter = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			filter[k] = true
		}
	}
	obs := &observer{kinds: filter, ch: make(chan Event, queueDepth)}

	b.mu.Lock()
	b.observers = append(b.observers, obs)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(obs)
	}()

	return obs.ch
}

func (b *Bus) unsubscribe(obs *observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			close(o.ch)
			return
		}
	}
}

// Publish delivers ev to every matching observer in subscription order,
// blocking on any observer whose queue is full (§4.9, §5 Suspension points).
// A ctx cancellation aborts delivery to the remaining observers and returns
// ctx.Err(); observers already delivered to keep the event.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	targets := make([]*observer, 0, len(b.observers))
	for _, o := range b.observers {
		if o.kinds == nil || o.kinds[ev.Kind] {
			targets = append(targets, o)
		}
	}
	b.mu.RUnlock()

	for _, o := range targets {
		select {
		case o.ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close unsubscribes and closes every remaining observer channel. Call once
// at the end of a run after all Publish calls have returned.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.observers {
		close(o.ch)
	}
	b.observers = nil
}
