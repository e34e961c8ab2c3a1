// Package journal persists run history: one record per terminal event of a
// playbook run, subscribing to the result bus (C9) and writing each such
// event to a durable sink (§4.9's consumer side — the run's audit trail).
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kestrelops/kestrel/internal/bus"
)

// Record is one journaled bus event, flattened for storage.
type Record struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Host      string    `json:"host,omitempty"`
	Play      string    `json:"play,omitempty"`
	Task      string    `json:"task,omitempty"`
	Handler   string    `json:"handler,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Changed   bool      `json:"changed,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	Msg       string    `json:"msg,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Sink persists journal records. Implementations must be safe for
// concurrent Write calls; the subscriber loop in Run serializes delivery
// per run, but a sink may also be shared across concurrent runs.
type Sink interface {
	Write(ctx context.Context, r Record) error
	Close() error
}

func toRecord(runID string, ev bus.Event, now time.Time) Record {
	r := Record{
		RunID:     runID,
		Timestamp: now,
		Kind:      string(ev.Kind),
		Host:      ev.Host,
		Play:      ev.Play,
		Task:      ev.Task,
		Handler:   ev.Handler,
		Attempt:   ev.Attempt,
	}
	if ev.Result != nil {
		r.Changed = ev.Result.Changed
		r.Failed = ev.Result.Failed
		r.Msg = ev.Result.Msg
		if raw, err := json.Marshal(ev.Result); err == nil {
			r.Data = raw
		}
	}
	if ev.Err != nil {
		r.Msg = ev.Err.Error()
	}
	return r
}

// Run subscribes to b and writes every terminal event (playbook_end,
// play_end, task_result, host_unreachable) to sink until ctx is
// cancelled, stamping each record with runID and the wall-clock time it
// was observed. now is injectable for deterministic tests.
func Run(ctx context.Context, b *bus.Bus, sink Sink, runID string, now func() time.Time) {
	ch := b.Subscribe(ctx, 256, bus.PlaybookEnd, bus.PlayEnd, bus.TaskResult, bus.HostUnreachable)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = sink.Write(ctx, toRecord(runID, ev, now()))
		case <-ctx.Done():
			return
		}
	}
}
