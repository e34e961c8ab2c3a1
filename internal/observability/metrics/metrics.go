// Package metrics wires the callback bus (C9) to a Prometheus registry,
// in the style of the teacher's internal/metrics/prometheus.go: each
// Collector gets its own registry from New, collectors registered on
// construction, counters/histograms updated from bus events rather than
// from the hot task-dispatch path directly.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelops/kestrel/internal/bus"
)

// Collector holds the Prometheus collectors for one engine run.
type Collector struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	handlersNotified prometheus.Counter
	hostsUnreachable prometheus.Counter
	retries          *prometheus.CounterVec

	taskStarted map[string]time.Time
}

var defaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000}

// New builds a Collector with a fresh registry and registers the default
// Go/process collectors alongside the engine's own.
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	c := &Collector{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total task results by play, task and outcome",
			},
			[]string{"play", "task", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_milliseconds",
				Help:      "Wall-clock duration of a task dispatch, from task_start to task_result",
				Buckets:   defaultBuckets,
			},
			[]string{"play", "task"},
		),
		handlersNotified: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handlers_notified_total",
				Help:      "Total handler notifications recorded on the bus",
			},
		),
		hostsUnreachable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hosts_unreachable_total",
				Help:      "Total host_unreachable events observed",
			},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_retries_total",
				Help:      "Total retry attempts by play and task",
			},
			[]string{"play", "task"},
		),
		taskStarted: make(map[string]time.Time),
	}

	registry.MustRegister(c.tasksTotal, c.taskDuration, c.handlersNotified, c.hostsUnreachable, c.retries)
	return c
}

// Handler returns an http.Handler for Prometheus scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests or extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func taskKey(ev bus.Event) string {
	return ev.Play + "\x00" + ev.Host + "\x00" + ev.Task
}

func (c *Collector) observe(ev bus.Event) {
	switch ev.Kind {
	case bus.TaskStart:
		c.taskStarted[taskKey(ev)] = time.Now()
	case bus.TaskResult:
		if started, ok := c.taskStarted[taskKey(ev)]; ok {
			c.taskDuration.WithLabelValues(ev.Play, ev.Task).Observe(float64(time.Since(started).Milliseconds()))
			delete(c.taskStarted, taskKey(ev))
		}
		outcome := "ok"
		if ev.Result != nil {
			switch {
			case ev.Result.Unreachable:
				outcome = "unreachable"
			case ev.Result.Failed:
				outcome = "failed"
			case ev.Result.Skipped:
				outcome = "skipped"
			case ev.Result.Changed:
				outcome = "changed"
			}
		}
		c.tasksTotal.WithLabelValues(ev.Play, ev.Task, outcome).Inc()
	case bus.HandlerNotified:
		c.handlersNotified.Inc()
	case bus.HostUnreachable:
		c.hostsUnreachable.Inc()
	case bus.Retry:
		c.retries.WithLabelValues(ev.Play, ev.Task).Inc()
	}
}

// Run subscribes c to b and updates collectors until ctx is cancelled or the
// bus closes. Intended to be started once per run from cmd/kestrel, never
// from the engine core (the engine only knows about bus.Bus).
func (c *Collector) Run(ctx context.Context, b *bus.Bus) {
	ch := b.Subscribe(ctx, 256)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.observe(ev)
		case <-ctx.Done():
			return
		}
	}
}
