// Package audit persists one enriched log line per completed request.
// A single consumer drains a bounded queue, adds the approximate
// geographic origin of the caller and appends to a sink, keeping the
// request path free of lookup latency.
package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pagegate.org/internal/geo"
	"pagegate.org/internal/ids"
	"pagegate.org/internal/obs"
)

// Event is one completed request. The id is a random six-digit
// correlation value, collision-tolerant by design.
type Event struct {
	ID         string
	Method     string
	Path       string
	RemoteAddr string
	Status     int
	Start      time.Time
	Duration   time.Duration
}

const queueCapacity = 256

// Queue drains audit events on a single consumer goroutine.
type Queue struct {
	events   chan Event
	resolver *geo.Resolver
	sink     Sink
}

// NewQueue wires the consumer's collaborators. The resolver handle is
// shared with the notification worker and must be thread-safe.
func NewQueue(sink Sink, resolver *geo.Resolver) *Queue {
	return &Queue{
		events:   make(chan Event, queueCapacity),
		resolver: resolver,
		sink:     sink,
	}
}

// Enqueue submits an event without blocking; a full buffer drops the
// event and counts the loss.
func (q *Queue) Enqueue(e Event) {
	if e.ID == "" {
		e.ID = ids.Request()
	}
	select {
	case q.events <- e:
		obs.SetQueueDepth("audit", len(q.events))
	default:
		obs.Warn("audit queue full, dropping event", map[string]any{"event": e.ID})
		obs.CountQueueDrop("audit")
	}
}

// Start launches the consumer goroutine.
func (q *Queue) Start() {
	go q.run()
}

func (q *Queue) run() {
	obs.Info("audit worker started", nil)
	for e := range q.events {
		obs.SetQueueDepth("audit", len(q.events))
		if err := q.sink.WriteLine(q.format(e)); err != nil {
			obs.Warn("failed to write audit line", map[string]any{"event": e.ID, "error": err.Error()})
		}
	}
}

func (q *Queue) format(e Event) string {
	loc := geo.Location{}
	if q.resolver != nil {
		loc, _ = q.resolver.Resolve(context.Background(), e.RemoteAddr)
	}
	return fmt.Sprintf("%s %s: %s %s | %s - %s -> %d %s %dms",
		e.Start.Format("02.01.2006 15:04:05"),
		e.ID,
		e.Method,
		e.Path,
		e.RemoteAddr,
		loc,
		e.Status,
		http.StatusText(e.Status),
		e.Duration.Milliseconds(),
	)
}
