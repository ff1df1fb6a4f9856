// Package notify turns domain events (login granted, user activated,
// contact message, page invitation) into outbound mail, decoupled from
// the request path by a bounded single-consumer queue.
package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"pagegate.org/internal/geo"
	"pagegate.org/internal/ids"
	"pagegate.org/internal/obs"
	"pagegate.org/internal/token"
)

// Kind discriminates the event payload.
type Kind string

const (
	KindLoginGrant     Kind = "login_grant"
	KindUserActivated  Kind = "user_activated"
	KindContactRequest Kind = "contact_request"
	KindPageInvitation Kind = "page_invitation"
)

// Activation describes a completed account activation.
type Activation struct {
	Mail        string
	ActivatedAt time.Time
}

// Contact is an inbound contact-form message.
type Contact struct {
	Mail    string
	Message string
}

// Invitation announces a freshly created account to its owner.
type Invitation struct {
	Mail  string
	Admin bool
}

// Event is one queued notification. Exactly one payload field matching
// Kind is set.
type Event struct {
	ID        string
	Kind      Kind
	Recipient string

	Token      *token.SecurityToken
	Activation *Activation
	Contact    *Contact
	Invitation *Invitation
}

const queueCapacity = 256

// Queue drains notification events on a single consumer goroutine.
// Producers never block: when the buffer is full the event is dropped
// and counted.
type Queue struct {
	events   chan Event
	mailer   Mailer
	resolver *geo.Resolver
	from     string
	stopped  atomic.Bool
}

// NewQueue wires the consumer's collaborators. The resolver handle is
// shared with the audit worker and must be thread-safe.
func NewQueue(mailer Mailer, resolver *geo.Resolver, from string) *Queue {
	return &Queue{
		events:   make(chan Event, queueCapacity),
		mailer:   mailer,
		resolver: resolver,
		from:     from,
	}
}

// Enqueue submits an event without blocking. Within a single producer,
// submission order is preserved; across producers it is not.
func (q *Queue) Enqueue(e Event) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if q.stopped.Load() {
		obs.CountQueueDrop("notify")
		return
	}
	select {
	case q.events <- e:
		obs.SetQueueDepth("notify", len(q.events))
	default:
		obs.Warn("notification queue full, dropping event",
			map[string]any{"event": e.ID, "kind": string(e.Kind)})
		obs.CountQueueDrop("notify")
	}
}

// Start launches the consumer goroutine. The worker has no graceful
// drain: a permanently invalid outbound address is fatal to the worker,
// which exits and silently drops later events.
func (q *Queue) Start() {
	go q.run()
}

func (q *Queue) run() {
	obs.Info("notification worker started", nil)
	for e := range q.events {
		obs.SetQueueDepth("notify", len(q.events))
		if err := q.process(e); err != nil {
			if errors.Is(err, ErrPermanent) {
				obs.Error("permanently invalid mail configuration, stopping notification worker",
					map[string]any{"event": e.ID, "error": err.Error()})
				q.stopped.Store(true)
				return
			}
			obs.Warn("failed to send notification",
				map[string]any{"event": e.ID, "kind": string(e.Kind), "error": err.Error()})
		}
	}
}

func (q *Queue) process(e Event) error {
	subject, body, err := q.render(e)
	if err != nil {
		return err
	}
	return q.mailer.Send(context.Background(), Mail{
		From:     q.from,
		To:       e.Recipient,
		Subject:  subject,
		HTMLBody: body,
	})
}
