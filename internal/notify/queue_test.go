package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pagegate.org/internal/token"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
	got  chan struct{}
}

func newRecordingMailer(err error) *recordingMailer {
	return &recordingMailer{err: err, got: make(chan struct{}, 64)}
}

func (m *recordingMailer) Send(_ context.Context, mail Mail) error {
	m.mu.Lock()
	m.sent = append(m.sent, mail)
	m.mu.Unlock()
	m.got <- struct{}{}
	return m.err
}

func (m *recordingMailer) wait(t *testing.T) Mail {
	t.Helper()
	select {
	case <-m.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no mail processed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func TestQueueDeliversLoginGrant(t *testing.T) {
	mailer := newRecordingMailer(nil)
	q := NewQueue(mailer, nil, "noreply@example.org")
	q.Start()

	issued := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	q.Enqueue(Event{
		Kind:      KindLoginGrant,
		Recipient: "ops@example.org",
		Token: &token.SecurityToken{
			Issuer:        "203.0.113.7",
			IssuedAt:      issued,
			UserMail:      "user@example.org",
			Admin:         true,
			PrivateAccess: "wiki&&grafana",
		},
	})

	m := mailer.wait(t)
	if m.Subject != "Page Gate: login granted" {
		t.Fatalf("subject = %q", m.Subject)
	}
	if m.From != "noreply@example.org" || m.To != "ops@example.org" {
		t.Fatalf("envelope = %q -> %q", m.From, m.To)
	}
	for _, want := range []string{
		"203.0.113.7", "unknown", "user@example.org",
		"wiki&amp;&amp;grafana", "14.03.2026 09:26:53",
	} {
		if !strings.Contains(m.HTMLBody, want) {
			t.Fatalf("body missing %q:\n%s", want, m.HTMLBody)
		}
	}
}

func TestQueueDeliversRemainingKinds(t *testing.T) {
	mailer := newRecordingMailer(nil)
	q := NewQueue(mailer, nil, "noreply@example.org")
	q.Start()

	q.Enqueue(Event{
		Kind:      KindUserActivated,
		Recipient: "ops@example.org",
		Activation: &Activation{
			Mail:        "new@example.org",
			ActivatedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		},
	})
	if m := mailer.wait(t); m.Subject != "Page Gate: user activated" ||
		!strings.Contains(m.HTMLBody, "new@example.org") {
		t.Fatalf("activation mail = %+v", m)
	}

	q.Enqueue(Event{
		Kind:      KindContactRequest,
		Recipient: "ops@example.org",
		Contact:   &Contact{Mail: "visitor@example.org", Message: "hi there"},
	})
	if m := mailer.wait(t); m.Subject != "Page Gate: contact request" ||
		!strings.Contains(m.HTMLBody, "hi there") {
		t.Fatalf("contact mail = %+v", m)
	}

	q.Enqueue(Event{
		Kind:       KindPageInvitation,
		Recipient:  "new@example.org",
		Invitation: &Invitation{Mail: "new@example.org", Admin: true},
	})
	if m := mailer.wait(t); m.Subject != "Page Gate: you were invited" ||
		!strings.Contains(m.HTMLBody, "administrative access") {
		t.Fatalf("invitation mail = %+v", m)
	}
}

func TestQueueSurvivesTransientSendFailure(t *testing.T) {
	mailer := newRecordingMailer(errors.New("smtp: connection reset"))
	q := NewQueue(mailer, nil, "noreply@example.org")
	q.Start()

	q.Enqueue(Event{
		Kind:    KindContactRequest,
		Contact: &Contact{Mail: "a@b", Message: "one"},
	})
	mailer.wait(t)

	q.Enqueue(Event{
		Kind:    KindContactRequest,
		Contact: &Contact{Mail: "a@b", Message: "two"},
	})
	if m := mailer.wait(t); !strings.Contains(m.HTMLBody, "two") {
		t.Fatalf("worker did not keep consuming after a transient failure: %+v", m)
	}
}

func TestQueueStopsOnPermanentFailure(t *testing.T) {
	mailer := newRecordingMailer(fmt.Errorf("parse from: %w", ErrPermanent))
	q := NewQueue(mailer, nil, "broken")
	q.Start()

	q.Enqueue(Event{
		Kind:    KindContactRequest,
		Contact: &Contact{Mail: "a@b", Message: "one"},
	})
	mailer.wait(t)

	deadline := time.Now().Add(2 * time.Second)
	for !q.stopped.Load() {
		if time.Now().After(deadline) {
			t.Fatal("worker did not stop on permanent failure")
		}
		time.Sleep(10 * time.Millisecond)
	}

	q.Enqueue(Event{
		Kind:    KindContactRequest,
		Contact: &Contact{Mail: "a@b", Message: "two"},
	})
	select {
	case <-mailer.got:
		t.Fatal("stopped worker processed another event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	q := NewQueue(newRecordingMailer(nil), nil, "noreply@example.org")
	// Worker intentionally not started.

	done := make(chan struct{})
	go func() {
		for i := range queueCapacity + 50 {
			q.Enqueue(Event{
				Kind:    KindContactRequest,
				Contact: &Contact{Mail: "a@b", Message: fmt.Sprintf("%d", i)},
			})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	if len(q.events) != queueCapacity {
		t.Fatalf("queue holds %d events, want %d", len(q.events), queueCapacity)
	}
}

func TestRenderRejectsMismatchedPayload(t *testing.T) {
	q := NewQueue(newRecordingMailer(nil), nil, "noreply@example.org")

	if _, _, err := q.render(Event{Kind: KindLoginGrant}); err == nil {
		t.Fatal("login grant without token rendered")
	}
	if _, _, err := q.render(Event{Kind: Kind("bogus")}); err == nil {
		t.Fatal("unknown kind rendered")
	}
}
