package queuedispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eventgate/internal/manifest"
	"eventgate/queue"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestDispatchStandardRunsAllMessagesDespiteOneFailure(t *testing.T) {
	var calls int32
	qd := &manifest.QueueDescriptor{
		Name:    "emails",
		Timeout: 30,
		Module: &queue.Module{
			Handler: func(payload any, meta queue.Meta) error {
				atomic.AddInt32(&calls, 1)
				if meta.MessageID == "m2" {
					return errors.New("boom")
				}
				return nil
			},
		},
	}
	now := time.Now()
	d := &Dispatcher{Queue: qd, Now: fixedNow(now)}
	batch := []IncomingMessage{
		{MessageID: "m1", Body: []byte(`{}`), SentAt: now},
		{MessageID: "m2", Body: []byte(`{}`), SentAt: now},
		{MessageID: "m3", Body: []byte(`{}`), SentAt: now},
	}

	outcomes := d.DispatchStandard(context.Background(), batch)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected all 3 messages attempted, got %d", calls)
	}
	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly 1 failure, got %d", failed)
	}
}

func TestDispatchFIFOCutsOffAfterFirstFailure(t *testing.T) {
	var mu sync.Mutex
	var attempted []string
	qd := &manifest.QueueDescriptor{
		Name:    "emails.fifo",
		FIFO:    true,
		Timeout: 30,
		Module: &queue.Module{
			Handler: func(payload any, meta queue.Meta) error {
				mu.Lock()
				attempted = append(attempted, meta.MessageID)
				mu.Unlock()
				if meta.MessageID == "m1" {
					return errors.New("boom")
				}
				return nil
			},
		},
	}
	now := time.Now()
	d := &Dispatcher{Queue: qd, Now: fixedNow(now)}
	batch := []IncomingMessage{
		{MessageID: "m1", GroupID: "g1", Body: []byte(`{}`), SentAt: now},
		{MessageID: "m2", GroupID: "g1", Body: []byte(`{}`), SentAt: now},
		{MessageID: "m3", GroupID: "g1", Body: []byte(`{}`), SentAt: now},
	}

	outcomes := d.DispatchFIFO(context.Background(), batch)
	if len(attempted) != 1 || attempted[0] != "m1" {
		t.Fatalf("expected only m1 to be attempted, got %v", attempted)
	}
	if outcomes[0].Err == nil {
		t.Fatalf("expected m1 to fail")
	}
	if outcomes[1].Err == nil || outcomes[2].Err == nil {
		t.Fatalf("expected m2 and m3 to be reported as cut off")
	}
}

type fakeLedger struct {
	mu        sync.Mutex
	delivered map[string]bool
}

func newFakeLedger() *fakeLedger { return &fakeLedger{delivered: map[string]bool{}} }

func (l *fakeLedger) key(queueName, messageID string) string { return queueName + "/" + messageID }

func (l *fakeLedger) AlreadyDelivered(ctx context.Context, queueName, messageID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delivered[l.key(queueName, messageID)], nil
}

func (l *fakeLedger) MarkDelivered(ctx context.Context, queueName, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delivered[l.key(queueName, messageID)] = true
	return nil
}

func TestDispatchOneSkipsAlreadyDeliveredMessage(t *testing.T) {
	var calls int32
	qd := &manifest.QueueDescriptor{
		Name:    "emails",
		Timeout: 30,
		Module: &queue.Module{
			Handler: func(payload any, meta queue.Meta) error {
				atomic.AddInt32(&calls, 1)
				return nil
			},
		},
	}
	now := time.Now()
	ledger := newFakeLedger()
	d := &Dispatcher{Queue: qd, Now: fixedNow(now), Ledger: ledger}
	msg := IncomingMessage{MessageID: "m1", Body: []byte(`{}`), SentAt: now}

	if err := d.dispatchOne(context.Background(), msg); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := d.dispatchOne(context.Background(), msg); err != nil {
		t.Fatalf("redelivered dispatch: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected the handler to run exactly once, got %d", calls)
	}
}

type fakeDLQ struct {
	mu       sync.Mutex
	archived []string
}

func (q *fakeDLQ) Put(ctx context.Context, queueName, messageID string, body []byte, reason error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.archived = append(q.archived, messageID)
	return nil
}

func TestDispatchFIFOArchivesCutOffMessages(t *testing.T) {
	qd := &manifest.QueueDescriptor{
		Name:    "emails.fifo",
		FIFO:    true,
		Timeout: 30,
		Module: &queue.Module{
			Handler: func(payload any, meta queue.Meta) error {
				if meta.MessageID == "m1" {
					return errors.New("boom")
				}
				return nil
			},
		},
	}
	now := time.Now()
	dlq := &fakeDLQ{}
	d := &Dispatcher{Queue: qd, Now: fixedNow(now), DeadLetter: dlq}
	batch := []IncomingMessage{
		{MessageID: "m1", GroupID: "g1", Body: []byte(`{}`), SentAt: now},
		{MessageID: "m2", GroupID: "g1", Body: []byte(`{}`), SentAt: now},
	}

	d.DispatchFIFO(context.Background(), batch)
	if len(dlq.archived) != 2 {
		t.Fatalf("expected both the failed and cut-off message archived, got %v", dlq.archived)
	}
}

func TestDispatchOneRejectsAlreadyExpiredMessage(t *testing.T) {
	qd := &manifest.QueueDescriptor{
		Name:    "emails",
		Timeout: 1,
		Module: &queue.Module{
			Handler: func(payload any, meta queue.Meta) error { return nil },
		},
	}
	now := time.Now()
	d := &Dispatcher{Queue: qd, Now: fixedNow(now.Add(10 * time.Second))}

	err := d.dispatchOne(context.Background(), IncomingMessage{MessageID: "m1", Body: []byte(`{}`), SentAt: now})
	if err == nil {
		t.Fatalf("expected an error for an already-expired message")
	}
}
