// Package queuedispatch drives a batch of queue messages through a
// registered queue.Module: standard queues fan out in parallel and report
// a per-message pass/fail batch result; FIFO queues run strictly in
// sequence within a group and cut off the rest of the batch on the first
// failure (spec.md §4.G). The per-message mutex/timeout-budget shape
// mirrors a session-scheduler's check-and-set plus a watchdog's deadline
// sweep.
package queuedispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"eventgate/internal/manifest"
	"eventgate/internal/runtimectx"
	"eventgate/queue"
)

// IncomingMessage is one message handed to the dispatcher by a
// queuebackend, before payload decoding.
type IncomingMessage struct {
	MessageID     string
	GroupID       string
	Body          []byte
	ReceivedCount int
	SentAt        time.Time
	SequenceNum   string
}

// MessageOutcome reports one message's result within a batch (spec.md
// §4.G: "partial batch failure reporting").
type MessageOutcome struct {
	MessageID string
	Err       error
}

// DeliveryLedger records which messages have already run to completion, so
// a redelivered message short-circuits instead of re-running the handler.
// Satisfied by *store.DeliveryLedger.
type DeliveryLedger interface {
	AlreadyDelivered(ctx context.Context, queueName, messageID string) (bool, error)
	MarkDelivered(ctx context.Context, queueName, messageID string) error
}

// DeadLetterSink archives a message body that has permanently failed:
// cut off by an earlier FIFO failure, or a standard-queue message that has
// exhausted its retry budget. Satisfied by *deadletter.Archive.
type DeadLetterSink interface {
	Put(ctx context.Context, queueName, messageID string, body []byte, reason error) error
}

// Dispatcher drives batches against one QueueDescriptor.
type Dispatcher struct {
	Queue *manifest.QueueDescriptor

	JobQueue   runtimectx.JobQueue
	WebSockets runtimectx.WebSocketSender
	Conns      runtimectx.ConnectionLookup
	URLFor     func(name string, params map[string]any, query map[string]any) (string, error)

	// Ledger deduplicates at-least-once redelivery; nil disables dedup.
	Ledger DeliveryLedger

	// DeadLetter archives permanently-failed messages; nil disables
	// archiving.
	DeadLetter DeadLetterSink

	// MaxRetries is the standard-queue retry budget; a message whose
	// ReceivedCount reaches it on failure is archived instead of left for
	// redelivery. 0 disables archiving-on-exhaustion.
	MaxRetries int

	// MaxParallel bounds standard-queue fan-out; 0 means errgroup's
	// unbounded default.
	MaxParallel int

	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// DispatchStandard runs every message in the batch concurrently, each
// against its own timeout budget, and returns every message's outcome
// (failures do not cancel siblings).
func (d *Dispatcher) DispatchStandard(ctx context.Context, batch []IncomingMessage) []MessageOutcome {
	outcomes := make([]MessageOutcome, len(batch))
	g, gctx := errgroup.WithContext(context.Background())
	if d.MaxParallel > 0 {
		g.SetLimit(d.MaxParallel)
	}

	for i, msg := range batch {
		i, msg := i, msg
		g.Go(func() error {
			err := d.dispatchOne(gctx, msg)
			outcomes[i] = MessageOutcome{MessageID: msg.MessageID, Err: err}
			if err != nil && d.MaxRetries > 0 && msg.ReceivedCount >= d.MaxRetries && d.DeadLetter != nil {
				if dlqErr := d.DeadLetter.Put(context.Background(), d.Queue.Name, msg.MessageID, msg.Body, err); dlqErr != nil {
					log.Printf("queuedispatch: archiving %s/%s: %v", d.Queue.Name, msg.MessageID, dlqErr)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// DispatchFIFO runs a single-group batch strictly in order, stopping at the
// first failure: every message from that point on is reported as
// cut-off rather than attempted (spec.md §4.G: "FIFO batch dispatch... a
// failure blocks everything behind it in the same group").
func (d *Dispatcher) DispatchFIFO(ctx context.Context, batch []IncomingMessage) []MessageOutcome {
	outcomes := make([]MessageOutcome, len(batch))
	cutoff := false
	for i, msg := range batch {
		if cutoff {
			outcomes[i] = MessageOutcome{MessageID: msg.MessageID, Err: fmt.Errorf("queuedispatch: skipped, an earlier message in group %q failed", msg.GroupID)}
			continue
		}
		err := d.dispatchOne(ctx, msg)
		outcomes[i] = MessageOutcome{MessageID: msg.MessageID, Err: err}
		if err != nil {
			cutoff = true
			continue
		}
	}
	if cutoff && d.DeadLetter != nil {
		for i, msg := range batch {
			if outcomes[i].Err != nil && msg.MessageID != "" {
				if dlqErr := d.DeadLetter.Put(ctx, d.Queue.Name, msg.MessageID, msg.Body, outcomes[i].Err); dlqErr != nil {
					log.Printf("queuedispatch: archiving cut-off message %s/%s: %v", d.Queue.Name, msg.MessageID, dlqErr)
				}
			}
		}
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(parent context.Context, msg IncomingMessage) error {
	if d.Ledger != nil {
		done, err := d.Ledger.AlreadyDelivered(parent, d.Queue.Name, msg.MessageID)
		if err != nil {
			return fmt.Errorf("queuedispatch: checking delivery ledger: %w", err)
		}
		if done {
			return nil
		}
	}

	timeout := time.Duration(d.Queue.Timeout) * time.Second
	deadline := msg.SentAt.Add(timeout)
	remaining := deadline.Sub(d.now())
	if remaining <= 0 {
		return fmt.Errorf("queuedispatch: message %s already past its deadline", msg.MessageID)
	}

	ctx, cancel := context.WithTimeout(parent, remaining)
	defer cancel()

	rc := runtimectx.New(d.JobQueue, d.WebSockets, d.Conns, d.URLFor)
	scoped, err := runtimectx.Open(ctx, rc)
	if err != nil {
		return err
	}

	payload, err := decodePayload(msg.Body, d.Queue.Module.Config.Type)
	if err != nil {
		return err
	}

	meta := queue.Meta{
		MessageID:     msg.MessageID,
		GroupID:       msg.GroupID,
		QueueName:     d.Queue.Name,
		ReceivedCount: msg.ReceivedCount,
		SentAt:        msg.SentAt.Format(time.RFC3339),
		SequenceNum:   msg.SequenceNum,
		Signal:        scoped,
	}

	resultCh := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				resultCh <- fmt.Errorf("queuedispatch: handler panicked: %v", p)
			}
		}()
		resultCh <- d.Queue.Module.Handler(payload, meta)
	}()

	var handlerErr error
	select {
	case handlerErr = <-resultCh:
	case <-ctx.Done():
		handlerErr = fmt.Errorf("queuedispatch: message %s timed out after %s", msg.MessageID, timeout)
	}

	if handlerErr != nil {
		log.Printf("queuedispatch: queue %s message %s failed: %v", d.Queue.Name, msg.MessageID, handlerErr)
		if d.Queue.Module.OnError != nil {
			d.Queue.Module.OnError(handlerErr, meta)
		}
		return handlerErr
	}

	if d.Ledger != nil {
		if err := d.Ledger.MarkDelivered(parent, d.Queue.Name, msg.MessageID); err != nil {
			log.Printf("queuedispatch: marking %s/%s delivered: %v", d.Queue.Name, msg.MessageID, err)
		}
	}
	return nil
}

// decodePayload follows spec.md §4.G: "JSON if the type attribute says so,
// otherwise attempt JSON and fall back to the raw string".
func decodePayload(body []byte, kind string) (any, error) {
	switch kind {
	case "text":
		return string(body), nil
	case "binary":
		return body, nil
	default:
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return string(body), nil
		}
		return v, nil
	}
}
