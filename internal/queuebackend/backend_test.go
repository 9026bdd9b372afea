package queuebackend

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisBackend(client), mr
}

func TestStandardQueueSendReceiveDelete(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	if _, err := b.Send(ctx, "emails", "", []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs, err := b.Receive(ctx, "emails", false, 10)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].Body) != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	// A standard queue's LPop already consumed the message; a second
	// receive should see nothing.
	msgs2, err := b.Receive(ctx, "emails", false, 10)
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	if len(msgs2) != 0 {
		t.Fatalf("expected no remaining messages, got %d", len(msgs2))
	}
}

func TestFIFOQueuePreservesGroupOrderAndSupportsDelete(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	if _, err := b.Send(ctx, "emails.fifo", "customer-1", []byte("first")); err != nil {
		t.Fatalf("Send 1: %v", err)
	}
	if _, err := b.Send(ctx, "emails.fifo", "customer-1", []byte("second")); err != nil {
		t.Fatalf("Send 2: %v", err)
	}

	msgs, err := b.Receive(ctx, "emails.fifo", true, 10)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Body) != "first" || string(msgs[1].Body) != "second" {
		t.Fatalf("expected in-order delivery, got %q then %q", msgs[0].Body, msgs[1].Body)
	}
	if msgs[0].GroupID != "customer-1" {
		t.Fatalf("expected GroupID customer-1, got %q", msgs[0].GroupID)
	}

	if err := b.Delete(ctx, "emails.fifo", true, msgs[0].MessageID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	remaining, err := b.Receive(ctx, "emails.fifo", true, 10)
	if err != nil {
		t.Fatalf("Receive after delete: %v", err)
	}
	if len(remaining) != 1 || string(remaining[0].Body) != "second" {
		t.Fatalf("expected only the second message to remain, got %+v", remaining)
	}
}
