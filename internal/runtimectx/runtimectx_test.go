package runtimectx

import (
	"context"
	"testing"

	"eventgate/route"
)

type stubQueue struct{ called bool }

func (s *stubQueue) Enqueue(ctx context.Context, queueName string, payload any, groupID string) (string, error) {
	s.called = true
	return "msg-1", nil
}

func TestFromFailsClosedOutsideScope(t *testing.T) {
	if _, err := From(context.Background()); err != ErrNoContext {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
}

func TestOpenRejectsNesting(t *testing.T) {
	rc := New(&stubQueue{}, nil, nil, nil)
	ctx, err := Open(context.Background(), rc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := Open(ctx, rc); err != ErrNested {
		t.Fatalf("expected ErrNested, got %v", err)
	}
}

func TestEscapeClearsAmbientContext(t *testing.T) {
	rc := New(&stubQueue{}, nil, nil, nil)
	ctx, err := Open(context.Background(), rc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	escaped := Escape(ctx)
	if _, err := From(escaped); err != ErrNoContext {
		t.Fatalf("expected escaped context to read as no-context, got %v", err)
	}
}

func TestSetUserOnlyOnce(t *testing.T) {
	rc := New(nil, nil, nil, nil)
	if err := rc.SetUser(&route.User{ID: "u1"}); err != nil {
		t.Fatalf("first SetUser: %v", err)
	}
	if err := rc.SetUser(&route.User{ID: "u2"}); err != ErrUserAlreadySet {
		t.Fatalf("expected ErrUserAlreadySet, got %v", err)
	}
	if rc.User().ID != "u1" {
		t.Fatalf("expected the first user to stick, got %v", rc.User())
	}
}

func TestEnqueueDelegatesToWiredQueue(t *testing.T) {
	q := &stubQueue{}
	rc := New(q, nil, nil, nil)
	if _, err := rc.Enqueue(context.Background(), "emails", "payload", ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !q.called {
		t.Fatalf("expected Enqueue to delegate to the wired JobQueue")
	}
}
