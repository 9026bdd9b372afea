// Package runtime is the public facade over the ambient request/message/
// connection-scoped context (spec.md §4.C). Handlers call these functions
// directly, passing the context.Context they were handed; the package looks
// up the pinned collaborators rather than taking them as parameters.
package runtime

import (
	"context"
	"fmt"

	"eventgate/internal/runtimectx"
	"eventgate/route"
)

// QueueJob enqueues payload onto queueName, returning the assigned message
// ID. groupID is required for FIFO queues and ignored otherwise (spec.md
// §4.C, §4.G).
func QueueJob(ctx context.Context, queueName string, payload any, groupID string) (string, error) {
	rc, err := runtimectx.From(ctx)
	if err != nil {
		return "", fmt.Errorf("runtime.QueueJob: %w", err)
	}
	return rc.Enqueue(ctx, queueName, payload, groupID)
}

// SendWebSocketMessage pushes payload to an open WebSocket connection.
func SendWebSocketMessage(ctx context.Context, connectionID string, payload any) error {
	rc, err := runtimectx.From(ctx)
	if err != nil {
		return fmt.Errorf("runtime.SendWebSocketMessage: %w", err)
	}
	return rc.SendWebSocketMessage(ctx, connectionID, payload)
}

// CloseWebSocket forcibly disconnects connectionID.
func CloseWebSocket(ctx context.Context, connectionID string) error {
	rc, err := runtimectx.From(ctx)
	if err != nil {
		return fmt.Errorf("runtime.CloseWebSocket: %w", err)
	}
	return rc.CloseWebSocket(ctx, connectionID)
}

// GetConnections lists the open connection IDs bound to userID.
func GetConnections(ctx context.Context, userID string) ([]string, error) {
	rc, err := runtimectx.From(ctx)
	if err != nil {
		return nil, fmt.Errorf("runtime.GetConnections: %w", err)
	}
	return rc.ConnectionsFor(ctx, userID)
}

// CurrentUser returns the principal pinned to this scope, or nil if the
// route/queue/connection is unauthenticated.
func CurrentUser(ctx context.Context) *route.User {
	rc, err := runtimectx.From(ctx)
	if err != nil {
		return nil
	}
	return rc.User()
}

// URLFor builds an absolute or relative URL for a named route (spec.md
// §4.A "url.self()" design note: url construction becomes a lookup against
// the registration record rather than filesystem introspection).
func URLFor(ctx context.Context, name string, params map[string]any, query map[string]any) (string, error) {
	rc, err := runtimectx.From(ctx)
	if err != nil {
		return "", fmt.Errorf("runtime.URLFor: %w", err)
	}
	return rc.URLFor(name, params, query)
}

// Escape returns a plain context.Context with the ambient scope cleared,
// for passing into libraries that should not observe it.
func Escape(ctx context.Context) context.Context {
	return runtimectx.Escape(ctx)
}
