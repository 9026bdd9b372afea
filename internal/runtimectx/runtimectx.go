// Package runtimectx implements the low-level ambient value holder that the
// public runtime package wraps. It follows the same shape as context.
// WithValue-based auth pinning (one mutable cell, set once, read many times)
// generalised to the handful of collaborators a handler needs without
// threading them through every function signature (spec.md §4.C).
package runtimectx

import (
	"context"
	"errors"
	"sync"

	"eventgate/route"
)

// JobQueue is the collaborator behind runtime.QueueJob.
type JobQueue interface {
	Enqueue(ctx context.Context, queueName string, payload any, groupID string) (messageID string, err error)
}

// WebSocketSender is the collaborator behind runtime.SendWebSocketMessage
// and runtime.CloseWebSocket.
type WebSocketSender interface {
	Send(ctx context.Context, connectionID string, payload any) error
	Close(ctx context.Context, connectionID string) error
}

// ConnectionLookup is the collaborator behind runtime.GetConnections.
type ConnectionLookup interface {
	ConnectionsFor(ctx context.Context, userID string) ([]string, error)
}

// Context is one ambient scope: at most one per request/message/connection
// event, opened by the engine and torn down when the handler returns.
type Context struct {
	mu      sync.Mutex
	user    *route.User
	userSet bool

	queue  JobQueue
	ws     WebSocketSender
	lookup ConnectionLookup

	urlFor func(name string, params map[string]any, query map[string]any) (string, error)
}

type ctxKey struct{}

// ErrNoContext is returned by any ambient accessor invoked outside Open's
// scope (spec.md §4.C: "fails closed outside of a request/message scope").
var ErrNoContext = errors.New("runtimectx: no ambient context open")

// ErrNested is returned by Open when called on a context.Context that
// already carries a Context (spec.md §4.C: "opening a second scope inside
// the first is a programmer error").
var ErrNested = errors.New("runtimectx: ambient context already open")

// ErrUserAlreadySet is returned by SetUser if called more than once.
var ErrUserAlreadySet = errors.New("runtimectx: user already pinned")

// New constructs an empty Context wired to the given collaborators.
func New(queue JobQueue, ws WebSocketSender, lookup ConnectionLookup, urlFor func(string, map[string]any, map[string]any) (string, error)) *Context {
	return &Context{queue: queue, ws: ws, lookup: lookup, urlFor: urlFor}
}

// Open returns a derived context.Context carrying rc, or ErrNested if
// parent already carries one.
func Open(parent context.Context, rc *Context) (context.Context, error) {
	if existing, ok := parent.Value(ctxKey{}).(*Context); ok && existing != nil {
		return nil, ErrNested
	}
	return context.WithValue(parent, ctxKey{}, rc), nil
}

// From extracts the ambient Context pinned to ctx, or ErrNoContext.
func From(ctx context.Context) (*Context, error) {
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	if !ok || rc == nil {
		return nil, ErrNoContext
	}
	return rc, nil
}

// Escape returns a context.Context with the ambient Context cleared, for
// code that must call into a library expecting a plain context (spec.md
// §4.C: "an escape hatch to get a plain context.Context back").
func Escape(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, (*Context)(nil))
}

// SetUser pins the authenticated principal, once. Called by the engine
// right after Authenticate succeeds.
func (c *Context) SetUser(u *route.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userSet {
		return ErrUserAlreadySet
	}
	c.user = u
	c.userSet = true
	return nil
}

// User returns the pinned principal, or nil if none was set (anonymous
// route).
func (c *Context) User() *route.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Context) Enqueue(ctx context.Context, queueName string, payload any, groupID string) (string, error) {
	if c.queue == nil {
		return "", errors.New("runtimectx: no queue backend wired")
	}
	return c.queue.Enqueue(ctx, queueName, payload, groupID)
}

func (c *Context) SendWebSocketMessage(ctx context.Context, connectionID string, payload any) error {
	if c.ws == nil {
		return errors.New("runtimectx: no websocket sender wired")
	}
	return c.ws.Send(ctx, connectionID, payload)
}

func (c *Context) CloseWebSocket(ctx context.Context, connectionID string) error {
	if c.ws == nil {
		return errors.New("runtimectx: no websocket sender wired")
	}
	return c.ws.Close(ctx, connectionID)
}

func (c *Context) ConnectionsFor(ctx context.Context, userID string) ([]string, error) {
	if c.lookup == nil {
		return nil, errors.New("runtimectx: no connection lookup wired")
	}
	return c.lookup.ConnectionsFor(ctx, userID)
}

func (c *Context) URLFor(name string, params map[string]any, query map[string]any) (string, error) {
	if c.urlFor == nil {
		return "", errors.New("runtimectx: no url builder wired")
	}
	return c.urlFor(name, params, query)
}
