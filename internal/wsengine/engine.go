// Package wsengine implements the WebSocket connection lifecycle (spec.md
// §4.F): connect (authenticate, bind, onOnline), message (decode, handle,
// onMessageReceived/Sent), and disconnect (unbind, onOffline). The
// connection fan-out itself follows the subscriber-map-plus-broadcast shape
// of an SSE hub: one entry per open connection, guarded by a single mutex.
package wsengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"eventgate/internal/runtimectx"
	"eventgate/route"
	"eventgate/wsmodule"
)

// Conn is the transport-level connection a hostadapter wraps around a real
// WebSocket; the engine only needs to be able to push frames and learn
// when the peer goes away.
type Conn interface {
	WriteMessage(payload []byte) error
	Close() error
}

type entry struct {
	conn   Conn
	userID string
}

// Engine tracks open connections and drives the lifecycle hooks of a single
// registered wsmodule.Module.
type Engine struct {
	Module *wsmodule.Module

	Queue runtimectx.JobQueue
	Conns runtimectx.ConnectionLookup

	mu          sync.Mutex
	connections map[string]entry
	byUser      map[string]map[string]bool
}

// NewEngine constructs an Engine with empty connection tracking.
func NewEngine(mod *wsmodule.Module) *Engine {
	return &Engine{
		Module:      mod,
		connections: map[string]entry{},
		byUser:      map[string]map[string]bool{},
	}
}

// Connect authenticates an incoming connection and, on success, binds it
// and fires OnOnline if this is the user's first open connection.
func (e *Engine) Connect(ctx context.Context, connectionID string, r *route.Meta, conn Conn) (*route.User, error) {
	var user *route.User
	if e.Module.Authenticate != nil {
		u, err := e.Module.Authenticate(r)
		if err != nil {
			return nil, err
		}
		if u == nil || u.ID == "" {
			return nil, fmt.Errorf("wsengine: Authenticate returned a user with an empty ID")
		}
		user = u
	}

	e.mu.Lock()
	e.connections[connectionID] = entry{conn: conn, userID: userIDOf(user)}
	firstForUser := false
	if user != nil {
		set, ok := e.byUser[user.ID]
		if !ok {
			set = map[string]bool{}
			e.byUser[user.ID] = set
		}
		firstForUser = len(set) == 0
		set[connectionID] = true
	}
	e.mu.Unlock()

	if firstForUser && e.Module.OnOnline != nil {
		e.Module.OnOnline(user.ID)
	}
	return user, nil
}

// Message decodes and dispatches one inbound frame.
func (e *Engine) Message(ctx context.Context, connectionID string, raw []byte, requestID string) error {
	e.mu.Lock()
	ent, ok := e.connections[connectionID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("wsengine: message on unknown connection %q", connectionID)
	}

	var user *route.User
	if ent.userID != "" {
		user = &route.User{ID: ent.userID}
	}

	payload, err := decodePayload(raw, e.Module.Config.Type)
	if err != nil {
		return err
	}

	deadline, cancel := effectiveDeadline(ctx, e.Module.Config.Timeout)
	defer cancel()

	meta := wsmodule.Meta{
		ConnectionID: connectionID,
		Data:         payload,
		RequestID:    requestID,
		User:         user,
		Signal:       deadline,
	}

	if e.Module.OnMessageReceived != nil {
		e.Module.OnMessageReceived(meta)
	}

	var handlerErr error
	if e.Module.Handler != nil {
		resultCh := make(chan error, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					resultCh <- fmt.Errorf("wsengine: handler panicked: %v", p)
				}
			}()
			resultCh <- e.Module.Handler(meta)
		}()
		select {
		case handlerErr = <-resultCh:
		case <-deadline.Done():
			handlerErr = fmt.Errorf("wsengine: message on connection %s timed out", connectionID)
		}
	}

	if handlerErr != nil {
		log.Printf("wsengine: message handler failed for connection %s: %v", connectionID, handlerErr)
		if e.Module.OnError != nil {
			e.Module.OnError(handlerErr, meta)
		}
	}
	if e.Module.OnMessageSent != nil {
		e.Module.OnMessageSent(meta)
	}
	return handlerErr
}

// Disconnect unbinds a connection and fires OnOffline if it was the user's
// last open connection.
func (e *Engine) Disconnect(connectionID string) {
	e.mu.Lock()
	ent, ok := e.connections[connectionID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.connections, connectionID)
	lastForUser := false
	if ent.userID != "" {
		if set, ok := e.byUser[ent.userID]; ok {
			delete(set, connectionID)
			if len(set) == 0 {
				delete(e.byUser, ent.userID)
				lastForUser = true
			}
		}
	}
	e.mu.Unlock()

	if lastForUser && e.Module.OnOffline != nil {
		e.Module.OnOffline(ent.userID)
	}
}

// Send pushes payload to one open connection (the runtimectx.WebSocketSender
// contract).
func (e *Engine) Send(ctx context.Context, connectionID string, payload any) error {
	e.mu.Lock()
	ent, ok := e.connections[connectionID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("wsengine: send to unknown connection %q", connectionID)
	}
	body, err := encodePayload(payload, e.Module.Config.Type)
	if err != nil {
		return err
	}
	return ent.conn.WriteMessage(body)
}

// Close forcibly disconnects connectionID (the runtimectx.WebSocketSender
// contract).
func (e *Engine) Close(ctx context.Context, connectionID string) error {
	e.mu.Lock()
	ent, ok := e.connections[connectionID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	err := ent.conn.Close()
	e.Disconnect(connectionID)
	return err
}

// ConnectionsFor implements runtimectx.ConnectionLookup.
func (e *Engine) ConnectionsFor(ctx context.Context, userID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.byUser[userID]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

func userIDOf(u *route.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func decodePayload(raw []byte, kind string) (any, error) {
	switch kind {
	case "text":
		return string(raw), nil
	case "binary":
		return raw, nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw), nil
		}
		return v, nil
	}
}

func encodePayload(payload any, kind string) ([]byte, error) {
	switch kind {
	case "text":
		if s, ok := payload.(string); ok {
			return []byte(s), nil
		}
		return []byte(fmt.Sprint(payload)), nil
	case "binary":
		if b, ok := payload.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("wsengine: binary payload must be []byte, got %T", payload)
	default:
		return json.Marshal(payload)
	}
}

// effectiveDeadline mirrors the watchdog-sweep idiom for bounding how long
// a Message handler may run: the module's timeout, or 10 seconds when the
// module sets none (spec.md §5).
func effectiveDeadline(parent context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		seconds = 10
	}
	return context.WithTimeout(parent, time.Duration(seconds)*time.Second)
}
