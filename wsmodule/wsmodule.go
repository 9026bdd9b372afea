// Package wsmodule defines the contract user code implements to handle
// WebSocket connect/message/disconnect events (spec.md §4.F, §6).
package wsmodule

import (
	"context"

	"eventgate/route"
)

// Meta is the per-message metadata handed to the default handler on a
// Message event.
type Meta struct {
	ConnectionID string
	Data         any // decoded per Config.Type
	RequestID    string
	User         *route.User
	Signal       context.Context
}

// HandlerFunc processes one Message event.
type HandlerFunc func(meta Meta) error

// AuthenticateFunc validates a Connect event; see route.AuthenticateFunc for
// the analogous HTTP contract.
type AuthenticateFunc func(r *route.Meta) (*route.User, error)

// OnOnlineFunc fires on a user's first accepted connection.
type OnOnlineFunc func(userID string)

// OnOfflineFunc fires when a user's last connection disconnects.
type OnOfflineFunc func(userID string)

// OnMessageFunc observes a message around handling, for telemetry.
type OnMessageFunc func(meta Meta)

// OnErrorFunc is invoked on handler failure.
type OnErrorFunc func(err error, meta Meta)

// Config is the optional per-module configuration block.
type Config struct {
	// Type selects payload decoding: "json", "text", or "binary".
	Type string
	// Timeout in seconds; zero or negative means the default of 10
	// (spec.md §5). Larger values are used as given.
	Timeout int
}

// Module is the full export surface of the WebSocket module.
type Module struct {
	Handler           HandlerFunc
	Config            Config
	Authenticate      AuthenticateFunc
	OnOnline          OnOnlineFunc
	OnOffline         OnOfflineFunc
	OnMessageReceived OnMessageFunc
	OnMessageSent     OnMessageFunc
	OnError           OnErrorFunc
}
