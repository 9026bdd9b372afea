// Package queue defines the contract user code implements to handle queue
// messages: the default handler, queue Config, and the metadata record
// passed into each invocation (spec.md §4.G, §6).
package queue

import (
	"context"

	"eventgate/route"
)

// Meta is the per-message metadata handed to a queue handler (spec.md
// §4.G).
type Meta struct {
	MessageID     string
	GroupID       string // FIFO only
	Params        map[string]string
	QueueName     string
	ReceivedCount int
	SentAt        string
	SequenceNum   string
	User          *route.User
	Signal        context.Context // cancelled at the effective per-message deadline
}

// HandlerFunc processes one decoded message payload.
type HandlerFunc func(payload any, meta Meta) error

// OnErrorFunc is invoked when HandlerFunc fails or times out, before the
// message is reported as failed (spec.md §4.G).
type OnErrorFunc func(err error, meta Meta)

// Config is the optional per-module configuration block (spec.md §3, §6).
type Config struct {
	// URL, if non-empty, injects a synthetic POST-only route at this HTTP
	// path (spec.md §4.B.5).
	URL string
	// Timeout in seconds; clamped to [1, 500], default 30 (spec.md §3).
	Timeout int
	// Type selects payload decoding: "json" (default attempt), "text", or
	// "binary". Spec.md §4.G: "decode the payload (JSON if type attribute
	// says so, otherwise attempt JSON and fall back to the raw string)".
	Type string
}

// Module is the full export surface of one queue file.
type Module struct {
	Handler    HandlerFunc
	Config     Config
	OnError    OnErrorFunc
	SourceFile string
}
