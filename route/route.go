// Package route defines the contract user code implements to serve HTTP
// requests: the per-verb handler functions, route Config, and the value
// types the handler engine feeds in and reads back out.
package route

import (
	"context"
	"net/http"
)

// Meta is the per-request metadata handed to a verb handler alongside the
// *http.Request, matching spec.md §4.E.8.
type Meta struct {
	Cookies map[string]string
	Params  map[string]string
	Signal  context.Context // cancelled when the route's timeout elapses
	User    *User
}

// User is the authenticated principal pinned to a request's ambient
// context. Programmer error to return one with an empty ID from
// Authenticate (spec.md §4.E.7).
type User struct {
	ID     string
	Claims map[string]any
}

// Result is the tagged variant a handler returns, replacing the source
// language's response|buffer|string|object polymorphism (spec.md §9:
// "Result polymorphism"). Exactly one field is meaningful per Kind.
type Result struct {
	Kind     ResultKind
	Response *http.Response // Kind == KindResponse
	Raw      []byte         // Kind == KindRaw
	MIME     string         // Kind == KindRaw
	Text     string         // Kind == KindText
	JSON     any            // Kind == KindJSON
}

// ResultKind discriminates Result.
type ResultKind int

const (
	KindEmpty ResultKind = iota
	KindResponse
	KindRaw
	KindText
	KindJSON
)

// Text wraps a string result.
func Text(s string) Result { return Result{Kind: KindText, Text: s} }

// JSON wraps a JSON-serialisable result.
func JSON(v any) Result { return Result{Kind: KindJSON, JSON: v} }

// Raw wraps a raw byte body with an explicit MIME type.
func Raw(b []byte, mime string) Result { return Result{Kind: KindRaw, Raw: b, MIME: mime} }

// Empty is the 204-with-a-logged-warning result (spec.md §4.E.8).
func Empty() Result { return Result{Kind: KindEmpty} }

// FromResponse wraps a fully-constructed *http.Response, preserving its
// headers through coercion (spec.md §4.E.9).
func FromResponse(resp *http.Response) Result { return Result{Kind: KindResponse, Response: resp} }

// HandlerFunc is the signature of a per-verb route handler.
type HandlerFunc func(r *http.Request, meta Meta) (Result, error)

// ThrownResponse is the Go encoding of the source language's "throw a
// response to short-circuit" idiom (spec.md §9). A HandlerFunc, Authenticate,
// OnRequest, or OnResponse may return this as its error to mean "treat this
// as the completed response", which the engine's error classification table
// (spec.md §7, "Handler-response-throw") distinguishes from a genuine error.
type ThrownResponse struct {
	Result Result
}

func (t *ThrownResponse) Error() string { return "thrown response" }

// Throw constructs a ThrownResponse error from a Result.
func Throw(res Result) error { return &ThrownResponse{Result: res} }

// AuthenticateFunc validates a request and returns the principal to pin to
// the ambient context, or an error (possibly a ThrownResponse, spec.md
// §4.E.7).
type AuthenticateFunc func(r *http.Request, cookies map[string]string) (*User, error)

// OnRequestFunc runs before authentication; may short-circuit via
// ThrownResponse.
type OnRequestFunc func(r *http.Request) error

// OnResponseFunc runs after coercion; may replace the response via
// ThrownResponse. Any other error is logged and reported to OnError, but
// OnResponse is not re-invoked (spec.md §4.E.10).
type OnResponseFunc func(r *http.Request, resp *http.Response) error

// OnErrorFunc is invoked exactly once per request for any non-response
// error (spec.md §4.E.11). Failures inside it are logged only.
type OnErrorFunc func(err error, r *http.Request)

// Middleware is the per-module middleware set merged by the resolver
// (spec.md glossary: "Middleware chain").
type Middleware struct {
	Authenticate AuthenticateFunc
	OnRequest    OnRequestFunc
	OnResponse   OnResponseFunc
	OnError      OnErrorFunc
}

// CachePolicy computes a Cache-Control max-age in seconds from a successful
// result, or returns ok=false to mean "no cache policy".
type CachePolicy func(res Result) (seconds int, ok bool)

// ETagPolicy computes an explicit ETag value from a successful result, or
// returns ok=false to fall back to an MD5 of the body (still "truthy"), or
// is nil entirely to mean "no etag".
type ETagPolicy func(res Result) (etag string, ok bool)

// Config is the optional per-module configuration block (spec.md §6).
type Config struct {
	// Accepts lists acceptable Content-Type values ("type/subtype" or
	// "type/*"). Nil/empty means accept all.
	Accepts []string
	// Methods lists acceptable HTTP verbs, or ["*"] for all. Nil/empty
	// falls back to whichever verb HandlerFuncs are registered.
	Methods []string
	// Timeout in seconds; clamped to [1, 30] at manifest build time.
	Timeout int
	// CORS enables the preflight/response-header behavior of spec.md
	// §4.E.2 and §4.E.9.
	CORS bool
	// Cache is a static number of seconds, or a CachePolicy function, or
	// nil for "absent". Exactly one of CacheSeconds/CacheFunc should be
	// set; CacheSeconds == 0 with CacheFunc == nil means "absent".
	CacheSeconds int
	CacheFunc    CachePolicy
	// ETag is a static boolean/string, or an ETagPolicy function.
	ETagEnabled bool
	ETagValue   string
	ETagFunc    ETagPolicy
}

// Module is the full export surface of one route file: named handlers per
// verb (lower-case HTTP method names; "del" stands in for DELETE, spec.md
// §4.E.3), optional Config, and optional Middleware.
type Module struct {
	Handlers   map[string]HandlerFunc // key: "get","post","put","patch","del","head","options" or "*" for default
	Config     Config
	Middleware Middleware
	// SourceFile records where this module was registered from, for
	// diagnostics (spec.md §3 Route.SourceFilename) and for url.Self()
	// (spec.md §4.A design note: "url.self() becomes a lookup on the
	// registration record").
	SourceFile string
}

// Verb normalises an HTTP method to the lower-case handler-map key used by
// Module.Handlers, folding the DELETE/del rename from spec.md §4.E.3.
func Verb(method string) string {
	switch method {
	case http.MethodDelete:
		return "del"
	case "":
		return "get"
	default:
		return httpLower(method)
	}
}

func httpLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
