package manifest

import (
	"sync"

	"eventgate/queue"
	"eventgate/route"
	"eventgate/wsmodule"
)

// Registry is the build-time substitute for the source language's
// "filesystem scan discovers module exports" (spec.md §9, design note
// "Handler exports as capability discovery"): user code self-registers its
// compiled handler against the file path it would have occupied on disk,
// the same way database/sql drivers register against a name. Load then
// walks a real (or in-memory, for tests) fs.FS of marker files and
// resolves each path against the Registry.
type Registry struct {
	mu          sync.Mutex
	routes      map[string]*route.Module
	queues      map[string]*queue.Module
	middlewares map[string]route.Middleware
	websocket   *wsmodule.Module
	warmup      func() error
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		routes:      make(map[string]*route.Module),
		queues:      make(map[string]*queue.Module),
		middlewares: make(map[string]route.Middleware),
	}
}

// Default is the process-wide registry that the package-level Register*
// functions populate, mirroring database/sql.Register.
var Default = NewRegistry()

// RegisterRoute associates a compiled route module with the file path it
// occupies under api/, e.g. "api/posts/[id].go".
func (r *Registry) RegisterRoute(path string, mod *route.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mod.SourceFile = path
	r.routes[path] = mod
}

// RegisterQueue associates a compiled queue module with its file path under
// queues/, e.g. "queues/emails.fifo.go".
func (r *Registry) RegisterQueue(path string, mod *queue.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mod.SourceFile = path
	r.queues[path] = mod
}

// RegisterMiddleware associates a _middleware module with the directory it
// governs, e.g. "api/posts" for "api/posts/_middleware.go".
func (r *Registry) RegisterMiddleware(dir string, mw route.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares[dir] = mw
}

// RegisterWebSocket associates the single WebSocket module with the
// process.
func (r *Registry) RegisterWebSocket(mod *wsmodule.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.websocket = mod
}

// RegisterWarmup associates the optional startup hook.
func (r *Registry) RegisterWarmup(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warmup = fn
}

func (r *Registry) lookupRoute(path string) (*route.Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.routes[path]
	return m, ok
}

func (r *Registry) lookupQueue(path string) (*queue.Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.queues[path]
	return m, ok
}

func (r *Registry) lookupMiddleware(dir string) (route.Middleware, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mw, ok := r.middlewares[dir]
	return mw, ok
}

// LookupMiddleware is the exported form of lookupMiddleware, shaped to
// satisfy middleware.Lookup directly for host adapters wiring an engine
// against the Default registry.
func (r *Registry) LookupMiddleware(dir string) (route.Middleware, bool) {
	return r.lookupMiddleware(dir)
}

// LookupWebSocket returns the process's single registered WebSocket
// module, if any.
func (r *Registry) LookupWebSocket() (*wsmodule.Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.websocket, r.websocket != nil
}

// RegisterRoute delegates to Default.
func RegisterRoute(path string, mod *route.Module) { Default.RegisterRoute(path, mod) }

// RegisterQueue delegates to Default.
func RegisterQueue(path string, mod *queue.Module) { Default.RegisterQueue(path, mod) }

// RegisterMiddleware delegates to Default.
func RegisterMiddleware(dir string, mw route.Middleware) { Default.RegisterMiddleware(dir, mw) }

// RegisterWebSocket delegates to Default.
func RegisterWebSocket(mod *wsmodule.Module) { Default.RegisterWebSocket(mod) }

// RegisterWarmup delegates to Default.
func RegisterWarmup(fn func() error) { Default.RegisterWarmup(fn) }
