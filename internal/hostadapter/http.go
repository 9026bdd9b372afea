// Package hostadapter wires the core engines to real transports: a chi
// mux for HTTP (healthz and WebSocket upgrade routes alongside the
// manifest-driven catch-all) and a ticking poller for queue
// backends. Routing decisions inside the manifest's own path grammar never
// touch chi's param extraction — chi only gets to pick "is this the
// catch-all, the healthz probe, or the websocket upgrade".
package hostadapter

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"eventgate/internal/httpengine"
)

// NewHTTPMux builds the process-level router: operational endpoints plus
// the manifest-driven catch-all.
func NewHTTPMux(engine *httpengine.Engine, wsUpgrade http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Get("/healthz", healthz)
	if wsUpgrade != nil {
		r.Get("/ws", wsUpgrade)
	}
	r.NotFound(engine.Handle)
	r.MethodNotAllowed(engine.Handle)
	r.HandleFunc("/*", engine.Handle)

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("adapter: %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
