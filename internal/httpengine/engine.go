// Package httpengine implements the HTTP request pipeline (spec.md §4.E):
// resolve -> CORS preflight -> method check -> content-type check -> open
// ambient scope -> onRequest -> authenticate -> handler -> coerce ->
// onResponse -> onError, racing a per-route timeout throughout.
package httpengine

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"eventgate/internal/manifest"
	"eventgate/internal/middleware"
	"eventgate/internal/runtimectx"
	"eventgate/route"
)

// Engine serves requests against a resolved manifest.Services table.
type Engine struct {
	Services *manifest.Services
	Lookup   middleware.Lookup

	// Collaborators wired into every request's ambient context.
	Queue      runtimectx.JobQueue
	WebSockets runtimectx.WebSocketSender
	Conns      runtimectx.ConnectionLookup
	URLFor     func(name string, params map[string]any, query map[string]any) (string, error)

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Handle implements http.Handler, running the full request pipeline.
func (e *Engine) Handle(w http.ResponseWriter, r *http.Request) {
	rt, params, ok := e.Services.RouteFor(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	mw := middleware.Resolve(rt.SourceFile, e.Lookup)
	if rt.Module != nil {
		mw = middleware.Merge([]route.Middleware{mw, rt.Module.Middleware})
	}

	if rt.CORS && middleware.ApplyPreflight(w, r, methodList(rt.Methods)) {
		return
	}
	if rt.CORS {
		middleware.ApplyResponseHeaders(w.Header(), r.Header.Get("Origin"))
	}

	if !rt.AcceptsMethod(r.Method) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ct := primaryContentType(r.Header.Get("Content-Type")); ct != "" && !rt.AcceptsContentType(ct) {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	timeout := time.Duration(rt.Timeout) * time.Second
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	r = r.WithContext(ctx)

	rc := runtimectx.New(e.Queue, e.WebSockets, e.Conns, e.URLFor)
	scoped, err := runtimectx.Open(ctx, rc)
	if err != nil {
		e.reportError(mw, err, r, w)
		return
	}
	r = r.WithContext(scoped)

	resultCh := make(chan pipelineOutcome, 1)
	go func() {
		resultCh <- e.run(r, rt, params, mw, rc)
	}()

	select {
	case outcome := <-resultCh:
		e.finish(w, r, mw, outcome)
	case <-ctx.Done():
		e.finish(w, r, mw, pipelineOutcome{err: fmt.Errorf("route timed out after %s", timeout)})
	}
}

type pipelineOutcome struct {
	resp *http.Response
	err  error
}

func (e *Engine) run(r *http.Request, rt *manifest.Route, params map[string]string, mw route.Middleware, rc *runtimectx.Context) pipelineOutcome {
	if mw.OnRequest != nil {
		if err := mw.OnRequest(r); err != nil {
			return pipelineOutcome{err: err}
		}
	}

	var user *route.User
	if mw.Authenticate != nil {
		u, err := mw.Authenticate(r, parseCookies(r))
		if err != nil {
			return pipelineOutcome{err: err}
		}
		if u == nil || u.ID == "" {
			return pipelineOutcome{err: errors.New("httpengine: Authenticate returned a user with an empty ID")}
		}
		user = u
		if err := rc.SetUser(u); err != nil {
			return pipelineOutcome{err: err}
		}
	}

	handler, verbOK := rt.Module.Handlers[route.Verb(r.Method)]
	if !verbOK && r.Method == http.MethodHead {
		handler, verbOK = rt.Module.Handlers["get"]
	}
	if !verbOK {
		handler, verbOK = rt.Module.Handlers["*"]
	}
	if !verbOK {
		return pipelineOutcome{err: fmt.Errorf("httpengine: no handler registered for %s", r.Method)}
	}

	meta := route.Meta{
		Cookies: parseCookies(r),
		Params:  params,
		Signal:  r.Context(),
		User:    user,
	}

	result, err := handler(r, meta)
	if err != nil {
		return pipelineOutcome{err: err}
	}

	resp, err := coerce(result, rt)
	if err != nil {
		return pipelineOutcome{err: err}
	}

	if mw.OnResponse != nil {
		if err := mw.OnResponse(r, resp); err != nil {
			return pipelineOutcome{resp: resp, err: err}
		}
	}

	return pipelineOutcome{resp: resp}
}

func (e *Engine) finish(w http.ResponseWriter, r *http.Request, mw route.Middleware, outcome pipelineOutcome) {
	if outcome.err != nil {
		var thrown *route.ThrownResponse
		if errors.As(outcome.err, &thrown) {
			resp, err := responseFromResult(thrown.Result)
			if err != nil {
				e.reportError(mw, err, r, w)
				return
			}
			writeResponse(w, resp)
			return
		}
		e.reportError(mw, outcome.err, r, w)
		return
	}
	writeResponse(w, outcome.resp)
}

func (e *Engine) reportError(mw route.Middleware, err error, r *http.Request, w http.ResponseWriter) {
	log.Printf("httpengine: %s %s: %v", r.Method, r.URL.Path, err)
	if mw.OnError != nil {
		safeCall(func() { mw.OnError(err, r) })
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func safeCall(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("httpengine: panic in OnError hook: %v", p)
		}
	}()
	fn()
}

// coerce converts a handler Result into a wire-ready *http.Response,
// applying the route's CachePolicy and ETagPolicy (spec.md §4.E.9).
func coerce(result route.Result, rt *manifest.Route) (*http.Response, error) {
	resp, err := responseFromResult(result)
	if err != nil {
		return nil, err
	}

	if rt.CachePolicy != nil && resp.Header.Get("Cache-Control") == "" {
		if seconds, ok := rt.CachePolicy(result); ok {
			resp.Header.Set("Cache-Control", fmt.Sprintf("max-age=%d", seconds))
		}
	}

	if rt.ETagPolicy != nil && resp.Header.Get("ETag") == "" {
		if etag, ok := rt.ETagPolicy(result); ok && etag != "" {
			resp.Header.Set("ETag", etag)
		} else {
			resp.Header.Set("ETag", md5ETag(resp))
		}
	}

	return resp, nil
}

func responseFromResult(result route.Result) (*http.Response, error) {
	switch result.Kind {
	case route.KindEmpty:
		return newResponse(http.StatusNoContent, nil, ""), nil
	case route.KindText:
		return newResponse(http.StatusOK, []byte(result.Text), "text/plain; charset=utf-8"), nil
	case route.KindJSON:
		body, err := json.Marshal(result.JSON)
		if err != nil {
			return nil, fmt.Errorf("httpengine: marshaling JSON result: %w", err)
		}
		return newResponse(http.StatusOK, body, "application/json"), nil
	case route.KindRaw:
		return newResponse(http.StatusOK, result.Raw, result.MIME), nil
	case route.KindResponse:
		if result.Response == nil {
			return nil, errors.New("httpengine: KindResponse result with a nil Response")
		}
		return result.Response, nil
	default:
		return nil, fmt.Errorf("httpengine: unknown result kind %d", result.Kind)
	}
}

func newResponse(status int, body []byte, contentType string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Header:     http.Header{},
	}
	if body != nil {
		resp.Body = nopCloser{bytes.NewReader(body)}
		resp.ContentLength = int64(len(body))
	}
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	return resp
}

func writeResponse(w http.ResponseWriter, resp *http.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != nil {
		buf := make([]byte, 32*1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				w.Write(buf[:n])
			}
			if err != nil {
				break
			}
		}
	}
}

func md5ETag(resp *http.Response) string {
	if resp.Body == nil {
		return `"d41d8cd98f00b204e9800998ecf8427e"`
	}
	body, ok := resp.Body.(nopCloser)
	if !ok {
		return ""
	}
	sum := md5.Sum(body.Bytes())
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

func (n nopCloser) Bytes() []byte {
	b := make([]byte, n.Len())
	_, _ = n.ReadAt(b, 0)
	return b
}

func parseCookies(r *http.Request) map[string]string {
	out := map[string]string{}
	for _, c := range r.Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

func primaryContentType(header string) string {
	for i := 0; i < len(header); i++ {
		if header[i] == ';' {
			return header[:i]
		}
	}
	return header
}

func methodList(methods map[string]bool) []string {
	out := make([]string, 0, len(methods))
	for m := range methods {
		out = append(out, m)
	}
	return out
}
