package httpengine

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"eventgate/internal/manifest"
	"eventgate/route"
)

func loadServices(t *testing.T, file string, mod *route.Module) *manifest.Services {
	t.Helper()
	reg := manifest.NewRegistry()
	reg.RegisterRoute(file, mod)
	svc, err := manifest.Load(fstest.MapFS{file: {Data: []byte("package api")}}, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return svc
}

func noMiddleware(string) (route.Middleware, bool) { return route.Middleware{}, false }

func TestHandleReturnsJSONResult(t *testing.T) {
	mod := &route.Module{
		Handlers: map[string]route.HandlerFunc{
			"get": func(r *http.Request, meta route.Meta) (route.Result, error) {
				return route.JSON(map[string]string{"hello": "world"}), nil
			},
		},
	}
	svc := loadServices(t, "api/greet.go", mod)
	eng := &Engine{Services: svc, Lookup: noMiddleware}

	req := httptest.NewRequest(http.MethodGet, "/greet", nil)
	rec := httptest.NewRecorder()
	eng.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	if rec.Body.String() != `{"hello":"world"}` {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHandleRejectsDisallowedMethod(t *testing.T) {
	mod := &route.Module{Handlers: map[string]route.HandlerFunc{
		"get": func(r *http.Request, meta route.Meta) (route.Result, error) { return route.Empty(), nil },
	}}
	svc := loadServices(t, "api/greet.go", mod)
	eng := &Engine{Services: svc, Lookup: noMiddleware}

	req := httptest.NewRequest(http.MethodPost, "/greet", nil)
	rec := httptest.NewRecorder()
	eng.Handle(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleThrownResponseShortCircuits(t *testing.T) {
	mod := &route.Module{Handlers: map[string]route.HandlerFunc{
		"get": func(r *http.Request, meta route.Meta) (route.Result, error) {
			return route.Result{}, route.Throw(route.Text("moved"))
		},
	}}
	svc := loadServices(t, "api/redirect.go", mod)
	eng := &Engine{Services: svc, Lookup: noMiddleware}

	req := httptest.NewRequest(http.MethodGet, "/redirect", nil)
	rec := httptest.NewRecorder()
	eng.Handle(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "moved" {
		t.Fatalf("expected thrown text response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleNotFoundForUnknownPath(t *testing.T) {
	mod := &route.Module{Handlers: map[string]route.HandlerFunc{
		"get": func(r *http.Request, meta route.Meta) (route.Result, error) { return route.Empty(), nil },
	}}
	svc := loadServices(t, "api/greet.go", mod)
	eng := &Engine{Services: svc, Lookup: noMiddleware}

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rec := httptest.NewRecorder()
	eng.Handle(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
