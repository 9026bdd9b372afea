package manifest

import (
	"net/http"
	"testing"
	"testing/fstest"

	"eventgate/queue"
	"eventgate/route"
)

var stubHandler route.HandlerFunc = func(r *http.Request, meta route.Meta) (route.Result, error) {
	return route.Empty(), nil
}

func TestLoadBracketNormalisationEndToEnd(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterRoute("api/posts/[id].go", &route.Module{
		Handlers: map[string]route.HandlerFunc{"get": stubHandler},
	})

	fsys := fstest.MapFS{
		"api/posts/[id].go": {Data: []byte("package api")},
	}

	svc, err := Load(fsys, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rt, params, ok := svc.RouteFor("/posts/42")
	if !ok {
		t.Fatalf("expected match for /posts/42")
	}
	if params["id"] != "42" {
		t.Fatalf("expected id=42, got %v", params)
	}
	if rt.Template.Canonical() != "/posts/:id" {
		t.Fatalf("unexpected canonical form %q", rt.Template.Canonical())
	}
}

func TestLoadRejectsDuplicateShape(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterRoute("api/posts/[id].go", &route.Module{Handlers: map[string]route.HandlerFunc{"get": stubHandler}})
	reg.RegisterRoute("api/posts/[slug].go", &route.Module{Handlers: map[string]route.HandlerFunc{"get": stubHandler}})

	fsys := fstest.MapFS{
		"api/posts/[id].go":   {Data: []byte("package api")},
		"api/posts/[slug].go": {Data: []byte("package api")},
	}

	if _, err := Load(fsys, reg); err == nil {
		t.Fatalf("expected a ManifestError for colliding route shapes")
	} else if _, ok := err.(*ManifestError); !ok {
		t.Fatalf("expected *ManifestError, got %T: %v", err, err)
	}
}

func TestLoadSkipsReservedFiles(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterRoute("api/posts/index.go", &route.Module{Handlers: map[string]route.HandlerFunc{"get": stubHandler}})

	fsys := fstest.MapFS{
		"api/posts/index.go":       {Data: []byte("package api")},
		"api/posts/_middleware.go": {Data: []byte("package api")},
	}

	svc, err := Load(fsys, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, ok := svc.RouteFor("/posts"); !ok {
		t.Fatalf("expected /posts to resolve from index.go")
	}
}

func TestLoadProjectsQueueURLAsRoute(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterQueue("queues/emails.go", &queue.Module{
		Handler: func(any, queue.Meta) error { return nil },
		Config:  queue.Config{URL: "/hooks/emails"},
	})

	fsys := fstest.MapFS{
		"queues/emails.go": {Data: []byte("package queues")},
	}

	svc, err := Load(fsys, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rt, _, ok := svc.RouteFor("/hooks/emails")
	if !ok {
		t.Fatalf("expected queue-projected route at /hooks/emails")
	}
	if rt.FromQueue != "emails" {
		t.Fatalf("expected FromQueue=emails, got %q", rt.FromQueue)
	}
	if !rt.Methods["POST"] {
		t.Fatalf("expected queue-projected route to accept POST")
	}
}

func TestLoadRejectsFIFOQueueURLWithoutGroupParam(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterQueue("queues/emails.fifo.go", &queue.Module{
		Handler: func(any, queue.Meta) error { return nil },
		Config:  queue.Config{URL: "/hooks/emails"},
	})

	fsys := fstest.MapFS{
		"queues/emails.fifo.go": {Data: []byte("package queues")},
	}

	if _, err := Load(fsys, reg); err == nil {
		t.Fatalf("expected a ManifestError for a FIFO queue URL missing :group")
	}
}

func TestLoadAcceptsFIFOQueueURLWithGroupParam(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterQueue("queues/emails.fifo.go", &queue.Module{
		Handler: func(any, queue.Meta) error { return nil },
		Config:  queue.Config{URL: "/hooks/emails/[group]"},
	})

	fsys := fstest.MapFS{
		"queues/emails.fifo.go": {Data: []byte("package queues")},
	}

	svc, err := Load(fsys, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, ok := svc.RouteFor("/hooks/emails/customer-1"); !ok {
		t.Fatalf("expected queue-projected FIFO route to match")
	}
}

func TestLoadRejectsInvalidQueueName(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterQueue("queues/bad name!.go", &queue.Module{
		Handler: func(any, queue.Meta) error { return nil },
	})

	fsys := fstest.MapFS{
		"queues/bad name!.go": {Data: []byte("package queues")},
	}

	if _, err := Load(fsys, reg); err == nil {
		t.Fatalf("expected a ManifestError for an invalid queue name")
	}
}

func TestLoadPrefersLiteralRouteOverParamRoute(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterRoute("api/posts/latest.go", &route.Module{Handlers: map[string]route.HandlerFunc{"get": stubHandler}})
	reg.RegisterRoute("api/posts/[id].go", &route.Module{Handlers: map[string]route.HandlerFunc{"get": stubHandler}})

	fsys := fstest.MapFS{
		"api/posts/latest.go": {Data: []byte("package api")},
		"api/posts/[id].go":   {Data: []byte("package api")},
	}

	svc, err := Load(fsys, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rt, _, ok := svc.RouteFor("/posts/latest")
	if !ok {
		t.Fatalf("expected a match for /posts/latest")
	}
	if rt.FromQueue != "" || rt.Template.Canonical() != "/posts/latest" {
		t.Fatalf("expected the literal route to win, got %q", rt.Template.Canonical())
	}
}
