package middleware

import (
	"net/http"
	"testing"

	"eventgate/route"
)

func TestResolveOrdersRootFirst(t *testing.T) {
	var order []string
	lookup := func(dir string) (route.Middleware, bool) {
		switch dir {
		case "api":
			return route.Middleware{OnRequest: func(*http.Request) error {
				order = append(order, "root")
				return nil
			}}, true
		case "api/posts":
			return route.Middleware{OnRequest: func(*http.Request) error {
				order = append(order, "posts")
				return nil
			}}, true
		default:
			return route.Middleware{}, false
		}
	}

	mw := Resolve("api/posts/[id].go", lookup)
	req, _ := http.NewRequest(http.MethodGet, "/posts/1", nil)
	if err := mw.OnRequest(req); err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if len(order) != 2 || order[0] != "root" || order[1] != "posts" {
		t.Fatalf("expected root-first composition, got %v", order)
	}
}

func TestResolveChildAuthenticateReplacesParent(t *testing.T) {
	parentAuth := func(*http.Request, map[string]string) (*route.User, error) {
		return &route.User{ID: "parent"}, nil
	}
	childAuth := func(*http.Request, map[string]string) (*route.User, error) {
		return &route.User{ID: "child"}, nil
	}
	lookup := func(dir string) (route.Middleware, bool) {
		switch dir {
		case "api":
			return route.Middleware{Authenticate: parentAuth}, true
		case "api/posts":
			return route.Middleware{Authenticate: childAuth}, true
		default:
			return route.Middleware{}, false
		}
	}

	mw := Resolve("api/posts/[id].go", lookup)
	u, err := mw.Authenticate(nil, nil)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.ID != "child" {
		t.Fatalf("expected child's Authenticate to win, got %q", u.ID)
	}
}
