// Package middleware resolves the ordered chain of "_middleware" ancestors
// that govern a route, and applies the merge rule spec.md §4.D describes:
// root-first ordering, child Authenticate replacing (not composing with) a
// parent's, and OnRequest/OnResponse/OnError composing outer-to-inner.
package middleware

import (
	"net/http"
	"strings"

	"eventgate/route"
)

// Lookup resolves a directory (e.g. "api/posts") to its registered
// _middleware module, mirroring manifest.Registry's private lookup without
// creating an import cycle between manifest and middleware.
type Lookup func(dir string) (route.Middleware, bool)

// Resolve walks from "api" down to the route file's own directory,
// collecting every ancestor's _middleware module in root-first order, and
// merges them per spec.md §4.D.
func Resolve(sourceFile string, lookup Lookup) route.Middleware {
	dirs := ancestorDirs(sourceFile)
	var chain []route.Middleware
	for _, dir := range dirs {
		if mw, ok := lookup(dir); ok {
			chain = append(chain, mw)
		}
	}
	return Merge(chain)
}

// ancestorDirs returns every directory from "api" to the route file's
// immediate parent, root first, e.g. "api/posts/[id].go" ->
// ["api", "api/posts"].
func ancestorDirs(sourceFile string) []string {
	dir := sourceFile
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	} else {
		dir = "."
	}

	var dirs []string
	for {
		dirs = append(dirs, dir)
		if dir == "api" || dir == "queues" || dir == "." || !strings.Contains(dir, "/") {
			break
		}
		dir = dir[:strings.LastIndex(dir, "/")]
	}
	// reverse to root-first
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs
}

// Merge folds an ordered (root-first) chain of middleware modules into one:
// the closest ancestor's Authenticate wins outright (spec.md §4.D: "a
// child's Authenticate entirely replaces an ancestor's, it does not
// compose"); OnRequest/OnResponse/OnError compose outer-to-inner.
// OnRequest and OnResponse short-circuit the rest on a ThrownResponse or
// error; every OnError in the chain is always called.
func Merge(chain []route.Middleware) route.Middleware {
	var merged route.Middleware
	for _, mw := range chain {
		if mw.Authenticate != nil {
			merged.Authenticate = mw.Authenticate
		}
		merged.OnRequest = composeOnRequest(merged.OnRequest, mw.OnRequest)
		merged.OnResponse = composeOnResponse(merged.OnResponse, mw.OnResponse)
		merged.OnError = composeOnError(merged.OnError, mw.OnError)
	}
	return merged
}

func composeOnRequest(outer, inner route.OnRequestFunc) route.OnRequestFunc {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	return func(r *http.Request) error {
		if err := outer(r); err != nil {
			return err
		}
		return inner(r)
	}
}

func composeOnResponse(outer, inner route.OnResponseFunc) route.OnResponseFunc {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	return func(r *http.Request, resp *http.Response) error {
		if err := outer(r, resp); err != nil {
			return err
		}
		return inner(r, resp)
	}
}

func composeOnError(outer, inner route.OnErrorFunc) route.OnErrorFunc {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	return func(err error, r *http.Request) {
		outer(err, r)
		inner(err, r)
	}
}
