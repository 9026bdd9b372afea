package manifest

import (
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"eventgate/internal/pathspec"
	"eventgate/route"
)

const (
	minTimeout          = 1
	maxHTTPTimeout      = 30
	maxQueueTimeout     = 500
	defaultQueueTimeout = 30
)

const routeFileExt = ".go"

var queueNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.fifo)?$`)

const maxQueueNameLen = 40

// Load scans fsys for "api/**/[!_]*.go" and "queues/[!_]*.go", resolving
// each discovered path against reg, and produces an immutable Services
// table (spec.md §4.B). Leading "_" at any path segment reserves the file
// and is skipped — "_middleware" is left for the middleware resolver (§4.D)
// to load on demand.
func Load(fsys fs.FS, reg *Registry) (*Services, error) {
	svc := &Services{
		Routes:        map[string]*Route{},
		RoutesByShape: map[string]string{},
		Queues:        map[string]*QueueDescriptor{},
	}

	// Queues must be built before routes so that queue-projected routes
	// (spec.md §9: "Build queues first, then routes... one-directional
	// dependency") participate in the same collision check as file-based
	// routes.
	if err := loadQueues(fsys, reg, svc); err != nil {
		return nil, err
	}
	if err := projectQueueRoutes(svc); err != nil {
		return nil, err
	}
	if err := loadRoutes(fsys, reg, svc); err != nil {
		return nil, err
	}

	if warmup, ok := reg.warmupFunc(); ok {
		svc.Warmup = warmup
	}

	svc.ordered = orderRoutes(svc.Routes)
	return svc, nil
}

func (r *Registry) warmupFunc() (func() error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warmup, r.warmup != nil
}

func loadRoutes(fsys fs.FS, reg *Registry, svc *Services) error {
	return fs.WalkDir(fsys, "api", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "api" {
				// No api/ directory at all is not fatal; a project may
				// serve only queues.
				return nil
			}
			return err
		}
		if d.IsDir() {
			if reserved(path.Base(p)) && p != "api" {
				return fs.SkipDir
			}
			return nil
		}
		if reserved(path.Base(p)) || !strings.HasSuffix(p, routeFileExt) {
			return nil
		}

		mod, ok := reg.lookupRoute(p)
		if !ok {
			return newManifestError(p, "route file has no registered module")
		}

		canonical, err := canonicalRoutePath("api", p)
		if err != nil {
			return newManifestError(p, "%v", err)
		}

		tmpl, err := pathspec.Parse(canonical)
		if err != nil {
			return newManifestError(p, "invalid path template: %v", err)
		}

		rt := &Route{
			Template:   tmpl,
			Methods:    methodSet(mod.Handlers, mod.Config.Methods),
			Accepts:    mod.Config.Accepts,
			Timeout:    clamp(mod.Config.Timeout, minTimeout, maxHTTPTimeout, maxHTTPTimeout),
			CORS:       mod.Config.CORS,
			SourceFile: p,
			Module:     mod,
		}
		if mod.Config.CacheFunc != nil {
			rt.CachePolicy = mod.Config.CacheFunc
		} else if mod.Config.CacheSeconds > 0 {
			seconds := mod.Config.CacheSeconds
			rt.CachePolicy = func(route.Result) (int, bool) { return seconds, true }
		}
		if mod.Config.ETagFunc != nil {
			rt.ETagPolicy = mod.Config.ETagFunc
		} else if mod.Config.ETagEnabled || mod.Config.ETagValue != "" {
			value := mod.Config.ETagValue
			rt.ETagPolicy = func(route.Result) (string, bool) { return value, true }
		}

		return insertRoute(svc, rt, p)
	})
}

func loadQueues(fsys fs.FS, reg *Registry, svc *Services) error {
	return fs.WalkDir(fsys, "queues", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "queues" {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := path.Base(p)
		if reserved(base) || !strings.HasSuffix(p, routeFileExt) {
			return nil
		}

		mod, ok := reg.lookupQueue(p)
		if !ok {
			return newManifestError(p, "queue file has no registered module")
		}

		name := strings.TrimSuffix(base, routeFileExt)
		fifo := strings.HasSuffix(name, ".fifo")

		if !queueNameRe.MatchString(name) || len(name) > maxQueueNameLen {
			return newManifestError(p, "invalid queue name %q", name)
		}

		qd := &QueueDescriptor{
			Name:       name,
			FIFO:       fifo,
			URL:        mod.Config.URL,
			Timeout:    clamp(mod.Config.Timeout, minTimeout, maxQueueTimeout, defaultQueueTimeout),
			SourceFile: p,
			Module:     mod,
		}

		if _, dup := svc.Queues[name]; dup {
			return newManifestError(p, "duplicate queue name %q", name)
		}
		svc.Queues[name] = qd
		return nil
	})
}

// projectQueueRoutes injects a synthetic POST-only route for every queue
// with a bound config.url (spec.md §4.B.5).
func projectQueueRoutes(svc *Services) error {
	for _, qd := range svc.Queues {
		if qd.URL == "" {
			continue
		}
		tmpl, err := pathspec.Parse(qd.URL)
		if err != nil {
			return newManifestError(qd.SourceFile, "invalid queue URL %q: %v", qd.URL, err)
		}
		if qd.FIFO {
			hasGroup := false
			for _, n := range tmpl.ParamNames() {
				if n == "group" {
					hasGroup = true
				}
			}
			if !hasGroup {
				return newManifestError(qd.SourceFile, "FIFO queue with a bound URL must expose :group")
			}
		}
		rt := &Route{
			Template:   tmpl,
			Methods:    map[string]bool{"POST": true},
			Timeout:    qd.Timeout,
			SourceFile: qd.SourceFile,
			FromQueue:  qd.Name,
		}
		if err := insertRoute(svc, rt, qd.SourceFile); err != nil {
			return err
		}
	}
	return nil
}

func insertRoute(svc *Services, rt *Route, file string) error {
	canonical := rt.Template.Canonical()
	shape := rt.Template.Shape()
	if existing, dup := svc.RoutesByShape[shape]; dup {
		return newManifestError(file, "duplicate route shape %q (collides with %s)", shape, existing)
	}
	svc.RoutesByShape[shape] = canonical
	svc.Routes[canonical] = rt
	return nil
}

func reserved(base string) bool {
	return strings.HasPrefix(base, "_")
}

// canonicalRoutePath drops the base directory and extension, collapses
// "/index", expands "."-nested segments, and converts brackets to colons
// (spec.md §4.B.2). The bracket/colon translation itself happens inside
// pathspec.Parse; this function only handles the filesystem-specific
// collapsing.
func canonicalRoutePath(base, p string) (string, error) {
	rel := strings.TrimPrefix(p, base)
	rel = strings.TrimSuffix(rel, routeFileExt)
	rel = strings.Trim(rel, "/")

	var segments []string
	if rel != "" {
		segments = strings.Split(rel, "/")
	}
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "index" {
			continue
		}
		// "."-nested segments expand into additional path segments, e.g.
		// "posts.comments" -> "posts/comments".
		for _, sub := range strings.Split(seg, ".") {
			if sub == "" {
				continue
			}
			out = append(out, sub)
		}
	}
	if len(out) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(out, "/"), nil
}

func methodSet(handlers map[string]route.HandlerFunc, configured []string) map[string]bool {
	set := map[string]bool{}
	if len(configured) > 0 {
		for _, m := range configured {
			if m == "*" {
				return map[string]bool{"*": true}
			}
			set[strings.ToUpper(m)] = true
		}
		return set
	}
	for verb := range handlers {
		set[methodFromVerb(verb)] = true
	}
	return set
}

func methodFromVerb(verb string) string {
	if verb == "del" {
		return "DELETE"
	}
	if verb == "*" {
		return "*"
	}
	return strings.ToUpper(verb)
}

func clamp(v, min, max, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// orderRoutes sorts routes most-specific-first for RouteFor: more literal
// (non-parameter) segments first, catch-alls last, ties broken by
// canonical path for determinism.
func orderRoutes(routes map[string]*Route) []*Route {
	out := make([]*Route, 0, len(routes))
	for _, r := range routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := specificity(out[i]), specificity(out[j])
		if si != sj {
			return si > sj
		}
		return out[i].Template.Canonical() < out[j].Template.Canonical()
	})
	return out
}

func specificity(r *Route) int {
	score := 0
	for _, seg := range r.Template.Segments {
		switch {
		case !seg.IsParam:
			score += 2
		case seg.CatchAll:
			score -= 2
		default:
			score += 1
		}
	}
	return score
}
