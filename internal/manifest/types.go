package manifest

import (
	"eventgate/internal/pathspec"
	"eventgate/queue"
	"eventgate/route"
)

// Route is one HTTP endpoint (spec.md §3 "Route").
type Route struct {
	Template     *pathspec.Template
	Methods      map[string]bool // uppercase verbs, or {"*": true}
	Accepts      []string
	Timeout      int // seconds, clamped [1,30]
	CORS         bool
	CachePolicy  route.CachePolicy
	ETagPolicy   route.ETagPolicy
	SourceFile   string
	Module       *route.Module
	FromQueue    string // non-empty if this route was projected by a queue's config.url
}

// AcceptsMethod reports whether method is acceptable for this route,
// folding HEAD-falls-through-to-GET (spec.md §4.E.3).
func (r *Route) AcceptsMethod(method string) bool {
	if r.Methods["*"] {
		return true
	}
	if method == "HEAD" {
		return r.Methods["GET"]
	}
	return r.Methods[method]
}

// AcceptsContentType reports whether ct (the primary "type/subtype" token)
// is acceptable, supporting family wildcards ("type/*") (spec.md §4.E.4).
func (r *Route) AcceptsContentType(ct string) bool {
	if len(r.Accepts) == 0 {
		return true
	}
	for _, accepted := range r.Accepts {
		if accepted == ct {
			return true
		}
		if family, ok := familyOf(accepted); ok && family == familyPrefix(ct) {
			return true
		}
	}
	return false
}

func familyOf(accepted string) (string, bool) {
	for i := 0; i < len(accepted); i++ {
		if accepted[i] == '/' {
			if accepted[i+1:] == "*" {
				return accepted[:i], true
			}
			return "", false
		}
	}
	return "", false
}

func familyPrefix(ct string) string {
	for i := 0; i < len(ct); i++ {
		if ct[i] == '/' {
			return ct[:i]
		}
	}
	return ct
}

// QueueDescriptor is one logical queue (spec.md §3 "Queue descriptor").
type QueueDescriptor struct {
	Name       string
	FIFO       bool
	URL        string // optional incoming HTTP path
	Timeout    int    // seconds, clamped [1,500], default 30
	Accepts    []string
	SourceFile string
	Module     *queue.Module
}

// Services is the immutable manifest produced by Load: canonical path ->
// Route, logical name -> QueueDescriptor (spec.md §3 "Services").
type Services struct {
	Routes        map[string]*Route
	RoutesByShape map[string]string // shape -> canonical path, for diagnostics
	Queues        map[string]*QueueDescriptor
	Warmup        func() error

	// ordered holds Routes sorted most-specific-first (more literal
	// segments before fewer, catch-alls last) so RouteFor picks a literal
	// match over an overlapping parameterised one even though shape
	// collision detection only rules out identical shapes, not
	// overlapping ones.
	ordered []*Route
}

// RouteFor matches path against every route's Template, most specific
// first, and returns the first match along with extracted parameters.
func (s *Services) RouteFor(path string) (*Route, map[string]string, bool) {
	for _, r := range s.ordered {
		if params, ok := r.Template.Match(path); ok {
			return r, params, true
		}
	}
	return nil, nil, false
}
