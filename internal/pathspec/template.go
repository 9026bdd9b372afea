// Package pathspec implements the route path-template grammar: parsing,
// inbound-URL matching, outbound-URL compiling, and the "shape" used for
// duplicate-route detection.
package pathspec

import (
	"fmt"
	"regexp"
	"strings"
)

var segmentLiteral = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
var segmentParam = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Segment is one path segment of a parsed Template.
type Segment struct {
	Literal  string // set when !Param
	Param    string // parameter name, set when Param
	IsParam  bool
	CatchAll bool // only valid on the final Param segment
}

// Template is the normalised colon-form of a route path, e.g. "/posts/:id".
type Template struct {
	Raw      string
	Segments []Segment
}

// Parse normalises bracket notation ([x] -> :x, [...x] -> :x*) and validates
// the result against the path-template grammar:
//   - no two parameters share a name
//   - a catch-all parameter only appears as the final segment
//   - each segment matches the literal or parameter grammar
func Parse(raw string) (*Template, error) {
	trimmed := strings.Trim(raw, "/")
	var rawSegments []string
	if trimmed != "" {
		rawSegments = strings.Split(trimmed, "/")
	}

	segments := make([]Segment, 0, len(rawSegments))
	seen := map[string]bool{}

	for i, rs := range rawSegments {
		seg, err := parseSegment(rs)
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", rs, err)
		}
		if seg.IsParam {
			if seen[seg.Param] {
				return nil, fmt.Errorf("duplicate parameter name %q", seg.Param)
			}
			seen[seg.Param] = true
			if seg.CatchAll && i != len(rawSegments)-1 {
				return nil, fmt.Errorf("catch-all parameter %q must be the final segment", seg.Param)
			}
		}
		segments = append(segments, seg)
	}

	return &Template{Raw: "/" + strings.Join(rawSegments, "/"), Segments: segments}, nil
}

// parseSegment accepts both bracket form ([id], [...id]) and colon form
// (:id, :id*) and normalises to the internal Segment representation.
func parseSegment(rs string) (Segment, error) {
	switch {
	case strings.HasPrefix(rs, "[...") && strings.HasSuffix(rs, "]"):
		name := rs[4 : len(rs)-1]
		if !segmentParam.MatchString(name) {
			return Segment{}, fmt.Errorf("invalid parameter name %q", name)
		}
		return Segment{IsParam: true, Param: name, CatchAll: true}, nil

	case strings.HasPrefix(rs, "[") && strings.HasSuffix(rs, "]"):
		name := rs[1 : len(rs)-1]
		if !segmentParam.MatchString(name) {
			return Segment{}, fmt.Errorf("invalid parameter name %q", name)
		}
		return Segment{IsParam: true, Param: name}, nil

	case strings.HasPrefix(rs, ":"):
		name := strings.TrimSuffix(rs[1:], "*")
		if !segmentParam.MatchString(name) {
			return Segment{}, fmt.Errorf("invalid parameter name %q", name)
		}
		return Segment{IsParam: true, Param: name, CatchAll: strings.HasSuffix(rs, "*")}, nil

	default:
		if !segmentLiteral.MatchString(rs) {
			return Segment{}, fmt.Errorf("invalid literal segment %q", rs)
		}
		return Segment{Literal: rs}, nil
	}
}

// Canonical renders the template back to colon form, e.g. "/posts/:id" or
// "/files/:path*" for a catch-all.
func (t *Template) Canonical() string {
	if len(t.Segments) == 0 {
		return "/"
	}
	parts := make([]string, len(t.Segments))
	for i, seg := range t.Segments {
		parts[i] = seg.render()
	}
	return "/" + strings.Join(parts, "/")
}

func (seg Segment) render() string {
	if !seg.IsParam {
		return seg.Literal
	}
	if seg.CatchAll {
		return ":" + seg.Param + "*"
	}
	return ":" + seg.Param
}

// Shape replaces every parameter name with ":" so that "/a/:x" and "/a/:y"
// produce the same signature for collision detection.
func (t *Template) Shape() string {
	if len(t.Segments) == 0 {
		return "/"
	}
	parts := make([]string, len(t.Segments))
	for i, seg := range t.Segments {
		if seg.IsParam {
			if seg.CatchAll {
				parts[i] = ":*"
			} else {
				parts[i] = ":"
			}
		} else {
			parts[i] = seg.Literal
		}
	}
	return "/" + strings.Join(parts, "/")
}

// ParamNames returns the declared parameter names in order.
func (t *Template) ParamNames() []string {
	names := make([]string, 0)
	for _, seg := range t.Segments {
		if seg.IsParam {
			names = append(names, seg.Param)
		}
	}
	return names
}

// Match attempts to match path (a request pathname, not a full URL) against
// the template, returning the extracted parameters on success.
func (t *Template) Match(path string) (map[string]string, bool) {
	trimmed := strings.Trim(path, "/")
	var pathSegments []string
	if trimmed != "" {
		pathSegments = strings.Split(trimmed, "/")
	}

	params := map[string]string{}
	pi := 0
	for si, seg := range t.Segments {
		if seg.IsParam && seg.CatchAll {
			if pi >= len(pathSegments) {
				return nil, false
			}
			params[seg.Param] = strings.Join(pathSegments[pi:], "/")
			pi = len(pathSegments)
			if si != len(t.Segments)-1 {
				return nil, false
			}
			continue
		}

		if pi >= len(pathSegments) {
			return nil, false
		}

		if seg.IsParam {
			params[seg.Param] = pathSegments[pi]
		} else if seg.Literal != pathSegments[pi] {
			return nil, false
		}
		pi++
	}

	if pi != len(pathSegments) {
		return nil, false
	}
	return params, true
}

// Compile constructs a pathname from this template's parameters, consuming
// exactly the declared parameter names out of params. Extra keys are left
// untouched by the caller (the Builder promotes them to query parameters).
func (t *Template) Compile(params map[string]string) (string, error) {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if !seg.IsParam {
			parts = append(parts, seg.Literal)
			continue
		}
		v, ok := params[seg.Param]
		if !ok || v == "" {
			return "", fmt.Errorf("missing value for parameter %q", seg.Param)
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(parts, "/"), nil
}
