package pathspec

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Builder constructs outbound URLs from a Template, merging any params that
// aren't declared path parameters into the query string, plus an explicit
// query map layered on top. If Base is set, relative templates compile to
// absolute URLs.
type Builder struct {
	Template *Template
	Base     string
}

// New returns a Builder bound to tmpl and base (base may be empty).
func New(tmpl *Template, base string) *Builder {
	return &Builder{Template: tmpl, Base: base}
}

// Build compiles the template's path using the path-parameter entries of
// params, folds any remaining entries into the query string, and merges an
// explicit query map on top. Values in query may be a string or a []string
// (repeated keys).
func (b *Builder) Build(params map[string]any, query map[string]any) (string, error) {
	pathParams := map[string]string{}
	extra := map[string]any{}

	declared := map[string]bool{}
	for _, n := range b.Template.ParamNames() {
		declared[n] = true
	}

	for k, v := range params {
		if declared[k] {
			pathParams[k] = fmt.Sprint(v)
			continue
		}
		extra[k] = v
	}

	pathname, err := b.Template.Compile(pathParams)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	addQueryValues(values, extra)
	addQueryValues(values, query)

	out := pathname
	if encoded := encodeSorted(values); encoded != "" {
		out += "?" + encoded
	}

	if b.Base != "" {
		trimmedBase := strings.TrimRight(b.Base, "/")
		out = trimmedBase + out
	}
	return out, nil
}

func addQueryValues(values url.Values, m map[string]any) {
	for k, v := range m {
		switch vv := v.(type) {
		case nil:
			continue
		case []string:
			for _, s := range vv {
				values.Add(k, s)
			}
		case []any:
			for _, s := range vv {
				values.Add(k, fmt.Sprint(s))
			}
		default:
			values.Add(k, fmt.Sprint(vv))
		}
	}
}

// encodeSorted renders url.Values deterministically (sorted by key, values
// in insertion order) so identical inputs always produce identical query
// strings, which response-layer ETag computation (spec.md §4.E.9) relies on
// indirectly via reproducible URLs in tests.
func encodeSorted(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}
