package middleware

import "net/http"

// ApplyPreflight answers an OPTIONS preflight request for a CORS-enabled
// route (spec.md §4.E.2), writing the standard allow-headers and returning
// true if it handled the request.
func ApplyPreflight(w http.ResponseWriter, r *http.Request, allowMethods []string) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", joinMethods(allowMethods))
	if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
		w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
	}
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
	return true
}

// ApplyResponseHeaders stamps the CORS response headers onto a completed
// response (spec.md §4.E.9).
func ApplyResponseHeaders(header http.Header, origin string) {
	if origin == "" {
		return
	}
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Vary", "Origin")
}

func joinMethods(methods []string) string {
	out := ""
	for i, m := range methods {
		if i > 0 {
			out += ", "
		}
		out += m
	}
	return out
}
