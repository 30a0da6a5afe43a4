package logger

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// secretPathPrefixes name the path segments after which every segment is
// credential material.
var secretPathPrefixes = []string{"password-reset-confirm"}

// RequestPath is the path to log for r. It prefers the matched chi route
// pattern, which carries placeholders instead of URL parameters, and masks
// reset link segments when no complete pattern is known.
func RequestPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return maskPath(r.URL.Path)
}

func maskPath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if !isSecretPrefix(segment) {
			continue
		}
		for j := i + 1; j < len(segments); j++ {
			if segments[j] != "" {
				segments[j] = redacted
			}
		}
		return strings.Join(segments, "/")
	}
	return path
}

func isSecretPrefix(segment string) bool {
	for _, prefix := range secretPathPrefixes {
		if strings.EqualFold(segment, prefix) {
			return true
		}
	}
	return false
}
