package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings from
	// provider SDKs and HTTP bodies.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|secret)\b\s*[:=]\s*[^\s&"']+`)

	// Key-bearing headers and query params the vision SDKs use.
	headerKeyRe = regexp.MustCompile(`(?i)\b(x-goog-api-key|x-api-key|authorization)\b\s*:\s*[^\s"']+`)
	queryKeyRe  = regexp.MustCompile(`(?i)([?&](?:key|api_key|token)=)[^\s&"']+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = headerKeyRe.ReplaceAllString(out, "$1: <redacted>")
	out = queryKeyRe.ReplaceAllString(out, "$1<redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}
