package provider

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// ExtractionPrompt is the instruction text shared by every vision adapter.
// Keeping one prompt means provider answers stay comparable and the payload
// parser only has to understand one shape.
func ExtractionPrompt(maxColors int) string {
	return fmt.Sprintf(`You are a design-token extraction service. Analyze the attached image and identify up to %d distinct colors that define its visual identity.

Return ONLY a single JSON object with these keys:
- "colors": array of color objects, most important first
- "overall_confidence": number between 0 and 1 for the palette as a whole

Each color object has these keys:
- "hex": 6-digit hex color like "#FF5733"
- "confidence": number between 0 and 1
- "intent": one of "primary", "secondary", "accent", "background", "text"
- "prominence_pct": number between 0 and 100, the share of the image this color covers
- "usage_hints": array of short lowercase strings like "vivid" or "dark"

Rules:
- No prose, no markdown fences, ONLY the JSON object.
- Never report colors that are not visible in the image.
- Prefer surface and brand colors over compression artifacts.`, maxColors)
}

// DataURL encodes an image for providers that accept data: URLs.
func DataURL(img core.ImageHandle) string {
	return "data:" + img.MIME() + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes())
}

// TrimToJSON recovers the JSON object from a model reply that wrapped it in
// markdown fences or prose. Models do this no matter how firmly the prompt
// forbids it. Returns the trimmed input when no object can be located.
func TrimToJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// KindFromStatus maps an HTTP status to an ErrorKind. 4xx statuses other
// than throttling and timeouts read as the provider rejecting the request
// payload; auth failures read as unavailable since no retry can fix them.
func KindFromStatus(status int) core.ErrorKind {
	switch {
	case status == 429:
		return core.KindRateLimited
	case status == 408 || status == 504:
		return core.KindTimeout
	case status >= 500:
		return core.KindUnavailable
	case status == 401 || status == 403:
		return core.KindUnavailable
	case status >= 400:
		return core.KindInvalidResponse
	default:
		return core.KindUnavailable
	}
}

// RateLimitHint reports whether an error message reads like quota
// exhaustion even when the status code does not say 429.
func RateLimitHint(msg string) bool {
	m := strings.ToLower(msg)
	for _, hint := range []string{"rate limit", "rate-limit", "too many requests", "quota", "resource_exhausted", "resource exhausted"} {
		if strings.Contains(m, hint) {
			return true
		}
	}
	return false
}
