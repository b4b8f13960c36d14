package httpvision

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/palettex/pkg/extraction/redact"
)

// HTTPError is a sanitized vision-service error: the status line plus the
// service's own error identifiers when the body carried them. Important:
// never include raw response bodies here beyond the redacted snippet;
// these strings reach logs and CLI output.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	ErrorName  string
	ErrorCode  string
	Snippet    string
}

func (e *HTTPError) Error() string {
	parts := []string{fmt.Sprintf("vision api error: op=%s status=%s", e.Op, e.Status)}
	if e.ErrorName != "" {
		parts = append(parts, "errorName="+e.ErrorName)
	}
	if e.ErrorCode != "" {
		parts = append(parts, "errorCode="+e.ErrorCode)
	}
	if e.Snippet != "" {
		parts = append(parts, "snippet="+e.Snippet)
	}
	return strings.Join(parts, " ")
}

// errorEnvelope is the structured error body the vision service emits.
type errorEnvelope struct {
	ErrorName string `json:"error_name"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	he := &HTTPError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.ErrorName != "" || env.ErrorCode != "") {
		he.ErrorName = env.ErrorName
		he.ErrorCode = env.ErrorCode
		he.Snippet = redactAndTruncate([]byte(env.Message))
		return he
	}
	he.Snippet = redactAndTruncate(body)
	return he
}

const maxSnippetLen = 256

func redactAndTruncate(body []byte) string {
	s := redact.Secrets(string(body))
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSnippetLen {
		s = s[:maxSnippetLen] + "..."
	}
	return s
}
