package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

type fakeNetErr struct{ timeout bool }

func (e *fakeNetErr) Error() string   { return "dial tcp: i/o timeout" }
func (e *fakeNetErr) Timeout() bool   { return e.timeout }
func (e *fakeNetErr) Temporary() bool { return true }

func TestClassifyErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		want core.ErrorKind
	}{
		{
			name: "429 code",
			in:   genai.APIError{Code: 429, Message: "slow down"},
			want: core.KindRateLimited,
		},
		{
			name: "quota message without 429",
			in:   genai.APIError{Code: 400, Message: "RESOURCE_EXHAUSTED: quota exceeded"},
			want: core.KindRateLimited,
		},
		{
			name: "server error",
			in:   genai.APIError{Code: 503, Message: "overloaded"},
			want: core.KindUnavailable,
		},
		{
			name: "bad request",
			in:   genai.APIError{Code: 400, Message: "invalid argument"},
			want: core.KindInvalidResponse,
		},
		{
			name: "wrapped api error",
			in:   fmt.Errorf("generate: %w", genai.APIError{Code: 429}),
			want: core.KindRateLimited,
		},
		{
			name: "deadline",
			in:   context.DeadlineExceeded,
			want: core.KindTimeout,
		},
		{
			name: "net timeout",
			in:   &fakeNetErr{timeout: true},
			want: core.KindTimeout,
		},
		{
			name: "plain transport error",
			in:   errors.New("connection refused"),
			want: core.KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classifyErr(tt.in)
			var pe *core.ProviderError
			if !errors.As(got, &pe) {
				t.Fatalf("classifyErr returned %T, want *core.ProviderError", got)
			}
			if pe.Kind != tt.want {
				t.Fatalf("kind = %q, want %q", pe.Kind, tt.want)
			}
			if pe.Provider != AdapterID {
				t.Fatalf("provider = %q, want %q", pe.Provider, AdapterID)
			}
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{APIKey: "   "}, zerolog.Nop()); err == nil {
		t.Fatal("New with blank key succeeded")
	}
}

func TestPaletteSchemaRequiresCoreFields(t *testing.T) {
	t.Parallel()

	colors, ok := paletteSchema.Properties["colors"]
	if !ok || colors.Items == nil {
		t.Fatal("schema missing colors array")
	}
	required := map[string]bool{}
	for _, r := range colors.Items.Required {
		required[r] = true
	}
	if !required["hex"] || !required["confidence"] {
		t.Fatalf("color item required = %v, want hex and confidence", colors.Items.Required)
	}
}
