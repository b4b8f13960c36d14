package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/rs/zerolog"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

func TestClassifyErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		want core.ErrorKind
	}{
		{name: "429", in: &openai.Error{StatusCode: 429}, want: core.KindRateLimited},
		{name: "rate limit code string", in: &openai.Error{StatusCode: 400, Code: "rate_limit_exceeded"}, want: core.KindRateLimited},
		{name: "server error", in: &openai.Error{StatusCode: 502}, want: core.KindUnavailable},
		{name: "auth error", in: &openai.Error{StatusCode: 401}, want: core.KindUnavailable},
		{name: "bad request", in: &openai.Error{StatusCode: 400}, want: core.KindInvalidResponse},
		{name: "deadline", in: context.DeadlineExceeded, want: core.KindTimeout},
		{name: "opaque transport", in: errors.New("connection reset by peer"), want: core.KindUnavailable},
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
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, zerolog.Nop()); err == nil {
		t.Fatal("New without key succeeded")
	}
	a, err := New(Config{APIKey: "sk-test", Model: "  "}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.model != DefaultModel {
		t.Fatalf("model = %q, want default %q", a.model, DefaultModel)
	}
	if a.ID() != AdapterID {
		t.Fatalf("ID() = %q, want %q", a.ID(), AdapterID)
	}
	if a.EstimateCost().IsZero() {
		t.Fatal("EstimateCost() zero for a priced model")
	}
}
