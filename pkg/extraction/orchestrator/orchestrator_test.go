package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/orchestrator"
)

// fake is a scripted extractor. With release set it blocks until the
// channel closes, ignoring ctx, so deadline tests stay deterministic.
type fake struct {
	id      string
	res     core.ExtractionResult
	delay   time.Duration
	release <-chan struct{}
}

func (f *fake) ID() string { return f.id }

func (f *fake) Extract(_ context.Context, _ core.ExtractionRequest) core.ExtractionResult {
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.res
}

func success(id, hex string) core.ExtractionResult {
	return core.ExtractionResult{
		ProviderID:        id,
		Colors:            []core.RawColorToken{{Hex: hex, Confidence: 0.9}},
		OverallConfidence: 0.9,
		Succeeded:         true,
	}
}

func testRequest(t *testing.T) core.ExtractionRequest {
	t.Helper()
	return core.ExtractionRequest{
		Image:     core.NewImageHandle([]byte("orchestrator-test-image")),
		MaxColors: 8,
	}
}

func newOrchestrator(opts orchestrator.Options) *orchestrator.Orchestrator {
	return orchestrator.New(opts, zerolog.Nop())
}

// drain collects the whole stream, failing the test if it does not end.
func drain(t *testing.T, events <-chan orchestrator.Event) []orchestrator.Event {
	t.Helper()
	var out []orchestrator.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("event stream did not close; got %d events so far", len(out))
		}
	}
}

func terminal(t *testing.T, events []orchestrator.Event) orchestrator.Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Kind != orchestrator.EventRequestComplete {
		t.Fatalf("last event: want %s, got %s", orchestrator.EventRequestComplete, last.Kind)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Kind == orchestrator.EventRequestComplete {
			t.Fatal("terminal event emitted before the end of the stream")
		}
	}
	return last
}

func TestRunStreamsInCompletionOrder(t *testing.T) {
	t.Parallel()

	extractors := []core.Extractor{
		&fake{id: "slow", res: success("slow", "#FF0000"), delay: 80 * time.Millisecond},
		&fake{id: "fast", res: success("fast", "#0000FF")},
	}
	events, err := newOrchestrator(orchestrator.Options{}).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	all := drain(t, events)
	if len(all) != 3 {
		t.Fatalf("want 3 events, got %d", len(all))
	}
	if all[0].Kind != orchestrator.EventExtractorComplete || all[0].Result.ProviderID != "fast" {
		t.Errorf("first event: want fast completion, got %+v", all[0])
	}
	if all[1].Result == nil || all[1].Result.ProviderID != "slow" {
		t.Errorf("second event: want slow completion, got %+v", all[1])
	}

	last := terminal(t, all)
	if last.State != core.StateComplete {
		t.Errorf("state: want %s, got %s", core.StateComplete, last.State)
	}
	if last.Palette == nil || len(last.Palette.Tokens) == 0 {
		t.Error("terminal event has no palette")
	}
	if len(last.Results) != 2 {
		t.Errorf("want 2 results on terminal event, got %d", len(last.Results))
	}
}

func TestRunEventsShareOneRequestID(t *testing.T) {
	t.Parallel()

	extractors := []core.Extractor{
		&fake{id: "a", res: success("a", "#112233")},
		&fake{id: "b", res: success("b", "#FFEEDD")},
	}
	events, err := newOrchestrator(orchestrator.Options{}).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	all := drain(t, events)
	id := all[0].RequestID
	if id == "" {
		t.Fatal("empty request id")
	}
	for i, ev := range all {
		if ev.RequestID != id {
			t.Errorf("event %d: request id %q differs from %q", i, ev.RequestID, id)
		}
	}
}

func TestRunPartialFailureStillCompletes(t *testing.T) {
	t.Parallel()

	extractors := []core.Extractor{
		&fake{id: "good", res: success("good", "#00FF00")},
		&fake{id: "bad", res: core.FailedResult("bad", core.KindUnavailable, "boom")},
	}
	events, err := newOrchestrator(orchestrator.Options{}).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	all := drain(t, events)
	last := terminal(t, all)
	if last.State != core.StateComplete {
		t.Fatalf("state: want %s, got %s", core.StateComplete, last.State)
	}
	if last.Err != nil {
		t.Fatalf("unexpected terminal error: %v", last.Err)
	}
	if last.Palette == nil || len(last.Palette.Tokens) == 0 {
		t.Fatal("palette missing despite one success")
	}

	degraded := 0
	for _, ev := range all[:len(all)-1] {
		if ev.Result != nil && !ev.Result.Succeeded {
			degraded++
			if ev.Result.ErrorKind != core.KindUnavailable {
				t.Errorf("degraded event kind: want %s, got %s", core.KindUnavailable, ev.Result.ErrorKind)
			}
		}
	}
	if degraded != 1 {
		t.Errorf("want 1 degraded event, got %d", degraded)
	}
}

func TestRunAllFailuresReportEveryAttempt(t *testing.T) {
	t.Parallel()

	extractors := []core.Extractor{
		&fake{id: "first", res: core.FailedResult("first", core.KindTimeout, "deadline")},
		&fake{id: "second", res: core.FailedResult("second", core.KindInvalidResponse, "garbage")},
	}
	events, err := newOrchestrator(orchestrator.Options{}).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := terminal(t, drain(t, events))
	if last.State != core.StateFailed {
		t.Fatalf("state: want %s, got %s", core.StateFailed, last.State)
	}
	if last.Palette != nil {
		t.Error("failed request returned a palette")
	}

	var allFailed *core.AllProvidersFailedError
	if !errors.As(last.Err, &allFailed) {
		t.Fatalf("terminal error: want *core.AllProvidersFailedError, got %T", last.Err)
	}
	if len(allFailed.Attempts) != 2 {
		t.Fatalf("want 2 attempts on record, got %d", len(allFailed.Attempts))
	}
	msg := allFailed.Error()
	for _, want := range []string{"first", "second", "timeout", "invalid_response"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestRunDeadlineSettlesWithStreamedResults(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	extractors := []core.Extractor{
		&fake{id: "quick", res: success("quick", "#ABCDEF")},
		&fake{id: "stuck", res: success("stuck", "#123456"), release: release},
	}
	opts := orchestrator.Options{Deadline: 50 * time.Millisecond}
	events, err := newOrchestrator(opts).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	all := drain(t, events)
	last := terminal(t, all)
	if last.State != core.StatePartiallyComplete {
		t.Fatalf("state: want %s, got %s", core.StatePartiallyComplete, last.State)
	}
	if last.Palette == nil || len(last.Palette.Tokens) == 0 {
		t.Fatal("partial completion should still carry a palette")
	}
	if len(last.Results) != 1 || last.Results[0].ProviderID != "quick" {
		t.Fatalf("want only the quick result, got %+v", last.Results)
	}
	for _, ev := range all[:len(all)-1] {
		if ev.Result != nil && ev.Result.ProviderID == "stuck" {
			t.Error("canceled extractor produced an event")
		}
	}
}

func TestRunDeadlineWithNoSuccessesFails(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	extractors := []core.Extractor{
		&fake{id: "hung-a", res: success("hung-a", "#000000"), release: release},
		&fake{id: "hung-b", res: success("hung-b", "#FFFFFF"), release: release},
	}
	opts := orchestrator.Options{Deadline: 30 * time.Millisecond}
	events, err := newOrchestrator(opts).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := terminal(t, drain(t, events))
	if last.State != core.StateFailed {
		t.Fatalf("state: want %s, got %s", core.StateFailed, last.State)
	}

	var allFailed *core.AllProvidersFailedError
	if !errors.As(last.Err, &allFailed) {
		t.Fatalf("terminal error: want *core.AllProvidersFailedError, got %T", last.Err)
	}
	if len(allFailed.Attempts) != 2 {
		t.Fatalf("want 2 synthesized attempts, got %d", len(allFailed.Attempts))
	}
	for _, a := range allFailed.Attempts {
		if a.Kind != core.KindTimeout {
			t.Errorf("attempt %s: want %s, got %s", a.Provider, core.KindTimeout, a.Kind)
		}
	}
}

func TestRunCallerCancelSettlesImmediately(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	extractors := []core.Extractor{
		&fake{id: "stuck", res: success("stuck", "#101010"), release: release},
	}
	events, err := newOrchestrator(orchestrator.Options{}).Run(ctx, testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cancel()

	last := terminal(t, drain(t, events))
	if last.State != core.StateFailed {
		t.Fatalf("state: want %s, got %s", core.StateFailed, last.State)
	}
}

func TestRunAbandonedStreamStillSettles(t *testing.T) {
	t.Parallel()

	extractors := []core.Extractor{
		&fake{id: "a", res: success("a", "#223344")},
		&fake{id: "b", res: success("b", "#99AABB")},
	}
	events, err := newOrchestrator(orchestrator.Options{}).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Read nothing until well after the run finished; the buffered
	// channel must hold every event and be closed.
	time.Sleep(100 * time.Millisecond)
	all := drain(t, events)
	if len(all) != 3 {
		t.Fatalf("want 3 buffered events, got %d", len(all))
	}
	terminal(t, all)
}

func TestRunBackfillsMissingProviderID(t *testing.T) {
	t.Parallel()

	extractors := []core.Extractor{
		&fake{id: "anon", res: core.ExtractionResult{Succeeded: false, ErrorKind: core.KindUnavailable, ErrorMsg: "down"}},
	}
	events, err := newOrchestrator(orchestrator.Options{}).Run(context.Background(), testRequest(t), extractors)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	all := drain(t, events)
	if all[0].Result.ProviderID != "anon" {
		t.Fatalf("provider id: want %q, got %q", "anon", all[0].Result.ProviderID)
	}
}

func TestRunRejectsMisuse(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(orchestrator.Options{})

	if _, err := o.Run(context.Background(), core.ExtractionRequest{}, []core.Extractor{&fake{id: "x"}}); err == nil {
		t.Error("want error for empty image")
	}

	req := testRequest(t)
	if _, err := o.Run(context.Background(), req, nil); err == nil {
		t.Error("want error for empty extractor set")
	}
}

func TestRunPalettesRespectMaxColors(t *testing.T) {
	t.Parallel()

	res := core.ExtractionResult{
		ProviderID: "many",
		Succeeded:  true,
		Colors: []core.RawColorToken{
			{Hex: "#FF0000", Confidence: 0.9},
			{Hex: "#00FF00", Confidence: 0.8},
			{Hex: "#0000FF", Confidence: 0.7},
			{Hex: "#FFFF00", Confidence: 0.6},
		},
		OverallConfidence: 0.75,
	}
	req := testRequest(t)
	req.MaxColors = 2

	events, err := newOrchestrator(orchestrator.Options{}).Run(context.Background(), req, []core.Extractor{&fake{id: "many", res: res}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := terminal(t, drain(t, events))
	if got := len(last.Palette.Tokens); got > 2 {
		t.Fatalf("palette size: want <=2 tokens, got %d", got)
	}
}
