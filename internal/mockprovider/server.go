// Package mockprovider is a recording in-process mock of the palette
// vision service protocol. Tests and local development point the
// httpvision adapter at it; failures are scripted per request so retry
// and fallback paths can be exercised deterministically.
package mockprovider

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/schema"
)

// Call records one observed request.
type Call struct {
	Method string
	Path   string
}

// Server holds canned palettes and scripted failures. All methods are
// safe for concurrent use with the handler.
type Server struct {
	mu                    sync.Mutex
	calls                 []Call
	palettes              map[string]schema.Payload
	defaultPalette        schema.Payload
	statusQueue           []int
	latency               time.Duration
	expectedAuthorization string
}

// New returns a mock serving DefaultPalette for every image.
func New() *Server {
	return &Server{
		palettes:       make(map[string]schema.Payload),
		defaultPalette: DefaultPalette(),
	}
}

// DefaultPalette is the canned payload served when no per-image palette
// was registered.
func DefaultPalette() schema.Payload {
	prom := func(v float64) *float64 { return &v }
	return schema.Payload{
		Colors: []schema.PayloadColor{
			{Hex: "#1A237E", Confidence: 0.93, Intent: "primary", ProminencePct: prom(34), UsageHints: []string{"dark", "vivid"}},
			{Hex: "#FFFFFF", Confidence: 0.90, Intent: "background", ProminencePct: prom(41)},
			{Hex: "#FF6F00", Confidence: 0.84, Intent: "accent", ProminencePct: prom(12), UsageHints: []string{"vivid"}},
			{Hex: "#212121", Confidence: 0.80, Intent: "text", ProminencePct: prom(9), UsageHints: []string{"dark"}},
		},
		OverallConfidence: 0.88,
	}
}

// RequireBearerToken makes the mock reject requests lacking this token.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedAuthorization = "Bearer " + token
}

// SetPalette serves payload for the image with this hex SHA-256 hash.
func (s *Server) SetPalette(imageHash string, payload schema.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.palettes[imageHash] = payload
}

// SetDefaultPalette replaces the fallback payload.
func (s *Server) SetDefaultPalette(payload schema.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultPalette = payload
}

// QueueStatus scripts the next palette responses to fail with the given
// HTTP statuses, consumed one per request. Queueing 429, 429, 400
// reproduces a throttled provider that finally rejects the payload.
func (s *Server) QueueStatus(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusQueue = append(s.statusQueue, codes...)
}

// SetLatency delays every palette response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls returns a snapshot of observed requests in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// PaletteCalls counts how many extraction requests reached the mock.
func (s *Server) PaletteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Path == "/v1/palette" {
			n++
		}
	}
	return n
}

// Handler returns the HTTP surface of the mock.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/palette", s.handlePalette)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) authorize(r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()
	return expected == "" || r.Header.Get("Authorization") == expected
}

// popStatus takes the next scripted failure, or 0 when none is queued.
func (s *Server) popStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statusQueue) == 0 {
		return 0
	}
	code := s.statusQueue[0]
	s.statusQueue = s.statusQueue[1:]
	return code
}

type paletteRequest struct {
	ImageB64  string `json:"image_b64"`
	MIMEType  string `json:"mime_type"`
	MaxColors int    `json:"max_colors"`
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or wrong bearer token")
		return
	}

	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	if code := s.popStatus(); code != 0 {
		writeError(w, code, nameForStatus(code), "scripted failure")
		return
	}

	var req paletteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "undecodable request body")
		return
	}
	imgBytes, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil || len(imgBytes) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "image_b64 is not valid base64")
		return
	}
	sum := sha256.Sum256(imgBytes)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	payload, ok := s.palettes[hash]
	if !ok {
		payload = s.defaultPalette
	}
	s.mu.Unlock()

	if req.MaxColors > 0 && len(payload.Colors) > req.MaxColors {
		payload.Colors = payload.Colors[:req.MaxColors]
	}
	writeJSON(w, http.StatusOK, payload)
}

func nameForStatus(code int) string {
	switch code {
	case http.StatusTooManyRequests:
		return "throttled"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return "error"
	}
}

type errorEnvelope struct {
	ErrorName string `json:"error_name"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, name, msg string) {
	writeJSON(w, status, errorEnvelope{
		ErrorName: name,
		ErrorCode: strconv.Itoa(status),
		Message:   msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
