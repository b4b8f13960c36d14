// Package httpvision adapts a self-hosted palette vision service speaking
// the v1/palette JSON protocol. It backs on-prem deployments and doubles
// as the integration-test provider against the recording mock.
package httpvision

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/schema"
)

// PaletteRequest is the v1/palette request body.
type PaletteRequest struct {
	ImageB64  string `json:"image_b64"`
	MIMEType  string `json:"mime_type"`
	MaxColors int    `json:"max_colors"`
}

// errBadPayload marks 2xx bodies that were not valid palette JSON.
var errBadPayload = errors.New("decode palette payload")

// Client is a thin HTTP client for the palette vision service protocol.
type Client struct {
	baseURL *url.URL
	token   string
	httpc   *http.Client
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is required. A bare host gets an https scheme.
	BaseURL string
	// Token is sent as a bearer credential when non-empty.
	Token string
	// CAPath optionally points at a PEM bundle for private deployments.
	CAPath string
	// Timeout caps each request end to end; 0 means 60s.
	Timeout time.Duration
}

// NewClient validates opts and builds the client.
func NewClient(opts ClientOptions) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	httpc, err := newHTTPClient(opts.CAPath, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		httpc:   httpc,
	}, nil
}

// parseBaseURL normalizes the configured endpoint: scheme defaults to
// https, query and fragment are dropped, and the path keeps a trailing
// slash so relative resolution appends instead of replacing the last
// segment.
func parseBaseURL(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("vision service base url is required")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse vision base url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("vision base url %q has no host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func newHTTPClient(caPath string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("default transport is not *http.Transport")
	}
	transport := base.Clone()
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if strings.TrimSpace(caPath) != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %q contains no certificates", caPath)
		}
		tlsCfg.RootCAs = pool
	}
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func (c *Client) resolve(rel string) string {
	ref := &url.URL{Path: rel}
	return c.baseURL.ResolveReference(ref).String()
}

// ExtractPalette posts one image and decodes the palette payload. Non-2xx
// statuses come back as *HTTPError with the body reduced to a sanitized
// snippet.
func (c *Client) ExtractPalette(ctx context.Context, req PaletteRequest) (schema.Payload, error) {
	const op = "palette"
	body, err := json.Marshal(req)
	if err != nil {
		return schema.Payload{}, fmt.Errorf("encode palette request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve("v1/palette"), bytes.NewReader(body))
	if err != nil {
		return schema.Payload{}, fmt.Errorf("build palette request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return schema.Payload{}, fmt.Errorf("post palette: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.Payload{}, fmt.Errorf("read palette response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return schema.Payload{}, newHTTPError(op, resp, b)
	}
	var p schema.Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return schema.Payload{}, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return p, nil
}
