package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/palettex/internal/mockprovider"
)

func main() {
	addr := defaultString("MOCK_PROVIDER_ADDR", ":8091")
	token := defaultString("MOCK_PROVIDER_TOKEN", "")

	fs := flag.NewFlagSet("mock-provider", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&token, "token", token, "Require this bearer token on palette calls (also supports env: MOCK_PROVIDER_TOKEN)")
	latency := fs.Duration("latency", 0, "Artificial latency per palette call")
	_ = fs.Parse(os.Args[1:])

	srv := mockprovider.New()
	if token != "" {
		srv.RequireBearerToken(token)
	}
	if *latency > 0 {
		srv.SetLatency(*latency)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-provider listening on %s (auth=%t latency=%s)\n", addr, token != "", *latency)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
