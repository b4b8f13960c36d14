package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/palettex/internal/app"
	"github.com/shpitdev/palettex/internal/version"
	"github.com/shpitdev/palettex/pkg/extraction/config"
	"github.com/shpitdev/palettex/pkg/extraction/redact"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		fmt.Println(version.Current)
		return
	case "extract":
		os.Exit(runExtract(ctx, os.Args[2:]))
	case "batch":
		os.Exit(runBatch(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runExtract(ctx context.Context, args []string) int {
	env, err := loadEnvDefaults()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	imagePath := fs.String("image", "", "Image file to extract a palette from")
	outputPath := fs.String("output", "", "Palette JSON destination; empty or - writes stdout")
	configPath := fs.String("config", env.configPath, "YAML config file path (env: PALETTEX_CONFIG)")
	maxColors := fs.Int("max-colors", env.maxColors, "Palette size cap, 0 uses the configured default (env: PALETTEX_MAX_COLORS)")
	strategy := fs.String("strategy", env.strategy, "Provider ordering: cost, quality, speed or balanced (env: PALETTEX_STRATEGY)")
	mode := fs.String("mode", env.mode, "Extraction mode: routed or fanout (env: PALETTEX_MODE)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *imagePath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "extract requires --image")
		return 2
	}

	cfg, err := loadConfig(*configPath, *mode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	if err := app.RunExtract(ctx, cfg, app.ExtractParams{
		ImagePath:  *imagePath,
		OutputPath: *outputPath,
		MaxColors:  *maxColors,
		Strategy:   *strategy,
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "extract failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func runBatch(ctx context.Context, args []string) int {
	env, err := loadEnvDefaults()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	inputDir := fs.String("input-dir", "", "Directory scanned for image files")
	manifest := fs.String("manifest", "", "CSV manifest with a 'path' column (alternative to --input-dir)")
	outputPath := fs.String("output", "", "JSONL results file; also the resume source with --resume")
	summaryPath := fs.String("summary", "", "Optional CSV summary destination")
	configPath := fs.String("config", env.configPath, "YAML config file path (env: PALETTEX_CONFIG)")
	maxColors := fs.Int("max-colors", env.maxColors, "Palette size cap, 0 uses the configured default (env: PALETTEX_MAX_COLORS)")
	strategy := fs.String("strategy", env.strategy, "Provider ordering: cost, quality, speed or balanced (env: PALETTEX_STRATEGY)")
	mode := fs.String("mode", env.mode, "Extraction mode: routed or fanout (env: PALETTEX_MODE)")
	maxConcurrent := fs.Int("max-concurrent", env.maxConcurrent, "Concurrent extractions, 0 uses the configured default (env: PALETTEX_MAX_CONCURRENT)")
	resume := fs.Bool("resume", false, "Reuse completed rows from a prior output file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "batch requires --output")
		return 2
	}
	if (*inputDir == "") == (*manifest == "") {
		_, _ = fmt.Fprintln(os.Stderr, "batch requires exactly one of --input-dir or --manifest")
		return 2
	}

	cfg, err := loadConfig(*configPath, *mode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	if err := app.RunBatch(ctx, cfg, app.BatchParams{
		InputDir:      *inputDir,
		ManifestPath:  *manifest,
		OutputPath:    *outputPath,
		SummaryPath:   *summaryPath,
		MaxColors:     *maxColors,
		Strategy:      *strategy,
		MaxConcurrent: *maxConcurrent,
		Resume:        *resume,
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "batch failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

// loadConfig reads the YAML config and applies the command-line mode
// override on top.
func loadConfig(path, mode string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if strings.TrimSpace(mode) != "" {
		cfg.Extract.Mode = strings.TrimSpace(mode)
		cfg = cfg.WithDefaults()
	}
	return cfg, nil
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `palettex: design-token color palette extraction (AI providers + local heuristic)

Usage:
  palettex <command> [flags]

Commands:
  extract  Extract one image's palette to JSON
  batch    Extract a directory or manifest of images to JSONL
  version  Print the version

Examples:
  palettex extract --image logo.png
  palettex batch --input-dir ./shots --output results.jsonl --summary results.csv
  palettex batch --manifest images.csv --output results.jsonl --resume

Environment:
  PALETTEX_CONFIG         YAML config file path
  PALETTEX_MAX_COLORS     Palette size cap
  PALETTEX_STRATEGY       Provider ordering (cost|quality|speed|balanced)
  PALETTEX_MODE           Extraction mode (routed|fanout)
  PALETTEX_MAX_CONCURRENT Concurrent batch extractions

Credentials (never placed in config files; each accepts a *_FILE variant):
  GEMINI_API_KEY      Activates the Gemini provider
  OPENAI_API_KEY      Activates the OpenAI provider
  ANTHROPIC_API_KEY   Activates the Anthropic provider
  VISION_HTTP_TOKEN   Bearer token for a self-hosted vision endpoint

`)
}

type envDefaults struct {
	configPath    string
	maxColors     int
	strategy      string
	mode          string
	maxConcurrent int
}

func loadEnvDefaults() (envDefaults, error) {
	maxColors, err := envInt("PALETTEX_MAX_COLORS", 0)
	if err != nil {
		return envDefaults{}, err
	}
	maxConcurrent, err := envInt("PALETTEX_MAX_CONCURRENT", 0)
	if err != nil {
		return envDefaults{}, err
	}
	return envDefaults{
		configPath:    strings.TrimSpace(os.Getenv("PALETTEX_CONFIG")),
		maxColors:     maxColors,
		strategy:      strings.TrimSpace(os.Getenv("PALETTEX_STRATEGY")),
		mode:          strings.TrimSpace(os.Getenv("PALETTEX_MODE")),
		maxConcurrent: maxConcurrent,
	}, nil
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
