package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables holding provider credentials. Each accepts a
// *_FILE variant pointing at a file whose trimmed contents are the value,
// which is how secret mounts usually deliver them.
const (
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvVisionToken  = "VISION_HTTP_TOKEN"
	envFileSuffix   = "_FILE"
)

// Keys holds provider credentials sourced from the environment.
type Keys struct {
	Gemini      string
	OpenAI      string
	Anthropic   string
	VisionToken string
}

// LoadKeys reads every provider credential. Missing keys are empty, not
// errors; an unreadable *_FILE is an error because the operator clearly
// intended to supply the secret.
func LoadKeys() (Keys, error) {
	var k Keys
	var err error
	if k.Gemini, err = valueOrFileEnv(EnvGeminiKey); err != nil {
		return Keys{}, err
	}
	if k.OpenAI, err = valueOrFileEnv(EnvOpenAIKey); err != nil {
		return Keys{}, err
	}
	if k.Anthropic, err = valueOrFileEnv(EnvAnthropicKey); err != nil {
		return Keys{}, err
	}
	if k.VisionToken, err = valueOrFileEnv(EnvVisionToken); err != nil {
		return Keys{}, err
	}
	return k, nil
}

// valueOrFileEnv resolves NAME, falling back to the file named by
// NAME_FILE. The direct value wins when both are set.
func valueOrFileEnv(name string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v, nil
	}
	path := strings.TrimSpace(os.Getenv(name + envFileSuffix))
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s%s: %w", name, envFileSuffix, err)
	}
	return strings.TrimSpace(string(raw)), nil
}
