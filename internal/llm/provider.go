// Package llm implements the language model providers used for intent
// classification, trend summarization, image analysis and commentary.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupported is returned when a provider cannot serve a request feature
// (for example search grounding on a provider without a search tool).
var ErrUnsupported = errors.New("not supported by provider")

// Request is a single-turn generation request.
type Request struct {
	// System is the system instruction.
	System string

	// Prompt is the user turn.
	Prompt string

	// Images are attached to the user turn.
	Images []Image

	// JSON asks the provider to answer with a JSON object.
	JSON bool

	// Search enables web search grounding where the provider supports it.
	Search bool

	// MaxTokens overrides the provider default when > 0.
	MaxTokens int
}

// Image is inline image data.
type Image struct {
	MIMEType string
	Data     []byte
}

// Response is the model answer.
type Response struct {
	Text      string
	Citations []Citation
	Usage     Usage
}

// Citation is a web source the model grounded its answer on.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider is a language model backend.
type Provider interface {
	// Generate runs one request and returns the complete answer.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name for logging and display.
	Name() string

	// Model returns the model identifier being used.
	Model() string
}

// Config selects and configures a provider.
type Config struct {
	// Provider is one of gemini, anthropic, openai.
	Provider string

	// Model is the model identifier (e.g., "gemini-2.5-flash")
	Model string

	// APIKey overrides the provider's environment variable.
	APIKey string

	// BaseURL overrides the provider endpoint (openai compatible gateways, tests).
	BaseURL string

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int

	// Temperature controls randomness. Routing and analysis run at 0.
	Temperature float64
}

// DefaultConfig returns the gemini defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
		MaxTokens: 2048,
	}
}

var apiKeyEnv = map[string][]string{
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
}

// New creates the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = DefaultConfig().Provider
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.APIKey == "" {
		cfg.APIKey = lookupAPIKey(name)
	}

	switch name {
	case "gemini", "google":
		return NewGeminiProvider(ctx, cfg)
	case "anthropic", "claude":
		return NewAnthropicProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown model provider %q (must be gemini, anthropic or openai)", cfg.Provider)
	}
}

func lookupAPIKey(provider string) string {
	for _, env := range apiKeyEnv[provider] {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}
