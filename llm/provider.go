// Package llm provides text-completion providers for the extraction
// pipeline. All vendors are driven through the same Provider interface;
// responses come back as plain text for downstream JSON recovery.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for LLM text completion.
type Provider interface {
	// Complete sends a single prompt and returns the raw text response.
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single completion request.
type Request struct {
	Prompt string

	// Temperature overrides the configured default when non-nil.
	// Deterministic passes (code-range expansion) set it near zero.
	Temperature *float64

	MaxTokens int
}

// Config configures an LLM provider endpoint.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // gemini, anthropic, coze
	Model    string `json:"model" yaml:"model"`
	APIURL   string `json:"api_url" yaml:"api_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// BotID selects the agent for providers that route through a bot
	// (coze). Ignored elsewhere.
	BotID string `json:"bot_id" yaml:"bot_id"`

	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`

	// RequestsPerMinute caps the request rate per provider instance.
	// Zero means 60.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// Credential is one entry of the scheduler's credential pool. A task's
// provider is built from the base Config with its assigned credential
// swapped in.
type Credential struct {
	APIKey string `json:"api_key" yaml:"api_key"`
	BotID  string `json:"bot_id" yaml:"bot_id"`
}

// WithCredential returns a copy of the config using the given credential.
func (c Config) WithCredential(cred Credential) Config {
	out := c
	if cred.APIKey != "" {
		out.APIKey = cred.APIKey
	}
	if cred.BotID != "" {
		out.BotID = cred.BotID
	}
	return out
}

// Temp is a convenience for Request.Temperature literals.
func Temp(t float64) *float64 { return &t }

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "coze":
		return NewCoze(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
