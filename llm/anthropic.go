package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// anthropicProvider talks to the Anthropic messages endpoint.
type anthropicProvider struct {
	base baseClient
}

// NewAnthropic creates an Anthropic provider. Config.APIURL is the full
// messages endpoint URL.
func NewAnthropic(cfg Config) Provider {
	return &anthropicProvider{base: newBaseClient(cfg)}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := anthropicRequest{
		Model:       p.base.cfg.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: p.base.temperature(req),
		MaxTokens:   p.base.maxTokens(req),
	}

	respBody, err := p.base.doPost(ctx, p.base.cfg.APIURL, body, map[string]string{
		"x-api-key":         p.base.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decoding anthropic response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic response has no content")
	}
	return resp.Content[0].Text, nil
}
