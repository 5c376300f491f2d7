package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// geminiProvider talks to the Gemini generateContent endpoint.
type geminiProvider struct {
	base baseClient
}

// NewGemini creates a Gemini provider.
func NewGemini(cfg Config) Provider {
	return &geminiProvider{base: newBaseClient(cfg)}
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Text string `json:"text"`
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", p.base.cfg.APIURL, p.base.cfg.Model)

	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenConfig{
			Temperature:     p.base.temperature(req),
			MaxOutputTokens: p.base.maxTokens(req),
		},
	}

	respBody, err := p.base.doPost(ctx, url, body, map[string]string{
		"x-goog-api-key": p.base.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}

	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		return resp.Candidates[0].Content.Parts[0].Text, nil
	}
	if resp.Text != "" {
		return resp.Text, nil
	}
	return "", fmt.Errorf("gemini response has no candidates")
}
