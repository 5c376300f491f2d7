package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// cozeProvider talks to the Coze v2 chat endpoint over SSE. Responses
// stream as partial text events that are concatenated into the reply.
type cozeProvider struct {
	base baseClient
}

// NewCoze creates a Coze provider. Config.BotID selects the agent.
func NewCoze(cfg Config) Provider {
	return &cozeProvider{base: newBaseClient(cfg)}
}

type cozeRequest struct {
	BotID  string `json:"bot_id"`
	User   string `json:"user"`
	Query  string `json:"query"`
	Stream bool   `json:"stream"`
}

// cozeEvent covers the event payload shapes across API revisions: v2
// message envelopes, v3 deltas with content at the top level or inside
// a delta object, and completion events carrying the full text.
type cozeEvent struct {
	Event   string `json:"event"`
	Role    string `json:"role"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Message struct {
		Role    string `json:"role"`
		Type    string `json:"type"`
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

func (p *cozeProvider) Complete(ctx context.Context, req Request) (string, error) {
	url := p.base.cfg.APIURL + "/open_api/v2/chat"
	body := cozeRequest{
		BotID:  p.base.cfg.BotID,
		User:   "user_001",
		Query:  req.Prompt,
		Stream: true,
	}

	resp, err := p.base.do(ctx, url, body, map[string]string{
		"Authorization": "Bearer " + p.base.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply strings.Builder
	currentEvent := ""

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			currentEvent = strings.TrimSpace(after)
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		var ev cozeEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			continue
		}
		event := currentEvent
		if event == "" {
			event = ev.Event
		}

		switch event {
		case "message":
			if ev.Message.Role == "assistant" && ev.Message.Type == "answer" {
				reply.WriteString(ev.Message.Content)
			}
		case "conversation.message.delta":
			if ev.Content != "" {
				reply.WriteString(ev.Content)
			} else if ev.Delta.Content != "" {
				reply.WriteString(ev.Delta.Content)
			}
		case "conversation.message.completed":
			// Completion carries the full text; use it only when no
			// deltas arrived, otherwise it would double the reply.
			if ev.Content != "" && reply.Len() == 0 {
				reply.WriteString(ev.Content)
			}
		case "done":
			return finishCozeReply(reply.String())
		default:
			if ev.Role == "assistant" && (ev.Type == "answer" || ev.Content != "") {
				reply.WriteString(ev.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading coze stream: %w", err)
	}
	return finishCozeReply(reply.String())
}

func finishCozeReply(reply string) (string, error) {
	if reply == "" {
		return "", fmt.Errorf("coze stream returned no content")
	}
	return reply, nil
}
