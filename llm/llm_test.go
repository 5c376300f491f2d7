package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProviderSelection(t *testing.T) {
	for _, name := range []string{"gemini", "anthropic", "coze"} {
		if _, err := NewProvider(Config{Provider: name}); err != nil {
			t.Errorf("NewProvider(%s): %v", name, err)
		}
	}
	if _, err := NewProvider(Config{}); err == nil {
		t.Error("empty provider should fail")
	}
	if _, err := NewProvider(Config{Provider: "openai"}); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestWithCredential(t *testing.T) {
	cfg := Config{Provider: "coze", APIKey: "base", BotID: "bot0"}
	got := cfg.WithCredential(Credential{APIKey: "k1", BotID: "b1"})
	if got.APIKey != "k1" || got.BotID != "b1" {
		t.Errorf("credential not applied: %+v", got)
	}
	// Empty credential fields keep the base values.
	got = cfg.WithCredential(Credential{})
	if got.APIKey != "base" || got.BotID != "bot0" {
		t.Errorf("base values lost: %+v", got)
	}
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"陶罐"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGemini(Config{Provider: "gemini", Model: "test-model", APIURL: srv.URL, APIKey: "key"})
	got, err := p.Complete(context.Background(), Request{Prompt: "描述"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "陶罐" {
		t.Errorf("got %q", got)
	}
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing headers")
		}
		w.Write([]byte(`{"content":[{"text":"玉璧"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropic(Config{Provider: "anthropic", Model: "m", APIURL: srv.URL, APIKey: "key"})
	got, err := p.Complete(context.Background(), Request{Prompt: "描述"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "玉璧" {
		t.Errorf("got %q", got)
	}
}

func TestCozeCompleteStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: conversation.message.delta\n"))
		w.Write([]byte("data: {\"content\":\"{\\\"color\\\":\"}\n\n"))
		w.Write([]byte("event: conversation.message.delta\n"))
		w.Write([]byte("data: {\"content\":\"\\\"红\\\"}\"}\n\n"))
		w.Write([]byte("event: done\n"))
		w.Write([]byte("data: {}\n\n"))
	}))
	defer srv.Close()

	p := NewCoze(Config{Provider: "coze", APIURL: srv.URL, APIKey: "key", BotID: "7"})
	got, err := p.Complete(context.Background(), Request{Prompt: "描述"})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"color":"红"}` {
		t.Errorf("got %q", got)
	}
}

func TestCozeCompletedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("event: conversation.message.completed\n"))
		w.Write([]byte("data: {\"content\":\"全文\"}\n\n"))
	}))
	defer srv.Close()

	p := NewCoze(Config{Provider: "coze", APIURL: srv.URL, APIKey: "key"})
	got, err := p.Complete(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "全文" {
		t.Errorf("got %q", got)
	}
}

func TestRetryOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"content":[{"text":"ok"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropic(Config{Provider: "anthropic", APIURL: srv.URL, RequestsPerMinute: 6000})
	got, err := p.Complete(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}
