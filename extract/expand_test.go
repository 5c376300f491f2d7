package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/hanlin-zhu/relicdig/llm"
)

// stubProvider returns canned responses keyed by substring of the prompt.
type stubProvider struct {
	response string
	err      error
	calls    int
}

func (s *stubProvider) Complete(_ context.Context, _ llm.Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestExpandTildeRule(t *testing.T) {
	records := []Record{{Code: "M7:63-1~3", Fields: map[string]any{"subtype": "珠"}}}
	stub := &stubProvider{}
	out := NewExpander(stub).Expand(context.Background(), records)

	want := []string{"M7:63-1", "M7:63-2", "M7:63-3"}
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	for i, w := range want {
		if out[i].Code != w {
			t.Errorf("record %d code = %q, want %q", i, out[i].Code, w)
		}
		if out[i].Fields["subtype"] != "珠" {
			t.Errorf("record %d lost fields", i)
		}
	}
	if stub.calls != 0 {
		t.Errorf("rule-covered code should not reach the LLM")
	}
}

func TestExpandTildeFullSuffix(t *testing.T) {
	out := NewExpander(nil).Expand(context.Background(), []Record{{Code: "M7:63-1~63-3"}})
	if len(out) != 3 || out[0].Code != "M7:63-1" || out[2].Code != "M7:63-3" {
		t.Fatalf("got %+v", out)
	}
}

func TestExpandRejectsBadRanges(t *testing.T) {
	for _, code := range []string{"M7:5~2", "M7:1~500", "M7:a~b"} {
		out := NewExpander(nil).Expand(context.Background(), []Record{{Code: code}})
		if len(out) != 1 || out[0].Code != code {
			t.Errorf("code %q should pass through, got %+v", code, out)
		}
	}
}

func TestExpandLLMFallback(t *testing.T) {
	stub := &stubProvider{response: `["M7:1", "M7:2", "M7:5"]`}
	out := NewExpander(stub).Expand(context.Background(), []Record{{Code: "M7:1、2、5"}})
	if len(out) != 3 {
		t.Fatalf("got %d records", len(out))
	}
	if out[2].Code != "M7:5" {
		t.Errorf("codes = %v %v %v", out[0].Code, out[1].Code, out[2].Code)
	}
	if stub.calls != 1 {
		t.Errorf("expected one LLM call, got %d", stub.calls)
	}
}

func TestExpandLLMFailureKeepsOriginal(t *testing.T) {
	stub := &stubProvider{err: fmt.Errorf("unavailable")}
	out := NewExpander(stub).Expand(context.Background(), []Record{{Code: "M7:1、2"}})
	if len(out) != 1 || out[0].Code != "M7:1、2" {
		t.Fatalf("original must survive LLM failure, got %+v", out)
	}
}

func TestExpandPlainCodeUntouched(t *testing.T) {
	stub := &stubProvider{}
	out := NewExpander(stub).Expand(context.Background(), []Record{{Code: "M7:63"}, {Code: ""}})
	if len(out) != 2 || out[0].Code != "M7:63" || out[1].Code != "" {
		t.Fatalf("got %+v", out)
	}
	if stub.calls != 0 {
		t.Error("plain codes should not reach the LLM")
	}
}
