package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/hanlin-zhu/relicdig/llm"
	"github.com/hanlin-zhu/relicdig/prompt"
)

var (
	trailingNumRe = regexp.MustCompile(`^(.*?)(\d+)$`)
	endNumRe      = regexp.MustCompile(`(\d+)$`)
)

// separators that mark a compound code the deterministic rule cannot
// handle; these go to the LLM fallback.
var compoundSeparators = []string{"、", ",", "，", "和", "至", "&"}

// maxRangeSpan caps rule-based expansion; a wider span is treated as a
// misread rather than a real range.
const maxRangeSpan = 100

// Expander turns compound artifact codes ("M7:63-1~3", "M7:1、2、5")
// into one record per individual code. The deterministic tilde rule
// runs first; anything it cannot handle goes to the LLM at near-zero
// temperature. Records that defeat both layers pass through unchanged.
type Expander struct {
	provider llm.Provider // nil disables the LLM fallback
}

// NewExpander returns an Expander using provider for the fallback
// layer. A nil provider keeps expansion purely rule-based.
func NewExpander(provider llm.Provider) *Expander {
	return &Expander{provider: provider}
}

// Expand processes records in order, replacing each compound-coded
// record with its expansion. Field values are copied onto every
// expanded record.
func (e *Expander) Expand(ctx context.Context, records []Record) []Record {
	var out []Record
	for _, rec := range records {
		code := strings.TrimSpace(rec.Code)

		if codes := expandTilde(code); len(codes) > 0 {
			for _, c := range codes {
				nr := rec.Clone()
				nr.Code = c
				out = append(out, nr)
			}
			continue
		}

		if e.provider != nil && isCompound(code) {
			codes, err := e.expandWithLLM(ctx, code)
			if err != nil {
				slog.Warn("extract: LLM code expansion failed", "code", code, "error", err)
			}
			if len(codes) > 0 {
				for _, c := range codes {
					nr := rec.Clone()
					nr.Code = c
					out = append(out, nr)
				}
				continue
			}
		}

		out = append(out, rec)
	}
	return out
}

// expandTilde handles "prefix<start>~<end>" where start < end and the
// span stays under maxRangeSpan. Returns nil when the rule does not
// apply.
func expandTilde(code string) []string {
	start, end, ok := strings.Cut(code, "~")
	if !ok || strings.Contains(end, "~") {
		return nil
	}
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	sm := trailingNumRe.FindStringSubmatch(start)
	if sm == nil {
		return nil
	}
	prefix := sm[1]
	startNum, err := strconv.Atoi(sm[2])
	if err != nil {
		return nil
	}

	em := endNumRe.FindStringSubmatch(end)
	if em == nil {
		return nil
	}
	endNum, err := strconv.Atoi(em[1])
	if err != nil {
		return nil
	}

	if startNum >= endNum || endNum-startNum >= maxRangeSpan {
		return nil
	}

	codes := make([]string, 0, endNum-startNum+1)
	for i := startNum; i <= endNum; i++ {
		codes = append(codes, fmt.Sprintf("%s%d", prefix, i))
	}
	return codes
}

// isCompound reports whether code looks like a list or unhandled range.
func isCompound(code string) bool {
	if strings.Contains(code, "~") {
		return true
	}
	for _, sep := range compoundSeparators {
		if strings.Contains(code, sep) {
			return true
		}
	}
	return false
}

func (e *Expander) expandWithLLM(ctx context.Context, code string) ([]string, error) {
	resp, err := e.provider.Complete(ctx, llm.Request{
		Prompt:      prompt.ExpandCodesPrompt(code),
		Temperature: llm.Temp(0.1),
	})
	if err != nil {
		return nil, err
	}

	v, err := Normalize(resp)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expansion response is not a list")
	}

	var codes []string
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			codes = append(codes, strings.TrimSpace(s))
		}
	}
	return codes, nil
}
