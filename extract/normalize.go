package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize recovers a JSON value from a raw LLM response. Strategies
// run in order: fenced code blocks, the whole text, the whole text
// after truncation repair, and finally a balanced scan for the
// outermost object or array. The zero tolerance path is the caller's:
// an error here means the response goes to the recovery log.
func Normalize(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	// 1. Fenced code blocks. Split on the fence instead of a regex so
	// backticks inside string values cannot confuse the match.
	if strings.Contains(text, "```") {
		blocks := strings.Split(text, "```")
		for i := 1; i < len(blocks); i += 2 {
			block := strings.TrimSpace(blocks[i])
			block = strings.TrimSpace(strings.TrimPrefix(block, "json"))
			if v, err := unmarshalAny(block); err == nil {
				return v, nil
			}
			if v, err := unmarshalAny(Repair(block)); err == nil {
				return v, nil
			}
		}
	}

	// 2. The whole text, as is and then repaired.
	if v, err := unmarshalAny(text); err == nil {
		return v, nil
	}
	if repaired := Repair(text); repaired != text {
		if v, err := unmarshalAny(repaired); err == nil {
			return v, nil
		}
	}

	// 3. Balanced scan from the first opening bracket.
	if v, ok := scanBalanced(text); ok {
		return v, nil
	}

	return nil, fmt.Errorf("no strategy produced valid JSON")
}

func unmarshalAny(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	}
	return nil, fmt.Errorf("not an object or array")
}

// Repair closes a truncated JSON string: an odd quote count gets a
// closing quote, then unclosed brackets are closed innermost-first.
func Repair(s string) string {
	s = strings.TrimSpace(s)

	if strings.Count(s, `"`)%2 != 0 {
		s += `"`
	}

	var stack []byte
	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escape {
			escape = false
			continue
		}
		switch c {
		case '\\':
			escape = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	for len(stack) > 0 {
		s += string(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
	return s
}

// scanBalanced walks the text from the first [ or { with a string and
// escape aware depth counter. A balanced span is parsed directly; a
// span still open at end of text is repaired first.
func scanBalanced(text string) (any, bool) {
	firstBracket := strings.IndexByte(text, '[')
	firstBrace := strings.IndexByte(text, '{')
	if firstBracket < 0 && firstBrace < 0 {
		return nil, false
	}

	// Try the earlier opener first; arrays and objects are both valid
	// extraction shapes.
	openers := []byte{'[', '{'}
	if firstBracket < 0 || (firstBrace >= 0 && firstBrace < firstBracket) {
		openers = []byte{'{', '['}
	}

	for _, open := range openers {
		var close byte = ']'
		if open == '{' {
			close = '}'
		}
		start := strings.IndexByte(text, open)
		if start < 0 {
			continue
		}

		balance := 0
		inString := false
		escape := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if escape {
				escape = false
				continue
			}
			switch {
			case c == '\\':
				escape = true
			case c == '"':
				inString = !inString
			case !inString && c == open:
				balance++
			case !inString && c == close:
				balance--
				if balance == 0 {
					if v, err := unmarshalAny(text[start : i+1]); err == nil {
						return v, true
					}
				}
			}
		}

		if balance > 0 {
			if v, err := unmarshalAny(Repair(text[start:])); err == nil {
				return v, true
			}
		}
	}
	return nil, false
}
