package segment

import "strings"

// Chunker splits section text into overlapping fragments sized for a
// single LLM request.
type Chunker struct {
	size    int // target fragment size in runes
	overlap int // trailing runes carried into the next fragment after a hard cut
}

// NewChunker returns a Chunker with the given size and overlap.
// Zero-value fields are replaced with sensible defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 2500
	}
	if overlap <= 0 {
		overlap = 250
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split breaks text into fragments of at most the configured size.
// Cuts land on the last newline within the window when one exists, then
// the last sentence terminator (。), and only then mid-text. After a
// mid-text cut the next fragment repeats the trailing overlap so that a
// description straddling the cut survives in at least one fragment.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}

		window := runes[start:end]
		cut, hard := boundary(window)
		frag := strings.TrimSpace(string(window[:cut]))
		if frag != "" {
			out = append(out, frag)
		}

		next := start + cut
		if hard && next > start+c.overlap {
			next -= c.overlap
		}
		if next <= start { // never stall
			next = start + cut
		}
		start = next
	}
	return out
}

// boundary picks the cut point within window, preferring the latest
// newline in the back half, then the latest 。, then the full window.
// The second return reports a hard (mid-text) cut.
func boundary(window []rune) (int, bool) {
	half := len(window) / 2
	for i := len(window) - 1; i >= half; i-- {
		if window[i] == '\n' {
			return i + 1, false
		}
	}
	for i := len(window) - 1; i >= half; i-- {
		if window[i] == '。' {
			return i + 1, false
		}
	}
	return len(window), true
}
