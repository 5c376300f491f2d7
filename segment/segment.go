// Package segment splits excavation report bodies into per-tomb sections
// and size-bounded text chunks suitable for LLM extraction.
package segment

import (
	"fmt"
	"regexp"
	"strings"
)

// Tomb is one burial section of a report body, in document order.
type Tomb struct {
	// Name is the heading-derived tomb designation, e.g. "M3" or "一号墓".
	// Empty only when the body had no tomb headings at all.
	Name string

	// Text is the section body after the heading line, up to the next
	// heading.
	Text string
}

// Heading patterns, tried in order. Reports mix three conventions:
// numbered chapter headings ("第三节 一号墓"), excavation codes ("M3",
// optionally suffixed "墓葬"), and bare ordinal headings ("一号墓").
var (
	sectionTombRe = regexp.MustCompile(`(?m)^#{1,3} (?:第[一二三四五六七八九十]+节\s+)?(一|二|三|四|五|六|七|八|九|十|十一|十二)号墓`)
	codeTombRe    = regexp.MustCompile(`(?m)^#{1,3}\s*M(\d+)(?:\s*墓葬)?\s*$`)
	ordinalTombRe = regexp.MustCompile(`(?m)^#{1,3}\s*(一|二|三|四|五|六|七|八|九|十|十一|十二)号墓`)
)

// SplitByTomb splits a report body at tomb headings. Text before the
// first heading is discarded, and each segment runs from just after its
// heading line to the next heading. A body with no tomb headings at all
// comes back as a single nameless segment.
func SplitByTomb(text string) []Tomb {
	type match struct {
		start     int // heading start, used as the previous segment's end
		bodyStart int // first byte after the heading line
		name      string
	}

	var matches []match
	seen := make(map[int]bool)
	collect := func(re *regexp.Regexp, name func([]string) string) {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			if seen[idx[0]] {
				continue
			}
			seen[idx[0]] = true
			sub := []string{text[idx[0]:idx[1]], text[idx[2]:idx[3]]}
			bodyStart := len(text)
			if nl := strings.IndexByte(text[idx[1]:], '\n'); nl >= 0 {
				bodyStart = idx[1] + nl + 1
			}
			matches = append(matches, match{start: idx[0], bodyStart: bodyStart, name: name(sub)})
		}
	}

	collect(sectionTombRe, func(sub []string) string { return sub[1] + "号墓" })
	collect(codeTombRe, func(sub []string) string { return "M" + sub[1] })
	collect(ordinalTombRe, func(sub []string) string { return sub[1] + "号墓" })

	if len(matches) == 0 {
		body := strings.TrimSpace(text)
		if body == "" {
			return nil
		}
		return []Tomb{{Text: body}}
	}

	// Restore document order; the three passes each scanned independently.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].start < matches[j-1].start; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	var tombs []Tomb
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1].start
		}
		if m.bodyStart > end {
			continue
		}
		body := strings.TrimSpace(text[m.bodyStart:end])
		if body == "" {
			continue
		}
		tombs = append(tombs, Tomb{Name: m.name, Text: body})
	}
	return tombs
}

var chineseDigits = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// ChineseNumeral converts a small Chinese numeral ("一" through "九十九")
// to its integer value. Returns 0 for anything it cannot read.
func ChineseNumeral(s string) int {
	runes := []rune(s)
	switch {
	case len(runes) == 0:
		return 0
	case len(runes) == 1:
		if runes[0] == '十' {
			return 10
		}
		return chineseDigits[runes[0]]
	case runes[0] == '十':
		return 10 + chineseDigits[runes[1]]
	case len(runes) == 2 && runes[1] == '十':
		return chineseDigits[runes[0]] * 10
	case len(runes) == 3 && runes[1] == '十':
		return chineseDigits[runes[0]]*10 + chineseDigits[runes[2]]
	default:
		return 0
	}
}

var (
	mCodeRe       = regexp.MustCompile(`^[Mm](\d+)`)
	ordinalNameRe = regexp.MustCompile(`^([一二三四五六七八九十]+)号墓`)
	digitNameRe   = regexp.MustCompile(`^(\d+)号墓`)
)

// NormalizeTombName canonicalizes a tomb designation to "M<number>" so
// that "三号墓", "3号墓" and "M3" all merge to the same key. Names that
// carry no recognizable number are returned trimmed but unchanged.
func NormalizeTombName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if m := mCodeRe.FindStringSubmatch(name); m != nil {
		return "M" + m[1]
	}
	if m := digitNameRe.FindStringSubmatch(name); m != nil {
		return "M" + m[1]
	}
	if m := ordinalNameRe.FindStringSubmatch(name); m != nil {
		if n := ChineseNumeral(m[1]); n > 0 {
			return fmt.Sprintf("M%d", n)
		}
	}
	return name
}
