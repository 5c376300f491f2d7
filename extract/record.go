// Package extract turns raw LLM responses into structured artifact
// records: JSON recovery, code-range expansion, cross-chunk merging,
// and field mapping against the template catalog.
package extract

import (
	"strings"

	"github.com/hanlin-zhu/relicdig/segment"
)

// Record is one extracted entity instance with its provenance.
type Record struct {
	TaskID string
	SiteID int64

	// Code is the artifact designation (e.g. "M12:1"). Empty for
	// records the LLM returned without one; those are never dropped.
	Code string

	// FoundInTomb is the normalized burial designation ("M12").
	FoundInTomb string

	// SourceBlocks are the tomb segment indexes this record came from.
	SourceBlocks []int

	// Confidence is the extraction confidence assigned at capture time.
	Confidence float64

	// ImageRefs are figure references mentioned in the source text
	// ("图一", "图版二:3").
	ImageRefs []string

	// Fields holds the catalog feature values. Before MapFields the keys
	// are whatever the LLM returned; after, they are storage keys.
	Fields map[string]any

	// Extra holds response keys with no catalog mapping. They survive
	// mapping untouched so nothing the LLM produced is lost.
	Extra map[string]any
}

// provenance keys lifted out of the raw response object.
const (
	keyCode       = "artifact_code"
	keyTomb       = "found_in_tomb"
	keyConfidence = "extraction_confidence"
	keyImageRefs  = "image_references"
)

// RecordsFromValue converts a normalized JSON value (object or array of
// objects) into records. Non-object entries are skipped.
func RecordsFromValue(v any) []Record {
	var objs []map[string]any
	switch t := v.(type) {
	case map[string]any:
		objs = []map[string]any{t}
	case []any:
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				objs = append(objs, obj)
			}
		}
	}

	records := make([]Record, 0, len(objs))
	for _, obj := range objs {
		records = append(records, recordFromMap(obj))
	}
	return records
}

func recordFromMap(obj map[string]any) Record {
	rec := Record{Fields: make(map[string]any)}
	for k, v := range obj {
		if v == nil {
			continue
		}
		switch k {
		case keyCode:
			rec.Code = strings.TrimSpace(toString(v))
		case keyTomb:
			rec.FoundInTomb = strings.TrimSpace(toString(v))
		case keyConfidence:
			if f, ok := toFloat(v); ok {
				rec.Confidence = f
			}
		case keyImageRefs:
			rec.ImageRefs = toStringList(v)
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}

// Clone returns a deep-enough copy: field maps and slices are copied,
// values are shared.
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	out.SourceBlocks = append([]int(nil), r.SourceBlocks...)
	out.ImageRefs = append([]string(nil), r.ImageRefs...)
	return out
}

// NormalizeTombNames canonicalizes FoundInTomb across records before
// merging: a tomb inferred from the artifact code ("M12:1" -> "M12")
// wins, otherwise ordinal names like "三号墓" are rewritten to "M3".
func NormalizeTombNames(records []Record) {
	for i := range records {
		rec := &records[i]
		if prefix, _, ok := strings.Cut(rec.Code, ":"); ok {
			p := strings.ToUpper(strings.TrimSpace(prefix))
			if strings.HasPrefix(p, "M") && len(p) > 1 {
				rec.FoundInTomb = p
				continue
			}
		}
		rec.FoundInTomb = segment.NormalizeTombName(rec.FoundInTomb)
	}
}

// --- value coercion helpers ---

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if s := strings.TrimSpace(toString(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}
