package extract

import (
	"fmt"
	"sort"
	"strings"
)

// descriptive field name markers whose conflicting values are joined
// instead of reduced to one.
var descriptiveMarkers = []string{"description", "features", "characteristics", "特征", "描述", "说明"}

// Merge combines records sharing an artifact code into one record per
// code. Records without a code pass through unchanged; dropping them
// would silently lose artifacts the LLM failed to number. Input order
// of first appearance is preserved.
func Merge(records []Record) []Record {
	return mergeGrouped(records, func(group []Record) Record {
		return mergeGroup(group)
	})
}

// MergeWithConfidence combines records like Merge, but conflicting
// field values resolve to the variant from the highest-confidence
// record, and the merged confidence is the group average.
func MergeWithConfidence(records []Record) []Record {
	return mergeGrouped(records, func(group []Record) Record {
		return mergeGroupWithConfidence(group)
	})
}

func mergeGrouped(records []Record, mergeFn func([]Record) Record) []Record {
	var order []string
	groups := make(map[string][]Record)
	var out []Record

	for _, rec := range records {
		if rec.Code == "" {
			out = append(out, rec)
			continue
		}
		if _, seen := groups[rec.Code]; !seen {
			order = append(order, rec.Code)
		}
		groups[rec.Code] = append(groups[rec.Code], rec)
	}

	for _, code := range order {
		group := groups[code]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		out = append(out, mergeFn(group))
	}
	return out
}

func mergeGroup(group []Record) Record {
	merged := mergeProvenance(group)

	for _, key := range fieldKeys(group) {
		var values []any
		for _, rec := range group {
			if v, ok := rec.Fields[key]; ok && v != nil {
				values = append(values, v)
			}
		}
		switch len(values) {
		case 0:
		case 1:
			merged.Fields[key] = values[0]
		default:
			merged.Fields[key] = mergeFieldValues(key, values)
		}
	}
	return merged
}

func mergeGroupWithConfidence(group []Record) Record {
	merged := mergeProvenance(group)

	var sum float64
	for _, rec := range group {
		sum += rec.Confidence
	}
	merged.Confidence = sum / float64(len(group))

	for _, key := range fieldKeys(group) {
		var best any
		bestConf := -1.0
		for _, rec := range group {
			v, ok := rec.Fields[key]
			if !ok || v == nil {
				continue
			}
			conf := rec.Confidence
			if conf == 0 {
				conf = 0.5
			}
			if conf > bestConf {
				best, bestConf = v, conf
			}
		}
		if best != nil {
			merged.Fields[key] = best
		}
	}
	return merged
}

// mergeProvenance seeds the merged record from the group: code and tomb
// from the first record that has them, source blocks and image refs
// unioned, confidence from the first record.
func mergeProvenance(group []Record) Record {
	merged := Record{
		TaskID:     group[0].TaskID,
		SiteID:     group[0].SiteID,
		Code:       group[0].Code,
		Confidence: group[0].Confidence,
		Fields:     make(map[string]any),
	}

	seenBlock := make(map[int]bool)
	seenRef := make(map[string]bool)
	for _, rec := range group {
		if merged.FoundInTomb == "" {
			merged.FoundInTomb = rec.FoundInTomb
		}
		for _, b := range rec.SourceBlocks {
			if !seenBlock[b] {
				seenBlock[b] = true
				merged.SourceBlocks = append(merged.SourceBlocks, b)
			}
		}
		for _, ref := range rec.ImageRefs {
			if !seenRef[ref] {
				seenRef[ref] = true
				merged.ImageRefs = append(merged.ImageRefs, ref)
			}
		}
		for k, v := range rec.Extra {
			if merged.Extra == nil {
				merged.Extra = make(map[string]any)
			}
			if _, ok := merged.Extra[k]; !ok {
				merged.Extra[k] = v
			}
		}
	}
	return merged
}

// fieldKeys returns the union of field keys across a group, sorted for
// deterministic merge output.
func fieldKeys(group []Record) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, rec := range group {
		for k := range rec.Fields {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// mergeFieldValues resolves conflicting values for one field: numbers
// take the max, descriptive strings join, other strings keep the
// longest, mixed types stringify and join.
func mergeFieldValues(key string, values []any) any {
	var unique []any
	for _, v := range values {
		dup := false
		for _, u := range unique {
			if stringify(u) == stringify(v) {
				dup = true
				break
			}
		}
		if !dup {
			unique = append(unique, v)
		}
	}
	if len(unique) == 1 {
		return unique[0]
	}

	allNumbers := true
	allStrings := true
	for _, v := range unique {
		if _, ok := toFloat(v); !ok {
			allNumbers = false
		}
		if _, ok := v.(string); !ok {
			allStrings = false
		}
	}

	if allNumbers {
		max := unique[0]
		maxF, _ := toFloat(max)
		for _, v := range unique[1:] {
			if f, _ := toFloat(v); f > maxF {
				max, maxF = v, f
			}
		}
		return max
	}

	if allStrings {
		if isDescriptiveField(key) {
			parts := make([]string, len(unique))
			for i, v := range unique {
				parts[i] = v.(string)
			}
			return strings.Join(parts, " | ")
		}
		// Character count, not bytes; CJK text is 3 bytes per rune.
		longest := unique[0].(string)
		for _, v := range unique[1:] {
			if s := v.(string); len([]rune(s)) > len([]rune(longest)) {
				longest = s
			}
		}
		return longest
	}

	parts := make([]string, len(unique))
	for i, v := range unique {
		parts[i] = stringify(v)
	}
	return strings.Join(parts, " | ")
}

func isDescriptiveField(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range descriptiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// trim the ".0" that fmt would add for whole JSON numbers
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// FieldConflict describes one field with divergent values in a group.
type FieldConflict struct {
	Field  string
	Values []any
}

// Conflict is the conflict report for one artifact code.
type Conflict struct {
	Code      string
	Conflicts []FieldConflict
}

// DetectConflicts reports fields whose values diverge across records
// sharing a code. It never modifies the records; run it before Merge
// when the caller wants the pre-merge picture logged.
func DetectConflicts(records []Record) []Conflict {
	var order []string
	groups := make(map[string][]Record)
	for _, rec := range records {
		if rec.Code == "" {
			continue
		}
		if _, seen := groups[rec.Code]; !seen {
			order = append(order, rec.Code)
		}
		groups[rec.Code] = append(groups[rec.Code], rec)
	}

	var out []Conflict
	for _, code := range order {
		group := groups[code]
		if len(group) < 2 {
			continue
		}
		var fcs []FieldConflict
		for _, key := range fieldKeys(group) {
			var values []any
			seen := make(map[string]bool)
			distinct := 0
			for _, rec := range group {
				if v, ok := rec.Fields[key]; ok && v != nil {
					values = append(values, v)
					if s := stringify(v); !seen[s] {
						seen[s] = true
						distinct++
					}
				}
			}
			if len(values) > 1 && distinct > 1 {
				fcs = append(fcs, FieldConflict{Field: key, Values: values})
			}
		}
		if len(fcs) > 0 {
			out = append(out, Conflict{Code: code, Conflicts: fcs})
		}
	}
	return out
}

// MergeBySimilarity clusters records by field overlap and merges each
// cluster. Meant for extractions without usable codes; matching string
// values count fully, substring-contained strings count half.
func MergeBySimilarity(records []Record, threshold float64) []Record {
	n := len(records)
	if n == 0 {
		return nil
	}

	used := make([]bool, n)
	var out []Record
	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		cluster := []Record{records[i]}
		used[i] = true
		for j := i + 1; j < n; j++ {
			if !used[j] && similarity(records[i], records[j]) >= threshold {
				cluster = append(cluster, records[j])
				used[j] = true
			}
		}
		if len(cluster) == 1 {
			out = append(out, cluster[0])
		} else {
			out = append(out, mergeGroup(cluster))
		}
	}
	return out
}

// similarity scores field agreement between two records over their
// shared keys.
func similarity(a, b Record) float64 {
	matches := 0.0
	total := 0
	for key, va := range a.Fields {
		vb, ok := b.Fields[key]
		if !ok {
			continue
		}
		total++
		sa, sb := stringify(va), stringify(vb)
		switch {
		case sa == sb:
			matches++
		default:
			if as, aok := va.(string); aok {
				if bs, bok := vb.(string); bok {
					if strings.Contains(as, bs) || strings.Contains(bs, as) {
						matches += 0.5
					}
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return matches / float64(total)
}

// MergeStats summarizes how much a merge pass reduced the record set.
type MergeStats struct {
	OriginalCount int     `json:"original_count"`
	MergedCount   int     `json:"merged_count"`
	Reduction     int     `json:"reduction"`
	ReductionRate float64 `json:"reduction_rate"`
}

// Stats computes merge statistics from record counts before and after.
func Stats(original, merged []Record) MergeStats {
	s := MergeStats{
		OriginalCount: len(original),
		MergedCount:   len(merged),
		Reduction:     len(original) - len(merged),
	}
	if len(original) > 0 {
		s.ReductionRate = float64(s.Reduction) / float64(len(original))
	}
	return s
}
