package extract

import (
	"strings"

	"github.com/hanlin-zhu/relicdig/prompt"
)

// material markers used to drop cross-kind contamination. Despite the
// exclusion rules in the prompts, a pottery pass sometimes returns jade
// items found in the same burial, and vice versa.
var (
	jadeMarkers    = []string{"玉", "jade"}
	potteryMarkers = []string{"陶", "pottery", "ceramic"}
)

// materialKeys are the fields checked for contamination markers.
var materialKeys = []string{
	"subtype", "基本器型", "clay_type", "陶土种类", "jade_type", "玉料类型", "材质单元",
	"category_level1", "一级分类", "material_type",
}

// FilterByKind drops records whose material fields contradict the
// requested kind. Records with no material signal are kept.
func FilterByKind(records []Record, kind prompt.EntityKind) []Record {
	var wrong []string
	switch kind {
	case prompt.Pottery:
		wrong = jadeMarkers
	case prompt.Jade:
		wrong = potteryMarkers
	default:
		return records
	}

	out := records[:0:0]
	for _, rec := range records {
		if hasMarker(rec, wrong) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func hasMarker(rec Record, markers []string) bool {
	for _, key := range materialKeys {
		v, ok := rec.Fields[key]
		if !ok || v == nil {
			continue
		}
		s := strings.ToLower(toString(v))
		for _, m := range markers {
			if strings.Contains(s, m) {
				return true
			}
		}
	}
	return false
}
