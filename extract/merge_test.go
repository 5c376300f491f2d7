package extract

import (
	"testing"
)

func rec(code string, conf float64, fields map[string]any) Record {
	return Record{Code: code, Confidence: conf, Fields: fields}
}

func TestMergeDisjointFieldsUnion(t *testing.T) {
	records := []Record{
		rec("M12:1", 0.9, map[string]any{"subtype": "罐", "color": "红"}),
		rec("M12:1", 0.85, map[string]any{"height": 15.0, "diameter": 12.0, "clay_type": "夹砂陶"}),
		rec("M12:2", 0.95, map[string]any{"subtype": "钵", "color": "灰"}),
	}

	merged := Merge(records)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged records, got %d", len(merged))
	}

	m1 := merged[0]
	if m1.Code != "M12:1" {
		t.Fatalf("order not preserved: %s", m1.Code)
	}
	for key, want := range map[string]any{"subtype": "罐", "color": "红", "height": 15.0, "clay_type": "夹砂陶"} {
		if got := m1.Fields[key]; got != want {
			t.Errorf("field %s = %v, want %v", key, got, want)
		}
	}
}

func TestMergeConflictLongestString(t *testing.T) {
	records := []Record{
		rec("M12:1", 0.9, map[string]any{"color": "红"}),
		rec("M12:1", 0.8, map[string]any{"color": "红褐"}),
	}
	merged := Merge(records)
	if got := merged[0].Fields["color"]; got != "红褐" {
		t.Errorf("color = %v, want 红褐", got)
	}
}

func TestMergeConflictLongestByCharCount(t *testing.T) {
	// "灰陶" is longer in bytes but shorter in characters than "gray";
	// length must compare characters.
	records := []Record{
		rec("M12:2", 0.9, map[string]any{"color": "灰陶"}),
		rec("M12:2", 0.8, map[string]any{"color": "gray"}),
	}
	merged := Merge(records)
	if got := merged[0].Fields["color"]; got != "gray" {
		t.Errorf("color = %v, want gray", got)
	}
}

func TestMergeNumericMax(t *testing.T) {
	records := []Record{
		rec("M12:1", 0.9, map[string]any{"height": 15.0}),
		rec("M12:1", 0.8, map[string]any{"height": 15.5}),
	}
	merged := Merge(records)
	if got := merged[0].Fields["height"]; got != 15.5 {
		t.Errorf("height = %v", got)
	}
}

func TestMergeDescriptiveJoin(t *testing.T) {
	records := []Record{
		rec("M12:1", 0.9, map[string]any{"shape_features": "卷沿"}),
		rec("M12:1", 0.8, map[string]any{"shape_features": "鼓腹"}),
	}
	merged := Merge(records)
	if got := merged[0].Fields["shape_features"]; got != "卷沿 | 鼓腹" {
		t.Errorf("shape_features = %v", got)
	}
}

func TestMergeSingletonIdempotent(t *testing.T) {
	records := []Record{rec("M12:1", 0.9, map[string]any{"subtype": "罐"})}
	once := Merge(records)
	twice := Merge(once)
	if len(twice) != 1 || twice[0].Fields["subtype"] != "罐" || twice[0].Confidence != 0.9 {
		t.Errorf("singleton merge not idempotent: %+v", twice)
	}
}

func TestMergeKeylessPassThrough(t *testing.T) {
	records := []Record{
		rec("", 0.5, map[string]any{"subtype": "罐"}),
		rec("", 0.5, map[string]any{"subtype": "钵"}),
		rec("M1:1", 0.9, map[string]any{"subtype": "豆"}),
	}
	merged := Merge(records)
	if len(merged) != 3 {
		t.Fatalf("keyless records must survive, got %d", len(merged))
	}
}

func TestMergeWithConfidence(t *testing.T) {
	records := []Record{
		rec("M12:1", 0.9, map[string]any{"color": "红"}),
		rec("M12:1", 0.7, map[string]any{"color": "灰"}),
	}
	merged := MergeWithConfidence(records)
	if len(merged) != 1 {
		t.Fatalf("got %d", len(merged))
	}
	if got := merged[0].Fields["color"]; got != "红" {
		t.Errorf("highest-confidence value should win, got %v", got)
	}
	if got := merged[0].Confidence; got < 0.79 || got > 0.81 {
		t.Errorf("confidence should average to 0.8, got %v", got)
	}
}

func TestDetectConflicts(t *testing.T) {
	records := []Record{
		rec("M12:1", 0.9, map[string]any{"color": "红"}),
		rec("M12:1", 0.8, map[string]any{"color": "红褐", "height": 15.0}),
		rec("M12:2", 0.9, map[string]any{"color": "灰"}),
	}
	conflicts := DetectConflicts(records)
	if len(conflicts) != 1 || conflicts[0].Code != "M12:1" {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if len(conflicts[0].Conflicts) != 1 || conflicts[0].Conflicts[0].Field != "color" {
		t.Errorf("expected single color conflict, got %+v", conflicts[0].Conflicts)
	}
}

func TestMergeBySimilarity(t *testing.T) {
	records := []Record{
		rec("", 0.8, map[string]any{"subtype": "罐", "color": "红", "clay_type": "夹砂红陶"}),
		rec("", 0.8, map[string]any{"subtype": "罐", "color": "红", "clay_type": "夹砂陶"}),
		rec("", 0.8, map[string]any{"subtype": "璧", "color": "青", "clay_type": "软玉"}),
	}
	merged := MergeBySimilarity(records, 0.6)
	if len(merged) != 2 {
		t.Fatalf("expected the two 罐 records to cluster, got %d records", len(merged))
	}
}

func TestMergeProvenanceUnion(t *testing.T) {
	a := rec("M12:1", 0.9, map[string]any{"color": "红"})
	a.SourceBlocks = []int{0}
	a.ImageRefs = []string{"图一"}
	b := rec("M12:1", 0.8, map[string]any{"height": 15.0})
	b.SourceBlocks = []int{0, 2}
	b.ImageRefs = []string{"图一", "图版二:3"}

	merged := Merge([]Record{a, b})[0]
	if len(merged.SourceBlocks) != 2 {
		t.Errorf("source blocks = %v", merged.SourceBlocks)
	}
	if len(merged.ImageRefs) != 2 {
		t.Errorf("image refs = %v", merged.ImageRefs)
	}
}

func TestStats(t *testing.T) {
	orig := []Record{rec("a", 0, nil), rec("a", 0, nil), rec("b", 0, nil), rec("c", 0, nil)}
	merged := Merge(orig)
	s := Stats(orig, merged)
	if s.OriginalCount != 4 || s.MergedCount != 3 || s.Reduction != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.ReductionRate != 0.25 {
		t.Errorf("reduction rate = %v", s.ReductionRate)
	}
}
