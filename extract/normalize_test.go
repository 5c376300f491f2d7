package extract

import (
	"testing"
)

func TestNormalizeFencedBlock(t *testing.T) {
	raw := "以下是抽取结果：\n```json\n[{\"artifact_code\": \"M12:1\", \"color\": \"红\"}]\n```\n完成。"
	v, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("got %T %v", v, v)
	}
	obj := list[0].(map[string]any)
	if obj["color"] != "红" {
		t.Errorf("color = %v", obj["color"])
	}
}

func TestNormalizeBareJSON(t *testing.T) {
	v, err := Normalize(`{"site_name": "瑶山遗址"}`)
	if err != nil {
		t.Fatal(err)
	}
	if v.(map[string]any)["site_name"] != "瑶山遗址" {
		t.Errorf("got %v", v)
	}
}

func TestNormalizeTruncated(t *testing.T) {
	// Truncated mid-string: odd quote count, unclosed brackets.
	raw := `[{"artifact_code": "M12:1", "color": "红`
	v, err := Normalize(raw)
	if err != nil {
		t.Fatalf("truncated response should repair, got %v", err)
	}
	list := v.([]any)
	if list[0].(map[string]any)["artifact_code"] != "M12:1" {
		t.Errorf("got %v", v)
	}
}

func TestNormalizeEmbeddedJSON(t *testing.T) {
	raw := `根据文本分析，结果如下 {"period_name": "良渚文化早期"} 以上。`
	v, err := Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if v.(map[string]any)["period_name"] != "良渚文化早期" {
		t.Errorf("got %v", v)
	}
}

func TestNormalizeBracketsInsideStrings(t *testing.T) {
	raw := `前言 [{"note": "见图版} ]内容", "code": "M1:1"}] 结束`
	v, err := Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	list := v.([]any)
	if list[0].(map[string]any)["note"] != "见图版} ]内容" {
		t.Errorf("string-aware scan failed: %v", v)
	}
}

func TestNormalizeUnrecoverable(t *testing.T) {
	for _, raw := range []string{"", "完全没有JSON的文本", "```\n也不是JSON\n```"} {
		if _, err := Normalize(raw); err == nil {
			t.Errorf("Normalize(%q) should fail", raw)
		}
	}
}

func TestRepair(t *testing.T) {
	cases := map[string]string{
		`[{"a": 1}`:      `[{"a": 1}]`,
		`{"a": [1, 2`:    `{"a": [1, 2]}`,
		`[{"a": "文`:      `[{"a": "文"}]`,
		`[{"a": 1}]`:     `[{"a": 1}]`,
	}
	for in, want := range cases {
		if got := Repair(in); got != want {
			t.Errorf("Repair(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordsFromValue(t *testing.T) {
	v, err := Normalize(`[{"artifact_code": "M7:1", "found_in_tomb": "M7", "extraction_confidence": 0.8, "image_references": ["图一"], "color": "红", "hardness": null}]`)
	if err != nil {
		t.Fatal(err)
	}
	records := RecordsFromValue(v)
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	rec := records[0]
	if rec.Code != "M7:1" || rec.FoundInTomb != "M7" || rec.Confidence != 0.8 {
		t.Errorf("provenance not lifted: %+v", rec)
	}
	if len(rec.ImageRefs) != 1 || rec.ImageRefs[0] != "图一" {
		t.Errorf("image refs = %v", rec.ImageRefs)
	}
	if rec.Fields["color"] != "红" {
		t.Errorf("fields = %v", rec.Fields)
	}
	if _, ok := rec.Fields["hardness"]; ok {
		t.Error("null values should be dropped")
	}
}

func TestNormalizeTombNames(t *testing.T) {
	records := []Record{
		{Code: "M12:1", FoundInTomb: "十二号墓", Fields: map[string]any{}},
		{Code: "", FoundInTomb: "三号墓", Fields: map[string]any{}},
		{Code: "采集:7", FoundInTomb: "祭祀坑", Fields: map[string]any{}},
	}
	NormalizeTombNames(records)
	if records[0].FoundInTomb != "M12" {
		t.Errorf("code-derived tomb = %q", records[0].FoundInTomb)
	}
	if records[1].FoundInTomb != "M3" {
		t.Errorf("ordinal tomb = %q", records[1].FoundInTomb)
	}
	if records[2].FoundInTomb != "祭祀坑" {
		t.Errorf("unrecognized tomb should stay: %q", records[2].FoundInTomb)
	}
}
