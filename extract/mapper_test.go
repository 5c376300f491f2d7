package extract

import (
	"testing"

	"github.com/hanlin-zhu/relicdig/prompt"
	"github.com/hanlin-zhu/relicdig/template"
)

func mapperCatalog() *template.Catalog {
	return &template.Catalog{Fields: []template.Field{
		{NameCN: "颜色", StorageKey: "color"},
		{NameCN: "基本器型", StorageKey: "basic_shape"},
		{NameCN: "高度", StorageKey: "height"},
	}}
}

func TestMapFields(t *testing.T) {
	rec := Record{Code: "M1:1", Fields: map[string]any{
		"颜色":    "红",
		"height": 15.0, // already a storage key
		"神秘属性":  "值",
	}}
	mapped := MapFields(rec, mapperCatalog())

	if mapped.Fields["color"] != "红" {
		t.Errorf("Chinese key not mapped: %v", mapped.Fields)
	}
	if mapped.Fields["height"] != 15.0 {
		t.Errorf("storage key not accepted: %v", mapped.Fields)
	}
	if mapped.Extra["神秘属性"] != "值" {
		t.Errorf("unmapped key should land in Extra: %v", mapped.Extra)
	}
	if _, ok := mapped.Fields["神秘属性"]; ok {
		t.Error("unmapped key must not stay in Fields")
	}
	// Input record untouched.
	if _, ok := rec.Fields["color"]; ok {
		t.Error("MapFields must not mutate its input")
	}
}

func TestTriples(t *testing.T) {
	mappings := []Mapping{
		{ID: 1, NameCN: "颜色", StorageKey: "color", Relation: "P45 consists of"},
		{ID: 2, NameCN: "基本器型", StorageKey: "basic_shape", Relation: ""},
		{ID: 3, NameCN: "人工物品编号", StorageKey: "artifact_code", Relation: "P1 is identified by"},
	}
	rec := Record{
		Code:       "M12:1",
		Confidence: 0.8,
		Fields:     map[string]any{"color": "红", "basic_shape": "罐"},
	}

	triples := Triples(rec, mappings)
	if len(triples) != 2 {
		t.Fatalf("expected 2 triples (basic_shape has no relation), got %d: %+v", len(triples), triples)
	}
	byID := map[int64]Triple{}
	for _, tr := range triples {
		byID[tr.MappingID] = tr
	}
	if tr := byID[1]; tr.Object != "红" || tr.Predicate != "P45 consists of" || tr.Confidence != 0.8 {
		t.Errorf("color triple = %+v", tr)
	}
	if tr := byID[3]; tr.Object != "M12:1" {
		t.Errorf("code triple = %+v", tr)
	}
}

func TestTriplesLookupNormalization(t *testing.T) {
	mappings := []Mapping{{ID: 1, NameCN: "颜 色", StorageKey: "Color", Relation: "P45"}}
	rec := Record{Confidence: 1, Fields: map[string]any{"color ": "红"}}
	triples := Triples(rec, mappings)
	if len(triples) != 1 {
		t.Fatalf("whitespace/case folding failed: %+v", triples)
	}
}

func TestFilterByKind(t *testing.T) {
	records := []Record{
		{Code: "M1:1", Fields: map[string]any{"clay_type": "夹砂红陶"}},
		{Code: "M1:2", Fields: map[string]any{"subtype": "玉璧"}},
		{Code: "M1:3", Fields: map[string]any{"function": "炊器"}},
	}

	pottery := FilterByKind(records, prompt.Pottery)
	if len(pottery) != 2 {
		t.Fatalf("jade item should be dropped from pottery pass: %+v", pottery)
	}

	jade := FilterByKind(records, prompt.Jade)
	if len(jade) != 2 {
		t.Fatalf("pottery item should be dropped from jade pass: %+v", jade)
	}

	sites := FilterByKind(records, prompt.Site)
	if len(sites) != 3 {
		t.Errorf("non-artifact kinds must not filter: %d", len(sites))
	}
}
