package prompt

import (
	"strings"
	"testing"

	"github.com/hanlin-zhu/relicdig/template"
)

func testCatalog() *template.Catalog {
	return &template.Catalog{Fields: []template.Field{
		{NameCN: "颜色", StorageKey: "color", Type: template.TypeText, Description: "器表颜色"},
		{NameCN: "硬度", StorageKey: "hardness", Type: template.TypeReal},
	}}
}

func TestKindStrings(t *testing.T) {
	want := map[EntityKind][2]string{
		Site:    {"site", "遗址"},
		Period:  {"period", "时期"},
		Pottery: {"pottery", "陶器"},
		Jade:    {"jade", "玉器"},
	}
	for kind, labels := range want {
		if kind.String() != labels[0] || kind.LabelCN() != labels[1] {
			t.Errorf("%d: got %s/%s, want %s/%s", kind, kind.String(), kind.LabelCN(), labels[0], labels[1])
		}
	}
}

func TestExtractionPromptContainsFieldsAndText(t *testing.T) {
	cat := testCatalog()
	text := "M12:1 陶罐，夹砂红陶。"
	ctx := Context{SiteName: "瑶山遗址", PeriodName: "良渚文化晚期", TombName: "M12"}

	for _, kind := range Kinds() {
		p := ForKind(kind, cat).Extraction(text, ctx)
		if !strings.Contains(p, text) {
			t.Errorf("%s prompt missing source text", kind)
		}
		if !strings.Contains(p, "颜色") || !strings.Contains(p, "`color`") {
			t.Errorf("%s prompt missing field list", kind)
		}
		if !strings.Contains(p, "数值类型") {
			t.Errorf("%s prompt missing REAL type label", kind)
		}
	}
}

func TestPotteryPromptRules(t *testing.T) {
	p := ForKind(Pottery, testCatalog()).Extraction("文本", Context{SiteName: "瑶山遗址", TombName: "M12"})
	for _, want := range []string{
		"严禁省略Key",       // completeness rule
		"只抽取陶器",         // exclusion rule
		"image_references", // image reference request
		"- 遗址: 瑶山遗址",
		"- 墓葬: M12",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("pottery prompt missing %q", want)
		}
	}
}

func TestJadePromptExcludesPottery(t *testing.T) {
	p := ForKind(Jade, testCatalog()).Extraction("文本", Context{})
	if !strings.Contains(p, "只抽取玉器") {
		t.Error("jade prompt missing exclusion rule")
	}
	if !strings.Contains(p, "（无）") {
		t.Error("empty context should render placeholder")
	}
}

func TestSitePromptRequestsStructures(t *testing.T) {
	p := ForKind(Site, testCatalog()).Extraction("文本", Context{})
	if !strings.Contains(p, "structures") || !strings.Contains(p, "parent_structure_name") {
		t.Error("site prompt missing structure section")
	}
}

func TestMergePrompt(t *testing.T) {
	p := MergePrompt(Pottery, []map[string]any{
		{"artifact_code": "M12:1", "color": "红"},
		{"artifact_code": "M12:1", "height": 15},
	})
	if !strings.Contains(p, "M12:1") || !strings.Contains(p, "陶器") {
		t.Errorf("merge prompt incomplete:\n%s", p)
	}
}

func TestExpandCodesPrompt(t *testing.T) {
	p := ExpandCodesPrompt("M7:63-1~3")
	if !strings.Contains(p, `"M7:63-1~3"`) || !strings.Contains(p, "M7:63-2") {
		t.Errorf("expand prompt incomplete:\n%s", p)
	}
}
