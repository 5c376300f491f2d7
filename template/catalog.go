// Package template resolves the Excel field catalog that defines which
// cultural feature units each artifact kind carries.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FieldType is the storage type assigned to a catalog field.
type FieldType string

const (
	TypeText    FieldType = "TEXT"
	TypeReal    FieldType = "REAL"
	TypeInteger FieldType = "INTEGER"
	TypeBoolean FieldType = "BOOLEAN"
)

// Field is one feature-unit row of the catalog.
type Field struct {
	NameCN      string
	StorageKey  string
	Type        FieldType
	Description string

	// CIDOC-flavored ontology columns; empty when the workbook omits them.
	OntologyEntity   string
	OntologyRelation string
	OntologyClass    string
}

// Catalog is the resolved field catalog of one template workbook.
type Catalog struct {
	Path          string
	ArtifactTypes []string
	Fields        []Field
}

// header candidates per concern, matched fuzzily against column names
// with parentheticals and whitespace stripped.
var (
	featureHeaders     = []string{"文化特征单元", "特征单元", "属性名", "字段名", "抽取属性"}
	typeHeaders        = []string{"文物类型", "适用对象"}
	descriptionHeaders = []string{"说明", "备注", "定义", "description"}
	entityHeaders      = []string{"核心实体", "entity"}
	relationHeaders    = []string{"关系", "property", "predicate"}
	classHeaders       = []string{"中间类", "class", "target"}
)

var parentheticalRe = regexp.MustCompile(`[（(].*?[)）]|\s`)

// Resolve opens an xlsx workbook and reads the field catalog from its
// first non-empty sheet. Only the feature column is required; the type,
// description, and ontology columns are optional.
func Resolve(path string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening template workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}
		cat, err := fromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		cat.Path = path
		return cat, nil
	}
	return nil, fmt.Errorf("no usable sheet in %s", path)
}

func fromRows(rows [][]string) (*Catalog, error) {
	header := rows[0]
	for i, col := range header {
		header[i] = strings.ReplaceAll(col, "\n", "")
	}

	findCol := func(keywords []string) int {
		for i, col := range header {
			clean := strings.ToLower(parentheticalRe.ReplaceAllString(col, ""))
			for _, kw := range keywords {
				if strings.Contains(clean, strings.ToLower(kw)) {
					return i
				}
			}
		}
		return -1
	}

	featureCol := findCol(featureHeaders)
	if featureCol < 0 {
		// last resort: any column mentioning 特征
		for i, col := range header {
			if strings.Contains(col, "特征") {
				featureCol = i
				break
			}
		}
	}
	if featureCol < 0 {
		return nil, fmt.Errorf("no feature column among %v", header)
	}

	typeCol := findCol(typeHeaders)
	descCol := findCol(descriptionHeaders)
	entityCol := findCol(entityHeaders)
	relationCol := findCol(relationHeaders)
	classCol := findCol(classHeaders)

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	cat := &Catalog{}
	seenType := make(map[string]bool)
	for _, row := range rows[1:] {
		name := cell(row, featureCol)
		if name == "" {
			continue
		}
		cat.Fields = append(cat.Fields, Field{
			NameCN:           name,
			StorageKey:       StorageKey(name),
			Type:             inferType(name),
			Description:      cell(row, descCol),
			OntologyEntity:   cell(row, entityCol),
			OntologyRelation: cell(row, relationCol),
			OntologyClass:    cell(row, classCol),
		})
		if at := cell(row, typeCol); at != "" && !seenType[at] {
			seenType[at] = true
			cat.ArtifactTypes = append(cat.ArtifactTypes, at)
		}
	}

	if len(cat.Fields) == 0 {
		return nil, fmt.Errorf("feature column is empty")
	}
	if len(cat.ArtifactTypes) == 0 {
		cat.ArtifactTypes = []string{"文物"}
	}
	return cat, nil
}

var (
	realKeywords    = []string{"硬度", "温度", "重量", "容量", "数量", "比例"}
	integerKeywords = []string{"数目", "件数", "层位"}
)

func inferType(name string) FieldType {
	for _, kw := range realKeywords {
		if strings.Contains(name, kw) {
			return TypeReal
		}
	}
	for _, kw := range integerKeywords {
		if strings.Contains(name, kw) {
			return TypeInteger
		}
	}
	return TypeText
}

// Field returns the catalog row matching either the Chinese name or the
// storage key, compared case-insensitively with whitespace stripped.
func (c *Catalog) Field(name string) (Field, bool) {
	want := normalizeLookup(name)
	for _, f := range c.Fields {
		if normalizeLookup(f.NameCN) == want || normalizeLookup(f.StorageKey) == want {
			return f, true
		}
	}
	return Field{}, false
}

func normalizeLookup(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// Validate reports non-fatal catalog problems: duplicate feature names
// and distinct names colliding on one storage key.
func (c *Catalog) Validate() []string {
	var warnings []string
	names := make(map[string]bool)
	byKey := make(map[string]string)
	for _, f := range c.Fields {
		if names[f.NameCN] {
			warnings = append(warnings, fmt.Sprintf("duplicate field name %q", f.NameCN))
		}
		names[f.NameCN] = true
		if prev, ok := byKey[f.StorageKey]; ok && prev != f.NameCN {
			warnings = append(warnings, fmt.Sprintf("fields %q and %q share storage key %q", prev, f.NameCN, f.StorageKey))
		} else {
			byKey[f.StorageKey] = f.NameCN
		}
	}
	return warnings
}
