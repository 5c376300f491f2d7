// Package prompt builds the Chinese extraction prompts sent to the LLM.
// Each entity kind has its own synthesizer; the field list is rendered
// from the resolved template catalog so prompts always match the schema
// the normalizer expects back.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hanlin-zhu/relicdig/template"
)

// EntityKind enumerates the extractable entity kinds.
type EntityKind int

const (
	Site EntityKind = iota
	Period
	Pottery
	Jade
)

// String returns the stable lowercase identifier used in logs, recovery
// file names, and task phases.
func (k EntityKind) String() string {
	switch k {
	case Site:
		return "site"
	case Period:
		return "period"
	case Pottery:
		return "pottery"
	case Jade:
		return "jade"
	default:
		return "unknown"
	}
}

// LabelCN returns the Chinese label used inside prompts.
func (k EntityKind) LabelCN() string {
	switch k {
	case Site:
		return "遗址"
	case Period:
		return "时期"
	case Pottery:
		return "陶器"
	case Jade:
		return "玉器"
	default:
		return "文物"
	}
}

// Kinds lists all entity kinds in workflow order.
func Kinds() []EntityKind { return []EntityKind{Site, Period, Pottery, Jade} }

// Context carries report-level facts injected into artifact prompts.
type Context struct {
	SiteName   string
	PeriodName string
	TombName   string
}

// Synthesizer renders the extraction prompt for one entity kind.
type Synthesizer interface {
	Extraction(text string, ctx Context) string
}

// ForKind returns the synthesizer for kind, rendering fields from cat.
func ForKind(kind EntityKind, cat *template.Catalog) Synthesizer {
	switch kind {
	case Site:
		return &siteSynthesizer{fields: fieldList(cat)}
	case Period:
		return &periodSynthesizer{fields: fieldList(cat)}
	case Pottery:
		return &potterySynthesizer{fields: fieldList(cat)}
	case Jade:
		return &jadeSynthesizer{fields: fieldList(cat)}
	default:
		return &potterySynthesizer{fields: fieldList(cat)}
	}
}

// fieldList renders the numbered field description block.
func fieldList(cat *template.Catalog) string {
	if cat == nil || len(cat.Fields) == 0 {
		return "（模板未提供字段定义）"
	}
	var b strings.Builder
	for i, f := range cat.Fields {
		fmt.Fprintf(&b, "%d. **%s** (`%s`) - %s类型", i+1, f.NameCN, f.StorageKey, typeLabel(f.Type))
		if f.Description != "" {
			fmt.Fprintf(&b, " (说明: %s)", f.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func typeLabel(t template.FieldType) string {
	switch t {
	case template.TypeReal:
		return "数值"
	case template.TypeInteger:
		return "整数"
	case template.TypeBoolean:
		return "是/否"
	default:
		return "文本"
	}
}

// contextBlock renders the shared context section of artifact prompts.
func contextBlock(ctx Context) string {
	var b strings.Builder
	if ctx.SiteName != "" {
		fmt.Fprintf(&b, "- 遗址: %s\n", ctx.SiteName)
	}
	if ctx.PeriodName != "" {
		fmt.Fprintf(&b, "- 时期: %s\n", ctx.PeriodName)
	}
	if ctx.TombName != "" {
		fmt.Fprintf(&b, "- 墓葬: %s\n", ctx.TombName)
	}
	if b.Len() == 0 {
		return "（无）"
	}
	return strings.TrimRight(b.String(), "\n")
}
