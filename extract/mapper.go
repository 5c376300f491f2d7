package extract

import (
	"strings"

	"github.com/hanlin-zhu/relicdig/template"
)

// MapFields rewrites a record's field keys to catalog storage keys. The
// lookup accepts either the Chinese display name or the storage key
// itself, compared with whitespace stripped and case folded. Keys with
// no catalog match move to Extra so the raw extraction survives.
func MapFields(rec Record, cat *template.Catalog) Record {
	out := rec.Clone()
	out.Fields = make(map[string]any, len(rec.Fields))

	for key, value := range rec.Fields {
		if f, ok := cat.Field(key); ok {
			// A derived and a source key can map to the same storage
			// key; the first non-nil value wins.
			if _, exists := out.Fields[f.StorageKey]; !exists {
				out.Fields[f.StorageKey] = value
			}
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[key] = value
	}
	return out
}

// Mapping is one registered template field, as read back from the
// mapping registry.
type Mapping struct {
	ID         int64
	NameCN     string
	StorageKey string
	Relation   string // CIDOC property; empty fields emit no triple
}

// Triple is one fact derived from an extracted field value.
type Triple struct {
	MappingID  int64
	Predicate  string
	Object     string
	Confidence float64
}

// Triples derives fact triples from a mapped record. Both the Chinese
// name and the storage key of each mapping are matched against the
// record's fields; only mappings carrying an ontology relation
// contribute. Provenance fields participate under their storage keys.
func Triples(rec Record, mappings []Mapping) []Triple {
	lookup := make(map[string]Mapping, len(mappings)*2)
	for _, m := range mappings {
		if m.NameCN != "" {
			lookup[cleanKey(m.NameCN)] = m
		}
		if m.StorageKey != "" {
			lookup[cleanKey(m.StorageKey)] = m
		}
	}

	confidence := rec.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	entries := make(map[string]any, len(rec.Fields)+2)
	for k, v := range rec.Fields {
		entries[k] = v
	}
	if rec.Code != "" {
		entries[keyCode] = rec.Code
	}
	if rec.FoundInTomb != "" {
		entries[keyTomb] = rec.FoundInTomb
	}

	var out []Triple
	for key, value := range entries {
		if value == nil {
			continue
		}
		obj := strings.TrimSpace(stringify(value))
		if obj == "" {
			continue
		}
		m, ok := lookup[cleanKey(key)]
		if !ok || m.Relation == "" {
			continue
		}
		out = append(out, Triple{
			MappingID:  m.ID,
			Predicate:  m.Relation,
			Object:     obj,
			Confidence: confidence,
		})
	}
	return out
}

func cleanKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
