package imagelink

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hanlin-zhu/relicdig/extract"
)

// LinkedImage is one artifact-to-image association with its evidence.
type LinkedImage struct {
	Key          string
	Role         string // photo, drawing, diagram, context, related
	Confidence   float64
	DisplayOrder int
	PageIdx      int
	Caption      string
	MatchMethod  string
	Distance     int
}

// Linker ranks candidate figures for an artifact using five evidence
// strategies, strongest first: references the LLM extracted, explicit
// in-text references near the code, code proximity, keyword proximity,
// and tomb context.
type Linker struct {
	index *Index
}

// NewLinker returns a Linker over a loaded content index.
func NewLinker(index *Index) *Linker {
	return &Linker{index: index}
}

type candidate struct {
	nearbyImage
	confidence  float64
	matchMethod string
}

var figureRefRe = regexp.MustCompile(`(图版|图|Fig\.?|Figure)\s*([一二三四五六七八九十\d]+)`)

var codeCleanRe = regexp.MustCompile(`[\s\-_]`)

// Link returns the ranked figure associations for one record. Records
// without a code still link through their extracted image references.
func (l *Linker) Link(rec extract.Record) []LinkedImage {
	if l.index == nil || len(l.index.Items) == 0 {
		return nil
	}

	// Strategy order doubles as dedupe priority.
	lists := [][]candidate{
		l.byLLMReferences(rec),
	}
	if rec.Code != "" {
		lists = append(lists,
			l.byExplicitReference(rec.Code),
			l.byArtifactCode(rec.Code),
			l.byKeywords(rec),
			l.byTombContext(rec.Code),
		)
	}

	seen := make(map[string]bool)
	var merged []candidate
	for _, list := range lists {
		for _, c := range list {
			if c.key == "" || seen[c.key] {
				continue
			}
			seen[c.key] = true
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].confidence != merged[j].confidence {
			return merged[i].confidence > merged[j].confidence
		}
		return merged[i].distance < merged[j].distance
	})

	out := make([]LinkedImage, len(merged))
	for i, c := range merged {
		out[i] = LinkedImage{
			Key:          c.key,
			Role:         classifyRole(c.caption, c.matchMethod, i),
			Confidence:   c.confidence,
			DisplayOrder: i,
			PageIdx:      c.pageIdx,
			Caption:      c.caption,
			MatchMethod:  c.matchMethod,
			Distance:     c.distance,
		}
	}
	return out
}

// byLLMReferences matches figure references the extraction itself
// produced ("图一", "图版二:1") against image keys and captions.
func (l *Linker) byLLMReferences(rec extract.Record) []candidate {
	var out []candidate
	for _, ref := range rec.ImageRefs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		for _, item := range l.index.Items {
			if item.Type != "image" {
				continue
			}
			key := item.ImageKey()
			caption := l.index.Caption(key)
			if !refMatches(ref, key, caption) {
				continue
			}
			out = append(out, candidate{
				nearbyImage: nearbyImage{key: key, pageIdx: item.PageIdx, caption: caption},
				confidence:  0.98,
				matchMethod: "llm_reference",
			})
		}
	}
	return out
}

// byExplicitReference finds figure references inside text blocks that
// mention the code, then matches those references to images.
func (l *Linker) byExplicitReference(code string) []candidate {
	refs := make(map[string]bool)
	for _, item := range l.index.Items {
		if item.Type != "text" || !strings.Contains(item.Text, code) {
			continue
		}
		for _, m := range figureRefRe.FindAllStringSubmatch(item.Text, -1) {
			refs[m[1]+m[2]] = true
			refs[m[2]] = true
		}
	}
	if len(refs) == 0 {
		return nil
	}

	var out []candidate
	for _, item := range l.index.Items {
		if item.Type != "image" {
			continue
		}
		key := item.ImageKey()
		caption := l.index.Caption(key)
		for ref := range refs {
			if refMatches(ref, key, caption) {
				out = append(out, candidate{
					nearbyImage: nearbyImage{key: key, pageIdx: item.PageIdx, caption: caption},
					confidence:  0.95,
					matchMethod: "explicit_reference",
				})
				break
			}
		}
	}
	return out
}

// byArtifactCode links images near text blocks containing the code.
func (l *Linker) byArtifactCode(code string) []candidate {
	var out []candidate
	normCode := normalizeCode(code)
	for i, item := range l.index.Items {
		if item.Type != "text" {
			continue
		}
		if !strings.Contains(item.Text, code) && !strings.Contains(normalizeCode(item.Text), normCode) {
			continue
		}
		for _, img := range l.index.nearbyImages(i, 5) {
			out = append(out, candidate{nearbyImage: img, confidence: 0.9, matchMethod: "artifact_code"})
		}
	}
	return out
}

// keyword fields consulted for descriptive matching.
var keywordFields = []string{
	"subtype", "category_level1", "category_level2",
	"jade_type", "clay_type", "shape_unit", "decoration_unit",
}

// byKeywords links images near text blocks matching at least two of
// the record's descriptive values; confidence grows with match count.
func (l *Linker) byKeywords(rec extract.Record) []candidate {
	var keywords []string
	for _, f := range keywordFields {
		if v, ok := rec.Fields[f].(string); ok && len([]rune(v)) > 1 {
			keywords = append(keywords, v)
		}
	}
	if rec.Code != "" {
		keywords = append(keywords, rec.Code)
	}
	if len(keywords) == 0 {
		return nil
	}

	var out []candidate
	for i, item := range l.index.Items {
		if item.Type != "text" {
			continue
		}
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(item.Text, kw) {
				matches++
			}
		}
		if matches < 2 {
			continue
		}
		conf := 0.6 + float64(matches)*0.1
		if conf > 0.89 {
			conf = 0.89 // keyword evidence never outranks a code match
		}
		for _, img := range l.index.nearbyImages(i, 3) {
			out = append(out, candidate{nearbyImage: img, confidence: conf, matchMethod: "text_content"})
		}
	}
	return out
}

var tombCodeRe = regexp.MustCompile(`^(M\d+)`)

// byTombContext links images near the burial's own description blocks.
// Weak evidence, but better than nothing for unillustrated artifacts.
func (l *Linker) byTombContext(code string) []candidate {
	m := tombCodeRe.FindStringSubmatch(code)
	if m == nil {
		return nil
	}
	tomb := m[1]

	var out []candidate
	for i, item := range l.index.Items {
		if item.Type != "text" || !strings.Contains(item.Text, tomb) {
			continue
		}
		if !strings.Contains(item.Text, "墓") && !strings.Contains(item.Text, "M") {
			continue
		}
		for _, img := range l.index.nearbyImages(i, 10) {
			out = append(out, candidate{nearbyImage: img, confidence: 0.4, matchMethod: "tomb_context"})
		}
	}
	return out
}

func refMatches(ref, key, caption string) bool {
	if key != "" && strings.Contains(key, ref) {
		return true
	}
	if caption != "" {
		if strings.HasPrefix(caption, ref) || strings.Contains(caption, " "+ref+" ") {
			return true
		}
	}
	return false
}

func normalizeCode(s string) string {
	s = codeCleanRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "：", ":")
}

// classifyRole assigns the image role from caption cues first, then the
// match method, then position.
func classifyRole(caption, matchMethod string, index int) string {
	c := strings.ToLower(caption)
	switch {
	case strings.Contains(c, "照片") || strings.Contains(c, "photo"):
		return "photo"
	case strings.Contains(c, "线图") || strings.Contains(c, "drawing") || strings.Contains(c, "图"):
		return "drawing"
	case strings.Contains(c, "示意") || strings.Contains(c, "diagram"):
		return "diagram"
	case strings.Contains(c, "位置") || strings.Contains(c, "context") || strings.Contains(c, "墓"):
		return "context"
	}

	switch matchMethod {
	case "llm_reference", "explicit_reference":
		return "photo"
	case "artifact_code":
		if index == 0 {
			return "photo"
		}
		return "drawing"
	case "tomb_context":
		return "context"
	}

	if index == 0 {
		return "photo"
	}
	return "related"
}

// BatchLink links every coded record and returns results keyed by code.
func (l *Linker) BatchLink(records []extract.Record) map[string][]LinkedImage {
	out := make(map[string][]LinkedImage)
	for _, rec := range records {
		if rec.Code == "" {
			continue
		}
		out[rec.Code] = l.Link(rec)
	}
	return out
}

// LinkStats summarizes a batch linking run.
type LinkStats struct {
	TotalArtifacts         int     `json:"total_artifacts"`
	ArtifactsWithImages    int     `json:"artifacts_with_images"`
	ArtifactsWithoutImages int     `json:"artifacts_without_images"`
	TotalImagesLinked      int     `json:"total_images_linked"`
	AvgImagesPerArtifact   float64 `json:"avg_images_per_artifact"`
	LinkingRate            float64 `json:"linking_rate"`
}

// Statistics computes summary numbers for a BatchLink result.
func Statistics(results map[string][]LinkedImage) LinkStats {
	s := LinkStats{TotalArtifacts: len(results)}
	for _, images := range results {
		if len(images) > 0 {
			s.ArtifactsWithImages++
		}
		s.TotalImagesLinked += len(images)
	}
	s.ArtifactsWithoutImages = s.TotalArtifacts - s.ArtifactsWithImages
	if s.TotalArtifacts > 0 {
		s.AvgImagesPerArtifact = float64(s.TotalImagesLinked) / float64(s.TotalArtifacts)
		s.LinkingRate = float64(s.ArtifactsWithImages) / float64(s.TotalArtifacts)
	}
	return s
}
