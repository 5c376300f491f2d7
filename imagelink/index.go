// Package imagelink associates extracted artifacts with report figures
// using the layout-parsed content list that accompanies each report.
package imagelink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Item is one entry of a *_content_list.json file: interleaved text and
// image blocks in reading order with page and bounding box metadata.
type Item struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	PageIdx int       `json:"page_idx"`
	BBox    []float64 `json:"bbox,omitempty"`

	// The image reference field varies between parser versions.
	ImageHash string `json:"image_hash,omitempty"`
	Hash      string `json:"hash,omitempty"`
	ID        string `json:"id,omitempty"`
	Path      string `json:"path,omitempty"`
	ImgPath   string `json:"img_path,omitempty"`
}

// ImageKey returns the item's image identifier: the bare hash when
// present, otherwise the path's file stem. Empty for text items.
func (it Item) ImageKey() string {
	for _, v := range []string{it.ImageHash, it.Hash, it.ID, it.Path, it.ImgPath} {
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, `/\`) {
			base := filepath.Base(strings.ReplaceAll(v, `\`, `/`))
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
		return v
	}
	return ""
}

// Index is the loaded content list plus derived caption lookups.
type Index struct {
	Items []Item
}

// LoadIndex reads a content list JSON file.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading content list: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding content list: %w", err)
	}
	return &Index{Items: items}, nil
}

// Caption returns the figure caption for an image: the first following
// text item within four positions that starts like a caption (图, 图版,
// Fig), falling back to surrounding text.
func (x *Index) Caption(imageKey string) string {
	for i, item := range x.Items {
		if item.Type != "image" || item.ImageKey() != imageKey {
			continue
		}
		for j := i + 1; j < len(x.Items) && j < i+5; j++ {
			next := x.Items[j]
			if next.Type != "text" {
				continue
			}
			text := strings.TrimSpace(next.Text)
			if text == "" {
				continue
			}
			if strings.HasPrefix(text, "图") || strings.HasPrefix(text, "Fig") {
				return text
			}
		}
		return x.nearbyText(i, 2)
	}
	return ""
}

// nearbyText joins text items around position idx, capped at 500 runes.
func (x *Index) nearbyText(idx, distance int) string {
	var parts []string
	for i := max(0, idx-distance); i < len(x.Items) && i <= idx+distance; i++ {
		if x.Items[i].Type == "text" && x.Items[i].Text != "" {
			parts = append(parts, x.Items[i].Text)
		}
	}
	joined := strings.Join(parts, " ")
	runes := []rune(joined)
	if len(runes) > 500 {
		return string(runes[:500])
	}
	return joined
}

// nearbyImages collects image items within distance positions of idx.
type nearbyImage struct {
	key      string
	pageIdx  int
	caption  string
	distance int
}

func (x *Index) nearbyImages(idx, distance int) []nearbyImage {
	var out []nearbyImage
	for i := max(0, idx-distance); i < len(x.Items) && i <= idx+distance; i++ {
		item := x.Items[i]
		if item.Type != "image" {
			continue
		}
		key := item.ImageKey()
		if key == "" {
			continue
		}
		out = append(out, nearbyImage{
			key:      key,
			pageIdx:  item.PageIdx,
			caption:  x.Caption(key),
			distance: abs(i - idx),
		})
	}
	return out
}

// ImageInfo describes one indexed image file of a report.
type ImageInfo struct {
	Key      string
	Path     string
	FileSize int64
	PageIdx  int
	Caption  string
}

// IndexImages lists the report's image files and enriches them from the
// content list. Pixel metadata is out of scope; only file facts and
// layout placement are recorded.
func (x *Index) IndexImages(imagesDir string) ([]ImageInfo, error) {
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, fmt.Errorf("reading images dir: %w", err)
	}

	var out []ImageInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		img := ImageInfo{
			Key:      key,
			Path:     filepath.Join(imagesDir, entry.Name()),
			FileSize: info.Size(),
			PageIdx:  -1,
		}
		for _, item := range x.Items {
			if item.Type == "image" && item.ImageKey() == key {
				img.PageIdx = item.PageIdx
				img.Caption = x.Caption(key)
				break
			}
		}
		out = append(out, img)
	}
	return out, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
