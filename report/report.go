// Package report resolves the on-disk layout of a parsed excavation
// report: the markdown body, the layout content list, and the figure
// image directory.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Folder describes one report directory. Paths are empty when the
// corresponding file is absent; at least one text source must exist.
type Folder struct {
	Dir             string
	Name            string
	MarkdownPath    string
	PDFPath         string
	LayoutPath      string
	ContentListPath string
	ImagesDir       string
}

// Open inspects dir and locates the report's component files. The
// markdown body is preferred; a PDF is kept as text fallback. An error
// is returned only when no text source exists at all.
func Open(dir string) (*Folder, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening report folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening report folder: %s is not a directory", dir)
	}

	f := &Folder{
		Dir:  dir,
		Name: filepath.Base(dir),
	}
	f.MarkdownPath = findFile(dir, "full.md")
	f.LayoutPath = findFile(dir, "layout.json")
	f.ContentListPath = findFile(dir, "*_content_list.json")
	if f.MarkdownPath == "" {
		f.PDFPath = findFile(dir, "*.pdf")
	}
	if imagesDir := filepath.Join(dir, "images"); dirExists(imagesDir) {
		f.ImagesDir = imagesDir
	}

	if f.MarkdownPath == "" && f.PDFPath == "" {
		return nil, fmt.Errorf("report folder %s: no full.md or PDF found", dir)
	}
	return f, nil
}

// Text returns the full report body. The markdown body wins; without
// one the PDF's plain text is extracted page by page.
func (f *Folder) Text() (string, error) {
	if f.MarkdownPath != "" {
		data, err := os.ReadFile(f.MarkdownPath)
		if err != nil {
			return "", fmt.Errorf("reading report body: %w", err)
		}
		return string(data), nil
	}
	return pdfText(f.PDFPath)
}

// Head returns the first n runes of text, used for phases that only
// need the report opening (site descriptions live up front).
func Head(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// Slice returns the rune range [from, to) of text, clamped.
func Slice(text string, from, to int) string {
	runes := []rune(text)
	if from < 0 {
		from = 0
	}
	if to > len(runes) {
		to = len(runes)
	}
	if from >= to {
		return ""
	}
	return string(runes[from:to])
}

func pdfText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("PDF %s: no extractable text", path)
	}
	return b.String(), nil
}

// findFile resolves pattern inside folder. Glob patterns return the
// first match in lexical order; plain names are probed directly.
func findFile(folder, pattern string) string {
	if strings.ContainsAny(pattern, "*?[") {
		matches, err := filepath.Glob(filepath.Join(folder, pattern))
		if err != nil || len(matches) == 0 {
			return ""
		}
		return matches[0]
	}
	path := filepath.Join(folder, pattern)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
