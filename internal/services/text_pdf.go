package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// A4 in points with 20mm margins, monospaced so line width is predictable.
const (
	textPageHeight = 842.0
	textMargin     = 57.0
	textFontName   = "Courier"
	textFontSize   = 10
	textLineHeight = 12.0
	linesPerPage   = 60
	maxLineChars   = 80
)

type textLayout struct {
	Paper string              `json:"paper"`
	Pages map[string]textPage `json:"pages"`
}

type textPage struct {
	Content textContent `json:"content"`
}

type textContent struct {
	Text []textBox `json:"text"`
}

type textBox struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  textFont   `json:"font"`
}

type textFont struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Color string `json:"col"`
}

// convertText lays a plain text file out on A4 pages and writes the result to
// a temporary PDF named after the document.
func (b *PDFBackend) convertText(textPath, documentID string) (string, error) {
	raw, err := os.ReadFile(textPath)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	layout, err := json.Marshal(layoutText(string(raw)))
	if err != nil {
		return "", fmt.Errorf("failed to build text layout: %w", err)
	}

	out := filepath.Join(b.tempDir, documentID+".pdf")
	if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to clear %s: %w", out, err)
	}
	var buf bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(layout), &buf, relaxedConfig()); err != nil {
		return "", fmt.Errorf("failed to render text: %w", err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, nil
}

func layoutText(text string) textLayout {
	layout := textLayout{Paper: "A4", Pages: map[string]textPage{}}
	for i, lines := range textPages(text) {
		var boxes []textBox
		for row, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			boxes = append(boxes, textBox{
				Value: line,
				Pos:   [2]float64{textMargin, textPageHeight - textMargin - float64(row+1)*textLineHeight},
				Font:  textFont{Name: textFontName, Size: textFontSize, Color: "Black"},
			})
		}
		if len(boxes) == 0 {
			boxes = append(boxes, textBox{
				Value: " ",
				Pos:   [2]float64{textMargin, textPageHeight - textMargin - textLineHeight},
				Font:  textFont{Name: textFontName, Size: textFontSize, Color: "Black"},
			})
		}
		layout.Pages[strconv.Itoa(i+1)] = textPage{Content: textContent{Text: boxes}}
	}
	return layout
}

// textPages wraps long lines and splits the text into pages. Empty text still
// yields one blank page.
func textPages(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	text = strings.TrimSuffix(text, "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > maxLineChars {
			lines = append(lines, string(runes[:maxLineChars]))
			runes = runes[maxLineChars:]
		}
		lines = append(lines, string(runes))
	}

	var pages [][]string
	for len(lines) > linesPerPage {
		pages = append(pages, lines[:linesPerPage])
		lines = lines[linesPerPage:]
	}
	return append(pages, lines)
}
