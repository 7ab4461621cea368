// Package pdfx turns PDF files into match query text.
package pdfx

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// DefaultMaxPages bounds how many pages contribute query text. The
	// title, abstract, and introduction carry the topical signal.
	DefaultMaxPages = 5
	// MaxQueryChars caps the extracted text so a pasted paper stays
	// within one embedding request.
	MaxQueryChars = 8000
)

// ExtractQueryText reads the first maxPages pages of a PDF and returns
// their text, whitespace-normalized and capped at MaxQueryChars runes.
// Pages that cannot be decoded are skipped.
func ExtractQueryText(filePath string, maxPages int) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}

	return NormalizeText(builder.String()), nil
}

// NormalizeText collapses whitespace runs to single spaces and caps the
// result at MaxQueryChars runes.
func NormalizeText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > MaxQueryChars {
		text = string(runes[:MaxQueryChars])
	}
	return text
}
