// Package problem defines the research problem record that the matching
// pipeline fetches, enriches, and scores.
package problem

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownLabel is the placeholder text used when a record carries no
// usable text at all. Scoring a placeholder yields near-zero similarity,
// which keeps empty records from ever ranking above real ones.
const UnknownLabel = "unknown problem"

// Validation errors.
var (
	ErrEmptyID    = errors.New("problem ID is empty")
	ErrEmptyLabel = errors.New("problem label is empty")
)

// Problem is a single research problem from the knowledge base.
//
// Label is the canonical name. Description and Alias are enrichment
// fields: they start empty on records fetched from a listing endpoint
// and are filled in by per-record lookups before scoring.
type Problem struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Alias       string `json:"alias,omitempty"` // "same as" label, when the record has one
	PaperCount  int    `json:"paper_count,omitempty"`
}

// Validate checks that the record is usable as a match candidate.
func (p Problem) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.Label) == "" {
		return ErrEmptyLabel
	}
	return nil
}

// ComparisonText assembles the text a scorer compares against the query:
// label, description, and alias, joined with spaces. Records with no text
// in any field yield UnknownLabel.
func (p Problem) ComparisonText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Label, p.Description, p.Alias} {
		if t := strings.TrimSpace(s); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return UnknownLabel
	}
	return strings.Join(parts, " ")
}

// WeightedText repeats the label labelWeight times before the rest of the
// record text, so that embedding models weigh the canonical name more
// heavily than the prose around it. A labelWeight below 1 is treated as 1.
func (p Problem) WeightedText(labelWeight int) string {
	if labelWeight < 1 {
		labelWeight = 1
	}
	label := strings.TrimSpace(p.Label)
	if label == "" {
		return p.ComparisonText()
	}
	parts := make([]string, 0, labelWeight+2)
	for i := 0; i < labelWeight; i++ {
		parts = append(parts, label)
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		parts = append(parts, d)
	}
	if a := strings.TrimSpace(p.Alias); a != "" {
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// String implements fmt.Stringer for log and error messages.
func (p Problem) String() string {
	return fmt.Sprintf("%s (%s)", p.Label, p.ID)
}
