package problem

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Problem
		wantErr error
	}{
		{"valid", Problem{ID: "R1", Label: "question answering"}, nil},
		{"missing ID", Problem{Label: "question answering"}, ErrEmptyID},
		{"whitespace ID", Problem{ID: "   ", Label: "question answering"}, ErrEmptyID},
		{"missing label", Problem{ID: "R1"}, ErrEmptyLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestComparisonText(t *testing.T) {
	tests := []struct {
		name string
		p    Problem
		want string
	}{
		{
			name: "all fields",
			p:    Problem{Label: "image classification", Description: "assigning labels to images", Alias: "image categorization"},
			want: "image classification assigning labels to images image categorization",
		},
		{
			name: "label only",
			p:    Problem{Label: "image classification"},
			want: "image classification",
		},
		{
			name: "whitespace fields collapse",
			p:    Problem{Label: "  image classification  ", Description: "   "},
			want: "image classification",
		},
		{
			name: "empty record gets placeholder",
			p:    Problem{ID: "R7"},
			want: UnknownLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.ComparisonText(); got != tt.want {
				t.Errorf("ComparisonText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWeightedText(t *testing.T) {
	p := Problem{Label: "semantic parsing", Description: "mapping text to logic"}

	got := p.WeightedText(3)
	if n := strings.Count(got, "semantic parsing"); n != 3 {
		t.Errorf("WeightedText(3) repeats label %d times, want 3: %q", n, got)
	}
	if !strings.Contains(got, "mapping text to logic") {
		t.Errorf("WeightedText(3) missing description: %q", got)
	}

	// Weights below 1 still include the label once.
	got = p.WeightedText(0)
	if n := strings.Count(got, "semantic parsing"); n != 1 {
		t.Errorf("WeightedText(0) repeats label %d times, want 1: %q", n, got)
	}
}

func TestWeightedTextEmptyRecord(t *testing.T) {
	p := Problem{ID: "R9"}
	if got := p.WeightedText(3); got != UnknownLabel {
		t.Errorf("WeightedText on empty record = %q, want %q", got, UnknownLabel)
	}
}
