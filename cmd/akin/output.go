package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akinlab/akin/internal/match"
)

// Output formatting constants.
const (
	QueryEchoMaxLen   = 70 // Query truncation in human match output
	LabelMaxLen       = 70 // Problem label truncation in result lists
	DescriptionMaxLen = 100 // Problem description truncation in result lists

	progressLineClearWidth = 60
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// UpdateResponse is the response for config set commands.
type UpdateResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatMillis formats a millisecond duration in a human-readable way.
func formatMillis(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// printStageProgress renders pipeline progress on a single stderr line.
func printStageProgress(p match.Progress) {
	switch p.Stage {
	case match.StageFetching:
		if p.Page > 0 {
			fmt.Fprintf(os.Stderr, "\r[%-9s] %d candidates (page %d)", p.Stage, p.Found, p.Page)
		} else {
			fmt.Fprintf(os.Stderr, "\r[%-9s] ...", p.Stage)
		}
	case match.StageEnriching:
		if p.Total > 0 {
			pct := float64(p.Enriched) / float64(p.Total) * 100
			fmt.Fprintf(os.Stderr, "\r[%-9s] %d/%d (%.0f%%)", p.Stage, p.Enriched, p.Total, pct)
		} else {
			fmt.Fprintf(os.Stderr, "\r[%-9s] nothing to enrich", p.Stage)
		}
	case match.StageScoring, match.StageCaching:
		fmt.Fprintf(os.Stderr, "\r[%-9s] %d candidates", p.Stage, p.Found)
	case match.StageDone, match.StageError:
		clearProgressLine()
	}
}

// clearProgressLine blanks the progress line before final output.
func clearProgressLine() {
	fmt.Fprintf(os.Stderr, "\r%*s\r", progressLineClearWidth, "")
}
