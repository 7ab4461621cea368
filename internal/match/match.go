// Package match defines the result, response, and progress types shared by
// the scoring strategies and the matching orchestrator, plus the small
// ranking helpers (band counting, threshold filtering) that keep the two
// strategies' responses shaped identically.
package match

import (
	"math"
	"sort"

	"github.com/akinlab/akin/internal/problem"
)

// ScoringStrategy tags a result with the strategy that produced its
// similarity score, so callers can tell a provider-backed score from a
// degraded one.
type ScoringStrategy string

const (
	// StrategyProvider marks scores computed from provider embeddings.
	StrategyProvider ScoringStrategy = "provider"
	// StrategyProviderFallback marks scores computed from locally
	// generated vectors after the provider failed or was unavailable.
	StrategyProviderFallback ScoringStrategy = "provider-fallback"
	// StrategyLexical marks scores from the token-overlap fallback.
	StrategyLexical ScoringStrategy = "fallback-text"
)

// Default option values applied when a caller leaves them unset.
const (
	DefaultThreshold  = 0.3
	DefaultMaxResults = 10
)

// sparseResultCount is the filtered-set size below which a response
// carries a recommended threshold.
const sparseResultCount = 3

// Overlap describes the token overlap behind a lexical score.
type Overlap struct {
	SharedTokens    int `json:"shared_tokens"`
	QueryTokens     int `json:"query_tokens"`
	CandidateTokens int `json:"candidate_tokens"`
}

// Result is one scored candidate.
type Result struct {
	Problem    problem.Problem `json:"problem"`
	Similarity float64         `json:"similarity"`
	// Confidence mirrors Similarity. It exists as a separate field so
	// that a future calibration step can diverge from the raw score
	// without changing the response shape.
	Confidence float64         `json:"confidence_score"`
	Strategy   ScoringStrategy `json:"embedding_type"`
	Details    *Overlap        `json:"match_details,omitempty"`
}

// BandCounts groups all scored candidates into coarse similarity bands.
// The bands are diagnostic: they let a caller judge whether a low match
// count reflects a sparse collection or a threshold set too high.
type BandCounts struct {
	VeryHigh int `json:"very_high"` // >= 0.8
	High     int `json:"high"`      // 0.6 to 0.8
	Moderate int `json:"moderate"`  // 0.4 to 0.6
	Low      int `json:"low"`       // 0.2 to 0.4
	VeryLow  int `json:"very_low"`  // < 0.2
}

// Response is the complete outcome of one match run. It is always
// structurally valid: a failed run carries its message in Error alongside
// empty result slices rather than replacing the response.
type Response struct {
	AllResults      []Result        `json:"all_results"`
	FilteredResults []Result        `json:"filtered_results"`
	TotalFound      int             `json:"total_found"`
	MaxSimilarity   float64         `json:"max_similarity"`
	Threshold       float64         `json:"threshold"`
	// RecommendedThreshold is set when the filtered set came back
	// sparse; it suggests a cutoff just under the best observed score.
	RecommendedThreshold float64         `json:"recommended_threshold,omitempty"`
	Bands                BandCounts      `json:"bands"`
	Strategy             ScoringStrategy `json:"embedding_type"`
	ProcessingTimeMs     int64           `json:"processing_time_ms"`
	CacheHit             bool            `json:"cache_hit,omitempty"`
	Error                string          `json:"error,omitempty"`
}

// Clone returns a deep copy of the response. Cached responses are cloned
// on the way in and out of the cache so callers can never mutate a stored
// entry through a shared slice.
func (r Response) Clone() (Response, error) {
	out := r
	out.AllResults = cloneResults(r.AllResults)
	out.FilteredResults = cloneResults(r.FilteredResults)
	return out, nil
}

func cloneResults(rs []Result) []Result {
	if rs == nil {
		return nil
	}
	out := make([]Result, len(rs))
	copy(out, rs)
	for i := range out {
		if out[i].Details != nil {
			d := *out[i].Details
			out[i].Details = &d
		}
	}
	return out
}

// Stage identifies a phase of the matching pipeline for progress reporting.
type Stage string

const (
	StageFetching  Stage = "FETCHING"
	StageEnriching Stage = "ENRICHING"
	StageScoring   Stage = "SCORING"
	StageCaching   Stage = "CACHING"
	StageDone      Stage = "DONE"
	StageError     Stage = "ERROR"
)

// Progress is a point-in-time snapshot delivered to an Options.OnProgress
// callback. Found counts candidates accumulated so far; Enriched and Total
// are only meaningful during StageEnriching.
type Progress struct {
	Stage    Stage `json:"stage"`
	Found    int   `json:"found"`
	Page     int   `json:"page,omitempty"`
	Enriched int   `json:"enriched,omitempty"`
	Total    int   `json:"total,omitempty"`
}

// Options controls a single match run.
type Options struct {
	// Threshold is the minimum similarity for the filtered result set.
	// Values at or below zero fall back to DefaultThreshold.
	Threshold float64
	// MaxResults caps the filtered result set. Values at or below zero
	// fall back to DefaultMaxResults.
	MaxResults int
	// UseCache enables reading and writing the result cache.
	UseCache bool
	// OnProgress, when non-nil, receives pipeline stage updates. It is
	// called synchronously and must return quickly.
	OnProgress func(Progress)
}

// DefaultOptions returns the options used when a caller passes the zero
// value: default threshold and result cap, caching enabled.
func DefaultOptions() Options {
	return Options{
		Threshold:  DefaultThreshold,
		MaxResults: DefaultMaxResults,
		UseCache:   true,
	}
}

// SortResults orders results by similarity, highest first. Ties keep
// their existing relative order so repeated runs stay stable.
func SortResults(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Similarity > rs[j].Similarity
	})
}

// FilterResults returns the results at or above threshold, capped at
// maxResults when maxResults is positive. The input must already be
// sorted; the returned slice is a copy.
func FilterResults(rs []Result, threshold float64, maxResults int) []Result {
	out := make([]Result, 0, len(rs))
	for _, r := range rs {
		if r.Similarity >= threshold {
			out = append(out, r)
		}
	}
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// CountBands tallies every scored result into its similarity band.
func CountBands(rs []Result) BandCounts {
	var b BandCounts
	for _, r := range rs {
		switch {
		case r.Similarity >= 0.8:
			b.VeryHigh++
		case r.Similarity >= 0.6:
			b.High++
		case r.Similarity >= 0.4:
			b.Moderate++
		case r.Similarity >= 0.2:
			b.Low++
		default:
			b.VeryLow++
		}
	}
	return b
}

// RecommendedThreshold suggests a cutoff just below the best observed
// similarity, floored at 0.1 so the suggestion never drops to noise level.
func RecommendedThreshold(maxSimilarity float64) float64 {
	return math.Max(0.1, maxSimilarity-0.1)
}

// NeedsRecommendation reports whether a filtered set is sparse enough to
// warrant suggesting a lower threshold.
func NeedsRecommendation(filtered []Result) bool {
	return len(filtered) < sparseResultCount
}
