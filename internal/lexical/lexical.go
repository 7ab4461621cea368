// Package lexical scores query/candidate similarity from token overlap
// alone. It is the strategy of last resort: no network, no models, just
// term-frequency cosine over stop-word-filtered tokens. The matcher uses
// it whenever embedding-based scoring is unavailable or fails.
package lexical

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/akinlab/akin/internal/match"
	"github.com/akinlab/akin/internal/problem"
)

const (
	// minTokenLen is the length a token must exceed to be kept.
	minTokenLen = 3
	// LongTokenLen is the length past which a token counts double in
	// the term-frequency map. Longer tokens are almost always the
	// domain-bearing words.
	LongTokenLen = 6

	// scale stretches raw token-overlap cosine, which runs low compared
	// to embedding cosine, so both strategies work against comparable
	// thresholds. Scores clamp to 1.0.
	scale = 1.5

	// labelBonus rewards a candidate whose label appears verbatim in
	// the query.
	labelBonus = 0.1
)

// stopwords are common English words that carry no topical signal. Words
// of minTokenLen or fewer characters are already dropped by length, so
// only longer ones are listed.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"about", "above", "after", "again", "also", "among", "around",
		"based", "because", "been", "before", "being", "below", "between",
		"both", "could", "does", "doing", "down", "during", "each",
		"from", "further", "have", "having", "here", "into", "itself",
		"more", "most", "once", "only", "other", "over", "same", "should",
		"some", "such", "than", "that", "their", "them", "then", "there",
		"these", "they", "this", "those", "through", "under", "until",
		"used", "using", "very", "were", "what", "when", "where", "which",
		"while", "will", "with", "would",
	} {
		stopwords[w] = struct{}{}
	}
}

// Tokenize lowercases s, splits it on any non-alphanumeric rune, and
// returns the tokens longer than minTokenLen characters that are not
// stop-words. The embedding keyword boost shares this tokenizer so both
// strategies agree on what counts as a content word.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, tok := range fields {
		if len(tok) <= minTokenLen {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// termFrequency counts tokens, weighting tokens longer than LongTokenLen
// twice.
func termFrequency(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		w := 1.0
		if len(tok) > LongTokenLen {
			w = 2.0
		}
		tf[tok] += w
	}
	return tf
}

// cosineTF computes cosine similarity between two term-frequency maps.
// Empty maps yield zero.
func cosineTF(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for tok, wa := range a {
		normA += wa * wa
		if wb, ok := b[tok]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similarity scores how close text is to query on token overlap. The raw
// term-frequency cosine is stretched by scale and clamped to 1.0. The
// returned Overlap reports unique token counts for diagnostics.
func Similarity(query, text string) (float64, match.Overlap) {
	qtf := termFrequency(Tokenize(query))
	ctf := termFrequency(Tokenize(text))

	ov := match.Overlap{QueryTokens: len(qtf), CandidateTokens: len(ctf)}
	for tok := range qtf {
		if _, ok := ctf[tok]; ok {
			ov.SharedTokens++
		}
	}
	if len(qtf) == 0 || len(ctf) == 0 {
		return 0, ov
	}
	return math.Min(1.0, cosineTF(qtf, ctf)*scale), ov
}

// Score ranks candidates against query and assembles a complete response.
// Candidates whose label occurs verbatim in the query (case-insensitive)
// receive a small bonus on top of the overlap score.
func Score(query string, candidates []problem.Problem, threshold float64, maxResults int) match.Response {
	start := time.Now()
	queryLower := strings.ToLower(query)

	results := make([]match.Result, 0, len(candidates))
	for _, p := range candidates {
		sim, ov := Similarity(query, p.ComparisonText())
		if label := strings.ToLower(strings.TrimSpace(p.Label)); label != "" && strings.Contains(queryLower, label) {
			sim = math.Min(1.0, sim+labelBonus)
		}
		details := ov
		results = append(results, match.Result{
			Problem:    p,
			Similarity: sim,
			Confidence: sim,
			Strategy:   match.StrategyLexical,
			Details:    &details,
		})
	}
	match.SortResults(results)

	resp := match.Response{
		AllResults:      results,
		FilteredResults: match.FilterResults(results, threshold, maxResults),
		TotalFound:      len(candidates),
		Threshold:       threshold,
		Bands:           match.CountBands(results),
		Strategy:        match.StrategyLexical,
	}
	if len(results) > 0 {
		resp.MaxSimilarity = results[0].Similarity
		if match.NeedsRecommendation(resp.FilteredResults) {
			resp.RecommendedThreshold = match.RecommendedThreshold(resp.MaxSimilarity)
		}
	}
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp
}
