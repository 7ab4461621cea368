package embedding

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/akinlab/akin/internal/lexical"
	"github.com/akinlab/akin/internal/match"
	"github.com/akinlab/akin/internal/problem"
)

// queryFirstLineMax caps how much of the query's first line is repeated
// as a title signal in the embedding input.
const queryFirstLineMax = 120

// QueryText builds the embedding input for a free-text query: the first
// line, capped at queryFirstLineMax characters, repeated twice as a title
// signal, then the full text. Long pasted abstracts keep their opening
// sentence dominant this way instead of drowning it.
func QueryText(query string) string {
	query = strings.TrimSpace(query)
	first := query
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = strings.TrimSpace(first[:i])
	}
	if runes := []rune(first); len(runes) > queryFirstLineMax {
		first = strings.TrimSpace(string(runes[:queryFirstLineMax]))
	}
	return first + "\n" + first + "\n" + query
}

// FindSimilar embeds the query and all candidates in one pass and ranks
// the candidates by cosine similarity, plus a small exact-overlap boost
// when enabled. The response tags every result with the strategy that
// actually produced the vectors: StrategyProvider, or
// StrategyProviderFallback when any vector had to be generated locally.
//
// An error is returned only when no vectors could be produced at all; the
// orchestrator treats that as its cue to use lexical scoring instead.
func (c *Client) FindSimilar(ctx context.Context, query string, candidates []problem.Problem, threshold float64, maxResults int) (match.Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return match.Response{Threshold: threshold}, ErrNoInput
	}

	resp := match.Response{
		AllResults:      []match.Result{},
		FilteredResults: []match.Result{},
		Threshold:       threshold,
		Strategy:        match.StrategyProvider,
	}
	if len(candidates) == 0 {
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, QueryText(query))
	for _, p := range candidates {
		texts = append(texts, p.WeightedText(c.labelWeight))
	}

	embs, err := c.Embed(ctx, texts, true)
	if err != nil {
		return match.Response{Threshold: threshold}, err
	}

	strategy := match.StrategyProvider
	for _, e := range embs {
		if e.Fallback {
			strategy = match.StrategyProviderFallback
			break
		}
	}

	queryVec := embs[0].Vector
	results := make([]match.Result, 0, len(candidates))
	for i, p := range candidates {
		sim := math.Max(0, Cosine(queryVec, embs[i+1].Vector))
		if c.boostEnabled {
			sim = math.Min(1.0, sim+c.keywordBoost(query, p.ComparisonText()))
		}
		results = append(results, match.Result{
			Problem:    p,
			Similarity: sim,
			Confidence: sim,
			Strategy:   strategy,
		})
	}
	match.SortResults(results)

	resp.AllResults = results
	resp.FilteredResults = match.FilterResults(results, threshold, maxResults)
	resp.TotalFound = len(candidates)
	resp.Bands = match.CountBands(results)
	resp.Strategy = strategy
	resp.MaxSimilarity = results[0].Similarity
	if match.NeedsRecommendation(resp.FilteredResults) {
		resp.RecommendedThreshold = match.RecommendedThreshold(resp.MaxSimilarity)
	}
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// keywordBoost rewards exact content-word overlap on top of embedding
// similarity. Embeddings capture topical closeness but can under-rank a
// candidate that names the query's own terms; a capped per-token bonus
// nudges those back up. Tokens past lexical.LongTokenLen count double.
func (c *Client) keywordBoost(query, text string) float64 {
	queryTokens := lexical.Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	inQuery := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		inQuery[tok] = struct{}{}
	}

	boost := 0.0
	counted := make(map[string]struct{})
	for _, tok := range lexical.Tokenize(text) {
		if _, ok := inQuery[tok]; !ok {
			continue
		}
		if _, dup := counted[tok]; dup {
			continue
		}
		counted[tok] = struct{}{}
		inc := c.boostPerToken
		if len(tok) > lexical.LongTokenLen {
			inc *= 2
		}
		boost += inc
	}
	return math.Min(boost, c.boostMax)
}
