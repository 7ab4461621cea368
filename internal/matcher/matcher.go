// Package matcher orchestrates a match run end to end: fetch candidates
// from the knowledge base page by page, enrich sparse records, score them
// against the query, and cache the assembled response. A run never fails
// outward; whatever goes wrong is reported inside the response.
package matcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/akinlab/akin/internal/kb"
	"github.com/akinlab/akin/internal/lexical"
	"github.com/akinlab/akin/internal/match"
	"github.com/akinlab/akin/internal/problem"
	"github.com/akinlab/akin/internal/ttlcache"
)

// Pipeline defaults. Each has a With* option.
const (
	DefaultCacheTTL      = 30 * time.Minute
	DefaultCacheEntries  = 256
	DefaultMaxCandidates = 200
	DefaultPageSize      = 50
	DefaultChunkSize     = 20
	DefaultLookupWorkers = 4
)

// Scorer ranks candidates against a query. embedding.Client implements it;
// a nil Scorer makes the matcher score every run lexically.
type Scorer interface {
	FindSimilar(ctx context.Context, query string, candidates []problem.Problem, threshold float64, maxResults int) (match.Response, error)
}

// Stats counts matcher activity since construction.
type Stats struct {
	Matches           int64   `json:"matches"`
	CacheHits         int64   `json:"cache_hits"`
	SharedResults     int64   `json:"shared_results"`
	DegradedMatches   int64   `json:"degraded_matches"`
	CandidatesFetched int64   `json:"candidates_fetched"`
	EnrichFailures    int64   `json:"enrich_failures"`
	AvgProcessingMs   float64 `json:"avg_processing_ms"`
}

// Matcher runs the matching pipeline against one candidate source.
type Matcher struct {
	source kb.Source
	scorer Scorer

	cache         *ttlcache.Cache[match.Response]
	cacheTTL      time.Duration
	maxCandidates int
	pageSize      int
	chunkSize     int
	lookupWorkers int
	warn          io.Writer

	sf      singleflight.Group
	mu      sync.Mutex
	stats   Stats
	totalMs int64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithCache replaces the default result cache. The cache should be built
// with match.Response.Clone as its Clone hook; without it, callers share
// result slices with stored entries.
func WithCache(c *ttlcache.Cache[match.Response]) Option {
	return func(m *Matcher) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithCacheTTL sets how long a match response stays cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Matcher) {
		if ttl > 0 {
			m.cacheTTL = ttl
		}
	}
}

// WithMaxCandidates caps how many candidates one run fetches.
func WithMaxCandidates(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.maxCandidates = n
		}
	}
}

// WithPageSize sets the candidate fetch page size.
func WithPageSize(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// WithChunkSize sets how many records are enriched between progress
// updates and cancellation checks.
func WithChunkSize(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.chunkSize = n
		}
	}
}

// WithLookupWorkers bounds the concurrent attribute lookups per chunk.
func WithLookupWorkers(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.lookupWorkers = n
		}
	}
}

// WithWarnWriter redirects non-fatal pipeline warnings. nil silences them.
func WithWarnWriter(w io.Writer) Option {
	return func(m *Matcher) { m.warn = w }
}

// New creates a matcher over source. scorer may be nil, in which case all
// scoring is lexical.
func New(source kb.Source, scorer Scorer, opts ...Option) *Matcher {
	m := &Matcher{
		source:        source,
		scorer:        scorer,
		cacheTTL:      DefaultCacheTTL,
		maxCandidates: DefaultMaxCandidates,
		pageSize:      DefaultPageSize,
		chunkSize:     DefaultChunkSize,
		lookupWorkers: DefaultLookupWorkers,
		warn:          os.Stderr,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = ttlcache.New(ttlcache.Options[match.Response]{
			MaxEntries: DefaultCacheEntries,
			DefaultTTL: m.cacheTTL,
			Clone:      match.Response.Clone,
		})
	}
	return m
}

// FindSimilarProblems runs the full pipeline for one query. The returned
// response is always structurally valid; failures set its Error field.
// Concurrent calls with the same query, collection, and threshold share a
// single pipeline run.
func (m *Matcher) FindSimilarProblems(ctx context.Context, query, collectionID string, opts match.Options) match.Response {
	start := time.Now()
	if opts.Threshold <= 0 {
		opts.Threshold = match.DefaultThreshold
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = match.DefaultMaxResults
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return m.errorResponse(opts, "empty query", start)
	}

	key := cacheKey(collectionID, query, opts.Threshold)
	if opts.UseCache {
		if resp, ok := m.cache.Get(key); ok {
			resp.CacheHit = true
			m.bump(func(s *Stats) { s.CacheHits++ })
			report(opts, match.Progress{Stage: match.StageDone, Found: resp.TotalFound})
			return resp
		}
	}

	v, _, shared := m.sf.Do(key, func() (any, error) {
		// A concurrent flight may have populated the cache while this
		// call waited its turn.
		if opts.UseCache {
			if resp, ok := m.cache.Get(key); ok {
				resp.CacheHit = true
				m.bump(func(s *Stats) { s.CacheHits++ })
				return resp, nil
			}
		}
		return m.run(ctx, key, query, collectionID, opts, start), nil
	})
	resp := v.(match.Response)
	if shared {
		m.bump(func(s *Stats) { s.SharedResults++ })
		if clone, err := resp.Clone(); err == nil {
			resp = clone
		}
	}
	return resp
}

// run executes one uncached pipeline pass.
func (m *Matcher) run(ctx context.Context, key, query, collectionID string, opts match.Options, start time.Time) match.Response {
	report(opts, match.Progress{Stage: match.StageFetching})
	candidates, err := m.fetchCandidates(ctx, collectionID, opts)
	if err != nil {
		return m.errorResponse(opts, err.Error(), start)
	}

	m.enrichCandidates(ctx, candidates, opts)
	if err := ctx.Err(); err != nil {
		return m.errorResponse(opts, err.Error(), start)
	}

	report(opts, match.Progress{Stage: match.StageScoring, Found: len(candidates), Total: len(candidates)})
	var resp match.Response
	scored := false
	if m.scorer != nil {
		r, serr := m.scorer.FindSimilar(ctx, query, candidates, opts.Threshold, opts.MaxResults)
		switch {
		case serr == nil:
			resp, scored = r, true
		case ctx.Err() != nil:
			return m.errorResponse(opts, ctx.Err().Error(), start)
		default:
			m.warnf("provider scoring failed, using text fallback: %v", serr)
		}
	}
	if !scored {
		resp = lexical.Score(query, candidates, opts.Threshold, opts.MaxResults)
		m.bump(func(s *Stats) { s.DegradedMatches++ })
	}
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	if opts.UseCache && resp.Error == "" && ctx.Err() == nil {
		report(opts, match.Progress{Stage: match.StageCaching, Found: len(candidates)})
		m.cache.Set(key, resp, m.cacheTTL)
	}

	m.mu.Lock()
	m.stats.Matches++
	m.totalMs += resp.ProcessingTimeMs
	m.mu.Unlock()
	report(opts, match.Progress{Stage: match.StageDone, Found: len(candidates)})
	return resp
}

// fetchCandidates accumulates pages until the collection is exhausted or
// maxCandidates is reached. A failure after the first page keeps the
// partial set; a failure with nothing fetched aborts the run.
func (m *Matcher) fetchCandidates(ctx context.Context, collectionID string, opts match.Options) ([]problem.Problem, error) {
	var candidates []problem.Problem
	page := 1
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		batch, total, err := m.source.FetchCandidates(ctx, collectionID, page, m.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(candidates) == 0 {
				return nil, fmt.Errorf("fetching candidates: %w", err)
			}
			m.warnf("fetching candidates page %d: %v; matching against partial set", page, err)
			break
		}
		candidates = append(candidates, batch...)
		report(opts, match.Progress{Stage: match.StageFetching, Found: len(candidates), Page: page})
		if len(batch) == 0 || len(candidates) >= total || len(candidates) >= m.maxCandidates {
			break
		}
		page++
	}
	if len(candidates) > m.maxCandidates {
		candidates = candidates[:m.maxCandidates]
	}
	m.bump(func(s *Stats) { s.CandidatesFetched += int64(len(candidates)) })
	return candidates, nil
}

// enrichCandidates fills missing descriptions and aliases in place,
// chunk by chunk with bounded parallelism. Lookup failures are logged and
// skipped; the affected record is scored with whatever text it has.
func (m *Matcher) enrichCandidates(ctx context.Context, candidates []problem.Problem, opts match.Options) {
	var needs []int
	for i := range candidates {
		if candidates[i].ID == "" {
			continue
		}
		if candidates[i].Description == "" || candidates[i].Alias == "" {
			needs = append(needs, i)
		}
	}
	report(opts, match.Progress{Stage: match.StageEnriching, Found: len(candidates), Total: len(needs)})

	for chunkStart := 0; chunkStart < len(needs); chunkStart += m.chunkSize {
		chunkEnd := min(chunkStart+m.chunkSize, len(needs))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.lookupWorkers)
		for _, i := range needs[chunkStart:chunkEnd] {
			i := i
			g.Go(func() error {
				return m.enrichOne(gctx, &candidates[i])
			})
		}
		// Only context errors propagate out of enrichOne.
		if err := g.Wait(); err != nil {
			return
		}
		report(opts, match.Progress{
			Stage:    match.StageEnriching,
			Found:    len(candidates),
			Enriched: chunkEnd,
			Total:    len(needs),
		})
	}
}

func (m *Matcher) enrichOne(ctx context.Context, p *problem.Problem) error {
	if p.Description == "" {
		v, err := m.source.FetchAttribute(ctx, p.ID, kb.AttrDescription)
		switch {
		case err == nil:
			p.Description = v
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			m.warnf("enriching %s description: %v", p.ID, err)
			m.bump(func(s *Stats) { s.EnrichFailures++ })
		}
	}
	if p.Alias == "" {
		v, err := m.source.FetchAttribute(ctx, p.ID, kb.AttrSameAs)
		switch {
		case err == nil:
			p.Alias = v
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			m.warnf("enriching %s alias: %v", p.ID, err)
			m.bump(func(s *Stats) { s.EnrichFailures++ })
		}
	}
	return nil
}

// InvalidateCollection drops cached responses for one collection, or every
// cached response when collectionID is empty. It returns the number of
// entries removed.
func (m *Matcher) InvalidateCollection(collectionID string) int {
	if collectionID == "" {
		return m.cache.Clear()
	}
	return m.cache.ClearByPrefix("match:" + collectionID + ":")
}

// CacheStats exposes the result cache counters.
func (m *Matcher) CacheStats() ttlcache.Stats {
	return m.cache.Stats()
}

// Stats returns a snapshot of the matcher counters. AvgProcessingMs
// covers full pipeline runs only, not cache hits.
func (m *Matcher) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	if s.Matches > 0 {
		s.AvgProcessingMs = float64(m.totalMs) / float64(s.Matches)
	}
	return s
}

func (m *Matcher) errorResponse(opts match.Options, msg string, start time.Time) match.Response {
	report(opts, match.Progress{Stage: match.StageError})
	return match.Response{
		AllResults:       []match.Result{},
		FilteredResults:  []match.Result{},
		Threshold:        opts.Threshold,
		Error:            msg,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (m *Matcher) warnf(format string, args ...any) {
	if m.warn == nil {
		return
	}
	fmt.Fprintf(m.warn, "Warning: "+format+"\n", args...)
}

func (m *Matcher) bump(f func(*Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}

func report(opts match.Options, p match.Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

// cacheKey identifies a run by collection, query content, and threshold.
// The query is hashed so arbitrarily long pasted text stays a short key.
func cacheKey(collectionID, query string, threshold float64) string {
	h := sha256.New()
	io.WriteString(h, query)
	return fmt.Sprintf("match:%s:%x:%.2f", collectionID, h.Sum(nil), threshold)
}
