package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/akinlab/akin/internal/ttlcache"
)

// Defaults for the OpenAI-compatible embeddings endpoint.
const (
	DefaultBaseURL            = "https://api.openai.com/v1"
	DefaultModel              = "text-embedding-3-small"
	DefaultDimension          = 1536
	DefaultMaxBatchSize       = 100
	DefaultMaxRetries         = 3
	DefaultRetryBaseDelay     = 500 * time.Millisecond
	DefaultRequestsPerMinute  = 60
	DefaultMinRequestInterval = 50 * time.Millisecond
	DefaultRequestTimeout     = 30 * time.Second
	DefaultLabelWeight        = 3

	// Keyword boost defaults: per shared content word, doubled past
	// lexical.LongTokenLen, capped.
	DefaultBoostPerToken = 0.02
	DefaultBoostMax      = 0.15

	memoMaxEntries = 2048
	memoTTL        = 24 * time.Hour
)

// Sentinel errors. Provider failures wrap one of these, so callers can
// classify with errors.Is regardless of the HTTP details underneath.
var (
	ErrNoInput     = errors.New("no non-empty texts to embed")
	ErrAuth        = errors.New("embedding provider rejected credentials")
	ErrRateLimited = errors.New("embedding provider rate limited")
	ErrProvider    = errors.New("embedding provider request failed")
)

// APIError is a non-2xx response from the embeddings endpoint.
type APIError struct {
	StatusCode int
	Message    string
	// RetryAfter is the provider's requested wait, parsed from the
	// Retry-After header on 429 responses. Zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("embeddings API error %d", e.StatusCode)
	}
	return fmt.Sprintf("embeddings API error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrAuth
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrProvider
	}
}

// retryable reports whether another attempt could succeed.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Store persists vectors across process runs, keyed by model and text
// hash. Implementations must be safe for concurrent use.
type Store interface {
	GetVector(model, textHash string) ([]float32, bool, error)
	PutVector(model, textHash string, vector []float32) error
}

// Stats is a snapshot of client activity since construction.
type Stats struct {
	Requests       int64  `json:"requests"`
	Retries        int64  `json:"retries"`
	TextsEmbedded  int64  `json:"texts_embedded"`
	MemoHits       int64  `json:"memo_hits"`
	StoreHits      int64  `json:"store_hits"`
	StoreErrors    int64  `json:"store_errors,omitempty"`
	FallbackTexts  int64  `json:"fallback_texts"`
	TotalTokens    int64  `json:"total_tokens"`
	FallbackActive bool   `json:"fallback_active"`
	Dimension      int    `json:"dimension"`
	Model          string `json:"model"`
}

// Client talks to an OpenAI-compatible embeddings endpoint.
//
// Two limiters gate every request: a requests-per-minute budget and a
// minimum gap between consecutive requests. Both are waited on before
// each attempt, retries included, so retry bursts cannot blow the budget.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	timeout    time.Duration

	maxBatch   int
	maxRetries int
	retryBase  time.Duration

	rpm         int
	minInterval time.Duration
	budget      *rate.Limiter
	spacing     *rate.Limiter

	memo    *ttlcache.Cache[[]float32]
	memoSet bool
	store   Store

	labelWeight   int
	boostEnabled  bool
	boostPerToken float64
	boostMax      float64
	allowFallback bool

	mu        sync.Mutex
	dimension int
	fallback  bool
	stats     Stats
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token. An empty key puts the client in
// permanent fallback mode at Init.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithModel sets the embedding model identifier.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets the API root, e.g. "https://api.openai.com/v1".
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithDimension sets the expected vector dimension. The dimension of the
// first successful response wins over this hint.
func WithDimension(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.dimension = n
		}
	}
}

// WithMaxBatchSize caps how many texts go into one API request.
func WithMaxBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBatch = n
		}
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryBaseDelay sets the first retry delay; later retries double it.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBase = d
		}
	}
}

// WithRequestsPerMinute sets the request budget.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.rpm = n
		}
	}
}

// WithMinRequestInterval sets the minimum gap between requests.
func WithMinRequestInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.minInterval = d
		}
	}
}

// WithRequestTimeout bounds each HTTP request. Ignored when a custom
// HTTP client is supplied.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client, timeouts and all.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMemoCache replaces the in-memory vector memo. Pass nil to disable
// memoization.
func WithMemoCache(memo *ttlcache.Cache[[]float32]) Option {
	return func(c *Client) { c.memo = memo; c.memoSet = true }
}

// WithPersistentStore attaches a vector store consulted after the memo
// and written through on provider success.
func WithPersistentStore(s Store) Option {
	return func(c *Client) { c.store = s }
}

// WithKeywordBoost tunes the exact-overlap bonus added on top of cosine
// similarity in FindSimilar.
func WithKeywordBoost(perToken, max float64) Option {
	return func(c *Client) {
		if perToken > 0 && max > 0 {
			c.boostEnabled = true
			c.boostPerToken = perToken
			c.boostMax = max
		}
	}
}

// WithoutKeywordBoost disables the exact-overlap bonus.
func WithoutKeywordBoost() Option {
	return func(c *Client) { c.boostEnabled = false }
}

// WithLabelWeight sets how many times FindSimilar repeats a candidate
// label in its embedding input.
func WithLabelWeight(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.labelWeight = n
		}
	}
}

// WithoutFallback makes provider failures surface as errors instead of
// degrading to locally generated vectors.
func WithoutFallback() Option {
	return func(c *Client) { c.allowFallback = false }
}

// NewClient builds a client with the given options applied over the
// package defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:       DefaultBaseURL,
		model:         DefaultModel,
		dimension:     DefaultDimension,
		maxBatch:      DefaultMaxBatchSize,
		maxRetries:    DefaultMaxRetries,
		retryBase:     DefaultRetryBaseDelay,
		rpm:           DefaultRequestsPerMinute,
		minInterval:   DefaultMinRequestInterval,
		timeout:       DefaultRequestTimeout,
		labelWeight:   DefaultLabelWeight,
		boostEnabled:  true,
		boostPerToken: DefaultBoostPerToken,
		boostMax:      DefaultBoostMax,
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if !c.memoSet {
		c.memo = ttlcache.New[[]float32](ttlcache.Options[[]float32]{
			MaxEntries: memoMaxEntries,
			DefaultTTL: memoTTL,
		})
	}
	c.budget = rate.NewLimiter(rate.Limit(float64(c.rpm)/60.0), c.rpm)
	c.spacing = rate.NewLimiter(rate.Every(c.minInterval), 1)
	return c
}

// Init verifies connectivity with one tiny probe request. Without an API
// key, or when the probe fails and fallback is allowed, the client enters
// permanent fallback mode and Init reports nil: the caller still has a
// working scorer, just a degraded one.
func (c *Client) Init(ctx context.Context) error {
	if c.apiKey == "" {
		c.enterFallback()
		return nil
	}
	if _, err := c.embedBatch(ctx, []string{"ping"}); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if c.allowFallback {
			c.enterFallback()
			return nil
		}
		return fmt.Errorf("embedding provider probe: %w", err)
	}
	return nil
}

// Embed returns one vector per non-empty input text, in input order.
// Texts are trimmed and empty ones dropped; an all-empty input returns
// ErrNoInput. Vectors come from the memo, then the persistent store,
// then the provider in batches of at most the configured size. When a
// provider batch fails permanently, only that batch's uncached texts get
// deterministic fallback vectors; cached texts keep their real ones.
// With normalize set, every returned vector is unit length.
func (c *Client) Embed(ctx context.Context, texts []string, normalize bool) ([]Embedding, error) {
	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		if s := strings.TrimSpace(t); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return nil, ErrNoInput
	}

	out := make([]Embedding, len(trimmed))
	for start := 0; start < len(trimmed); start += c.maxBatch {
		end := min(start+c.maxBatch, len(trimmed))
		if err := c.embedChunk(ctx, trimmed[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}

	if normalize {
		for i := range out {
			if !out[i].Normalized {
				Normalize(out[i].Vector)
				out[i].Normalized = true
			}
		}
	}
	return out, nil
}

// embedChunk fills out[i] for each texts[i]. Cache layers are consulted
// per text; a single provider call covers the rest.
func (c *Client) embedChunk(ctx context.Context, texts []string, out []Embedding) error {
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	missHashes := make([]string, 0, len(texts))

	for i, text := range texts {
		hash := HashText(text)
		if c.memo != nil {
			if vec, ok := c.memo.Get(c.memoKey(hash)); ok {
				out[i] = Embedding{Vector: copyVector(vec)}
				c.bump(func(s *Stats) { s.MemoHits++ })
				continue
			}
		}
		if c.store != nil {
			vec, ok, err := c.store.GetVector(c.model, hash)
			if err != nil {
				c.bump(func(s *Stats) { s.StoreErrors++ })
			} else if ok {
				out[i] = Embedding{Vector: copyVector(vec)}
				c.bump(func(s *Stats) { s.StoreHits++ })
				if c.memo != nil {
					c.memo.Set(c.memoKey(hash), copyVector(vec))
				}
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
		missHashes = append(missHashes, hash)
	}
	if len(missIdx) == 0 {
		return nil
	}

	if !c.FallbackActive() {
		vecs, err := c.embedBatch(ctx, missTexts)
		if err == nil {
			for j, i := range missIdx {
				out[i] = Embedding{Vector: vecs[j]}
				if c.memo != nil {
					c.memo.Set(c.memoKey(missHashes[j]), copyVector(vecs[j]))
				}
				if c.store != nil {
					if perr := c.store.PutVector(c.model, missHashes[j], vecs[j]); perr != nil {
						c.bump(func(s *Stats) { s.StoreErrors++ })
					}
				}
			}
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, ErrAuth) {
			// Bad credentials cannot heal without a restart.
			c.enterFallback()
		}
		if !c.allowFallback {
			return err
		}
	} else if !c.allowFallback {
		return fmt.Errorf("embedding provider unavailable: %w", ErrAuth)
	}

	dim := c.Dimension()
	for j, i := range missIdx {
		out[i] = Embedding{Vector: fallbackVector(missTexts[j], dim), Normalized: true, Fallback: true}
	}
	c.bump(func(s *Stats) { s.FallbackTexts += int64(len(missIdx)) })
	return nil
}

// embedBatch performs one provider call with retries. Each attempt waits
// on both limiters first. 429 responses honor the Retry-After header;
// other retryable failures back off exponentially from the base delay.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.bump(func(s *Stats) { s.Retries++ })
			if err := sleepContext(ctx, c.retryDelay(lastErr, attempt)); err != nil {
				return nil, err
			}
		}
		if err := c.waitTurn(ctx); err != nil {
			return nil, err
		}

		vecs, err := c.requestEmbeddings(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) retryDelay(err error, attempt int) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return c.retryBase << (attempt - 1)
}

func (c *Client) waitTurn(ctx context.Context) error {
	if err := c.budget.Wait(ctx); err != nil {
		return err
	}
	return c.spacing.Wait(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type embedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// requestEmbeddings performs a single POST /embeddings call.
func (c *Client) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{
		Input:          texts,
		Model:          c.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.bump(func(s *Stats) { s.Requests++ })
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProvider, len(parsed.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProvider, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrProvider, i)
		}
	}

	c.mu.Lock()
	if n := len(vecs[0]); n > 0 && n != c.dimension {
		// The provider's actual dimension overrides the configured hint.
		c.dimension = n
	}
	c.stats.TextsEmbedded += int64(len(texts))
	c.stats.TotalTokens += parsed.Usage.TotalTokens
	c.mu.Unlock()

	return vecs, nil
}

func newAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return apiErr
}

func (c *Client) memoKey(textHash string) string {
	return c.model + ":" + textHash
}

func (c *Client) enterFallback() {
	c.mu.Lock()
	c.fallback = true
	c.mu.Unlock()
}

// FallbackActive reports whether the client has permanently switched to
// locally generated vectors.
func (c *Client) FallbackActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

// Dimension returns the current vector dimension: the configured hint
// until the first provider response, the provider's actual dimension
// after.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Stats returns a snapshot of client counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.FallbackActive = c.fallback
	s.Dimension = c.dimension
	s.Model = c.model
	return s
}

func (c *Client) bump(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}
