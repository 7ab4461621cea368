// Package main provides the akin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinlab/akin/internal/config"
	"github.com/akinlab/akin/internal/embedding"
	"github.com/akinlab/akin/internal/kb"
	"github.com/akinlab/akin/internal/match"
	"github.com/akinlab/akin/internal/matcher"
	"github.com/akinlab/akin/internal/storage"
	"github.com/akinlab/akin/internal/ttlcache"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		// This ensures Cobra errors (like missing required flags) are visible
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "akin",
	Short: "Research problem similarity matcher",
	Long: `akin matches free-text descriptions against a catalogue of known
research problems.

Core features:
  - Problem catalogue imported from JSONL, stored in SQLite
  - Provider embeddings with deterministic local vectors when offline
  - Lexical fallback scoring so a match always returns a response
  - Persistent vector cache and in-process result cache

All commands output JSON by default for agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// mustLoadConfig loads the global config, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenDatabase opens the catalogue database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(cfg *config.Config) *storage.DB {
	path := cfg.DBPath()
	if path == "" {
		exitWithError(ExitConfigError, "cannot determine data directory (set data_dir with 'akin config set data_dir <path>')")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		exitWithError(ExitError, "creating data directory: %v", err)
	}
	db, err := storage.OpenDB(path)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// newEmbeddingClient wires the provider client from config. Vectors are
// persisted in the catalogue database so repeat matches skip the provider.
func newEmbeddingClient(cfg *config.Config, db *storage.DB) *embedding.Client {
	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.ResolveAPIKey()),
		embedding.WithPersistentStore(db),
	}
	if cfg.APIBase != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.APIBase))
	}
	if cfg.Model != "" {
		opts = append(opts, embedding.WithModel(cfg.Model))
	}
	if cfg.Dimension > 0 {
		opts = append(opts, embedding.WithDimension(cfg.Dimension))
	}
	if cfg.RequestsPerMinute > 0 {
		opts = append(opts, embedding.WithRequestsPerMinute(cfg.RequestsPerMinute))
	}
	if cfg.MaxBatchSize > 0 {
		opts = append(opts, embedding.WithMaxBatchSize(cfg.MaxBatchSize))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, embedding.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.RetryBaseDelayMs > 0 {
		opts = append(opts, embedding.WithRetryBaseDelay(time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond))
	}
	if cfg.RequestTimeoutS > 0 {
		opts = append(opts, embedding.WithRequestTimeout(time.Duration(cfg.RequestTimeoutS)*time.Second))
	}
	if cfg.KeywordBoost.Disabled {
		opts = append(opts, embedding.WithoutKeywordBoost())
	} else if cfg.KeywordBoost.PerToken > 0 || cfg.KeywordBoost.Max > 0 {
		opts = append(opts, embedding.WithKeywordBoost(cfg.KeywordBoost.PerToken, cfg.KeywordBoost.Max))
	}
	return embedding.NewClient(opts...)
}

// mustBuildMatcher assembles the full matching pipeline from config.
func mustBuildMatcher(ctx context.Context, cfg *config.Config, db *storage.DB) *matcher.Matcher {
	client := newEmbeddingClient(cfg, db)
	if err := client.Init(ctx); err != nil {
		exitWithError(ExitDataError, "initializing embedding provider: %v", err)
	}
	if humanOutput && client.FallbackActive() {
		fmt.Fprintf(os.Stderr, "Warning: embedding provider unavailable, using local fallback vectors\n")
	}

	var opts []matcher.Option
	if cfg.MaxCandidates > 0 {
		opts = append(opts, matcher.WithMaxCandidates(cfg.MaxCandidates))
	}
	if cfg.PageSize > 0 {
		opts = append(opts, matcher.WithPageSize(cfg.PageSize))
	}
	if cfg.ChunkSize > 0 {
		opts = append(opts, matcher.WithChunkSize(cfg.ChunkSize))
	}
	if cfg.LookupWorkers > 0 {
		opts = append(opts, matcher.WithLookupWorkers(cfg.LookupWorkers))
	}
	cacheTTL := matcher.DefaultCacheTTL
	if cfg.Cache.TTLMinutes > 0 {
		cacheTTL = time.Duration(cfg.Cache.TTLMinutes) * time.Minute
		opts = append(opts, matcher.WithCacheTTL(cacheTTL))
	}
	if cfg.Cache.MaxEntries > 0 {
		cache := ttlcache.New(ttlcache.Options[match.Response]{
			MaxEntries: cfg.Cache.MaxEntries,
			DefaultTTL: cacheTTL,
			Clone:      match.Response.Clone,
		})
		if cfg.Cache.CleanupIntervalS > 0 {
			cache.StartJanitor(time.Duration(cfg.Cache.CleanupIntervalS) * time.Second)
		}
		opts = append(opts, matcher.WithCache(cache))
	}
	return matcher.New(kb.NewLocalSource(db), client, opts...)
}
