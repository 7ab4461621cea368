package main

import (
	"github.com/spf13/cobra"

	"github.com/akinlab/akin/internal/storage"
)

var cacheClearModel string

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().StringVarP(&cacheClearModel, "model", "m", "", "Only clear vectors for this model")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the persistent vector cache",
}

// CacheStatsResponse is the response for cache stats.
type CacheStatsResponse struct {
	Models []storage.VectorStats `json:"models"`
	Total  int                   `json:"total_vectors"`
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached vector counts per model",
	RunE:  runCacheStats,
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	stats, err := db.VectorStatsByModel()
	if err != nil {
		exitWithError(ExitError, "reading vector stats: %v", err)
	}

	total := 0
	for _, s := range stats {
		total += s.Count
	}

	if humanOutput {
		outputHuman("%d cached vectors\n\n", total)
		for _, s := range stats {
			outputHuman("%-30s %6d vectors (dim %d)\n", s.Model, s.Count, s.Dim)
		}
	} else {
		outputJSON(CacheStatsResponse{Models: stats, Total: total})
	}
	return nil
}

// CacheClearResponse is the response for cache clear.
type CacheClearResponse struct {
	Status  string `json:"status"`
	Removed int64  `json:"removed"`
	Model   string `json:"model,omitempty"`
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached vectors",
	Long: `Delete cached embedding vectors from the catalogue database.

Without --model every cached vector is removed; matches will re-embed
their texts on the next run.`,
	RunE: runCacheClear,
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	removed, err := db.DeleteVectors(cacheClearModel)
	if err != nil {
		exitWithError(ExitError, "clearing vectors: %v", err)
	}

	if humanOutput {
		outputHuman("Removed %d cached vectors\n", removed)
	} else {
		outputJSON(CacheClearResponse{Status: "cleared", Removed: removed, Model: cacheClearModel})
	}
	return nil
}
