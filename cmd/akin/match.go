package main

import (
	"context"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/akinlab/akin/internal/match"
	"github.com/akinlab/akin/internal/pdfx"
)

var (
	matchCollection string
	matchThreshold  float64
	matchLimit      int
	matchNoCache    bool
	matchPDF        string
	matchPDFPages   int
	noProgress      bool
)

func init() {
	// Load .env file if present (for AKIN_API_KEY / OPENAI_API_KEY)
	_ = godotenv.Load()

	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVarP(&matchCollection, "collection", "c", "", "Collection to match against (default: configured default, else all)")
	matchCmd.Flags().Float64VarP(&matchThreshold, "threshold", "t", match.DefaultThreshold, "Minimum similarity threshold (0.0-1.0)")
	matchCmd.Flags().IntVarP(&matchLimit, "limit", "l", match.DefaultMaxResults, "Maximum number of results")
	matchCmd.Flags().BoolVar(&matchNoCache, "no-cache", false, "Bypass the result cache")
	matchCmd.Flags().StringVar(&matchPDF, "pdf", "", "Extract the query from a PDF file instead of an argument")
	matchCmd.Flags().IntVar(&matchPDFPages, "pdf-pages", pdfx.DefaultMaxPages, "How many PDF pages to read with --pdf")
	matchCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress output")
}

var matchCmd = &cobra.Command{
	Use:   "match [query]",
	Short: "Find catalogued problems similar to a query",
	Long: `Match a free-text description against the problem catalogue.

The query is embedded and compared against every candidate problem. When
the embedding provider is unreachable the match still completes, first
with deterministic local vectors and, failing that, with lexical scoring.

The response always includes every scored candidate, the filtered set
above the threshold, and similarity band counts.

Examples:
  akin match "detecting objects in medical images" --collection cv
  akin match --pdf paper.pdf -t 0.5 --human`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	query := ""
	if len(args) > 0 {
		query = strings.TrimSpace(args[0])
	}
	if matchPDF != "" {
		if query != "" {
			exitWithError(ExitError, "pass a query argument or --pdf, not both")
		}
		text, err := pdfx.ExtractQueryText(matchPDF, matchPDFPages)
		if err != nil {
			exitWithError(ExitDataError, "extracting PDF text: %v", err)
		}
		if text == "" {
			exitWithError(ExitDataError, "no text could be extracted from %s (scanned/image PDF?)", matchPDF)
		}
		query = text
	}
	if query == "" {
		exitWithError(ExitError, "match query cannot be empty")
	}

	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	collection := matchCollection
	if collection == "" {
		collection = cfg.DefaultCollection
	}

	m := mustBuildMatcher(ctx, cfg, db)

	opts := match.Options{
		Threshold:  matchThreshold,
		MaxResults: matchLimit,
		UseCache:   !matchNoCache,
	}
	if humanOutput && !noProgress {
		opts.OnProgress = printStageProgress
	}

	resp := m.FindSimilarProblems(ctx, query, collection, opts)
	if humanOutput && !noProgress {
		clearProgressLine()
	}
	if resp.Error != "" {
		exitWithError(ExitError, "%s", resp.Error)
	}

	if humanOutput {
		printMatchHuman(query, resp)
	} else {
		outputJSON(resp)
	}
	return nil
}

func printMatchHuman(query string, resp match.Response) {
	outputHuman("Query: %q\n", truncateString(query, QueryEchoMaxLen))
	strategy := string(resp.Strategy)
	if resp.CacheHit {
		strategy += " (cached)"
	}
	outputHuman("Strategy: %s\n", strategy)
	outputHuman("Found %d/%d at or above %.2f in %s\n\n",
		len(resp.FilteredResults), resp.TotalFound, resp.Threshold, formatMillis(resp.ProcessingTimeMs))

	for i, r := range resp.FilteredResults {
		outputHuman("%d. [%.2f] %s\n", i+1, r.Similarity, r.Problem.ID)
		outputHuman("   %s\n", truncateString(r.Problem.Label, LabelMaxLen))
		if r.Problem.Description != "" {
			outputHuman("   %s\n", truncateString(r.Problem.Description, DescriptionMaxLen))
		}
		outputHuman("   %d papers\n\n", r.Problem.PaperCount)
	}

	if len(resp.FilteredResults) == 0 {
		outputHuman("No matches at or above %.2f (best score: %.2f)\n", resp.Threshold, resp.MaxSimilarity)
	}
	b := resp.Bands
	outputHuman("Bands: %d very high, %d high, %d moderate, %d low, %d very low\n",
		b.VeryHigh, b.High, b.Moderate, b.Low, b.VeryLow)
	if resp.RecommendedThreshold > 0 {
		outputHuman("Tip: few results at this threshold, retry with --threshold %.2f\n", resp.RecommendedThreshold)
	}
}
