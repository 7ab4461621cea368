package main

import (
	"github.com/spf13/cobra"

	"github.com/akinlab/akin/internal/problem"
)

var (
	importCollection string
	listCollection   string
	listLimit        int
	listPage         int
)

func init() {
	rootCmd.AddCommand(problemsCmd)
	problemsCmd.AddCommand(problemsImportCmd)
	problemsCmd.AddCommand(problemsListCmd)
	problemsCmd.AddCommand(problemsShowCmd)
	problemsCmd.AddCommand(problemsCollectionsCmd)

	problemsImportCmd.Flags().StringVarP(&importCollection, "collection", "c", "", "Collection to file imported problems under")
	problemsListCmd.Flags().StringVarP(&listCollection, "collection", "c", "", "Only list problems in this collection")
	problemsListCmd.Flags().IntVarP(&listLimit, "limit", "l", 50, "Maximum number of problems to list")
	problemsListCmd.Flags().IntVarP(&listPage, "page", "p", 1, "Page of results to list")
}

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "Manage the problem catalogue",
}

// ImportResponse is the response for problems import.
type ImportResponse struct {
	Status     string `json:"status"`
	Imported   int    `json:"imported"`
	Collection string `json:"collection,omitempty"`
	Path       string `json:"path"`
}

var problemsImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import problems from a JSONL file",
	Long: `Import problem records from a JSONL file, one JSON object per line:

  {"id": "P123", "label": "image classification", "description": "...", "paper_count": 412}

Existing records with the same id are replaced. Records without a
collection_id are filed under --collection.`,
	Args: cobra.ExactArgs(1),
	RunE: runProblemsImport,
}

func runProblemsImport(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	collection := importCollection
	if collection == "" {
		collection = cfg.DefaultCollection
	}

	count, err := db.ImportProblemsJSONL(args[0], collection)
	if err != nil {
		exitWithError(ExitDataError, "importing problems: %v", err)
	}

	if humanOutput {
		outputHuman("Imported %d problems from %s\n", count, args[0])
	} else {
		outputJSON(ImportResponse{Status: "imported", Imported: count, Collection: collection, Path: args[0]})
	}
	return nil
}

// ListResponse is the response for problems list.
type ListResponse struct {
	Problems   []problem.Problem `json:"problems"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Collection string            `json:"collection,omitempty"`
}

var problemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued problems by paper count",
	RunE:  runProblemsList,
}

func runProblemsList(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	if listPage < 1 {
		listPage = 1
	}
	offset := (listPage - 1) * listLimit
	problems, total, err := db.ListProblems(listCollection, offset, listLimit)
	if err != nil {
		exitWithError(ExitError, "listing problems: %v", err)
	}

	if humanOutput {
		outputHuman("%d problems (page %d, showing %d)\n\n", total, listPage, len(problems))
		for _, p := range problems {
			outputHuman("%-12s %5d papers  %s\n", p.ID, p.PaperCount, truncateString(p.Label, LabelMaxLen))
		}
	} else {
		outputJSON(ListResponse{Problems: problems, Total: total, Page: listPage, Collection: listCollection})
	}
	return nil
}

var problemsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one catalogued problem",
	Args:  cobra.ExactArgs(1),
	RunE:  runProblemsShow,
}

func runProblemsShow(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	p, err := db.GetProblem(args[0])
	if err != nil {
		exitWithError(ExitError, "loading problem: %v", err)
	}
	if p == nil {
		exitWithError(ExitError, "problem %s not found", args[0])
	}

	if humanOutput {
		outputHuman("%s\n", p.ID)
		outputHuman("  Label: %s\n", p.Label)
		if p.Alias != "" {
			outputHuman("  Alias: %s\n", p.Alias)
		}
		if p.Description != "" {
			outputHuman("  Description: %s\n", p.Description)
		}
		outputHuman("  Papers: %d\n", p.PaperCount)
	} else {
		outputJSON(p)
	}
	return nil
}

// CollectionsResponse is the response for problems collections.
type CollectionsResponse struct {
	Collections map[string]int `json:"collections"`
	Total       int            `json:"total"`
}

var problemsCollectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections and their record counts",
	RunE:  runProblemsCollections,
}

func runProblemsCollections(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	collections, err := db.Collections()
	if err != nil {
		exitWithError(ExitError, "listing collections: %v", err)
	}

	total := 0
	for _, n := range collections {
		total += n
	}

	if humanOutput {
		outputHuman("%d collections, %d problems\n\n", len(collections), total)
		for name, n := range collections {
			if name == "" {
				name = "(none)"
			}
			outputHuman("%-20s %d\n", name, n)
		}
	} else {
		outputJSON(CollectionsResponse{Collections: collections, Total: total})
	}
	return nil
}
