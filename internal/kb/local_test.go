package kb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/akinlab/akin/internal/problem"
	"github.com/akinlab/akin/internal/storage"
)

func openSeededDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	records := []storage.ProblemRecord{
		{Problem: problem.Problem{ID: "P1", Label: "image classification", Description: "assigning labels to images", PaperCount: 40}, CollectionID: "cv"},
		{Problem: problem.Problem{ID: "P2", Label: "object detection", PaperCount: 25}, CollectionID: "cv"},
		{Problem: problem.Problem{ID: "P3", Label: "question answering", Alias: "QA", PaperCount: 90}, CollectionID: "nlp"},
	}
	if err := db.UpsertProblems(records); err != nil {
		t.Fatalf("UpsertProblems: %v", err)
	}
	return db
}

func TestFetchCandidatesPagination(t *testing.T) {
	src := NewLocalSource(openSeededDB(t))
	ctx := context.Background()

	page1, total, err := src.FetchCandidates(ctx, "cv", 1, 1)
	if err != nil {
		t.Fatalf("FetchCandidates page 1: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(page1) != 1 || page1[0].ID != "P1" {
		t.Errorf("page 1 = %+v, want [P1]", page1)
	}

	page2, _, err := src.FetchCandidates(ctx, "cv", 2, 1)
	if err != nil {
		t.Fatalf("FetchCandidates page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "P2" {
		t.Errorf("page 2 = %+v, want [P2]", page2)
	}

	past, _, err := src.FetchCandidates(ctx, "cv", 3, 1)
	if err != nil {
		t.Fatalf("FetchCandidates past end: %v", err)
	}
	if len(past) != 0 {
		t.Errorf("page past end returned %d records, want 0", len(past))
	}
}

func TestFetchCandidatesDefaultsAndAllCollections(t *testing.T) {
	src := NewLocalSource(openSeededDB(t))

	// Non-positive page and pageSize normalize to the first full page.
	all, total, err := src.FetchCandidates(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("FetchCandidates: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("got %d records (total %d), want 3 (total 3)", len(all), total)
	}
	if all[0].ID != "P3" {
		t.Errorf("first record = %s, want P3 (highest paper count)", all[0].ID)
	}
}

func TestFetchAttribute(t *testing.T) {
	src := NewLocalSource(openSeededDB(t))
	ctx := context.Background()

	tests := []struct {
		name      string
		recordID  string
		attribute string
		want      string
		wantErr   error
	}{
		{"description", "P1", AttrDescription, "assigning labels to images", nil},
		{"missing description is empty", "P2", AttrDescription, "", nil},
		{"alias", "P3", AttrSameAs, "QA", nil},
		{"unknown record", "P404", AttrDescription, "", ErrNotFound},
		{"unknown attribute", "P1", "license", "", ErrUnknownAttribute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.FetchAttribute(ctx, tt.recordID, tt.attribute)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchAttribute: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchHonorsCancellation(t *testing.T) {
	src := NewLocalSource(openSeededDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := src.FetchCandidates(ctx, "cv", 1, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchCandidates error = %v, want context.Canceled", err)
	}
	if _, err := src.FetchAttribute(ctx, "P1", AttrDescription); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAttribute error = %v, want context.Canceled", err)
	}
}
