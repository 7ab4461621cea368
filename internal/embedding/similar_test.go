package embedding

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/akinlab/akin/internal/match"
	"github.com/akinlab/akin/internal/problem"
)

func TestQueryText(t *testing.T) {
	t.Run("single line repeats as title", func(t *testing.T) {
		got := QueryText("short query")
		want := "short query\nshort query\nshort query"
		if got != want {
			t.Errorf("QueryText = %q, want %q", got, want)
		}
	})

	t.Run("multiline doubles first line", func(t *testing.T) {
		got := QueryText("Title line\nBody text here")
		want := "Title line\nTitle line\nTitle line\nBody text here"
		if got != want {
			t.Errorf("QueryText = %q, want %q", got, want)
		}
	})

	t.Run("long first line is capped", func(t *testing.T) {
		long := strings.Repeat("a", 300) + "\nbody"
		got := QueryText(long)
		firstLine := strings.SplitN(got, "\n", 2)[0]
		if len(firstLine) != queryFirstLineMax {
			t.Errorf("first line length = %d, want %d", len(firstLine), queryFirstLineMax)
		}
	})
}

func TestFindSimilarRanksByCosine(t *testing.T) {
	vectors := func(text string) []float32 {
		switch {
		case strings.HasPrefix(text, "querymark"):
			return []float32{1, 0}
		case strings.HasPrefix(text, "candone"):
			return []float32{1, 0}
		case strings.HasPrefix(text, "candtwo"):
			return []float32{0.6, 0.8}
		default:
			return []float32{0, 1}
		}
	}
	_, srv := newEmbedServer(t, vectors)
	c := newTestClient(t, srv.URL, WithoutKeywordBoost())

	candidates := []problem.Problem{
		{ID: "R1", Label: "candone"},
		{ID: "R2", Label: "candtwo"},
		{ID: "R3", Label: "candthree"},
	}

	resp, err := c.FindSimilar(context.Background(), "querymark", candidates, 0.5, 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}

	if resp.Strategy != match.StrategyProvider {
		t.Errorf("Strategy = %s, want %s", resp.Strategy, match.StrategyProvider)
	}
	if resp.TotalFound != 3 || len(resp.AllResults) != 3 {
		t.Fatalf("TotalFound = %d, AllResults = %d, want 3 and 3", resp.TotalFound, len(resp.AllResults))
	}

	wantOrder := []string{"R1", "R2", "R3"}
	for i, id := range wantOrder {
		if resp.AllResults[i].Problem.ID != id {
			t.Errorf("rank %d = %s, want %s", i, resp.AllResults[i].Problem.ID, id)
		}
	}
	if sim := resp.AllResults[0].Similarity; math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("top similarity = %v, want 1.0", sim)
	}
	if sim := resp.AllResults[1].Similarity; math.Abs(sim-0.6) > 1e-6 {
		t.Errorf("second similarity = %v, want 0.6", sim)
	}

	if len(resp.FilteredResults) != 2 {
		t.Errorf("FilteredResults = %d entries at threshold 0.5, want 2", len(resp.FilteredResults))
	}
	if math.Abs(resp.MaxSimilarity-1.0) > 1e-6 {
		t.Errorf("MaxSimilarity = %v, want 1.0", resp.MaxSimilarity)
	}
	// Two filtered results is sparse, so a recommendation is attached.
	if math.Abs(resp.RecommendedThreshold-0.9) > 1e-6 {
		t.Errorf("RecommendedThreshold = %v, want 0.9", resp.RecommendedThreshold)
	}

	wantBands := match.BandCounts{VeryHigh: 1, High: 1, VeryLow: 1}
	if resp.Bands != wantBands {
		t.Errorf("Bands = %+v, want %+v", resp.Bands, wantBands)
	}
}

func TestFindSimilarNegativeCosineClampsToZero(t *testing.T) {
	vectors := func(text string) []float32 {
		if strings.HasPrefix(text, "querymark") {
			return []float32{1, 0}
		}
		return []float32{-1, 0}
	}
	_, srv := newEmbedServer(t, vectors)
	c := newTestClient(t, srv.URL, WithoutKeywordBoost())

	resp, err := c.FindSimilar(context.Background(), "querymark",
		[]problem.Problem{{ID: "R1", Label: "opposite"}}, 0, 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if got := resp.AllResults[0].Similarity; got != 0 {
		t.Errorf("similarity = %v, want 0 (negative cosine clamped)", got)
	}
}

func TestFindSimilarKeywordBoost(t *testing.T) {
	// Orthogonal vectors isolate the boost: any similarity comes from
	// token overlap alone.
	vectors := func(text string) []float32 {
		if strings.HasPrefix(text, "transformer architectures") {
			return []float32{1, 0}
		}
		return []float32{0, 1}
	}

	t.Run("per-token with long-token doubling", func(t *testing.T) {
		_, srv := newEmbedServer(t, vectors)
		c := newTestClient(t, srv.URL)

		resp, err := c.FindSimilar(context.Background(),
			"transformer architectures for classification",
			[]problem.Problem{{ID: "R1", Label: "classification transformer"}}, 0, 10)
		if err != nil {
			t.Fatalf("FindSimilar: %v", err)
		}
		// Two shared tokens, both past the long-token cut: 2 * 0.04.
		if got := resp.AllResults[0].Similarity; math.Abs(got-0.08) > 1e-9 {
			t.Errorf("boosted similarity = %v, want 0.08", got)
		}
	})

	t.Run("boost is capped", func(t *testing.T) {
		_, srv := newEmbedServer(t, vectors)
		c := newTestClient(t, srv.URL, WithKeywordBoost(0.1, 0.15))

		resp, err := c.FindSimilar(context.Background(),
			"transformer architectures for classification",
			[]problem.Problem{{ID: "R1", Label: "classification transformer"}}, 0, 10)
		if err != nil {
			t.Fatalf("FindSimilar: %v", err)
		}
		if got := resp.AllResults[0].Similarity; math.Abs(got-0.15) > 1e-9 {
			t.Errorf("capped similarity = %v, want 0.15", got)
		}
	})

	t.Run("disabled boost leaves cosine alone", func(t *testing.T) {
		_, srv := newEmbedServer(t, vectors)
		c := newTestClient(t, srv.URL, WithoutKeywordBoost())

		resp, err := c.FindSimilar(context.Background(),
			"transformer architectures for classification",
			[]problem.Problem{{ID: "R1", Label: "classification transformer"}}, 0, 10)
		if err != nil {
			t.Fatalf("FindSimilar: %v", err)
		}
		if got := resp.AllResults[0].Similarity; got != 0 {
			t.Errorf("similarity = %v with boost disabled, want 0", got)
		}
	})
}

func TestFindSimilarEmptyQuery(t *testing.T) {
	_, srv := newEmbedServer(t, lenVector)
	c := newTestClient(t, srv.URL)

	_, err := c.FindSimilar(context.Background(), "   ", []problem.Problem{{ID: "R1", Label: "x"}}, 0.3, 10)
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("err = %v, want ErrNoInput", err)
	}
}

func TestFindSimilarNoCandidates(t *testing.T) {
	es, srv := newEmbedServer(t, lenVector)
	c := newTestClient(t, srv.URL)

	resp, err := c.FindSimilar(context.Background(), "query", nil, 0.3, 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(resp.AllResults) != 0 || len(resp.FilteredResults) != 0 || resp.TotalFound != 0 {
		t.Errorf("response not empty: %+v", resp)
	}
	if got := es.requestCount(); got != 0 {
		t.Errorf("requests = %d for empty candidate set, want 0", got)
	}
}

func TestFindSimilarTagsProviderFallback(t *testing.T) {
	es, srv := newEmbedServer(t, lenVector)
	es.setStatus(http.StatusInternalServerError)
	c := newTestClient(t, srv.URL, WithMaxRetries(0))

	resp, err := c.FindSimilar(context.Background(), "some query",
		[]problem.Problem{{ID: "R1", Label: "some label"}}, 0, 10)
	if err != nil {
		t.Fatalf("FindSimilar under provider outage: %v", err)
	}
	if resp.Strategy != match.StrategyProviderFallback {
		t.Errorf("Strategy = %s, want %s", resp.Strategy, match.StrategyProviderFallback)
	}
	for _, r := range resp.AllResults {
		if r.Strategy != match.StrategyProviderFallback {
			t.Errorf("result %s strategy = %s, want %s", r.Problem.ID, r.Strategy, match.StrategyProviderFallback)
		}
	}
}
