package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeywordReranker_BoostsMatchingItems(t *testing.T) {
	items := []RetrievedItem{
		{ID: "a", Score: 1.0, Text: "irrelevant content about gardening"},
		{ID: "b", Score: 1.0, Text: "golang concurrency patterns with channels"},
	}
	out, err := KeywordReranker{Boost: 0.5}.Rerank(context.Background(), "golang channels", items)
	require.NoError(t, err)
	require.Equal(t, "b", out[0].ID)
}

func TestLengthPriorReranker_PenalizesExtremes(t *testing.T) {
	items := []RetrievedItem{
		{ID: "short", Score: 1.0, Text: "x"},
		{ID: "ideal", Score: 1.0, Text: stringsRepeat("word ", 80)},
	}
	out, err := LengthPriorReranker{IdealChars: 400}.Rerank(context.Background(), "q", items)
	require.NoError(t, err)
	require.Equal(t, "ideal", out[0].ID)
}

func TestDiversityReranker_PrefersDistinctContent(t *testing.T) {
	items := []RetrievedItem{
		{ID: "a", Score: 1.0, Text: "apple banana cherry"},
		{ID: "b", Score: 0.99, Text: "apple banana cherry"},
		{ID: "c", Score: 0.9, Text: "zebra yak walrus"},
	}
	out, err := DiversityReranker{Lambda: 0.5}.Rerank(context.Background(), "q", items)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "a", out[0].ID)
}

func TestCompositeReranker_ChainsStages(t *testing.T) {
	items := []RetrievedItem{
		{ID: "a", Score: 1.0, Text: "golang channels"},
		{ID: "b", Score: 1.0, Text: "gardening tips"},
	}
	c := CompositeReranker{Stages: []Reranker{KeywordReranker{Boost: 0.5}, NoopReranker{}}}
	out, err := c.Rerank(context.Background(), "golang channels", items)
	require.NoError(t, err)
	require.Equal(t, "a", out[0].ID)
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
