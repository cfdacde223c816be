package retrieve

import (
	"context"
	"math"
	"sort"
	"strings"
)

// Reranker optionally reorders retrieved items (e.g., via a cross-encoder).
// Implementations should not drop items and should preserve Metadata fields.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []RetrievedItem) ([]RetrievedItem, error)
}

// NoopReranker is the default implementation that leaves ordering unchanged.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, items []RetrievedItem) ([]RetrievedItem, error) {
	return items, nil
}

// KeywordReranker boosts items whose text contains a larger fraction of the
// query's terms. Score composition is multiplicative:
// score' = score × (1 + matchedRatio × Boost), matching the rerank
// semantics this module is grounded on (keyword reranker: score scaled up,
// never down, by lexical overlap).
type KeywordReranker struct {
	Boost float64 // e.g. 0.25
}

func (k KeywordReranker) Rerank(_ context.Context, query string, items []RetrievedItem) ([]RetrievedItem, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return items, nil
	}
	boost := k.Boost
	if boost <= 0 {
		boost = 0.25
	}
	out := make([]RetrievedItem, len(items))
	copy(out, items)
	for i := range out {
		hay := strings.ToLower(out[i].Text + " " + out[i].Snippet)
		matched := 0
		for _, t := range terms {
			if strings.Contains(hay, t) {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(terms))
		out[i].Score = out[i].Score * (1 + ratio*boost)
		if out[i].Explanation == nil {
			out[i].Explanation = map[string]any{}
		}
		out[i].Explanation["keyword_rerank_ratio"] = ratio
	}
	sortByScoreDesc(out)
	return out, nil
}

// LengthPriorReranker applies a mild penalty to very short snippets/texts,
// which tend to lack enough context to ground an answer, and to extremely
// long ones, which tend to be boilerplate sections rather than focused hits.
type LengthPriorReranker struct {
	IdealChars int // e.g. 400
}

func (l LengthPriorReranker) Rerank(_ context.Context, _ string, items []RetrievedItem) ([]RetrievedItem, error) {
	ideal := l.IdealChars
	if ideal <= 0 {
		ideal = 400
	}
	out := make([]RetrievedItem, len(items))
	copy(out, items)
	for i := range out {
		n := len(out[i].Text)
		if n == 0 {
			n = len(out[i].Snippet)
		}
		if n == 0 {
			continue
		}
		ratio := float64(n) / float64(ideal)
		// penalize deviation from ideal length in either direction, capped
		penalty := math.Abs(math.Log(ratio)) * 0.05
		if penalty > 0.3 {
			penalty = 0.3
		}
		out[i].Score = out[i].Score * (1 - penalty)
	}
	sortByScoreDesc(out)
	return out, nil
}

// DiversityReranker applies maximal-marginal-relevance-style selection over
// already-scored items using a cheap term-overlap similarity in place of a
// real embedding cosine distance, penalizing items too similar to ones
// already selected.
type DiversityReranker struct {
	Lambda float64 // relevance weight, 0..1; default 0.7
}

func (d DiversityReranker) Rerank(_ context.Context, _ string, items []RetrievedItem) ([]RetrievedItem, error) {
	if len(items) <= 1 {
		return items, nil
	}
	lambda := d.Lambda
	if lambda <= 0 {
		lambda = 0.7
	}
	pool := make([]RetrievedItem, len(items))
	copy(pool, items)
	sortByScoreDesc(pool)

	selected := make([]RetrievedItem, 0, len(pool))
	used := make([]bool, len(pool))
	termSets := make([]map[string]struct{}, len(pool))
	for i, it := range pool {
		termSets[i] = termSet(it.Text + " " + it.Snippet)
	}

	for len(selected) < len(pool) {
		best := -1
		bestScore := math.Inf(-1)
		for i, it := range pool {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for j := range selected {
				sIdx := indexOf(pool, selected[j].ID)
				if sIdx < 0 {
					continue
				}
				sim := jaccard(termSets[i], termSets[sIdx])
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*it.Score - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				best = i
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, pool[best])
		used[best] = true
	}
	return selected, nil
}

// CompositeReranker chains rerankers in order: each stage sees the previous
// stage's reordering and score adjustments.
type CompositeReranker struct {
	Stages []Reranker
}

func (c CompositeReranker) Rerank(ctx context.Context, query string, items []RetrievedItem) ([]RetrievedItem, error) {
	out := items
	for _, s := range c.Stages {
		var err error
		out, err = s.Rerank(ctx, query, out)
		if err != nil {
			return items, err
		}
	}
	return out, nil
}

func queryTerms(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func termSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range queryTerms(s) {
		out[t] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func indexOf(items []RetrievedItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func sortByScoreDesc(items []RetrievedItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
}
