package databases

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Lexical TF-IDF backend (spec §4.D.3): an inverted index over chunk text,
// scored as Σ(tf × ln(N/df)) × w_tfidf + (matched/query_terms) × w_keyword.
// Grounded on the original lexical engine's tokenizer, scoring formula, and
// 300-char snippet window (kb-rag/src/lexical.rs), reimplemented without its
// async/RwLock plumbing since this package serializes access with a plain
// sync.RWMutex.

const (
	lexicalMinWordLength = 2
	lexicalMaxQueryTerms = 20
	lexicalTFIDFWeight   = 0.7
	lexicalKeywordWeight = 0.3
	lexicalSnippetWindow = 300
)

var lexicalStopwords = buildStopwords()

func buildStopwords() map[string]struct{} {
	words := []string{
		// English
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with",
		"by", "this", "that", "is", "are", "was", "were", "be", "been", "have", "has", "had",
		"do", "does", "did", "will", "would", "could", "should",
		// Chinese
		"的", "了", "在", "是", "我", "有", "和", "就", "不", "人", "都", "一", "一个", "上",
		"也", "很", "到", "说", "要", "去", "你", "会", "着", "没有", "看", "好", "自己", "这",
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// memorySearch is the in-process lexical TF-IDF full-text search backend.
type memorySearch struct {
	mu sync.RWMutex

	// invertedIndex maps term -> set of chunk IDs containing it.
	invertedIndex map[string]map[string]struct{}
	// documentTermFreq maps chunk ID -> term -> occurrence count within that chunk.
	documentTermFreq map[string]map[string]int
	// documents maps chunk ID -> stored text/metadata.
	documents map[string]lexicalDoc
}

type lexicalDoc struct {
	text     string
	metadata map[string]string
}

// NewMemorySearch constructs the lexical TF-IDF backend.
func NewMemorySearch() FullTextSearch {
	return &memorySearch{
		invertedIndex:    make(map[string]map[string]struct{}),
		documentTermFreq: make(map[string]map[string]int),
		documents:        make(map[string]lexicalDoc),
	}
}

func (m *memorySearch) Index(_ context.Context, id, text string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-indexing an existing id first retracts its old postings so the
	// inverted index doesn't accumulate stale term->chunk associations.
	if _, exists := m.documents[id]; exists {
		m.removeLocked(id)
	}

	tokens := tokenize(text, 0) // unbounded for indexing; the term cap only applies to queries
	tf := termFrequency(tokens)
	for term := range tf {
		set, ok := m.invertedIndex[term]
		if !ok {
			set = make(map[string]struct{})
			m.invertedIndex[term] = set
		}
		set[id] = struct{}{}
	}
	m.documentTermFreq[id] = tf
	m.documents[id] = lexicalDoc{text: text, metadata: copyMap(metadata)}
	return nil
}

func (m *memorySearch) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	return nil
}

func (m *memorySearch) removeLocked(id string) {
	tf, ok := m.documentTermFreq[id]
	if !ok {
		return
	}
	for term := range tf {
		if set, ok := m.invertedIndex[term]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(m.invertedIndex, term)
			}
		}
	}
	delete(m.documentTermFreq, id)
	delete(m.documents, id)
}

func (m *memorySearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return m.SearchChunks(ctx, query, "", limit, nil)
}

// SearchChunks runs the scored TF-IDF search, optionally constrained by a
// metadata filter (spec §4.D.3 doesn't name filters, but callers across this
// package always pass them through uniformly per §4.D.4's dispatcher).
func (m *memorySearch) SearchChunks(_ context.Context, query string, _ string, limit int, filter map[string]string) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}

	queryTerms := tokenize(query, lexicalMaxQueryTerms)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	totalDocs := len(m.documents)
	candidates := make(map[string]struct{})
	for _, term := range queryTerms {
		for id := range m.invertedIndex[term] {
			candidates[id] = struct{}{}
		}
	}

	results := make([]SearchResult, 0, len(candidates))
	for id := range candidates {
		d, ok := m.documents[id]
		if !ok || !metaMatches(d.metadata, filter) {
			continue
		}
		score, matched := lexicalScore(queryTerms, m.documentTermFreq[id], m.invertedIndex, totalDocs)
		if score <= 0 || matched == 0 {
			continue
		}
		results = append(results, SearchResult{
			ID:       id,
			Score:    score,
			Snippet:  lexicalSnippet(d.text, queryTerms),
			Text:     d.text,
			Metadata: copyMap(d.metadata),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// lexicalScore implements spec §4.D.3's exact formula:
// Σ(tf × ln(N/df)) × w_tfidf + (matched_terms/query_terms) × w_keyword.
func lexicalScore(queryTerms []string, docTF map[string]int, inverted map[string]map[string]struct{}, totalDocs int) (score float64, matched int) {
	if docTF == nil {
		return 0, 0
	}
	for _, term := range queryTerms {
		tf, ok := docTF[term]
		if !ok {
			continue
		}
		matched++
		df := len(inverted[term])
		if df == 0 {
			df = 1
		}
		idf := math.Log(float64(totalDocs) / float64(df))
		score += float64(tf) * idf * lexicalTFIDFWeight
	}
	if matched > 0 {
		score += (float64(matched) / float64(len(queryTerms))) * lexicalKeywordWeight
	}
	return score, matched
}

// lexicalSnippet centers a 300-char window on the first query-token match,
// eliding with "..." on either truncated side.
func lexicalSnippet(content string, queryTerms []string) string {
	runes := []rune(content)
	if len(runes) <= lexicalSnippetWindow {
		return content
	}
	lower := strings.ToLower(content)
	pos := -1
	for _, term := range queryTerms {
		if idx := strings.Index(lower, term); idx >= 0 {
			pos = utf8.RuneCountInString(lower[:idx])
			break
		}
	}
	if pos < 0 {
		pos = 0
	}
	start := pos - lexicalSnippetWindow/2
	if start < 0 {
		start = 0
	}
	end := start + lexicalSnippetWindow
	if end > len(runes) {
		end = len(runes)
	}
	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// tokenize lowercases, splits on whitespace/ASCII punctuation/Chinese
// punctuation, drops tokens shorter than min_word_length or in the
// stopword set, and caps at maxTerms (0 = unbounded, used for indexing).
func tokenize(text string, maxTerms int) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			return true
		}
		switch r {
		case '，', '。', '！', '？', '；', '：', '“', '”', '‘', '’', '（', '）', '【', '】', '《', '》':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < lexicalMinWordLength {
			continue
		}
		if _, stop := lexicalStopwords[f]; stop {
			continue
		}
		out = append(out, f)
		if maxTerms > 0 && len(out) >= maxTerms {
			break
		}
	}
	return out
}

func termFrequency(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func (m *memorySearch) GetByID(_ context.Context, id string) (SearchResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return SearchResult{}, false, nil
	}
	return SearchResult{ID: id, Text: d.text, Metadata: copyMap(d.metadata)}, true, nil
}

// Health reports Degraded when the index holds no chunks/documents yet.
func (m *memorySearch) Health(_ context.Context) Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.documents) == 0 {
		return Health{State: Degraded, Reason: "no chunks indexed"}
	}
	return Health{State: Healthy}
}

func metaMatches(md map[string]string, f map[string]string) bool {
	if len(f) == 0 {
		return true
	}
	for k, v := range f {
		if md[k] != v {
			return false
		}
	}
	return true
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
