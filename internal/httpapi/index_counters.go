package httpapi

import "sync"

// IndexCounters tracks advisory document_id -> chunk_count pairs (spec:
// "Index counters... advisory only; not authoritative"). Ingestion
// handlers bump it after a successful chunk+index; the actual count of
// indexed chunks lives in the search/vector backends.
type IndexCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewIndexCounters constructs an empty IndexCounters.
func NewIndexCounters() *IndexCounters {
	return &IndexCounters{counts: map[string]int{}}
}

// Add increments docID's counter by n.
func (c *IndexCounters) Add(docID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[docID] += n
}

// Get returns docID's current counter.
func (c *IndexCounters) Get(docID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[docID]
}

// All returns a copy of the full counters map.
func (c *IndexCounters) All() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
