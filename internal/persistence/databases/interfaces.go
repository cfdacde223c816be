package databases

import (
	"context"
)

// HealthState is the coarse status a backend reports about its own ability
// to serve traffic, per the shared retrieval-backend health contract.
type HealthState int

const (
	Healthy HealthState = iota
	Degraded
	Unhealthy
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Health reports a backend's status. Reason explains a Degraded state
// (e.g. "no chunks indexed"); Err carries the failure behind Unhealthy.
type Health struct {
	State  HealthState
	Reason string
	Err    error
}

// SearchResult represents a single hit from the full-text search backend.
type SearchResult struct {
	ID       string
	Score    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// FullTextSearch defines the minimum interface for a pluggable FTS backend.
// Chunk-aware search, snippet generation, and chunk-table capabilities are
// optional extensions probed via type assertion (see retrieve.candidates,
// retrieve.snippet, ingest.index_search) rather than part of this contract:
// the Postgres backend implements all three, the in-memory backend only
// chunk-aware search (SearchChunks).
type FullTextSearch interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	GetByID(ctx context.Context, id string) (SearchResult, bool, error)
	Health(ctx context.Context) Health
}

// VectorResult represents a single nearest neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // Higher is closer by default
	Metadata map[string]string
}

// VectorStore defines the minimum interface for a pluggable vector store.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
	Health(ctx context.Context) Health
}

// Node is a minimal in-memory representation of a graph node.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// GraphDB defines a portable interface for minimal graph operations.
type GraphDB interface {
	UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error
	UpsertEdge(ctx context.Context, srcID, rel, dstID string, props map[string]any) error
	Neighbors(ctx context.Context, id string, rel string) ([]string, error)
	GetNode(ctx context.Context, id string) (Node, bool)
	Health(ctx context.Context) Health
}

// Manager holds concrete database backends resolved from configuration.
type Manager struct {
	Search FullTextSearch
	Vector VectorStore
	Graph  GraphDB
}

// Health aggregates the three backend healths into one status: the worst of
// the three wins (Unhealthy > Degraded > Healthy) and is returned with its
// err; a non-empty reason is prefixed with the backend that produced it.
func (m Manager) Health(ctx context.Context) Health {
	worst := Health{State: Healthy}
	consider := func(name string, h Health) {
		if h.State > worst.State {
			if h.Reason != "" {
				h.Reason = name + ": " + h.Reason
			}
			worst = h
		}
	}
	if m.Search != nil {
		consider("search", m.Search.Health(ctx))
	}
	if m.Vector != nil {
		consider("vector", m.Vector.Health(ctx))
	}
	if m.Graph != nil {
		consider("graph", m.Graph.Health(ctx))
	}
	return worst
}

// Close attempts to close any underlying pools. It's a no-op for memory backends.
func (m Manager) Close() {
	if c, ok := any(m.Search).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Vector).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Graph).(interface{ Close() }); ok {
		c.Close()
	}
}
