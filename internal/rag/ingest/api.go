package ingest

import "time"

// IngestRequest describes a single document ingestion operation.
// The service is responsible for chunking, indexing into FTS/vector stores,
// and attaching graph relationships according to options. Page/Tags/
// CreatedAt/CustomFields carry the per-document values of a chunk record's
// optional fields (data model §3): the chunker doesn't produce distinct
// values per chunk, so every chunk of a document shares them.
type IngestRequest struct {
	// ID is the unified document ID (e.g., doc:<namespace>:<slug|hash>).
	ID string
	// Title is an optional document title for display and ranking features.
	Title string
	// URL is an optional canonical location for the document.
	URL string
	// Source describes where the document came from (e.g., github, web, file).
	Source string
	// Text is the raw, full document content to be chunked.
	Text string
	// Metadata holds arbitrary key/value metadata. Values should be JSON-serializable.
	Metadata map[string]any
	// Language preferred tokenizer configuration (e.g., "english"). If empty, auto-detect or default.
	Language string
	// Tenant for multi-tenant isolation. When empty, defaults are applied by the service.
	Tenant string
	// Page is the source page number, when the document came from a paginated
	// format (e.g. a PDF).
	Page int
	// Tags is a free-form set of labels attached to every chunk of this document.
	Tags []string
	// CreatedAt is a unix-seconds timestamp; the caller's ingest time is used
	// when it's left zero.
	CreatedAt int64
	// CustomFields carries arbitrary caller-supplied key/value data through to
	// each chunk record.
	CustomFields map[string]any
	// Options drives how the ingestion should behave.
	Options IngestOptions
}

// IngestOptions controls chunking, embeddings, and graph handling.
type IngestOptions struct {
	// Chunking controls how the input text is split into chunks.
	Chunking ChunkingOptions
	// Embedding controls whether/how to generate and store embeddings.
	Embedding EmbeddingOptions
	// Graph controls whether/how to upsert nodes and edges.
	Graph GraphOptions
	// Append controls re-ingest behavior for a document ID that already has
	// indexed chunks: false replaces them (new chunks overwrite by index,
	// in place), true appends starting after the last known chunk index.
	Append bool
	// IdempotencyKey allows callers to de-duplicate repeated ingestion attempts
	// at the job level; it does not depend on document content.
	IdempotencyKey string
}

// ChunkingOptions describes the chunking strategy.
type ChunkingOptions struct {
	// Strategy name: "markdown" (or "md") or "code"; any other value selects
	// the word-bounded splitter.
	Strategy string
	// MaxTokens per chunk (semantic; implementation may map to characters when tokenization is unavailable).
	MaxTokens int
	// Overlap tokens between sequential chunks.
	Overlap int
}

// EmbeddingOptions controls vector embedding generation.
type EmbeddingOptions struct {
	// Enabled toggles vector embedding upsert.
	Enabled bool
	// Model is a hint or identifier for the embedding model to use.
	Model string
	// Dimensions is optional; when zero, derive from configured backend.
	Dimensions int
}

// GraphOptions controls creation of Doc/Chunk/ExternalRef nodes and edges.
type GraphOptions struct {
	// Enabled toggles graph augmentation.
	Enabled bool
	// ExternalRefs optional external references to attach via REFERS_TO.
	ExternalRefs map[string]string
}

// IngestResponse summarizes the mutation performed.
type IngestResponse struct {
	DocID    string
	ChunkIDs []string
	// Stats captures operational metrics for the ingestion.
	Stats IngestStats
	// Warnings captures non-fatal issues encountered.
	Warnings []string
}

// IngestStats captures ingestion-time statistics for observability and evaluation.
type IngestStats struct {
	NumChunks     int
	TotalTokens   int
	VectorUpserts int
	Duration      time.Duration
}
