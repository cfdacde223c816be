package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ragkit/internal/persistence/databases"
)

// chunkTableChecker is an optional capability of a FullTextSearch backend.
type chunkTableChecker interface {
	HasChunksTable(ctx context.Context) (bool, error)
}

// chunkUpserter is an optional capability of a FullTextSearch backend.
type chunkUpserter interface {
	UpsertChunk(ctx context.Context, chunkID, docID string, idx int, text string, metadata map[string]string, lang string) error
}

// UpsertDocumentToSearch writes/overwrites the document row in the FTS backend.
// Metadata is flattened to strings for compatibility with databases.FullTextSearch.
func UpsertDocumentToSearch(ctx context.Context, s databases.FullTextSearch, docID string, in IngestRequest, pre PreprocessedDoc) error {
	md := flattenMetadata(in.Metadata)
	// mandatory fields for observability and filtering
	md["type"] = "doc"
	if in.Title != "" {
		md["title"] = in.Title
	}
	if in.URL != "" {
		md["url"] = in.URL
	}
	if in.Source != "" {
		md["source"] = in.Source
	}
	if in.Tenant != "" {
		md["tenant"] = in.Tenant
	}
	if pre.Language != "" {
		md["lang"] = pre.Language
	}
	if pre.Hash != "" {
		md["doc_hash"] = pre.Hash
	}
	return s.Index(ctx, docID, pre.Text, md)
}

// ChunkRecord is the retrieval unit (spec §3 "Chunk record"): a document_id
// (carried separately as docID throughout this package), the embedding/
// display text, and optional page/tenant/source/tags/created_at/
// custom_fields. The record holds no chunk id; the Upsert* helpers derive
// it as "chunk:<docID>:<Index>".
type ChunkRecord struct {
	Index        int
	Text         string
	Page         int
	TenantID     string
	Source       string
	Tags         []string
	CreatedAt    int64 // unix seconds; filled with ingest time if zero
	CustomFields map[string]any
}

// UpsertChunksToSearch persists chunks. When the backend exposes a real chunks
// table, it is used; otherwise it falls back to separate documents with id prefix
// "chunk:" and metadata.type="chunk". Each chunk's own page/tags/created_at/
// custom_fields are merged into its metadata on top of the document-level base.
func UpsertChunksToSearch(ctx context.Context, s databases.FullTextSearch, docID string, lang string, chunks []ChunkRecord, in IngestRequest) ([]string, error) {
	// Determine capability
	hasTable := false
	if chk, ok := s.(chunkTableChecker); ok {
		exists, err := chk.HasChunksTable(ctx)
		if err != nil {
			return nil, err
		}
		hasTable = exists
	}

	base := baseChunkMetadata(in)
	ids := make([]string, 0, len(chunks))
	if hasTable {
		up, ok := s.(chunkUpserter)
		if !ok {
			// Should not happen: table exists but backend cannot upsert; fall back
			hasTable = false
		} else {
			for _, c := range chunks {
				chunkID := fmt.Sprintf("chunk:%s:%d", docID, c.Index)
				md := mergeChunkFields(base, c)
				if err := up.UpsertChunk(ctx, chunkID, docID, c.Index, c.Text, md, lang); err != nil {
					return nil, err
				}
				ids = append(ids, chunkID)
			}
			return ids, nil
		}
	}

	// Fallback: index chunks as individual documents
	base["lang"] = lang
	for _, c := range chunks {
		chunkID := fmt.Sprintf("chunk:%s:%d", docID, c.Index)
		md := mergeChunkFields(base, c)
		if err := s.Index(ctx, chunkID, c.Text, md); err != nil {
			return nil, err
		}
		ids = append(ids, chunkID)
	}
	return ids, nil
}

func baseChunkMetadata(in IngestRequest) map[string]string {
	md := flattenMetadata(in.Metadata)
	md["type"] = "chunk"
	if in.Source != "" {
		md["source"] = in.Source
	}
	if in.Tenant != "" {
		md["tenant"] = in.Tenant
	}
	if in.ID != "" {
		md["doc_id"] = in.ID
	}
	if in.URL != "" {
		md["url"] = in.URL
	}
	return md
}

// mergeChunkFields layers a chunk's own page/tags/created_at/custom_fields
// over a shared document-level metadata base, returning a fresh copy.
func mergeChunkFields(base map[string]string, c ChunkRecord) map[string]string {
	md := make(map[string]string, len(base)+4+len(c.CustomFields))
	for k, v := range base {
		md[k] = v
	}
	for k, v := range chunkFieldsMetadata(c) {
		md[k] = v
	}
	return md
}

// chunkFieldsMetadata flattens a ChunkRecord's optional fields (spec §3 "Chunk
// record": page, tags, created_at, custom_fields) to string metadata.
func chunkFieldsMetadata(c ChunkRecord) map[string]string {
	md := map[string]string{}
	if c.Page != 0 {
		md["page"] = strconv.Itoa(c.Page)
	}
	if len(c.Tags) > 0 {
		md["tags"] = strings.Join(c.Tags, ",")
	}
	if c.CreatedAt != 0 {
		md["created_at"] = strconv.FormatInt(c.CreatedAt, 10)
	}
	for k, v := range c.CustomFields {
		md["cf_"+strings.ToLower(k)] = fmt.Sprintf("%v", v)
	}
	return md
}

// flattenMetadata converts map[string]any into map[string]string by formatting
// scalars; non-scalar values are JSON-like stringified via fmt.%v.
func flattenMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case fmt.Stringer:
			out[k] = t.String()
		case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
			out[k] = fmt.Sprintf("%v", t)
		default:
			out[k] = fmt.Sprintf("%v", t)
		}
	}
	// Ensure keys are safe
	cleaned := make(map[string]string, len(out))
	for k, v := range out {
		cleaned[strings.ToLower(k)] = v
	}
	return cleaned
}
