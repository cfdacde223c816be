package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"ragkit/internal/jobs"
	"ragkit/internal/rag/ingest"
)

const (
	defaultChunkSize = 800
	defaultOverlap   = 100
)

// documentTextRequest is the body of POST /api/v1/documents/text.
type documentTextRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Page       int    `json:"page,omitempty"`
	ChunkSize  int    `json:"chunk_size,omitempty"`
	Overlap    int    `json:"overlap,omitempty"`
}

// documentTextWithMetaRequest adds tenant/source/tags/created_at over the
// plain text request, per spec.
type documentTextWithMetaRequest struct {
	documentTextRequest
	TenantID  string   `json:"tenant_id,omitempty"`
	Source    string   `json:"source,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt int64    `json:"created_at,omitempty"`
}

func ingestOptions(chunkSize, overlap int) ingest.IngestOptions {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	return ingest.IngestOptions{
		Chunking:  ingest.ChunkingOptions{Strategy: "tokens", MaxTokens: chunkSize, Overlap: overlap},
		Embedding: ingest.EmbeddingOptions{Enabled: true},
	}
}

func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request) {
	var req documentTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = "doc:" + uuid.NewString()
	}
	resp, err := s.svc.Ingest(r.Context(), ingest.IngestRequest{
		ID:      req.DocumentID,
		Text:    req.Text,
		Source:  "inline",
		Page:    req.Page,
		Options: ingestOptions(req.ChunkSize, req.Overlap),
	})
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if s.counters != nil {
		s.counters.Add(req.DocumentID, len(resp.ChunkIDs))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocumentTextWithMeta(w http.ResponseWriter, r *http.Request) {
	var req documentTextWithMetaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = "doc:" + uuid.NewString()
	}
	source := req.Source
	if source == "" {
		source = "inline"
	}
	resp, err := s.svc.Ingest(r.Context(), ingest.IngestRequest{
		ID:        req.DocumentID,
		Text:      req.Text,
		Source:    source,
		Tenant:    req.TenantID,
		Page:      req.Page,
		Tags:      req.Tags,
		CreatedAt: req.CreatedAt,
		Options:   ingestOptions(req.ChunkSize, req.Overlap),
	})
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if s.counters != nil {
		s.counters.Add(req.DocumentID, len(resp.ChunkIDs))
	}
	respondJSON(w, http.StatusOK, resp)
}

// documentPDFGlobRequest is the body of POST /api/v1/documents/pdf_glob.
type documentPDFGlobRequest struct {
	Glob           string `json:"glob"`
	Prefix         string `json:"prefix,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	Overlap        int    `json:"overlap,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (s *Server) handleDocumentPDFGlob(w http.ResponseWriter, r *http.Request) {
	var req documentPDFGlobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	payload := map[string]any{
		"glob":       req.Glob,
		"prefix":     req.Prefix,
		"chunk_size": req.ChunkSize,
		"overlap":    req.Overlap,
	}
	id, existing, err := s.jobs.Enqueue(r.Context(), jobs.KindPDFGlob, payload, req.IdempotencyKey)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "idempotent_hit": existing})
}

// documentURLRequest is the body of POST /api/v1/documents/url.
type documentURLRequest struct {
	URL            string `json:"url"`
	DocumentID     string `json:"document_id,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	Overlap        int    `json:"overlap,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (s *Server) handleDocumentURL(w http.ResponseWriter, r *http.Request) {
	var req documentURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = "doc:url_" + uuid.NewString()
	}
	payload := map[string]any{
		"url":         req.URL,
		"document_id": req.DocumentID,
		"chunk_size":  req.ChunkSize,
		"overlap":     req.Overlap,
	}
	id, existing, err := s.jobs.Enqueue(r.Context(), jobs.KindURL, payload, req.IdempotencyKey)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "idempotent_hit": existing})
}

// handleAdminUpload accepts a multipart upload: document_id, chunk_size?,
// overlap?, file.
func (s *Server) handleAdminUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	docID := r.FormValue("document_id")
	if docID == "" {
		docID = "doc:upload_" + uuid.NewString()
	}
	chunkSize, _ := strconv.Atoi(r.FormValue("chunk_size"))
	overlap, _ := strconv.Atoi(r.FormValue("overlap"))

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	text := string(data)
	if s.extract != nil && s.extract.Configured() {
		ext := filepath.Ext(header.Filename)
		if extracted, err := s.extract.Extract(r.Context(), header.Filename, data); err == nil {
			text = extracted
		} else if ext != ".txt" && ext != ".md" {
			respondError(w, http.StatusBadGateway, fmt.Errorf("httpapi: extraction failed: %w", err))
			return
		}
	}

	resp, err := s.svc.Ingest(r.Context(), ingest.IngestRequest{
		ID:      docID,
		Text:    text,
		Source:  "upload",
		Options: ingestOptions(chunkSize, overlap),
	})
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if s.counters != nil {
		s.counters.Add(docID, len(resp.ChunkIDs))
	}
	respondJSON(w, http.StatusOK, resp)
}
