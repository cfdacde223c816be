package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ragkit/internal/llm"
	"ragkit/internal/rag/retrieve"
	"ragkit/internal/session"
)

// QueryRequest is the body of POST /api/v1/query and /api/v1/query/stream.
type QueryRequest struct {
	Query             string            `json:"query"`
	Mode              string            `json:"mode,omitempty"`
	TopK              int               `json:"top_k,omitempty"`
	Rerank            bool              `json:"rerank,omitempty"`
	Filters           map[string]string `json:"filters,omitempty"`
	Stream            bool              `json:"stream,omitempty"`
	IncludeRawMatches bool              `json:"include_raw_matches,omitempty"`
}

// citationSnippetLimit caps a citation's displayed snippet at 240 characters
// so the response body stays bounded regardless of chunk size.
const citationSnippetLimit = 240

// Citation is a portable reference to a retrieved chunk's source document.
type Citation struct {
	ID      string `json:"id"`
	DocID   string `json:"doc_id"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Page    int    `json:"page,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// QueryResponse is returned by the non-streaming query endpoint. On backend
// failure, Answer begins with "error: " instead of surfacing an HTTP
// error — preserved verbatim as a documented client-contract quirk.
type QueryResponse struct {
	Answer     string                   `json:"answer"`
	Citations  []Citation               `json:"citations"`
	Contexts   []string                 `json:"contexts"`
	Mode       string                   `json:"mode"`
	LatencyMs  int64                    `json:"latency_ms"`
	RawMatches []retrieve.RetrievedItem `json:"raw_matches,omitempty"`
}

// QueryTraceResponse aggregates a streaming run's internals for callers
// that want the full record without consuming an SSE stream themselves.
type QueryTraceResponse struct {
	Answer    string     `json:"answer"`
	ToolTrace []string   `json:"tool_trace"`
	Citations []Citation `json:"citations"`
	Contexts  []string   `json:"contexts"`
	Mode      string     `json:"mode"`
	LatencyMs int64      `json:"latency_ms"`
}

// modeOptions maps the documented query mode onto RetrieveOptions overrides.
// "lexical" uses the full-text backend only; "graph" augments with
// neighborhood expansion; "hybrid" and the default "rag" fuse FTS+vector.
func modeOptions(mode string, topK int, rerank bool, filters map[string]string) retrieve.RetrieveOptions {
	k := topK
	if k <= 0 {
		k = 5
	}
	opt := retrieve.RetrieveOptions{
		K:              k,
		IncludeSnippet: true,
		IncludeText:    true,
		Rerank:         rerank,
		Filter:         filters,
	}
	switch mode {
	case "lexical":
		opt.FtK = k
		opt.VecK = 0
		opt.UseRRF = false
	case "graph":
		opt.UseRRF = true
		opt.GraphAugment = true
	case "hybrid":
		opt.UseRRF = true
	default: // "rag"
		opt.UseRRF = true
	}
	return opt
}

func normalizeMode(m string) string {
	switch m {
	case "rag", "graph", "hybrid", "lexical":
		return m
	default:
		return "rag"
	}
}

func citationsFrom(items []retrieve.RetrievedItem) []Citation {
	out := make([]Citation, 0, len(items))
	for _, it := range items {
		page, _ := strconv.Atoi(it.Metadata["page"])
		out = append(out, Citation{
			ID:      it.ID,
			DocID:   it.DocID,
			Title:   it.Doc.Title,
			URL:     it.Doc.URL,
			Page:    page,
			Snippet: truncateSnippet(it.Snippet),
		})
	}
	return out
}

// truncateSnippet caps s at citationSnippetLimit characters, appending "..."
// when it was cut.
func truncateSnippet(s string) string {
	r := []rune(s)
	if len(r) <= citationSnippetLimit {
		return s
	}
	return string(r[:citationSnippetLimit]) + "..."
}

func contextsFrom(items []retrieve.RetrievedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		text := it.Text
		if text == "" {
			text = it.Snippet
		}
		out = append(out, text)
	}
	return out
}

// synthesizeAnswer builds a grounded answer from retrieved contexts via the
// configured chat provider. Callers treat any error as the caller's to
// wrap ("error: ...") per the query endpoint's preserved contract.
func (s *Server) synthesizeAnswer(ctx context.Context, query string, contexts []string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("httpapi: no chat provider configured")
	}
	var sb strings.Builder
	sb.WriteString("Answer the user's question using only the context below. Cite nothing beyond what the context supports; say so if the context is insufficient.\n\n")
	for i, c := range contexts {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, c)
	}
	msgs := []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: query},
	}
	resp, err := s.provider.Chat(ctx, msgs, nil, s.model)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	mode := normalizeMode(req.Mode)

	resp, err := s.runQuery(r.Context(), req, mode)
	resp.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		resp.Answer = "error: " + err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// runQuery executes retrieval and answer synthesis for the given mode,
// returning a QueryResponse that the caller fills Answer/LatencyMs into
// even on error (the non-streaming contract never surfaces an HTTP error).
func (s *Server) runQuery(ctx context.Context, req QueryRequest, mode string) (QueryResponse, error) {
	opt := modeOptions(mode, req.TopK, req.Rerank, req.Filters)
	rr, err := s.svc.Retrieve(ctx, req.Query, opt)
	if err != nil {
		return QueryResponse{Mode: mode}, err
	}
	contexts := contextsFrom(rr.Items)
	if len(rr.Items) == 0 {
		resp := QueryResponse{
			Answer: "I don't have relevant information to answer that question.",
			Mode:   mode,
		}
		if req.IncludeRawMatches {
			resp.RawMatches = rr.Items
		}
		return resp, nil
	}
	answer, err := s.synthesizeAnswer(ctx, req.Query, contexts)
	if err != nil {
		return QueryResponse{Mode: mode, Citations: citationsFrom(rr.Items), Contexts: contexts}, err
	}
	resp := QueryResponse{
		Answer:    answer,
		Citations: citationsFrom(rr.Items),
		Contexts:  contexts,
		Mode:      mode,
	}
	if req.IncludeRawMatches {
		resp.RawMatches = rr.Items
	}
	return resp, nil
}

func (s *Server) handleQueryTrace(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	mode := normalizeMode(req.Mode)
	resp, err := s.runQuery(r.Context(), req, mode)
	if err != nil {
		resp.Answer = "error: " + err.Error()
	}
	respondJSON(w, http.StatusOK, QueryTraceResponse{
		Answer:    resp.Answer,
		ToolTrace: nil,
		Citations: resp.Citations,
		Contexts:  resp.Contexts,
		Mode:      mode,
		LatencyMs: time.Since(start).Milliseconds(),
	})
}

// handleQueryStream streams a one-shot retrieval+answer as typed SSE events
// (text deltas are not available from a single Chat call, so the full
// answer is sent as one `text` event followed by `final`) — distinct from
// the multi-turn session stream, which genuinely streams provider deltas.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if r.Method == http.MethodGet {
		req.Query = r.URL.Query().Get("query")
		req.Mode = r.URL.Query().Get("mode")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	mode := normalizeMode(req.Mode)

	sw, err := session.NewSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	resp, err := s.runQuery(r.Context(), req, mode)
	if err != nil {
		_ = sw.Send(session.EventError, err.Error())
		return
	}
	_ = sw.Send(session.EventText, resp.Answer)
	_ = sw.SendFinal(resp)
}
