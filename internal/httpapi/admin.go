package httpapi

import (
	"encoding/json"
	"net/http"

	"ragkit/internal/apperr"
	"ragkit/internal/jobs"
	"ragkit/internal/persistence/databases"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"settings": s.settings.Snapshot()})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	for k, v := range body {
		s.settings.Put(k, v)
	}
	respondJSON(w, http.StatusOK, map[string]any{"settings": s.settings.Snapshot()})
}

type createJobRequest struct {
	Kind           jobs.Kind      `json:"kind"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.List()})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	id, existing, err := s.jobs.Enqueue(r.Context(), req.Kind, req.Payload, req.IdempotencyKey)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "idempotent_hit": existing})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, ok := s.jobs.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, apperr.New(apperr.NotFound, "job not found"))
		return
	}
	respondJSON(w, http.StatusOK, j)
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	doc := r.PathValue("doc")
	if doc == "" {
		doc = r.URL.Query().Get("doc")
	}
	if doc != "" {
		respondJSON(w, http.StatusOK, map[string]any{"document_id": doc, "chunk_count": s.counters.Get(doc)})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"counters": s.counters.All()})
}

func (s *Server) handleExtractHealth(w http.ResponseWriter, r *http.Request) {
	if s.extract == nil || !s.extract.Configured() {
		respondJSON(w, http.StatusOK, map[string]any{"configured": false})
		return
	}
	if err := s.extract.Health(r.Context()); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"configured": true, "healthy": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"configured": true, "healthy": true})
}

type extractTestRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

func (s *Server) handleExtractTest(w http.ResponseWriter, r *http.Request) {
	var req extractTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if s.extract == nil || !s.extract.Configured() {
		respondJSON(w, http.StatusOK, map[string]any{"configured": false})
		return
	}
	text, err := s.extract.Extract(r.Context(), req.Filename, []byte(req.Text))
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"configured": true, "ok": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"configured": true, "ok": true, "text": text})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health(r.Context())
	body := map[string]any{"status": h.State.String()}
	if h.Reason != "" {
		body["reason"] = h.Reason
	}
	if h.Err != nil {
		body["error"] = h.Err.Error()
	}
	code := http.StatusOK
	if h.State == databases.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, body)
}
