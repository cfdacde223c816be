package httpapi

import (
	"encoding/json"
	"net/http"

	"ragkit/internal/apperr"
	"ragkit/internal/session"
)

// sessionStartRequest is the body of POST /api/v1/session/start.
type sessionStartRequest struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.sessions.Start(r.Context(), req.Query, req.TopK, req.Filters)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID})
}

// handleSessionStream resumes a session's streaming completion as typed SSE
// events, suspending (without a `final` event) on a tool call.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		respondError(w, http.StatusBadRequest, apperr.New(apperr.InvalidRequest, "session_id is required"))
		return
	}
	sw, err := session.NewSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	_ = s.sessions.Stream(r.Context(), id, sw)
}

// sessionToolResultRequest is the body of POST /api/v1/session/tool_result.
type sessionToolResultRequest struct {
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
}

func (s *Server) handleSessionToolResult(w http.ResponseWriter, r *http.Request) {
	var req sessionToolResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := s.sessions.ToolResult(r.Context(), req.SessionID, req.Result)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": ok})
}
