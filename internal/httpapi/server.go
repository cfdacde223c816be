// Package httpapi exposes the HTTP surface described in spec §6: query,
// ingestion, session, and admin endpoints mapped onto the rag/jobs/session
// subsystems. Grounded on this module's existing httpapi package (Go 1.22
// method-pattern ServeMux routing, respondJSON/respondError helpers)
// generalized from a playground-service facade to a multi-tenant RAG
// service facade.
package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"ragkit/internal/config"
	"ragkit/internal/jobs"
	"ragkit/internal/llm"
	"ragkit/internal/rag/extract"
	"ragkit/internal/rag/service"
	"ragkit/internal/session"
)

// Server exposes HTTP endpoints for the RAG service.
type Server struct {
	svc      *service.Service
	jobs     *jobs.Engine
	sessions *session.Manager
	extract  *extract.Client
	provider llm.Provider
	model    string
	admin    config.AdminConfig
	settings *SettingsStore
	counters *IndexCounters
	log      zerolog.Logger
	mux      *http.ServeMux
}

// Deps bundles the wired subsystems a Server routes requests to.
type Deps struct {
	Service   *service.Service
	Jobs      *jobs.Engine
	Sessions  *session.Manager
	Extract   *extract.Client
	Provider  llm.Provider
	Model     string
	Admin     config.AdminConfig
	Settings  *SettingsStore
	Counters  *IndexCounters
	Log       zerolog.Logger
}

// NewServer creates the HTTP API server wired to the RAG service, job
// engine, session manager, and extraction client.
func NewServer(d Deps) *Server {
	s := &Server{
		svc:      d.Service,
		jobs:     d.Jobs,
		sessions: d.Sessions,
		extract:  d.Extract,
		provider: d.Provider,
		model:    d.Model,
		admin:    d.Admin,
		settings: d.Settings,
		counters: d.Counters,
		log:      d.Log,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/query", s.handleQuery)
	s.mux.HandleFunc("POST /api/v1/query_trace", s.handleQueryTrace)
	s.mux.HandleFunc("POST /api/v1/query/stream", s.handleQueryStream)
	s.mux.HandleFunc("GET /api/v1/query/stream", s.handleQueryStream)

	s.mux.HandleFunc("POST /api/v1/documents/text", s.handleDocumentText)
	s.mux.HandleFunc("POST /api/v1/documents/text_with_meta", s.handleDocumentTextWithMeta)
	s.mux.HandleFunc("POST /api/v1/documents/pdf_glob", s.handleDocumentPDFGlob)
	s.mux.HandleFunc("POST /api/v1/documents/url", s.handleDocumentURL)

	s.mux.HandleFunc("POST /api/v1/session/start", s.handleSessionStart)
	s.mux.HandleFunc("GET /api/v1/session/stream", s.handleSessionStream)
	s.mux.HandleFunc("POST /api/v1/session/tool_result", s.handleSessionToolResult)

	s.mux.HandleFunc("GET /api/v1/admin/settings", s.withAdminAuth(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/v1/admin/settings", s.withAdminAuth(s.handlePutSettings))
	s.mux.HandleFunc("POST /api/v1/admin/upload", s.withAdminAuth(s.handleAdminUpload))
	s.mux.HandleFunc("GET /api/v1/admin/jobs", s.withAdminAuth(s.handleListJobs))
	s.mux.HandleFunc("POST /api/v1/admin/jobs", s.withAdminAuth(s.handleCreateJob))
	s.mux.HandleFunc("GET /api/v1/admin/jobs/{id}", s.withAdminAuth(s.handleGetJob))
	s.mux.HandleFunc("GET /api/v1/admin/index/status", s.withAdminAuth(s.handleIndexStatus))
	s.mux.HandleFunc("GET /api/v1/admin/index/status/{doc}", s.withAdminAuth(s.handleIndexStatus))
	s.mux.HandleFunc("GET /api/v1/admin/extract/health", s.withAdminAuth(s.handleExtractHealth))
	s.mux.HandleFunc("POST /api/v1/admin/extract/test", s.withAdminAuth(s.handleExtractTest))

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
}
