// Package server exposes the search gateway over HTTP/JSON.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"sutrasearch/internal/gateway"
	"sutrasearch/internal/index"
)

// Server routes API requests to the gateway service.
type Server struct {
	service   *gateway.Service
	indexName string
	telemetry *Telemetry
	logger    *slog.Logger
	ready     atomic.Bool
}

// New builds the API server. The index name only labels metrics and logs.
func New(service *gateway.Service, indexName string, telemetry *Telemetry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	server := &Server{service: service, indexName: indexName, telemetry: telemetry, logger: logger}
	server.ready.Store(true)
	return server
}

// Handler assembles the route table and middleware chain.
func (s *Server) Handler(logRequests bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/search", s.handleSearch)
	mux.HandleFunc("/api/v1/documents", s.handleDocuments)
	mux.HandleFunc("/api/v1/documents/", s.handleDocumentByID)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/ready", s.handleReadiness)
	if s.telemetry != nil && s.telemetry.enabled {
		mux.HandleFunc("/api/v1/metrics", s.telemetry.handleMetrics)
	}

	handler := withJSONHeaders(mux)
	return withTelemetry(handler, s.telemetry, logRequests)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req gateway.SearchRequest
	switch r.Method {
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid json payload", start)
			return
		}
	case http.MethodGet:
		s.handleSearchStatus(w)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.service.Search(r.Context(), req)
	if err != nil {
		respondError(w, statusForError(err), err.Error(), start)
		return
	}

	if s.telemetry != nil {
		s.telemetry.recordSearch(r.Context(), s.indexName, req.Mode, result.Total, time.Since(start))
		stats := s.service.Status().Stats
		s.telemetry.observeIndex(s.indexName, stats.Documents, stats.Segments, stats.Pending)
	}
	respond(w, http.StatusOK, result)
}

// handleSearchStatus serves GET on the search endpoint: a status probe for
// clients, not a query.
func (s *Server) handleSearchStatus(w http.ResponseWriter) {
	status := s.service.Status()
	if !status.Initialized {
		respond(w, http.StatusOK, map[string]any{
			"status":  "error",
			"message": "index not initialized",
		})
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"indexName": s.indexName,
		"stats":     status.Stats,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var doc index.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload", start)
		return
	}

	if err := s.service.IndexDocument(r.Context(), &doc); err != nil {
		respondError(w, statusForError(err), err.Error(), start)
		return
	}

	if s.telemetry != nil {
		s.telemetry.recordWrite(r.Context(), s.indexName, "index")
	}
	respond(w, http.StatusCreated, map[string]any{"id": doc.ID, "timingMs": time.Since(start).Milliseconds()})
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/documents/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc := s.service.GetDocument(id)
		if doc == nil {
			respondError(w, http.StatusNotFound, "document not found", start)
			return
		}
		respond(w, http.StatusOK, doc)
	case http.MethodPut:
		var patch gateway.MetadataPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			respondError(w, http.StatusBadRequest, "invalid json payload", start)
			return
		}
		doc, err := s.service.UpdateMetadata(r.Context(), id, patch)
		if err != nil {
			respondError(w, statusForError(err), err.Error(), start)
			return
		}
		if s.telemetry != nil {
			s.telemetry.recordWrite(r.Context(), s.indexName, "update")
		}
		respond(w, http.StatusOK, doc)
	case http.MethodDelete:
		found, err := s.service.DeleteDocument(r.Context(), id)
		if err != nil {
			respondError(w, statusForError(err), err.Error(), start)
			return
		}
		if !found {
			respondError(w, http.StatusNotFound, "document not found", start)
			return
		}
		if s.telemetry != nil {
			s.telemetry.recordWrite(r.Context(), s.indexName, "delete")
		}
		respond(w, http.StatusOK, map[string]any{"deleted": id, "timingMs": time.Since(start).Milliseconds()})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	respond(w, http.StatusOK, map[string]any{"status": "ok", "timingMs": time.Since(start).Milliseconds()})
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	status := s.service.Status()
	ready := s.ready.Load() && status.Initialized

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}

	respond(w, code, map[string]any{
		"status":    map[bool]string{true: "ready", false: "initializing"}[ready],
		"documents": status.Stats.Documents,
		"segments":  status.Stats.Segments,
		"timingMs":  time.Since(start).Milliseconds(),
	})
}

// statusForError maps gateway and engine failures onto the API error taxonomy:
// caller mistakes are 400, a missing index is 503, everything else 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, gateway.ErrEmptyQuery),
		errors.Is(err, gateway.ErrInvalidPage),
		errors.Is(err, index.ErrUnknownMode),
		errors.Is(err, index.ErrMissingID):
		return http.StatusBadRequest
	case errors.Is(err, index.ErrIndexMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, start time.Time) {
	respond(w, status, map[string]any{"error": message, "timingMs": time.Since(start).Milliseconds()})
}
