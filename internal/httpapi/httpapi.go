// Package httpapi is the HTTP surface from spec §6: two configurable POST
// endpoints (search, upsert) over the façade, plus a small admin surface
// (/healthz, /statz) adapted from the teacher's cmd/server/management.go.
package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
	"github.com/shibudb.org/shibuvec/internal/facade"
)

// Server wires the façade to an http.ServeMux, the way the teacher's own
// cmd/server/server.go and management.go build a ServeMux by hand rather
// than reaching for a router framework.
type Server struct {
	db  *facade.Database
	log *zap.Logger
	mux *http.ServeMux

	requestsServed atomic.Uint64
	started        time.Time
}

// NewServer registers searchPath and upsertPath (configurable per
// config.toml's server.search_url_suffix / server.upsert_url_suffix) plus
// the fixed /healthz and /statz admin endpoints.
func NewServer(db *facade.Database, searchPath, upsertPath string, log *zap.Logger) *Server {
	s := &Server{db: db, log: log, mux: http.NewServeMux(), started: time.Now()}

	s.mux.HandleFunc(searchPath, s.handleSearch)
	s.mux.HandleFunc(upsertPath, s.handleUpsert)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/statz", s.handleStatz)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requestsServed.Add(1)
	s.mux.ServeHTTP(w, r)
}

type searchResponse struct {
	Results []map[string]any `json:"results"`
}

// handleSearch implements `POST <search_url>` from spec §6: a malformed
// body is an ApiError::JsonExtractorRejection, surfaced as 400; a façade
// error surfaces as 500 with an empty results array.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var args facade.QueryArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeRejection(w, dberrors.NewApiError("malformed search body", err))
		return
	}

	docs, err := s.db.Query(args)
	if err != nil {
		s.log.Error("query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, searchResponse{Results: []map[string]any{}})
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: docs})
}

type upsertResponse struct {
	Message string `json:"message"`
}

// handleUpsert implements `POST <upsert_url>` from spec §6.
func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var args facade.UpsertArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeRejection(w, dberrors.NewApiError("malformed upsert body", err))
		return
	}

	if err := s.db.Upsert(args); err != nil {
		s.log.Error("upsert failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, upsertResponse{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, upsertResponse{Message: "Upsert successful"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "shibuvec",
	})
}

func (s *Server) handleStatz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"requests_served": s.requestsServed.Load(),
		"uptime_seconds":  time.Since(s.started).Seconds(),
		"goroutines":      runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"num_gc":      mem.NumGC,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRejection(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
}
