// Package rpcapi exposes pipeline.Engine's three operations as
// JSON-over-HTTP handlers, grounded on internal/api/server.go's
// ServeMux/LoggingMiddleware/writeJSONError idiom.
package rpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/pipeline"
)

// Engine is the subset of pipeline.Engine the server calls.
type Engine interface {
	GenerateSymptomReport(ctx context.Context, text string, lat, lon float64) (outbreak.Report, bool, error)
	ProcessClusters(ctx context.Context) (bool, error)
	FetchLatestData(ctx context.Context) (pipeline.FetchResult, error)
}

// Server dispatches to a pipeline Engine over HTTP.
type Server struct {
	engine Engine
	mux    *http.ServeMux
}

// NewServer builds a Server bound to engine.
func NewServer(engine Engine) *Server {
	return &Server{engine: engine}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status, and duration for every request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)

		portPrefix := ""
		if host := r.Host; host != "" {
			if _, p, err := net.SplitHostPort(host); err == nil {
				portPrefix = ":" + p
			}
		}
		log.Printf("[%d] %s %s%s %vms", lrw.statusCode, r.Method, portPrefix, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

// ServeMux returns the server's http.ServeMux, building it on first use.
func (s *Server) ServeMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/reports", s.handleGenerateSymptomReport)
	s.mux.HandleFunc("/process", s.handleProcessClusters)
	s.mux.HandleFunc("/latest", s.handleFetchLatestData)
	return s.mux
}

// Start listens on addr and serves the mux wrapped in LoggingMiddleware.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: LoggingMiddleware(s.ServeMux())}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		log.Printf("rpcapi: failed to encode json error response: %v", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("rpcapi: failed to encode json response: %v", err)
	}
}

// statusForError maps the §7 error taxonomy onto an HTTP status. The
// pipeline returns ErrKindTransientStore (store I/O), ErrKindModel
// (inference or embedding failure) and ErrKindInput (feature building);
// any other or unclassified error maps to 500.
func statusForError(err error) int {
	var pe *outbreak.PipelineError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case outbreak.ErrKindTransientStore:
			return http.StatusServiceUnavailable
		case outbreak.ErrKindModel:
			return http.StatusBadGateway
		case outbreak.ErrKindInput:
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

type generateSymptomReportRequest struct {
	Text string  `json:"text"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (s *Server) handleGenerateSymptomReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req generateSymptomReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}
	if req.Text == "" {
		s.writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	report, ok, err := s.engine.GenerateSymptomReport(r.Context(), req.Text, req.Lat, req.Lon)
	if err != nil {
		s.writeJSONError(w, statusForError(err), err.Error())
		return
	}
	if !ok {
		s.writeJSONError(w, http.StatusUnprocessableEntity, "no symptoms could be inferred from text")
		return
	}

	s.writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleProcessClusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ok, err := s.engine.ProcessClusters(r.Context())
	if err != nil {
		s.writeJSONError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (s *Server) handleFetchLatestData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.engine.FetchLatestData(r.Context())
	if err != nil {
		s.writeJSONError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"time_window_start": result.TimeWindowStart,
		"time_window_end":   result.TimeWindowEnd,
		"geojson":           result.GeoJSON,
	})
}
