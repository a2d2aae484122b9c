// Package httpapi exposes the screening pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oceanbio/occurrence-screening/internal/config"
	"github.com/oceanbio/occurrence-screening/internal/domain"
	"github.com/oceanbio/occurrence-screening/internal/pipeline"
	"github.com/oceanbio/occurrence-screening/internal/tabular"
)

// allowedExtensions are the upload file types accepted for screening.
var allowedExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".txt": true,
	".tab": true,
}

// ScreeningRunner executes one screening over uploaded files.
type ScreeningRunner interface {
	Run(ctx context.Context, files []domain.FileInput) (*domain.Report, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the screening endpoint plus health, readiness, and metrics.
type Server struct {
	httpServer     *http.Server
	runner         ScreeningRunner
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewServer wires the router. Screenings can run for a while on large files,
// so the write timeout is generous relative to the health endpoints.
func NewServer(cfg *config.Config, runner ScreeningRunner, ready ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{
		runner:         runner,
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/screenings", s.handleScreening)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleScreening accepts a multipart upload of one or more tabular files,
// runs a screening over them, and returns the report.
func (s *Server) handleScreening(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp file cleanup

	files, err := collectFiles(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no supported files uploaded (accepted: .csv, .tsv, .txt, .tab)")
		return
	}

	report, err := s.runner.Run(r.Context(), files)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeRunError maps pipeline failures onto status codes. Input problems the
// uploader can fix are 422; everything else is a 500.
func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *domain.SchemaError
	switch {
	case errors.As(err, &schemaErr),
		errors.Is(err, tabular.ErrDelimiterUndetected),
		errors.Is(err, pipeline.ErrNoDataRows):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("screening failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "screening failed")
	}
}

// collectFiles reads every uploaded part with a supported extension. Parts
// with other extensions are ignored rather than rejected, mirroring how a
// Darwin Core archive carries members the screening does not use. The form's
// file map is keyed by field name, so fields are walked in sorted order to
// keep the downstream first-match file selection deterministic.
func collectFiles(r *http.Request) ([]domain.FileInput, error) {
	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var files []domain.FileInput
	for _, field := range fields {
		for _, header := range r.MultipartForm.File[field] {
			ext := strings.ToLower(filepath.Ext(header.Filename))
			if !allowedExtensions[ext] {
				continue
			}
			f, err := header.Open()
			if err != nil {
				return nil, errors.New("read uploaded file " + header.Filename)
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, errors.New("read uploaded file " + header.Filename)
			}
			files = append(files, domain.FileInput{
				Filename: filepath.Base(header.Filename),
				Content:  content,
			})
		}
	}
	return files, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
