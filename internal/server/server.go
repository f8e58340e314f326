// Package server exposes the analysis engine and the materials catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/internal/metrics"
	"github.com/superdango/embodied-flows/internal/project"
	"github.com/superdango/embodied-flows/model/catalog"
	"github.com/superdango/embodied-flows/report"
)

const (
	// maxDocumentSize bounds the size of posted project documents
	maxDocumentSize = 4 << 20
	defaultLimit    = 20
	openMetricsType = "application/openmetrics-text; version=1.0.0; charset=utf-8"
)

type Option func(s *Server)

// WithTimeout bounds the time spent on every request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithAnalyzer replaces the default sequential analyzer.
func WithAnalyzer(a *embodiedflows.Analyzer) Option {
	return func(s *Server) {
		s.analyzer = a
	}
}

// Server groups the dependencies of route handlers.
type Server struct {
	source   catalog.Source
	analyzer *embodiedflows.Analyzer
	timeout  time.Duration
}

// NewRouter returns the http handler serving every route.
func NewRouter(source catalog.Source, opts ...Option) http.Handler {
	s := &Server{
		source:   source,
		analyzer: embodiedflows.NewAnalyzer(),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.analyze)
		r.Post("/metrics", s.openMetrics)
		r.Get("/materials", s.materials)
		r.Get("/materials/{id}", s.material)
		r.Get("/categories", s.categories)
	})

	return r
}

// instrument records request metrics under the matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, r.Method, status, timer.Duration())
		slog.Debug("request served",
			"method", r.Method,
			"route", route,
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", timer.Duration(),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) catalog(ctx context.Context) (*catalog.Catalog, error) {
	name := "catalog"
	if stringer, ok := s.source.(fmt.Stringer); ok {
		name = stringer.String()
	}
	c, err := s.source.Load(ctx)
	if err != nil {
		metrics.RecordCatalog(name, 0, err)
		return nil, err
	}
	metrics.RecordCatalog(name, c.Len(), nil)
	return c, nil
}

// run decodes the posted project document and analyzes it.
func (s *Server) run(w http.ResponseWriter, r *http.Request) (*embodiedflows.Result, error) {
	doc, err := project.Parse(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		return nil, err
	}

	materials, err := s.catalog(r.Context())
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	req, err := doc.Request(materials)
	if err != nil {
		metrics.RecordAnalysis(nil, err, timer.Duration())
		return nil, err
	}

	result, err := s.analyzer.Analyze(req)
	metrics.RecordAnalysis(result, err, timer.Duration())
	if err != nil {
		return nil, err
	}

	slog.Info("analysis served", "id", result.ID, "name", result.Name, "items", len(result.Items))
	return result, nil
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	result, err := s.run(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, result)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.ID+".csv"))
		if err := report.WriteCSV(w, result); err != nil {
			slog.Warn("failed to write csv report", "id", result.ID, "err", err)
		}
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.Text(w, result); err != nil {
			slog.Warn("failed to write text report", "id", result.ID, "err", err)
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: "invalid_format", Error: fmt.Sprintf("unsupported format %q", format)})
	}
}

func (s *Server) openMetrics(w http.ResponseWriter, r *http.Request) {
	result, err := s.run(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", openMetricsType)
	if err := embodiedflows.WriteOpenMetrics(w, result); err != nil {
		slog.Warn("failed to write openmetrics", "id", result.ID, "err", err)
	}
}

func (s *Server) materials(w http.ResponseWriter, r *http.Request) {
	materials, err := s.catalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	limit := defaultLimit
	if l := query.Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Kind: "invalid_limit", Error: err.Error()})
			return
		}
	}

	records := materials.Search(query.Get("q"), query.Get("category"), limit)
	views := make([]recordView, 0, len(records))
	for _, record := range records {
		views = append(views, newRecordView(record))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) material(w http.ResponseWriter, r *http.Request) {
	materials, err := s.catalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := materials.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, embodiedflows.ErrUnknownMaterial) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, newErrorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(record))
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	materials, err := s.catalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, materials.Categories())
}

type recordView struct {
	ID             string                       `json:"id"`
	Name           string                       `json:"name"`
	Category       string                       `json:"category"`
	FunctionalUnit embodiedflows.FunctionalUnit `json:"functional_unit"`
	Density        float64                      `json:"density"`
	Coefficients   embodiedflows.Flows          `json:"coefficients"`
	ServiceLife    embodiedflows.ServiceLife    `json:"service_life"`
	Wastage        float64                      `json:"wastage"`
	DOI            string                       `json:"doi,omitempty"`
	ProcessShares  embodiedflows.Flows          `json:"process_shares"`
}

func newRecordView(record embodiedflows.Record) recordView {
	return recordView{
		ID:             record.ID,
		Name:           record.Name,
		Category:       record.Category,
		FunctionalUnit: record.FunctionalUnit,
		Density:        record.Density,
		Coefficients:   record.Coefficients,
		ServiceLife:    record.ServiceLife,
		Wastage:        record.Wastage,
		DOI:            record.DOI,
		ProcessShares:  record.ProcessShares,
	}
}

type errorBody struct {
	Kind        string   `json:"kind"`
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func newErrorBody(err error) errorBody {
	body := errorBody{Kind: embodiedflows.ErrorKind(err), Error: err.Error()}
	unknown := new(embodiedflows.UnknownMaterialError)
	if errors.As(err, &unknown) {
		body.Suggestions = unknown.Suggestions
	}
	return body
}

// writeError maps invalid documents to 400, input errors to 422 and
// everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	maxBytes := new(http.MaxBytesError)
	switch {
	case errors.As(err, &maxBytes):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Kind: "document_too_large", Error: err.Error()})
	case errors.Is(err, project.ErrInvalidDocument):
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: "invalid_document", Error: err.Error()})
	case embodiedflows.IsInvalidInput(err):
		writeJSON(w, http.StatusUnprocessableEntity, newErrorBody(err))
	default:
		slog.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: "internal", Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
