// Package server exposes the contractor dataset over a read-only JSON API
// for the dashboard frontend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	defaultRunLimit  = 20
)

// Server serves dataset queries. All endpoints are read-only; writes happen
// through the CLI and scheduler.
type Server struct {
	store            store.Store
	qualityThreshold float64
}

// New creates a Server. The quality threshold feeds the below-threshold
// counter in the stats endpoint.
func New(st store.Store, qualityThreshold float64) *Server {
	return &Server{store: st, qualityThreshold: qualityThreshold}
}

// Router builds the HTTP handler with CORS open for the frontend.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/contractors", s.handleListContractors)
		r.Get("/contractors/{id}", s.handleGetContractor)
		r.Get("/runs", s.handleListRuns)
		r.Get("/stats", s.handleStats)
		r.Get("/locations", s.handleLocations)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "contractor-intel-api",
	})
}

// contractorsResponse wraps a contractor page with pagination echo.
type contractorsResponse struct {
	Contractors []model.Contractor `json:"contractors"`
	Total       int                `json:"total"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
}

func (s *Server) handleListContractors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := queryInt(q.Get("limit"), defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	filter := store.ContractorFilter{
		Location:   q.Get("location"),
		MinRating:  queryFloat(q.Get("min_rating"), 0),
		MinReviews: queryInt(q.Get("min_reviews"), 0),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortDesc:   q.Get("sort_order") != "asc",
		Limit:      limit,
		Offset:     queryInt(q.Get("offset"), 0),
	}
	if filter.SortBy == "" {
		filter.SortBy = "rating"
	}

	contractors, total, err := s.store.ListContractors(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if contractors == nil {
		contractors = []model.Contractor{}
	}
	respondJSON(w, http.StatusOK, contractorsResponse{
		Contractors: contractors,
		Total:       total,
		Limit:       limit,
		Offset:      filter.Offset,
	})
}

func (s *Server) handleGetContractor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid contractor id"})
		return
	}

	c, err := s.store.GetContractor(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Limit:  queryInt(q.Get("limit"), defaultRunLimit),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// statsResponse combines the dataset aggregates with the most recent
// reconciliation runs for the dashboard landing page.
type statsResponse struct {
	*store.Stats
	RecentRuns []model.Run `json:"recent_runs"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.qualityThreshold)
	if err != nil {
		respondError(w, r, err)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{Limit: 5})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	respondJSON(w, http.StatusOK, statsResponse{Stats: stats, RecentRuns: runs})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.ListLocations(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if locations == nil {
		locations = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"locations": locations})
}

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func queryFloat(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

// requestID tags each request with a UUID echoed in the response headers
// and attached to the request logger.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

type ctxKeyRequestID struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
