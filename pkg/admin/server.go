// Package admin serves the cache, its statistics and runtime controls over
// HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/models"
	"github.com/pario-ai/medcache/pkg/prioritizer"
	"github.com/pario-ai/medcache/pkg/store"
)

const maxBodySize = 1 << 20

// Server is the medcache operations API.
type Server struct {
	listen      string
	store       *store.Store
	prioritizer *prioritizer.Prioritizer
	classifier  *classifier.Classifier
	logger      *zap.Logger
	router      *mux.Router
	now         func() time.Time
}

// New creates a Server. gatherer backs /metrics; a nil gatherer disables it.
func New(listen string, s *store.Store, p *prioritizer.Prioritizer, c *classifier.Classifier, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		listen:      listen,
		store:       s,
		prioritizer: p,
		classifier:  c,
		logger:      logger.Named("admin"),
		router:      mux.NewRouter(),
		now:         time.Now,
	}

	srv.router.Use(srv.logRequests)
	srv.router.HandleFunc("/healthz", srv.handleHealth).Methods(http.MethodGet)
	if gatherer != nil {
		srv.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	v1 := srv.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/stats", srv.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/config/prioritizer", srv.handleGetConfig).Methods(http.MethodGet)
	v1.HandleFunc("/config/prioritizer", srv.handlePutConfig).Methods(http.MethodPut)
	v1.HandleFunc("/clear", srv.handleClear).Methods(http.MethodPost)
	v1.HandleFunc("/invalidate", srv.handleInvalidate).Methods(http.MethodPost)
	v1.HandleFunc("/classify", srv.handleClassify).Methods(http.MethodPost)

	v1.HandleFunc("/cache", srv.handlePut).Methods(http.MethodPut)
	v1.HandleFunc("/cache/lookup", srv.handleLookup).Methods(http.MethodPost)
	v1.HandleFunc("/cache/delete", srv.handleDelete).Methods(http.MethodPost)
	v1.HandleFunc("/cache/dependencies", srv.handleDependency).Methods(http.MethodPost)
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin api listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", s.now().Sub(start)))
	})
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Cache       models.CacheStats       `json:"cache"`
	Prioritizer models.PrioritizerStats `json:"prioritizer"`
}

// InvalidateRequest is the body of POST /v1/invalidate.
type InvalidateRequest struct {
	Tags      []string `json:"tags"`
	SubjectID string   `json:"subject_id"`
}

// ClassifyResponse is the body of POST /v1/classify.
type ClassifyResponse struct {
	Key       string          `json:"key"`
	Category  models.Category `json:"category"`
	TTL       string          `json:"ttl"`
	TTLMillis int64           `json:"ttl_ms"`
	Tags      []string        `json:"tags"`
	Priority  int             `json:"priority"`
	Cacheable bool            `json:"cacheable"`
}

// PutRequest is the body of PUT /v1/cache.
type PutRequest struct {
	Query            models.Query `json:"query"`
	Response         string       `json:"response"`
	ProcessingTimeMS int64        `json:"processing_time_ms,omitempty"`
	Cost             float64      `json:"cost,omitempty"`
	Tags             []string     `json:"tags,omitempty"`
}

// PutResponse reports where a response was stored. Cached is false for
// responses that are never cached, such as urgent ones.
type PutResponse struct {
	Key      string          `json:"key"`
	Category models.Category `json:"category"`
	Cached   bool            `json:"cached"`
}

// LookupResponse is the body of POST /v1/cache/lookup.
type LookupResponse struct {
	Key      string `json:"key"`
	Hit      bool   `json:"hit"`
	Response string `json:"response,omitempty"`
}

// DependencyRequest is the body of POST /v1/cache/dependencies.
type DependencyRequest struct {
	Query     models.Query `json:"query"`
	DependsOn models.Query `json:"depends_on"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Cache:       s.store.Stats(),
		Prioritizer: s.prioritizer.GetStatistics(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.prioritizer.Config())
}

// handlePutConfig decodes the body over the active config, so omitted
// fields keep their current values.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.prioritizer.Config()
	if err := decodeBody(w, r, &cfg); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.prioritizer.UpdateConfig(cfg); err != nil {
		if errors.Is(err, prioritizer.ErrInvalidConfig) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("update prioritizer config", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "update failed")
		return
	}
	s.logger.Info("prioritizer config updated", zap.String("strategy", string(cfg.Strategy)))
	writeJSON(w, http.StatusOK, s.prioritizer.Config())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	n := s.store.Clear()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Tags) == 0 && req.SubjectID == "" {
		writeJSONError(w, http.StatusBadRequest, "tags or subject_id is required")
		return
	}

	removed := s.store.InvalidateByTags(req.Tags...)
	removed += s.store.InvalidateBySubject(req.SubjectID)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var q models.Query
	if err := decodeBody(w, r, &q); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	canonical := models.Canonical(q)
	md := s.classifier.GenerateMetadata(canonical, s.now())
	ttl := s.classifier.ComputeTTL(canonical)
	writeJSON(w, http.StatusOK, ClassifyResponse{
		Key:       models.CacheKey(q),
		Category:  md.Category,
		TTL:       ttl.String(),
		TTLMillis: ttl.Milliseconds(),
		Tags:      md.Tags,
		Priority:  md.Priority,
		Cacheable: ttl > 0,
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var req PutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "query text is required")
		return
	}

	s.store.Set(req.Query, []byte(req.Response), store.Hints{
		ProcessingTime: time.Duration(req.ProcessingTimeMS) * time.Millisecond,
		Cost:           req.Cost,
		Tags:           req.Tags,
	})
	canonical := models.Canonical(req.Query)
	writeJSON(w, http.StatusOK, PutResponse{
		Key:      models.CacheKey(req.Query),
		Category: s.classifier.Classify(canonical),
		Cached:   s.classifier.ComputeTTL(canonical) > 0,
	})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var q models.Query
	if err := decodeBody(w, r, &q); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := LookupResponse{Key: models.CacheKey(q)}
	if data, ok := s.store.Get(q); ok {
		resp.Hit = true
		resp.Response = string(data)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var q models.Query
	if err := decodeBody(w, r, &q); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": s.store.Delete(q)})
}

func (s *Server) handleDependency(w http.ResponseWriter, r *http.Request) {
	var req DependencyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, parent := models.CacheKey(req.Query), models.CacheKey(req.DependsOn)
	if key == parent {
		writeJSONError(w, http.StatusBadRequest, "an entry cannot depend on itself")
		return
	}
	s.store.RegisterDependency(req.Query, req.DependsOn)
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "depends_on": parent})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"medcache_error","code":%d}}`, message, code)
}
