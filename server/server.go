// Package server exposes ingestion, ranking and recommendation over HTTP.
// Handlers decode requests, call the engines and encode the result.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sweetpotato0/coverwise/advisor"
	"github.com/sweetpotato0/coverwise/catalog"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/middleware"
	"github.com/sweetpotato0/coverwise/middleware/enricher"
	"github.com/sweetpotato0/coverwise/middleware/errorhandler"
	"github.com/sweetpotato0/coverwise/middleware/limiter"
	"github.com/sweetpotato0/coverwise/middleware/logger"
	"github.com/sweetpotato0/coverwise/middleware/validator"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/rag/document"
	"github.com/sweetpotato0/coverwise/scoring"
)

// Ingester stores policy documents for retrieval.
type Ingester interface {
	Ingest(ctx context.Context, doc document.Document) (int, error)
	Count(ctx context.Context) (int, error)
}

// Recommender produces rankings and recommendation payloads.
type Recommender interface {
	Rank(profile catalog.UserProfile, candidates []catalog.Product) []scoring.ScoredProduct
	Recommend(ctx context.Context, req advisor.Request) (advisor.Payload, error)
}

// Config controls the HTTP layer.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    10 << 20,
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithConfig overrides the listener configuration. Zero fields keep defaults.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		if cfg.Addr != "" {
			s.cfg.Addr = cfg.Addr
		}
		if cfg.ReadTimeout > 0 {
			s.cfg.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.WriteTimeout > 0 {
			s.cfg.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.ShutdownTimeout > 0 {
			s.cfg.ShutdownTimeout = cfg.ShutdownTimeout
		}
		if cfg.MaxBodyBytes > 0 {
			s.cfg.MaxBodyBytes = cfg.MaxBodyBytes
		}
		s.cfg.RateLimit = cfg.RateLimit
		s.cfg.RateBurst = cfg.RateBurst
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHandler mounts an extra handler, such as the MCP endpoint.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) {
		s.extra = append(s.extra, route{pattern: pattern, handler: h})
	}
}

type route struct {
	pattern string
	handler http.Handler
}

// Server is the HTTP front of the recommendation service.
type Server struct {
	ingester    Ingester
	recommender Recommender
	cfg         Config
	logger      *slog.Logger
	extra       []route
	handler     http.Handler
}

// New builds a Server.
func New(ingester Ingester, recommender Recommender, opts ...Option) *Server {
	s := &Server{
		ingester:    ingester,
		recommender: recommender,
		cfg:         DefaultConfig(),
		logger:      logging.WithComponent("server"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.handler = s.routes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/v1/recommend", s.handleRecommend)
	mux.HandleFunc("POST /api/v1/rank", s.handleRank)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	api := middleware.NewChain(
		enricher.NewRequestIDs("cw"),
		logger.NewRequestLogger(s.logger),
		errorhandler.NewRecoverer(s.logger),
		limiter.NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst),
		validator.NewBodyValidator(s.cfg.MaxBodyBytes),
	).Then(mux)

	if len(s.extra) == 0 {
		return api
	}
	root := http.NewServeMux()
	root.Handle("/", api)
	for _, r := range s.extra {
		root.Handle(r.pattern, middleware.NewChain(
			enricher.NewRequestIDs("cw"),
			logger.NewRequestLogger(s.logger),
			errorhandler.NewRecoverer(s.logger),
		).Then(r.handler))
	}
	return root
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// IngestRequest is the body of POST /api/v1/ingest.
type IngestRequest struct {
	VendorID    string `json:"vendor_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Document    string `json:"document"`
}

// IngestResponse reports how many chunks were stored.
type IngestResponse struct {
	Chunks int `json:"chunks"`
}

// RecommendRequest is the body of POST /api/v1/recommend and /api/v1/rank.
type RecommendRequest struct {
	UserProfile map[string]any   `json:"user_profile"`
	Query       string           `json:"query,omitempty"`
	Products    []map[string]any `json:"products"`
	Mode        advisor.Mode     `json:"mode,omitempty"`
}

// RankResponse lists ranked products.
type RankResponse struct {
	Recommendations []scoring.ScoredProduct `json:"recommendations"`
}

// HealthResponse reports liveness and index size.
type HealthResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := req.ToDocument()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.ingester.Ingest(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, IngestResponse{Chunks: n})
}

// ToDocument converts the request into a document for ingestion.
func (req IngestRequest) ToDocument() (document.Document, error) {
	if strings.TrimSpace(req.Document) == "" {
		return document.Document{}, fmt.Errorf("document is required: %w", errorskg.ErrInvalidInput)
	}
	meta := map[string]any{}
	if req.VendorID != "" {
		meta["vendor_id"] = req.VendorID
	}
	if req.Filename != "" {
		meta["filename"] = req.Filename
	}
	return document.Document{
		ID:          req.Filename,
		Content:     req.Document,
		ContentType: req.ContentType,
		Metadata:    meta,
	}, nil
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, err := s.recommender.Recommend(r.Context(), req.AdvisorRequest())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if !s.decode(w, r, &req) {
		return
	}
	ranked := s.recommender.Rank(catalog.ProfileFromMap(req.UserProfile), catalog.ProductsFromMaps(req.Products))
	if ranked == nil {
		ranked = []scoring.ScoredProduct{}
	}
	middleware.WriteJSON(w, http.StatusOK, RankResponse{Recommendations: ranked})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.ingester.Count(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Chunks: n})
}

// AdvisorRequest converts the wire request into an advisor request.
func (req RecommendRequest) AdvisorRequest() advisor.Request {
	return advisor.Request{
		Profile:    catalog.ProfileFromMap(req.UserProfile),
		Query:      req.Query,
		Candidates: catalog.ProductsFromMaps(req.Products),
		Mode:       req.Mode,
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, middleware.ErrBodyTooLarge.Error())
			return false
		}
		s.writeError(w, r, fmt.Errorf("decode request: %v: %w", err, errorskg.ErrInvalidInput))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", enricher.RequestID(r.Context()),
			"error", err,
		)
	}
	middleware.WriteError(w, status, err.Error())
}

// StatusFor maps engine errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errorskg.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errorskg.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errorskg.ErrMissingConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}
