// Package api serves the search, pricing, discovery and catalog endpoints
// over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/discovery"
	"github.com/sells-group/macro-finder/internal/menu"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/rank"
	"github.com/sells-group/macro-finder/internal/refresh"
	"github.com/sells-group/macro-finder/internal/seed"
)

// Ranker ranks menu items.
type Ranker interface {
	Rank(ctx context.Context, req rank.Request) (*rank.Response, error)
}

// Discoverer finds places around a point.
type Discoverer interface {
	Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error)
}

// Refresher imports stale menus around a point.
type Refresher interface {
	Refresh(ctx context.Context, req refresh.Request) (*refresh.Result, error)
}

// Importer imports one brand's menu.
type Importer interface {
	Configured() bool
	Import(ctx context.Context, brandKey string) (*menu.ImportResult, error)
}

// Uploader stores curated menu items.
type Uploader interface {
	Upload(ctx context.Context, items []menu.ManualItem) (*menu.UploadResult, error)
}

// SeedRunner starts and reports seed jobs.
type SeedRunner interface {
	Start(ctx context.Context, req seed.Request) (*model.SeedJob, error)
	Get(ctx context.Context, id string) (*model.SeedJob, error)
	List(ctx context.Context, limit int) ([]model.SeedJob, error)
}

// Store is the direct persistence the handlers use.
type Store interface {
	SetPrice(ctx context.Context, placeID, itemID string, price float64) (*model.PriceReport, error)
	Counts(ctx context.Context) (*model.StoreCounts, error)
	ListBrands(ctx context.Context) ([]model.Brand, error)
}

// Config wires the handler dependencies.
type Config struct {
	Store      Store
	Ranker     Ranker
	Discoverer Discoverer
	Refresher  Refresher
	Importer   Importer
	Uploader   Uploader
	Seeds      SeedRunner
	// Breakers reports provider circuit breaker states for /v1/status.
	Breakers func() map[string]string

	AllowedOrigins []string
	// RefreshTimeout bounds a refresh triggered by a search.
	RefreshTimeout time.Duration
}

// Server holds the handlers.
type Server struct {
	cfg Config
	log *zap.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 90 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{cfg: cfg, log: zap.L().With(zap.String("component", "api"))}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/prices", s.handleSetPrice)
		r.Post("/discover", s.handleDiscover)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/brands", s.handleListBrands)
		r.Post("/brands/{key}/import", s.handleImport)
		r.Post("/menu-items/bulk", s.handleBulkUpload)
		r.Post("/seed-jobs", s.handleStartSeed)
		r.Get("/seed-jobs", s.handleListSeeds)
		r.Get("/seed-jobs/{id}", s.handleGetSeed)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
