// Package api exposes loaded maps and their snapshot caches over HTTP and
// WebSocket.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"botgrid/internal/spatial"
	"botgrid/internal/world"
)

// MapService is the subset of world.Manager the API calls.
// Keep this minimal so tests can serve a fixed cache without a tick loop.
type MapService interface {
	// Stats returns per-map counters ordered by map ID
	Stats() []world.Stats
	// Cache returns the snapshot cache of a loaded map
	Cache(mapID uint32) (*spatial.Cache, error)
	// Spawn queues a new entity and returns its GUID
	Spawn(mapID uint32, req world.SpawnRequest) (spatial.GUID, error)
	// Submit queues any other command
	Submit(mapID uint32, cmd world.Command) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Maps: mockMaps,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000,
//	        Burst:             1000,
//	    },
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Maps serves every /api/maps route (required)
	Maps MapService

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used when RateLimiter is nil.
	// If both are nil, DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins lists allowed origins; wildcards as in go-chi/cors.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// AdminToken guards the mutating routes. Empty disables the check.
	AdminToken string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool

	Logger *slog.Logger
}

type routerHandlers struct {
	maps   MapService
	logger *slog.Logger
}

var defaultOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It starts no goroutines other than the rate limiter cleanup and opens no
// listeners, so it is safe to wrap in httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - order matters
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrDefault(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", AdminTokenHeader},
		AllowCredentials: true,
	}))

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &routerHandlers{maps: cfg.Maps, logger: logger}
	admin := requireAdminToken(cfg.AdminToken)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api/maps", func(r chi.Router) {
		r.Get("/", h.handleListMaps)

		r.Route("/{mapID}", func(r chi.Router) {
			r.Get("/stats", h.handleMapStats)
			r.Get("/cells", h.handleActiveCells)
			r.Get("/nearby/{kind}", h.handleNearby)
			r.Get("/grid.png", h.handleGridPNG)

			r.With(admin).Post("/entities", h.handleSpawn)
			r.With(admin).Delete("/entities/{guid}", h.handleDespawn)
			r.With(admin).Post("/entities/{guid}/move", h.handleMove)
		})
	})

	return r
}

func originsOrDefault(origins []string) []string {
	if origins == nil {
		return defaultOrigins
	}
	return origins
}
