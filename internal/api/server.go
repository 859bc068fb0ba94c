package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ServerConfig configures the public API server.
type ServerConfig struct {
	Addr              string
	Router            RouterConfig
	MaxWSPerIP        int
	BroadcastInterval time.Duration // zero means one second
}

// Server is the HTTP API server with WebSocket support.
type Server struct {
	cfg         ServerConfig
	maps        MapService
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	http        *http.Server
	logger      *slog.Logger
}

// NewServer creates the server. Background workers do not start until
// Run is called, so Router() can be used with httptest on its own.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Router.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = time.Second
	}

	rlCfg := DefaultRateLimitConfig
	if cfg.Router.RateLimitConfig != nil {
		rlCfg = *cfg.Router.RateLimitConfig
	}
	s := &Server{
		cfg:         cfg,
		maps:        cfg.Router.Maps,
		rateLimiter: NewIPRateLimiter(rlCfg),
		logger:      logger,
		wsHub: NewWebSocketHub(HubConfig{
			Origins:  cfg.Router.CORSOrigins,
			MaxPerIP: cfg.MaxWSPerIP,
			Logger:   logger,
		}),
	}

	rc := cfg.Router
	rc.RateLimiter = s.rateLimiter
	s.router = NewRouter(rc)
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Run starts the hub, the stats broadcast and the listener, and blocks until
// ctx is done. It then shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.rateLimiter.Stop()

	go s.wsHub.Run(ctx)
	s.wsHub.StartBroadcastLoop(ctx, s.maps, s.cfg.BroadcastInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 API server starting", slog.String("addr", s.cfg.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("🌐 API server stopped")
	return nil
}
