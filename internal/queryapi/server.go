package queryapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wellsgz/rrdb/internal/config"
	"github.com/wellsgz/rrdb/internal/logging"
	"github.com/wellsgz/rrdb/internal/updatecache"
)

// Server is the query API's HTTP server.
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	handler    *Handler
	registry   *Registry
	hub        *Hub
}

// NewServer builds a query API server over cfg, its database registry
// and an optional update cache (nil disables batched writes and the
// websocket commit-event stream).
func NewServer(cfg *config.Config, cache *updatecache.Cache) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ErrorHandler())
	router.Use(RequestLogger())
	router.Use(CORS())

	registry := NewRegistry(cfg)
	handler := NewHandler(cfg, registry, cache)

	var hub *Hub
	if cfg.Server.EnableWebSocket {
		hub = NewHub(cache)
	}

	SetupRoutes(router, handler, hub)

	return &Server{config: cfg, router: router, handler: handler, registry: registry, hub: hub}
}

// Start runs the server, blocking until it stops or fails.
func (s *Server) Start(address string) error {
	s.httpServer = &http.Server{
		Addr:         address,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.Info("API", fmt.Sprintf("starting server on %s", address), nil)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("queryapi: server error: %w", err)
	}
	return nil
}

// StartAsync starts the server (and its websocket hub, if enabled) in
// background goroutines.
func (s *Server) StartAsync(address string) {
	if s.hub != nil {
		go s.hub.Run()
	}
	go func() {
		if err := s.Start(address); err != nil {
			logging.Error("API", "server error", err)
		}
	}()
}

// Shutdown stops the websocket hub and gracefully drains in-flight HTTP
// requests within timeout, then closes every open database.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.hub != nil {
		s.hub.Stop()
	}

	defer s.registry.CloseAll()

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logging.Info("API", "shutting down", nil)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("queryapi: shutdown error: %w", err)
	}
	logging.Info("API", "stopped", nil)
	return nil
}

// Router exposes the underlying gin engine, for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Registry exposes the database registry, for the CLI's cache wiring.
func (s *Server) Registry() *Registry { return s.registry }
