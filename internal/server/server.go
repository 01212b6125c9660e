package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/termveil/termveil/internal/config"
	"github.com/termveil/termveil/internal/engine"
	"github.com/termveil/termveil/internal/logger"
	"github.com/termveil/termveil/internal/websocket"
	"go.uber.org/zap"
)

// Version is stamped at build time.
var Version = "0.1.0"

// Server exposes the engine operations over HTTP, with an optional
// WebSocket event stream for observers.
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	engine    *engine.Engine
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiter   *rateLimiter
	startedAt time.Time
	done      chan struct{}
}

// New creates a server around an already constructed engine.
func New(cfg *config.Config, eng *engine.Engine, log *logger.Logger) *Server {
	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastOperations:  true,
		BroadcastFindings:    true,
		BroadcastSystem:      true,
		BroadcastConnections: true,
	}, log.WithComponent("websocket").Logger)

	s := &Server{
		config: cfg,
		logger: log.WithComponent("server"),
		engine: eng,
		router: mux.NewRouter(),
		wsHub:  wsHub,
		done:   make(chan struct{}),
	}

	if cfg.Server.RateLimit.Enabled {
		s.limiter = newRateLimiter(cfg.Server.RateLimit.RequestsPerMin, cfg.Server.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}

	api.HandleFunc("/encode", s.handleEncode).Methods("POST")
	api.HandleFunc("/decode", s.handleDecode).Methods("POST")
	api.HandleFunc("/check", s.handleCheck).Methods("POST")
	api.HandleFunc("/find-terms", s.handleFindTerms).Methods("POST")
	api.HandleFunc("/undo", s.handleUndo).Methods("POST")
	api.HandleFunc("/reload", s.handleReload).Methods("POST")

	api.HandleFunc("/rules", s.handleRules).Methods("GET")
	api.HandleFunc("/validate", s.handleValidate).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/completions", s.handleCompletions).Methods("GET")
	api.HandleFunc("/audit", s.handleAudit).Methods("GET")
	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods("GET")
	api.HandleFunc("/cache/clear", s.handleCacheClear).Methods("POST")
}

// Start starts the HTTP server and the WebSocket hub.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	s.logger.Info("Starting termveil server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("rules", s.engine.RuleSet().Len()),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("websocket", s.config.WebSocket.Enabled),
	)

	go s.wsHub.Run()
	go s.broadcastStatus()

	return s.server.ListenAndServe()
}

// broadcastStatus pushes a periodic system-status event to connected
// observers until the server stops.
func (s *Server) broadcastStatus() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			hubStats := s.wsHub.GetStats()
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data: websocket.SystemStatusEvent{
					Status:           "healthy",
					Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
					TotalOperations:  int64(len(s.engine.History())),
					ActiveRules:      s.engine.RuleSet().Len(),
					ConnectedClients: int(hubStats.ActiveConnections),
				},
			})
		}
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping termveil server")
	close(s.done)
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// GetWebSocketHub returns the hub for broadcasting events.
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
