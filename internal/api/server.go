// Package api is the REST and websocket surface over the orchestrator's
// control methods. It stays thin: handlers translate HTTP to typed calls
// and never reach around the orchestrator.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/agent"
	"github.com/alphadesk/alphadesk/internal/db"
	"github.com/alphadesk/alphadesk/internal/events"
	"github.com/alphadesk/alphadesk/internal/metrics"
	"github.com/alphadesk/alphadesk/internal/orchestrator"
)

// Control is the orchestrator surface the API exposes
type Control interface {
	Status() orchestrator.TradingStatus
	Agents() []orchestrator.AgentInfo
	Leaderboard() []orchestrator.AgentInfo
	LastCycle() map[string]agent.Outcome
	EnableTrading()
	DisableTrading()
	ForceTick(ctx context.Context)
	RecentTrades(ctx context.Context, agentID string, limit int) ([]db.TradeRow, error)
	Autocritiques(ctx context.Context, agentID string, limit int) ([]db.AutocritiqueRow, error)
	PerformanceHistory(ctx context.Context, agentID string, horizon time.Duration) ([]db.SnapshotRow, error)
}

// Config contains server configuration
type Config struct {
	Host string
	Port int
}

// Server is the REST API server
type Server struct {
	router  *gin.Engine
	control Control
	hub     *Hub
	health  func(ctx context.Context) error
	addr    string
	server  *http.Server
	started time.Time
}

// NewServer creates an API server; health may be nil when no database is
// wired
func NewServer(cfg Config, control Control, broadcaster *events.Broadcaster, health func(ctx context.Context) error) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())
	router.Use(metricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		router:  router,
		control: control,
		hub:     NewHub(broadcaster),
		health:  health,
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Start runs the websocket hub and blocks serving HTTP until shutdown
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()

	log.Info().Str("addr", s.addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server and the websocket hub
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")
	s.hub.Stop()
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	return nil
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}
		logEvent.Msg("API request")
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// FullPath keeps label cardinality bounded on parameterized routes
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordAPIRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			float64(time.Since(start).Milliseconds()),
		)
	}
}
