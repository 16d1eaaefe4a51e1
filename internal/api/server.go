// Package api exposes the read-only monitor surface: pipeline status,
// recent matches, latest indicators and bar history.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/internal/auth"
	"pattern-sentinel/internal/market"
	"pattern-sentinel/internal/pipeline"
)

// StatusProvider reports the pipeline's current state
type StatusProvider interface {
	Status() pipeline.Status
}

// MatchReader loads persisted pattern matches
type MatchReader interface {
	RecentMatches(ctx context.Context, instrument string, limit int) ([]market.PatternMatch, error)
}

// IndicatorReader loads persisted indicator values
type IndicatorReader interface {
	FindLatest(ctx context.Context, instrument string, tf market.Timeframe) ([]market.IndicatorValue, error)
}

// BarReader loads persisted bars
type BarReader interface {
	LatestBars(ctx context.Context, instrument string, tf market.Timeframe, n int) ([]market.Bar, error)
}

// Pinger reports backing-store health for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds the monitor API settings
type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  string
	ProductionMode  bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the monitor HTTP server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        ServerConfig
	instrument string

	status     StatusProvider
	matches    MatchReader
	indicators IndicatorReader
	bars       BarReader
	pinger     Pinger

	startedAt time.Time
	logger    zerolog.Logger
}

// NewServer creates the monitor API server. jwtManager may be nil to
// run the API without authentication.
func NewServer(
	cfg ServerConfig,
	instrument string,
	status StatusProvider,
	matches MatchReader,
	indicators IndicatorReader,
	bars BarReader,
	pinger Pinger,
	jwtManager *auth.JWTManager,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		cfg:        cfg,
		instrument: instrument,
		status:     status,
		matches:    matches,
		indicators: indicators,
		bars:       bars,
		pinger:     pinger,
		startedAt:  time.Now(),
		logger:     log.With().Str("component", "api").Logger(),
	}
	s.setupRoutes(jwtManager)
	return s
}

func (s *Server) setupRoutes(jwtManager *auth.JWTManager) {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	if jwtManager != nil {
		v1.Use(auth.Middleware(jwtManager))
	}
	v1.GET("/status", s.handleStatus)
	v1.GET("/matches", s.handleMatches)
	v1.GET("/indicators/:timeframe", s.handleIndicators)
	v1.GET("/bars/:timeframe", s.handleBars)
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server until the listener fails or Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info().Str("addr", addr).Msg("Monitor API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
