package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"kcu-coach-engine/internal/auth"
	"kcu-coach-engine/internal/coach"
	"kcu-coach-engine/internal/marketdata"
)

// RateLimiter caps how often a single user may hit the mutating coach
// routes. Counting is in-memory per process, which matches the engine's
// single-instance deployment.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter allows up to limit hits per key within the window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Allow records a hit for the key and reports whether it stays within
// the window. Expired hits are pruned in place on every call, so the
// map stays bounded by the set of recently active keys.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	kept := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.hits[key] = kept
		return false
	}

	r.hits[key] = append(kept, now)
	return true
}

// SymbolWatcher manages upstream tick-feed subscriptions per user.
type SymbolWatcher interface {
	Watch(userID, symbol string) error
	UnwatchAll(userID string)
}

// LevelSource supplies the current key-level snapshot for a symbol when
// the client registers a context without one.
type LevelSource interface {
	Levels(ctx context.Context, symbol string) (coach.KeyLevels, bool)
}

// FeedHealth reports upstream tick-feed health for the status endpoint.
type FeedHealth interface {
	Stats() marketdata.FeedStats
}

// ServerConfig holds the API server settings.
type ServerConfig struct {
	Port              int
	Host              string
	AllowedOrigins    string
	HeartbeatInterval time.Duration
	ProductionMode    bool
}

// Server is the HTTP surface of the coaching engine: context CRUD plus
// the SSE push stream.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      *coach.Engine
	hub         *Hub
	watcher     SymbolWatcher
	levels      LevelSource
	jwtManager  *auth.JWTManager // nil when auth is disabled
	feed        FeedHealth       // nil when no feed is attached
	config      ServerConfig
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewServer creates the API server. jwtManager may be nil to run without
// authentication (local development); levels may be nil when no level
// source is configured.
func NewServer(
	cfg ServerConfig,
	engine *coach.Engine,
	hub *Hub,
	watcher SymbolWatcher,
	levels LevelSource,
	jwtManager *auth.JWTManager,
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		engine:      engine,
		hub:         hub,
		watcher:     watcher,
		levels:      levels,
		jwtManager:  jwtManager,
		config:      cfg,
		rateLimiter: NewRateLimiter(60, time.Minute),
		logger:      logger.With().Str("component", "APIServer").Logger(),
	}

	server.setupRoutes()
	return server
}

// AttachFeed exposes feed health on the status endpoint.
func (s *Server) AttachFeed(feed FeedHealth) {
	s.feed = feed
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/coach")
	if s.jwtManager != nil {
		api.Use(auth.Middleware(s.jwtManager))
	}

	api.POST("/context", s.rateLimit, s.handleSetContext)
	api.DELETE("/context", s.rateLimit, s.handleRemoveContext)
	api.PUT("/trade", s.rateLimit, s.handleSetTrade)
	api.DELETE("/trade", s.rateLimit, s.handleClearTrade)
	api.GET("/status", s.handleStatus)
	api.GET("/stream", s.handleStream)
}

// rateLimit caps mutating requests per user.
func (s *Server) rateLimit(c *gin.Context) {
	key := s.userID(c) + ":" + c.FullPath()
	if !s.rateLimiter.Allow(key) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "RATE_LIMITED",
			"message": "too many requests",
		})
		return
	}
	c.Next()
}

// userID resolves the acting user: JWT claims when auth is enabled,
// otherwise an explicit userId query parameter.
func (s *Server) userID(c *gin.Context) string {
	if userID := auth.GetUserID(c); userID != "" {
		return userID
	}
	if s.jwtManager == nil {
		return c.Query("userId")
	}
	return ""
}

// Start runs the HTTP server until Shutdown is called. Read timeouts are
// left unset: the SSE stream is a deliberately long-lived response.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
