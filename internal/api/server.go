package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"market-insight-bot/config"
	"market-insight-bot/internal/analysis"
	"market-insight-bot/internal/auth"
	"market-insight-bot/internal/cache"
	"market-insight-bot/internal/database"
	"market-insight-bot/internal/feedback"
	"market-insight-bot/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router          *gin.Engine
	httpServer      *http.Server
	repo            *database.Repository
	analyzer        *analysis.Analyzer
	synthesizer     *feedback.Synthesizer
	cache           *cache.CacheService // nil disables response caching
	jwtManager      *auth.JWTManager
	passwordManager *auth.PasswordManager
	rateLimiter     *RateLimiter
	cfg             *config.Config
	log             *logging.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	repo *database.Repository,
	analyzer *analysis.Analyzer,
	synthesizer *feedback.Synthesizer,
	cacheSvc *cache.CacheService,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:          router,
		repo:            repo,
		analyzer:        analyzer,
		synthesizer:     synthesizer,
		cache:           cacheSvc,
		jwtManager:      auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.AccessTokenDuration),
		passwordManager: auth.NewPasswordManager(auth.DefaultBcryptCost, cfg.AuthConfig.MinPasswordLength),
		rateLimiter:     NewRateLimiter(120, time.Minute),
		cfg:             cfg,
		log:             logging.Default().WithComponent("api"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	corsConfig := cors.DefaultConfig()
	if origins := s.cfg.ServerConfig.AllowedOrigins; origins == "" || origins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(origins, ",")
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	s.router.Use(cors.New(corsConfig))

	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
	}

	protected := v1.Group("")
	if s.cfg.AuthConfig.Enabled {
		protected.Use(auth.Middleware(s.jwtManager))
	}
	{
		protected.GET("/analysis/:symbol", s.handleAnalysis)
		protected.POST("/predictions", s.handleCreatePrediction)
		protected.GET("/predictions", s.handleListPredictions)
		protected.DELETE("/predictions/:id", s.handleCancelPrediction)
		protected.GET("/stats/:strategy", s.handleStrategyStats)
		protected.GET("/stats", s.handleAllStats)
		protected.GET("/feedback/:strategy", s.handleFeedback)
		protected.GET("/insights", s.handleInsights)
	}
}

// Start begins serving HTTP requests, blocking until shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ServerConfig.Host, s.cfg.ServerConfig.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.ServerConfig.WriteTimeout) * time.Second,
	}

	s.log.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying gin engine, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}
