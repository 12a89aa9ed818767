package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"market-insight-bot/internal/auth"
	"market-insight-bot/internal/cache"
	"market-insight-bot/internal/database"
	"market-insight-bot/internal/feedback"
	"market-insight-bot/internal/prediction"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type predictionRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	resp := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.cache != nil {
		resp["cache_healthy"] = s.cache.IsHealthy()
	}

	c.JSON(code, resp)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	hash, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &database.APIUser{
		ID:           uuid.NewString(),
		Username:     strings.ToLower(strings.TrimSpace(req.Username)),
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(c.Request.Context(), user); err != nil {
		s.log.Warn("User registration failed", "username", user.Username, "error", err.Error())
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := s.repo.GetUserByUsername(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Username)))
	if err != nil || !s.passwordManager.VerifyPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidCredentials.Error()})
		return
	}

	token, err := s.jwtManager.GenerateAccessToken(auth.UserClaims{UserID: user.ID, Username: user.Username})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.AuthConfig.AccessTokenDuration.Seconds()),
	})
}

// requireUser resolves the authenticated user, aborting with 401 when the
// request carries no identity
func (s *Server) requireUser(c *gin.Context) (*auth.UserClaims, bool) {
	claims := auth.GetUserClaims(c)
	if claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}
	return claims, true
}

func (s *Server) handleAnalysis(c *gin.Context) {
	claims, ok := s.requireUser(c)
	if !ok {
		return
	}
	if !s.rateLimiter.Allow(claims.UserID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	symbol := strings.ToUpper(c.Param("symbol"))
	timeframe := c.DefaultQuery("timeframe", "1h")

	snapshot, err := s.analyzer.Analyze(c.Request.Context(), symbol, timeframe)
	if err != nil {
		s.log.Error("Analysis failed", "symbol", symbol, "timeframe", timeframe, "error", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "market analysis unavailable"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleCreatePrediction(c *gin.Context) {
	claims, ok := s.requireUser(c)
	if !ok {
		return
	}
	if !s.rateLimiter.Allow(claims.UserID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	var req predictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	payload, ok := prediction.ExtractPrediction(req.Text)
	if !ok {
		// Malformed or incomplete prediction blocks are dropped, not errors
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no valid prediction found in text"})
		return
	}

	p := payload.ToPrediction(claims.UserID, time.Now(), s.cfg.EvaluatorConfig.ExpiryWindow)
	if err := s.repo.CreatePrediction(c.Request.Context(), p); err != nil {
		s.log.Error("Prediction insert failed", "symbol", p.Symbol, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store prediction"})
		return
	}

	s.log.Info("Prediction registered",
		"id", p.ID, "symbol", p.Symbol, "strategy", string(p.Strategy), "direction", p.Direction)
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleListPredictions(c *gin.Context) {
	claims, ok := s.requireUser(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	preds, err := s.repo.GetPredictionsByUser(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load predictions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"predictions": preds, "count": len(preds)})
}

func (s *Server) handleCancelPrediction(c *gin.Context) {
	claims, ok := s.requireUser(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prediction id"})
		return
	}

	cancelled, err := s.repo.CancelPrediction(c.Request.Context(), id, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel prediction"})
		return
	}
	if !cancelled {
		// Already closed, expired, or owned by someone else
		c.JSON(http.StatusConflict, gin.H{"error": "prediction is not active"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": database.PredictionStatusCancelled})
}

func (s *Server) handleStrategyStats(c *gin.Context) {
	claims, ok := s.requireUser(c)
	if !ok {
		return
	}

	strategy := database.StrategyType(c.Param("strategy"))
	if !strategy.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown strategy type"})
		return
	}

	stats, err := s.repo.GetStrategyStats(c.Request.Context(), claims.UserID, strategy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load strategy stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAllStats(c *gin.Context) {
	claims, ok := s.requireUser(c)
	if !ok {
		return
	}

	var all []*database.StrategyStats
	for _, strategy := range feedback.SortedStrategies() {
		stats, err := s.repo.GetStrategyStats(c.Request.Context(), claims.UserID, strategy)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load strategy stats"})
			return
		}
		all = append(all, stats)
	}

	c.JSON(http.StatusOK, gin.H{"strategies": all})
}

func (s *Server) handleFeedback(c *gin.Context) {
	claims, ok := s.requireUser(c)
	if !ok {
		return
	}

	strategy := database.StrategyType(c.Param("strategy"))
	if !strategy.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown strategy type"})
		return
	}

	key := cache.FeedbackKey(claims.UserID, string(strategy))
	if s.cache != nil {
		var cached feedback.StrategyContext
		if err := s.cache.GetJSON(c.Request.Context(), key, &cached); err == nil {
			c.JSON(http.StatusOK, &cached)
			return
		}
	}

	sc, err := s.synthesizer.StrategyContext(c.Request.Context(), claims.UserID, strategy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to synthesize feedback"})
		return
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(c.Request.Context(), key, sc, cache.FeedbackTTL); err != nil {
			s.log.Debug("Feedback cache write failed", "key", key, "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, sc)
}

func (s *Server) handleInsights(c *gin.Context) {
	if _, ok := s.requireUser(c); !ok {
		return
	}

	if c.Query("refresh") == "true" {
		insights, err := s.synthesizer.GlobalInsights(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mine insights"})
			return
		}
		if err := s.repo.ReplaceGlobalInsights(c.Request.Context(), insights); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist insights"})
			return
		}
		if s.cache != nil {
			if err := s.cache.Delete(c.Request.Context(), cache.KeyGlobalInsights); err != nil {
				s.log.Debug("Insight cache invalidation failed", "error", err.Error())
			}
		}
		c.JSON(http.StatusOK, gin.H{"insights": insights, "count": len(insights)})
		return
	}

	if s.cache != nil {
		var cached []*database.GlobalInsight
		if err := s.cache.GetJSON(c.Request.Context(), cache.KeyGlobalInsights, &cached); err == nil {
			c.JSON(http.StatusOK, gin.H{"insights": cached, "count": len(cached)})
			return
		}
	}

	insights, err := s.repo.GetGlobalInsights(c.Request.Context(), s.cfg.FeedbackConfig.MaxInsights)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load insights"})
		return
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(c.Request.Context(), cache.KeyGlobalInsights, insights, cache.InsightsTTL); err != nil {
			s.log.Debug("Insight cache write failed", "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, gin.H{"insights": insights, "count": len(insights)})
}
