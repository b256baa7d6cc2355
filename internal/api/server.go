// Package api exposes the read-only web API backing the mini-app UI:
// the leaderboard, per-user profiles with their activity ledger, and
// the operational health and metrics endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/localstore"
	"telegram-mining-app/internal/model"
	"telegram-mining-app/internal/repository"
	"telegram-mining-app/internal/service"
)

const ledgerPageSize = 50

const healthTimeout = 2 * time.Second

// healthChecker verifies the backing database still answers.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server

	accountService     *service.AccountService
	minerService       *service.MinerService
	referralService    *service.ReferralService
	leaderboardService *service.LeaderboardService
	local              *localstore.Store
	health             healthChecker
	nonToTon           float64
}

// NewServer creates the API server listening on addr.
func NewServer(
	addr string,
	accountService *service.AccountService,
	minerService *service.MinerService,
	referralService *service.ReferralService,
	leaderboardService *service.LeaderboardService,
	local *localstore.Store,
	health healthChecker,
	nonToTon float64,
) *Server {
	s := &Server{
		accountService:     accountService,
		minerService:       minerService,
		referralService:    referralService,
		leaderboardService: leaderboardService,
		local:              local,
		health:             health,
		nonToTon:           nonToTon,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/leaderboard", s.handleLeaderboard)
		apiGroup.GET("/users/:id", s.handleUser)
		apiGroup.GET("/users/:id/ledger", s.handleLedger)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the server until it is shut down. http.ErrServerClosed is
// swallowed as the normal shutdown outcome.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("API request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := s.health.HealthCheck(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleLeaderboard serves the ranked miner table. An optional user_id
// query enriches the response with that user's own standing.
func (s *Server) handleLeaderboard(c *gin.Context) {
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be an integer"})
			return
		}
		userID = id
	}

	board, err := s.leaderboardService.Get(c.Request.Context(), userID, 10)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build leaderboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, board)
}

// userProfile is the per-user API payload: balance, mining status,
// referral standing and the recent activity ledger.
type userProfile struct {
	ID        int64                `json:"id"`
	Username  string               `json:"username"`
	Balance   int64                `json:"balance"`
	TonValue  float64              `json:"tonValue"`
	Invites   int64                `json:"invites"`
	Mining    service.MiningStatus `json:"mining"`
	Ledger    []model.LedgerEntry  `json:"ledger"`
	Milestone *model.Milestone     `json:"milestone,omitempty"`
}

func (s *Server) handleUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	ctx := c.Request.Context()
	user, err := s.accountService.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	ledger, err := s.local.Ledger(ctx, userID, ledgerPageSize)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	profile := userProfile{
		ID:       user.TelegramID,
		Username: user.Username,
		Balance:  user.Balance,
		TonValue: model.NonToTon(user.Balance, s.nonToTon),
		Invites:  user.ReferralCount,
		Mining:   s.minerService.Status(userID),
		Ledger:   ledger,
	}
	if tier, reached := s.referralService.CheckMilestone(user.ReferralCount); reached {
		profile.Milestone = &tier
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleLedger(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	ledger, err := s.local.Ledger(c.Request.Context(), userID, ledgerPageSize)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledger": ledger})
}
