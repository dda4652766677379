// Package api provides the HTTP transport for the fund administration
// backend: request validation, role enforcement and mapping of engine
// errors to HTTP status codes. All domain semantics live in the waterfall
// engine; handlers are pass-through glue.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fund-admin-backend/internal/auth"
	"fund-admin-backend/internal/database"
	"fund-admin-backend/internal/waterfall"
)

// WaterfallEngine is the engine surface the API depends on. Tests swap in a
// fake; production wires *waterfall.Engine.
type WaterfallEngine interface {
	ApplyWaterfall(ctx context.Context, distributionID string) (*waterfall.Result, error)
	MarkPaid(ctx context.Context, distributionID string) (*waterfall.Distribution, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	repo        *database.Repository
	engine      WaterfallEngine
	authService *auth.Service
	jwtManager  *auth.JWTManager
	lock        *database.RedisDistributionLock
	logger      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	engine WaterfallEngine,
	authService *auth.Service,
	jwtManager *auth.JWTManager,
	lock *database.RedisDistributionLock,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:      gin.New(),
		config:      config,
		repo:        repo,
		engine:      engine,
		authService: authService,
		jwtManager:  jwtManager,
		lock:        lock,
		logger:      logger.With().Str("component", "APIServer").Logger(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.POST("/auth/login", s.handleLogin)

	authed := v1.Group("")
	authed.Use(auth.Middleware(s.jwtManager))
	{
		authed.POST("/structures", auth.Require(auth.OpManageStructures), s.handleCreateStructure)
		authed.GET("/structures/:id", auth.Require(auth.OpViewStructures), s.handleGetStructure)
		authed.POST("/structures/:id/tiers", auth.Require(auth.OpManageStructures), s.handleCreateTier)
		authed.GET("/structures/:id/tiers", auth.Require(auth.OpViewStructures), s.handleGetTiers)
		authed.POST("/structures/:id/investors", auth.Require(auth.OpManageStructures), s.handleCreateInvestorPosition)
		authed.GET("/structures/:id/investors", auth.Require(auth.OpViewStructures), s.handleGetInvestors)
		authed.GET("/structures/:id/distributions", auth.Require(auth.OpViewStructures), s.handleListDistributions)

		authed.POST("/structures/:id/distributions", auth.Require(auth.OpCreateDistribution), s.handleCreateDistribution)
		authed.GET("/distributions/:id", auth.Require(auth.OpViewStructures), s.handleGetDistribution)
		authed.POST("/distributions/:id/waterfall", auth.Require(auth.OpApplyWaterfall), s.handleApplyWaterfall)
		authed.POST("/distributions/:id/paid", auth.Require(auth.OpMarkPaid), s.handleMarkPaid)
		authed.GET("/distributions/:id/allocations", auth.Require(auth.OpViewAllocations), s.handleGetAllocations)
	}
}

// Router exposes the gin engine, mainly for httptest.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps engine error types to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		vErr  *waterfall.ValidationError
		nfErr *waterfall.NotFoundError
		cErr  *waterfall.ConflictError
		aErr  *waterfall.ArithmeticError
	)
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Message: err.Error()})
	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.As(err, &cErr):
		c.JSON(http.StatusConflict, errorResponse{Error: "conflict", Message: err.Error()})
	case errors.As(err, &aErr):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "arithmetic_error", Message: err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("internal error")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"})
	}
}
