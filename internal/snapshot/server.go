// Package snapshot is the read-only dashboard surface spec.md §6 names:
// a gin HTTP server exposing a status summary, open positions, recent
// trades, calibration snapshots and execution diagnostics (no paper
// balance is reported), plus a gorilla/websocket channel
// pushing live pipeline events, gated on its mutating endpoints by
// internal/snapshot/auth. Grounded on the teacher's
// internal/api/server.go, trimmed from its multi-tenant/billing/license
// surface to the single-operator read-only dashboard this spec needs.
package snapshot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"polybot/internal/domain"
	"polybot/internal/events"
	"polybot/internal/logging"
	snapshotauth "polybot/internal/snapshot/auth"
)

// BotAPI is everything the snapshot server needs from the running
// pipeline. main.go's wiring type implements it.
type BotAPI interface {
	Status() map[string]interface{}
	OpenPositions() []domain.Position
	ClosedTrades() []domain.Trade
	Diagnostics() map[string]int64
	Calibration() map[string]domain.CalibrationSnapshot
	Pause() error
	Resume() error
	Flatten(ctx context.Context) ([]domain.Trade, error)
}

// Config holds the server's own settings; bot behavior lives behind
// BotAPI.
type Config struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string
}

// Server is the HTTP+WebSocket dashboard surface.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	bot        BotAPI
	auth       *snapshotauth.Manager
	hub        *hub
	log        *logging.Logger
}

// NewServer builds a Server and registers its routes. auth may be nil,
// in which case the mutating endpoints are served unauthenticated
// (development/paper-trading-only use).
func NewServer(cfg Config, bot BotAPI, bus *events.EventBus, authMgr *snapshotauth.Manager) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsCfg))

	s := &Server{
		router: router,
		bot:    bot,
		auth:   authMgr,
		hub:    newHub(),
		log:    logging.WithComponent("snapshot"),
	}
	s.hub.attach(bus)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/snapshot/status", s.handleStatus)
	s.router.GET("/snapshot/positions", s.handlePositions)
	s.router.GET("/snapshot/trades", s.handleTrades)
	s.router.GET("/snapshot/diagnostics", s.handleDiagnostics)
	s.router.GET("/snapshot/calibration", s.handleCalibration)
	s.router.GET("/snapshot/ws", s.hub.handleWS)

	if s.auth != nil {
		s.router.POST("/snapshot/login", s.handleLogin)
	}

	mutating := s.router.Group("/snapshot")
	if s.auth != nil {
		mutating.Use(snapshotauth.Middleware(s.auth))
	}
	mutating.POST("/pause", s.handlePause)
	mutating.POST("/resume", s.handleResume)
	mutating.POST("/flatten", s.handleFlatten)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.OpenPositions())
}

func (s *Server) handleTrades(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.ClosedTrades())
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.Diagnostics())
}

func (s *Server) handleCalibration(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.Calibration())
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	token, err := s.auth.Login(req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "Bearer"})
}

func (s *Server) handlePause(c *gin.Context) {
	if err := s.bot.Pause(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.bot.Resume(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (s *Server) handleFlatten(c *gin.Context) {
	trades, err := s.bot.Flatten(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed_trades": trades})
}

// Run starts serving until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("snapshot server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
