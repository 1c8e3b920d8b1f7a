// Package server exposes the trading dashboard HTTP API.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradedesk/internal/analysis"
	"tradedesk/internal/app"
	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

// Server wires the trade and analysis services into a gin router.
type Server struct {
	engine   *gin.Engine
	trades   *app.TradeService
	analysis *analysis.Service
	exchange ports.ExchangeClient
	hub      *Hub
	logger   ports.Logger
}

// Config holds the server dependencies.
type Config struct {
	TradeService    *app.TradeService
	AnalysisService *analysis.Service
	Exchange        ports.ExchangeClient
	Hub             *Hub
	Logger          ports.Logger
}

// New creates the HTTP server and registers all routes.
func New(cfg Config) (*Server, error) {
	if cfg.TradeService == nil || cfg.AnalysisService == nil || cfg.Exchange == nil || cfg.Hub == nil || cfg.Logger == nil {
		return nil, errors.New("missing required dependencies for Server")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		trades:   cfg.TradeService,
		analysis: cfg.AnalysisService,
		exchange: cfg.Exchange,
		hub:      cfg.Hub,
		logger:   cfg.Logger,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.POST("/trades/execute", s.handleExecuteTrade)
		api.POST("/trades/close/:tradeId", s.handleCloseTrade)
		api.GET("/trades/user-trades", s.handleUserTrades)
		api.GET("/portfolio/summary", s.handlePortfolioSummary)
		api.GET("/analysis/:symbol", s.handleAnalysis)
		api.GET("/market/price/:symbol", s.handlePrice)
	}

	s.engine.GET("/ws/ticker/:symbol", s.handleTickerStream)
}

// Run serves HTTP until the listener fails or the server is shut down.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the underlying handler, mainly for tests and for embedding
// into an http.Server with custom timeouts.
func (s *Server) Handler() http.Handler {
	return s.engine
}

type executeRequest struct {
	UserID string `json:"userId" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`

	// Optional pre-fetched analysis; when absent the server runs the
	// analysis pipeline itself.
	Analysis *domain.AIAnalysis `json:"analysis"`
}

func (s *Server) handleExecuteTrade(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "userId and symbol are required")
		return
	}

	ctx := c.Request.Context()
	aiAnalysis := req.Analysis
	if aiAnalysis == nil {
		var err error
		aiAnalysis, err = s.analysis.Analyze(ctx, req.Symbol)
		if err != nil {
			s.respondServiceError(c, err, "analysis failed")
			return
		}
	}

	result, err := s.trades.ExecuteTrade(ctx, req.UserID, req.Symbol, aiAnalysis)
	if err != nil {
		s.respondServiceError(c, err, "trade execution failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

type closeRequest struct {
	ClosedPrice *float64 `json:"closedPrice"`
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	tradeID := c.Param("tradeId")

	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	trade, err := s.trades.CloseTrade(c.Request.Context(), tradeID, req.ClosedPrice, domain.CloseReasonManual)
	if err != nil {
		s.respondServiceError(c, err, "failed to close trade")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": trade})
}

func (s *Server) handleUserTrades(c *gin.Context) {
	userID := c.Query("userId")
	status := domain.TradeStatus(c.Query("status"))
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	trades, err := s.trades.GetUserTrades(c.Request.Context(), userID, status, limit)
	if err != nil {
		s.respondServiceError(c, err, "failed to fetch trades")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": trades})
}

func (s *Server) handlePortfolioSummary(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		respondError(c, http.StatusBadRequest, "userId is required")
		return
	}

	summary, err := s.trades.PortfolioSummary(c.Request.Context(), userID)
	if err != nil {
		s.respondServiceError(c, err, "failed to compute portfolio summary")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": summary})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	symbol := c.Param("symbol")

	result, err := s.analysis.Analyze(c.Request.Context(), symbol)
	if err != nil {
		s.respondServiceError(c, err, "analysis failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (s *Server) handlePrice(c *gin.Context) {
	symbol := c.Param("symbol")

	price, err := s.analysis.CurrentPrice(c.Request.Context(), symbol)
	if err != nil {
		s.respondServiceError(c, err, "failed to fetch price")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"symbol": symbol, "price": price}})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.exchange.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "exchange": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTickerStream(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.hub.Serve(c.Request.Context(), c.Writer, c.Request, symbol); err != nil {
		s.logger.Error(c.Request.Context(), err, "Ticker stream subscription failed", map[string]interface{}{"symbol": symbol})
	}
}

// respondServiceError maps service errors to HTTP statuses. Guard rejections
// never reach this path: the trade service reports them as successful results.
func (s *Server) respondServiceError(c *gin.Context, err error, msg string) {
	s.logger.Error(c.Request.Context(), err, msg)

	switch {
	case errors.Is(err, ports.ErrInvalidRequest), errors.Is(err, ports.ErrInvalidAnalysis):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrOrderNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ports.ErrRateLimited):
		respondError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ports.ErrRiskCheckUnavailable), errors.Is(err, ports.ErrUnavailable):
		respondError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ports.ErrTimeout):
		respondError(c, http.StatusGatewayTimeout, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "server error")
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}
