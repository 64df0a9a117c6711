// Package api provides the HTTP surface: the WebSocket upgrade endpoint,
// pool/miner stats, and the Prometheus scrape endpoint, all on one port.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/starkpool/coordinator/internal/coordinator"
	"github.com/starkpool/coordinator/internal/metrics"
	"github.com/starkpool/coordinator/internal/poolerr"
	"github.com/starkpool/coordinator/internal/util"
)

// Server is the HTTP API server. It mounts the Stratum WebSocket upgrade
// handler at GET / and serves read-only JSON/Prometheus endpoints
// alongside it, per spec §6: "same port as WebSocket".
type Server struct {
	cfg    *Config
	coord  *coordinator.Coordinator
	router *gin.Engine
	server *http.Server
}

// Config holds the subset of configuration the API server needs.
type Config struct {
	Bind        string
	CORSOrigins []string
}

// WSHandler upgrades a connection to the Stratum WebSocket protocol; it is
// typically an *internal/stratum.Server.
type WSHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// NewServer creates a new API server, mounting ws at GET /.
func NewServer(cfg *Config, coord *coordinator.Coordinator, ws WSHandler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{cfg: cfg, coord: coord, router: router}
	s.setupRoutes(ws)
	return s
}

func (s *Server) setupRoutes(ws WSHandler) {
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s.router.GET("/", gin.WrapH(ws))
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/api/stats/:address", s.handleMinerStats)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Start begins serving the API (and Stratum upgrade) on cfg.Bind.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.Bind,
		Handler: s.router,
	}

	util.Infof("API server listening on %s", s.cfg.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("API server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the API server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.coord.GetPoolStats(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to get pool stats"})
		return
	}
	c.JSON(200, stats)
}

func (s *Server) handleMinerStats(c *gin.Context) {
	address := c.Param("address")
	if !util.ValidateAddress(address) {
		c.JSON(400, gin.H{"error": "invalid address"})
		return
	}

	stats, err := s.coord.MinerStats(c.Request.Context(), address)
	if err != nil {
		if poolerr.Is(err, poolerr.MinerNotFound) {
			c.JSON(404, gin.H{"error": "miner not found"})
			return
		}
		c.JSON(500, gin.H{"error": "failed to get miner stats"})
		return
	}
	c.JSON(200, stats)
}
