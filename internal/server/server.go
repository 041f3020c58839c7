// Package server exposes the HTTP API: metadata resolution, download
// job creation, progress polling, cancellation, and artifact retrieval.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/config"
	"github.com/renkel/ytgrab/internal/jobs"
	"github.com/renkel/ytgrab/internal/media"
)

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// metadataFetcher merges the primary API and the extraction engine
// into one metadata record.
type metadataFetcher interface {
	Fetch(ctx context.Context, videoID string) (*media.Metadata, error)
}

// qualityProber reports the player's self-declared best quality level.
type qualityProber interface {
	BestQuality(ctx context.Context, videoID string) (string, error)
}

// Server is the HTTP server for ytgrab
type Server struct {
	cfg    *config.Config
	meta   metadataFetcher
	prober qualityProber
	queue  *jobs.Queue
	log    zerolog.Logger

	server *http.Server
	engine *gin.Engine
}

// metadataTimeout bounds one /metadata request end to end, probes
// included.
const metadataTimeout = 60 * time.Second

func New(cfg *config.Config, meta metadataFetcher, prober qualityProber, queue *jobs.Queue, log zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		meta:   meta,
		prober: prober,
		queue:  queue,
		log:    log.With().Str("component", "server").Logger(),
	}
}

// Start begins serving and blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	s.queue.Start()

	gin.SetMode(gin.ReleaseMode)
	s.engine = s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // file retrieval streams large artifacts
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info().Int("port", s.cfg.Server.Port).
		Bool("auth", s.cfg.Server.APIKey != "").Msg("server listening")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and the job queue. The listener
// closes first so no new requests can reach the queue while it drains.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.queue.Stop()
	return err
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.loggingMiddleware())
	if s.cfg.Server.APIKey != "" {
		engine.Use(s.authMiddleware())
	}

	engine.GET("/health", s.handleHealth)
	engine.POST("/metadata", s.handleMetadata)
	engine.POST("/download", s.handleDownload)
	engine.GET("/progress/:job_id", s.handleProgress)
	engine.POST("/cancel/:job_id", s.handleCancel)
	engine.GET("/file/:job_id", s.handleFile)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: "not found"})
	})
	return engine
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health endpoint doesn't require auth
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != s.cfg.Server.APIKey {
			c.JSON(http.StatusUnauthorized, Response{
				Code:    401,
				Message: "invalid or missing API key",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
