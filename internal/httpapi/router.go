// Package httpapi exposes the lip-sync server over HTTP: playback control,
// realtime sessions, idle motion, the clip library, settings, status, logs,
// Prometheus metrics and the viewer websocket.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/anim"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/idle"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/logging"
	"github.com/normanking/lipsync/internal/viewer"
)

// LogSource returns recent log entries.
type LogSource interface {
	GetHistory(limit int) []logging.LogEntry
}

// Options configures the router.
type Options struct {
	Engine  *lipsync.Engine
	Idle    *idle.Manager
	Library *anim.Library
	Hub     *viewer.Hub
	Logs    LogSource

	// OpenSource creates the audio source for a realtime session.
	OpenSource func() (audio.Source, error)
	// OnSettings is called after a settings update was accepted.
	OnSettings func(lipsync.Settings)
	// Context bounds realtime sessions started over HTTP.
	Context context.Context

	Debug  bool
	Logger zerolog.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	opts   Options
	logger zerolog.Logger
	engine *gin.Engine
}

// New builds the gin engine with recovery, logging and CORS middlewares and
// registers every route.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil || opts.Idle == nil || opts.Library == nil {
		return nil, fmt.Errorf("http api requires engine, idle manager and clip library")
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "http").Logger(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.loggingMiddleware())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	api := engine.Group("/api")
	api.POST("/speak", s.speak)
	api.POST("/phonemes", s.phonemes)
	api.POST("/clips/play", s.playClip)
	api.POST("/stop", s.stop)
	api.POST("/pause", s.pause)
	api.POST("/resume", s.resume)
	api.PUT("/playback", s.playback)

	api.POST("/realtime/start", s.startRealtime)
	api.POST("/realtime/stop", s.stopRealtime)

	api.GET("/idle", s.idleStatus)
	api.PUT("/idle/base", s.baseIdle)
	api.PUT("/idle/:kind", s.enableIdle)
	api.PUT("/idle/:kind/params", s.idleParam)
	api.POST("/idle/wind/pause", s.pauseWind)
	api.POST("/idle/wind/resume", s.resumeWind)

	api.GET("/clips", s.listClips)
	api.GET("/clips/:name", s.getClip)
	api.PUT("/clips/:name", s.saveClip)
	api.DELETE("/clips/:name", s.deleteClip)

	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.updateSettings)
	api.GET("/status", s.status)
	api.GET("/logs", s.logs)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Hub != nil {
		engine.GET("/ws", gin.WrapH(opts.Hub))
	}

	s.engine = engine
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		event := s.logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("HTTP request")
	}
}
