package server

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"waterfootprint/backend/internal/config"
	"waterfootprint/backend/internal/logging"
)

const (
	apiPrefix        = "/api"
	requestIDHeader  = "X-Request-ID"
	maxRequestIDLen  = 128
	maxImageBytes    = 20 << 20
	staticEntryFile  = "index.html"
	readinessTimeout = 5 * time.Second
)

// Options carries the dependencies built once at process start. A nil Model
// means the AI provider is unconfigured; a nil History means the store is
// not connected.
type Options struct {
	Model   Generator
	History HistoryStore
	Metrics *Metrics
}

type App struct {
	cfg     config.Config
	model   Generator
	history HistoryStore
	metrics *Metrics
}

func New(cfg config.Config, opts Options) *App {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &App{
		cfg:     cfg,
		model:   opts.Model,
		history: opts.History,
		metrics: metrics,
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = maxImageBytes
	router.Use(requestLogger(), a.metrics.middleware(), gin.Recovery())
	router.Use(cors.New(corsConfig(a.cfg.CORSAllowOrigins)))

	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	api := router.Group(apiPrefix)
	api.GET("/health", a.health)
	api.GET("/ready", a.ready)
	api.GET("/history", a.getHistory)
	api.POST("/history", a.addHistory)
	api.POST("/footprint", a.footprint)
	api.POST("/chat", a.chat)
	api.POST("/analyze-habits", a.analyzeHabits)

	router.NoRoute(a.notFound)
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	if a.history == nil {
		checks["history"] = "not connected"
		status = http.StatusServiceUnavailable
	} else if err := a.history.Ping(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("history store ping failed")
		checks["history"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		checks["history"] = "ok"
	}
	if a.model == nil {
		checks["model"] = "not configured"
	} else {
		checks["model"] = "configured"
	}

	label := "ready"
	if status != http.StatusOK {
		label = "unavailable"
	}
	c.JSON(status, gin.H{"status": label, "checks": checks})
}

// notFound answers JSON for unknown API paths and serves the front end for
// everything else so client-side routes resolve to the entry document.
func (a *App) notFound(c *gin.Context) {
	requestPath := c.Request.URL.Path
	if requestPath == apiPrefix || strings.HasPrefix(requestPath, apiPrefix+"/") {
		writeError(c, http.StatusNotFound, "Path not found")
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		writeError(c, http.StatusNotFound, "Path not found")
		return
	}

	if file, ok := a.staticFile(requestPath); ok {
		c.File(file)
		return
	}
	entry := filepath.Join(a.cfg.StaticDir, staticEntryFile)
	if !isRegularFile(entry) {
		writeError(c, http.StatusNotFound, "Frontend not built")
		return
	}
	c.File(entry)
}

func (a *App) staticFile(requestPath string) (string, bool) {
	if strings.TrimSpace(a.cfg.StaticDir) == "" {
		return "", false
	}
	cleaned := path.Clean("/" + requestPath)
	if cleaned == "/" {
		return "", false
	}
	candidate := filepath.Join(a.cfg.StaticDir, filepath.FromSlash(cleaned))
	if !isRegularFile(candidate) {
		return "", false
	}
	return candidate, true
}

func isRegularFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
