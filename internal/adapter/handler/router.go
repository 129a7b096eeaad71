package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-minutes/pkg/config"
)

// HealthChecker reports on a backing service
type HealthChecker interface {
	GetBucketInfo(ctx context.Context) (map[string]interface{}, error)
}

// Router holds all handlers
type Router struct {
	cfg        *config.Config
	jobHandler *Job
	storage    HealthChecker
	logger     *zap.Logger
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, jobHandler *Job, storage HealthChecker, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:        cfg,
		jobHandler: jobHandler,
		storage:    storage,
		logger:     logger,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API documentation
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 group
	v1 := e.Group("/api/v1")

	rt.setupJobRoutes(v1)
	rt.setupDownloadRoutes(v1)
}

// setupJobRoutes configures job routes
func (rt *Router) setupJobRoutes(g *echo.Group) {
	jobs := g.Group("/jobs")

	jobs.POST("", rt.jobHandler.Upload)
	jobs.GET("", rt.jobHandler.List)
	jobs.GET("/:id", rt.jobHandler.Get)
	jobs.GET("/:id/transcript", rt.jobHandler.Transcript)
	jobs.POST("/:id/resume", rt.jobHandler.Resume)
}

// setupDownloadRoutes configures signed document downloads
func (rt *Router) setupDownloadRoutes(g *echo.Group) {
	route := g.GET("/downloads/:token", rt.jobHandler.Download)
	route.Name = "downloads.get"
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	environment := ""
	if rt.cfg != nil {
		environment = rt.cfg.Server.Environment
	}
	body := map[string]interface{}{
		"status":      "ok",
		"environment": environment,
		"time":        time.Now().UTC().Format(time.RFC3339),
	}

	if rt.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		info, err := rt.storage.GetBucketInfo(ctx)
		if err != nil {
			rt.logger.Warn("health check: storage unavailable", zap.Error(err))
			body["status"] = "degraded"
			body["storage"] = map[string]interface{}{"error": err.Error()}
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["storage"] = info
	}

	return c.JSON(http.StatusOK, body)
}
