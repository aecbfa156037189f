// Package api exposes the scan orchestration subsystem over HTTP. The
// surface mirrors the upstream v1 API: engines, single and batch scans,
// status, history and system metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/typesift/typesift/internal/history"
	"github.com/typesift/typesift/internal/metrics"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/orchestrator"
	"github.com/typesift/typesift/internal/registry"
)

type Server struct {
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	store    *history.Store
	recorder *metrics.Recorder
	defaults model.ScanDefaults
	router   *gin.Engine
}

func NewServer(orch *orchestrator.Orchestrator, reg *registry.Registry, store *history.Store, rec *metrics.Recorder, defaults model.ScanDefaults) *Server {
	s := &Server{
		orch:     orch,
		registry: reg,
		store:    store,
		recorder: rec,
		defaults: defaults,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog())

	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/engines", s.getEngines)
		v1.GET("/engines/status", s.getEngineStatus)
		v1.POST("/scan/file", s.scanFile)
		v1.POST("/scan/batch", s.scanBatch)
		v1.GET("/scan/history", s.getHistory)
		v1.GET("/scan/:id/status", s.getScanStatus)
		v1.POST("/scan/:id/pause", s.pauseBatch)
		v1.POST("/scan/:id/resume", s.resumeBatch)
		v1.POST("/scan/:id/cancel", s.cancelBatch)
		v1.GET("/system/metrics", s.getSystemMetrics)
	}

	s.router = r
	return s
}

// Handler exposes the router, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.InfoContext(ctx, "http server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).String())
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// errorStatus maps the error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, model.ErrInvalidOptions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrEngineTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrEngineFailure):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrRegistryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{
		"success": false,
		"error": model.ScanError{
			Kind:    model.ErrorKind(err),
			Message: err.Error(),
		},
	})
}
