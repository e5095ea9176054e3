// Package api exposes the integration engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/engine"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Engine is the part of *engine.Engine the API serves.
type Engine interface {
	Carriers() []core.Descriptor
	CreateConnection(ctx context.Context, req engine.ConnectionRequest) (*models.Connection, error)
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	GetActiveConnections(ctx context.Context) ([]*models.Connection, error)
	DeactivateConnection(ctx context.Context, id string) (*models.Connection, error)
	GetConnectionHealth(ctx context.Context, id string) (*models.ConnectionHealth, error)
	RateLimitStatus(ctx context.Context, id string) (clients.RateLimiterStats, error)
	FetchData(ctx context.Context, id string, dataType core.DataType, params core.Params) ([]models.CanonicalRecord, error)
	GetAlerts(filter models.AlertFilter) []*models.Alert
	AcknowledgeAlert(ctx context.Context, id string) (*models.Alert, error)
}

// Server wires the routes to an Engine.
type Server struct {
	engine Engine
	logger *zap.Logger
	router *gin.Engine
}

// NewServer builds the router. Gin runs in release mode.
func NewServer(e Engine, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: e, logger: logger, router: gin.New()}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Use(requestID(), recovery(s.logger), accessLog(s.logger), countRequests())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/carriers", s.listCarriers)

	conns := v1.Group("/connections")
	conns.POST("", s.createConnection)
	conns.GET("", s.listConnections)
	conns.GET("/:id", s.getConnection)
	conns.DELETE("/:id", s.deactivateConnection)
	conns.GET("/:id/health", s.connectionHealth)
	conns.GET("/:id/rate-limit", s.rateLimit)
	conns.POST("/:id/fetch", s.fetch)

	v1.GET("/alerts", s.listAlerts)
	v1.POST("/alerts/:id/ack", s.acknowledgeAlert)
}

// ListenAndServe serves on cfg.Addr until ctx ends, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
