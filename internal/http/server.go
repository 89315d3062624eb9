// Package http provides the operational HTTP server: health, readiness and metrics.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cryptoUsecase "github.com/dealdesk/fieldcrypt/internal/crypto/usecase"
	"github.com/dealdesk/fieldcrypt/internal/metrics"
)

const readinessTimeout = 2 * time.Second

// Server represents the ops HTTP server.
type Server struct {
	server     *http.Server
	router     *gin.Engine
	logger     *slog.Logger
	keyManager cryptoUsecase.KeyManager
	db         *sql.DB
}

// NewServer creates a new ops server. db may be nil when the key store does not use a database.
func NewServer(
	keyManager cryptoUsecase.KeyManager,
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		keyManager: keyManager,
		db:         db,
		logger:     logger,
		server:     newHTTPServer(host, port, nil),
	}
}

// SetupRouter builds the gin router. When metricsProvider is not nil, request
// metrics are recorded under namespace.
func (s *Server) SetupRouter(metricsProvider *metrics.Provider, namespace string) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), namespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	s.router = router
}

// Start starts the ops server and blocks until it stops.
func (s *Server) Start(_ context.Context) error {
	if s.router == nil {
		s.SetupRouter(nil, "")
	}
	s.server.Handler = s.router

	return listen(s.server, s.logger, "ops server")
}

// Shutdown gracefully shuts down the ops server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready once the current encryption key resolves and,
// when configured, the database answers a ping.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	components := gin.H{}
	ready := true

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness: database ping failed", slog.Any("error", err))
			components["database"] = "error"
			ready = false
		} else {
			components["database"] = "ok"
		}
	}

	if s.keyManager == nil {
		components["keys"] = "error"
		ready = false
	} else if key, err := s.keyManager.GetCurrentKey(ctx); err != nil {
		s.logger.Warn("readiness: current key unavailable", slog.Any("error", err))
		components["keys"] = "error"
		ready = false
	} else {
		components["keys"] = "ok"
		components["key_version"] = key.Version
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
