package monitoring

import (
	"context"
	"net/http"
	"time"

	"stemfetch/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the debug endpoints of a running ingestion: health,
// Prometheus metrics and a JSON view of the progress table.
type Server struct {
	srv    *http.Server
	logger *zap.SugaredLogger
}

func NewServer(addr string, progress *services.ProgressTable, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	startTime := time.Now()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/progress", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tracks": progress.Snapshot(),
		})
	})

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background; a failed listen is logged, not fatal,
// because the debug surface is auxiliary to the ingestion itself.
func (s *Server) Start() {
	go func() {
		s.logger.Infow("debug server listening", "address", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warnw("debug server stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
