// Package adminapi exposes the orchestrator's public API (spec.md §6) as
// JSON endpoints, plus /healthz and /metrics. It is an internal
// introspection/admin surface, not the "upstream source of records" spec.md
// excludes — every handler is a thin call into the orchestrator, no
// business logic lives here. Grounded on cmd/factoryinsight's gin-based
// service shape; logging middleware follows the teacher's gin-contrib/zap
// convention (see cmd/factoryinsight/http.go's SetupRestAPI).
package adminapi

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/cache"
	"github.com/schemaforge/schemaforge/internal/orchestrator"
)

// Server wraps a gin.Engine exposing the orchestrator's public API.
type Server struct {
	engine *gin.Engine
	orch   *orchestrator.Orchestrator
	health healthcheck.Handler
	cache  *cache.Snapshot
}

// New builds a Server. health may be nil if no backend checks are wired.
func New(orch *orchestrator.Orchestrator, health healthcheck.Handler, log *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	s := &Server{engine: engine, orch: orch, health: health, cache: cache.New(2 * time.Second)}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/status", s.getStatus)
	s.engine.GET("/decisions", s.getDecisions)
	s.engine.GET("/field-stats", s.getFieldStats)
	s.engine.POST("/flush", s.postFlush)
	s.engine.POST("/ingest", s.postIngest)
	s.engine.POST("/ingest/batch", s.postIngestBatch)

	if s.health != nil {
		s.engine.GET("/healthz", gin.WrapF(s.health.LiveEndpoint))
		s.engine.GET("/readyz", gin.WrapF(s.health.ReadyEndpoint))
	}
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run blocks serving on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.GetStatus())
}

func (s *Server) getDecisions(c *gin.Context) {
	if cached, ok := s.cache.Get("decisions"); ok {
		c.JSON(http.StatusOK, cached)
		return
	}
	decisions := s.orch.GetDecisions()
	s.cache.Set("decisions", decisions)
	c.JSON(http.StatusOK, decisions)
}

func (s *Server) getFieldStats(c *gin.Context) {
	if cached, ok := s.cache.Get("field-stats"); ok {
		c.JSON(http.StatusOK, cached)
		return
	}
	fields := s.orch.GetFieldStats()
	s.cache.Set("field-stats", fields)
	c.JSON(http.StatusOK, fields)
}

func (s *Server) postFlush(c *gin.Context) {
	s.cache.Invalidate("decisions")
	s.cache.Invalidate("field-stats")
	result, err := s.orch.Flush(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) postIngest(c *gin.Context) {
	var rec map[string]interface{}
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orch.Ingest(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) postIngestBatch(c *gin.Context) {
	var recs []map[string]interface{}
	if err := c.ShouldBindJSON(&recs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orch.IngestBatch(c.Request.Context(), recs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}
