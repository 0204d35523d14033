package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"rtctester/internal/core/ports"
	"rtctester/internal/core/stats"
	"rtctester/internal/infrastructure/middleware"
	"rtctester/internal/infrastructure/report"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusServerConfig configures the HTTP status surface.
type StatusServerConfig struct {
	Address   string
	RunID     string
	RateLimit middleware.RateLimitConfig
}

// StatusServer serves the latest aggregate report, a health summary and the
// prometheus metrics while a test runs.
type StatusServer struct {
	config StatusServerConfig
	health *HealthChecker
	logger *zap.SugaredLogger
	engine *gin.Engine

	mu     sync.RWMutex
	latest *stats.AggregateReport
	server *http.Server
}

func NewStatusServer(config StatusServerConfig, gatherer prometheus.Gatherer, health *HealthChecker, logger *zap.SugaredLogger) *StatusServer {
	if health == nil {
		health = NewHealthChecker()
	}
	s := &StatusServer{
		config: config,
		health: health,
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.Recovery(logger),
		middleware.Tracing(),
		middleware.RequestLogger(logger),
		middleware.RateLimit(config.RateLimit),
	)
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := engine.Group("/api/v1")
	api.GET("/summary", s.handleSummary)

	s.engine = engine
	return s
}

var _ ports.ReportObserver = (*StatusServer)(nil)

// ObserveReport keeps r as the latest report.
func (s *StatusServer) ObserveReport(_ context.Context, r stats.AggregateReport) {
	s.mu.Lock()
	s.latest = &r
	s.mu.Unlock()
}

// Latest returns the most recent report, if any.
func (s *StatusServer) Latest() (stats.AggregateReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return stats.AggregateReport{}, false
	}
	return *s.latest, true
}

func (s *StatusServer) Handler() http.Handler {
	return s.engine
}

// Start binds the listen address and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *StatusServer) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("status server stopped", "error", err)
		}
	}()
	s.logger.Infow("status server listening", "address", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops the server started by Start, waiting for in-flight requests
// until ctx is done.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *StatusServer) handleHealth(c *gin.Context) {
	status := s.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *StatusServer) handleSummary(c *gin.Context) {
	r, ok := s.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet"})
		return
	}
	data, err := report.NewDocument(s.config.RunID, r).Marshal()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode report"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
