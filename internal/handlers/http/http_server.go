package http

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"demandForecastApp/internal/app"
	"demandForecastApp/internal/app/dto"
	"demandForecastApp/internal/domain/model"
)

// Dashboard serves stored history and forecasts.
type Dashboard interface {
	History(ctx context.Context, region model.Region, metric model.Metric) ([]model.HistoryPoint, error)
	Forecasts(ctx context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error)
}

// RunTrigger starts pipeline runs on demand.
type RunTrigger interface {
	RunOnce(ctx context.Context) (*model.RunReport, error)
	Last() *model.RunReport
}

// RevisionArchive returns past values of a forecast date.
type RevisionArchive interface {
	ForecastRevisions(ctx context.Context, region model.Region, metric model.Metric, date time.Time) ([]*model.ForecastPoint, error)
}

// ServerDeps groups what the API needs. Archive and WebSocket may be nil.
type ServerDeps struct {
	Dashboard      Dashboard
	Runs           RunTrigger
	Archive        RevisionArchive
	WebSocket      http.HandlerFunc
	Checks         map[string]func(context.Context) error
	Regions        []model.Region
	AllowedOrigins []string
	ServiceName    string
}

// Server represents an HTTP server with all routes configured
type Server struct {
	deps   ServerDeps
	router *gin.Engine
	server *http.Server
	log    *zap.Logger
}

// NewServer creates a new HTTP server with configured routes
func NewServer(addr string, deps ServerDeps, log *zap.Logger) *Server {
	router := gin.New()

	s := &Server{
		deps:   deps,
		router: router,
		log:    log.Named("http"),
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) registerRoutes() {
	s.router.Use(gin.Recovery(), s.requestLogger())
	if s.deps.ServiceName != "" {
		s.router.Use(otelgin.Middleware(s.deps.ServiceName))
	}
	s.router.Use(cors.New(corsConfig(s.deps.AllowedOrigins)))

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/regions", s.handleRegions)
	s.router.GET("/metrics/daily", s.handleHistory)

	forecasts := s.router.Group("/forecasts")
	{
		forecasts.GET("", s.handleForecasts)
		forecasts.GET("/history", s.handleRevisions)
	}

	runs := s.router.Group("/runs")
	{
		runs.POST("", s.handleTriggerRun)
		runs.GET("/latest", s.handleLatestRun)
	}

	if s.deps.WebSocket != nil {
		s.router.GET("/ws", gin.WrapF(s.deps.WebSocket))
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := make(gin.H, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := gin.H{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

func (s *Server) handleRegions(c *gin.Context) {
	regions := s.deps.Regions
	if len(regions) == 0 {
		regions = model.AllRegions
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

// pairFromQuery reads the region and metric query parameters. It writes a 400 and
// returns false when either is invalid.
func pairFromQuery(c *gin.Context) (model.Region, model.Metric, bool) {
	region, err := model.ParseRegion(c.Query("region"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", 0, false
	}
	metric, err := model.ParseMetric(c.DefaultQuery("metric", model.MetricOrderCount.String()))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", 0, false
	}
	return region, metric, true
}

func (s *Server) handleHistory(c *gin.Context) {
	region, metric, ok := pairFromQuery(c)
	if !ok {
		return
	}
	points, err := s.deps.Dashboard.History(c.Request.Context(), region, metric)
	if err != nil {
		s.internalError(c, "failed to load history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": region, "metric": metric, "points": points})
}

func (s *Server) handleForecasts(c *gin.Context) {
	region, metric, ok := pairFromQuery(c)
	if !ok {
		return
	}
	points, err := s.deps.Dashboard.Forecasts(c.Request.Context(), region, metric)
	if err != nil {
		s.internalError(c, "failed to load forecasts", err)
		return
	}
	if points == nil {
		points = []*model.ForecastPoint{}
	}
	c.JSON(http.StatusOK, gin.H{"region": region, "metric": metric, "points": points})
}

func (s *Server) handleRevisions(c *gin.Context) {
	if s.deps.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "forecast archive is not configured"})
		return
	}
	region, metric, ok := pairFromQuery(c)
	if !ok {
		return
	}
	date, err := time.Parse(time.DateOnly, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	revisions, err := s.deps.Archive.ForecastRevisions(c.Request.Context(), region, metric, date)
	if err != nil {
		s.internalError(c, "failed to load forecast revisions", err)
		return
	}
	if revisions == nil {
		revisions = []*model.ForecastPoint{}
	}
	c.JSON(http.StatusOK, gin.H{"region": region, "metric": metric, "date": date.Format(time.DateOnly), "revisions": revisions})
}

func (s *Server) handleTriggerRun(c *gin.Context) {
	report, err := s.deps.Runs.RunOnce(c.Request.Context())
	if errors.Is(err, app.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.internalError(c, "failed to run pipeline", err)
		return
	}
	status := http.StatusOK
	if report.Failed() {
		status = http.StatusInternalServerError
	}
	c.JSON(status, dto.FromRunReport(report))
}

func (s *Server) handleLatestRun(c *gin.Context) {
	report := s.deps.Runs.Last()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has completed yet"})
		return
	}
	c.JSON(http.StatusOK, dto.FromRunReport(report))
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.log.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
