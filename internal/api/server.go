// Package api serves the simulation state over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
	"github.com/signalsfoundry/uav-offload-sim/internal/observability"
	"github.com/signalsfoundry/uav-offload-sim/internal/report"
	"github.com/signalsfoundry/uav-offload-sim/internal/store"
	"github.com/signalsfoundry/uav-offload-sim/model"
)

// RunStore is the run history the API reads. *store.Store satisfies it.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	Samples(ctx context.Context, runID string, limit int) ([]store.Sample, error)
}

// Server exposes an Environment under /api/v1.
type Server struct {
	router  *gin.Engine
	env     *core.Environment
	runs    RunStore
	log     logging.Logger
	metrics *observability.HTTPCollector
	origins []string
	srv     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRunStore enables the /runs endpoints.
func WithRunStore(rs RunStore) Option { return func(s *Server) { s.runs = rs } }

// WithLogger sets the base request logger.
func WithLogger(l logging.Logger) Option { return func(s *Server) { s.log = l } }

// WithHTTPMetrics records request metrics on c.
func WithHTTPMetrics(c *observability.HTTPCollector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithAllowedOrigins restricts CORS to origins. All origins are allowed by
// default.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer builds the router for env.
func NewServer(env *core.Environment, opts ...Option) *Server {
	s := &Server{env: env, log: logging.Noop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Noop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.TracingMiddleware())
	router.Use(requestID(s.log))
	if s.metrics != nil {
		router.Use(s.metrics.Middleware())
	}

	config := cors.DefaultConfig()
	if len(s.origins) > 0 {
		config.AllowOrigins = s.origins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", requestIDHeader, "traceparent", "tracestate"}
	config.ExposeHeaders = []string{requestIDHeader}
	router.Use(cors.New(config))

	s.router = router
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	api.GET("/health", s.health)
	api.GET("/metrics", s.metricsSnapshot)
	api.GET("/report", s.report)

	api.GET("/devices", s.listDevices)
	api.GET("/devices/:id", s.getDevice)

	api.GET("/uavs", s.listUAVs)
	api.GET("/uavs/:id", s.getUAV)
	api.POST("/uavs/:id/target", s.setUAVTarget)
	api.PUT("/uavs/:id/maintenance", s.setUAVMaintenance)

	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.GET("/runs/:id/samples", s.getSamples)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr in the background. Listener errors other than a
// clean shutdown are logged.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info(context.Background(), "http api listening", logging.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "http api stopped", logging.Err(err))
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"state":   s.env.State().String(),
		"time":    s.env.Now(),
		"steps":   s.env.Steps(),
		"pending": s.env.Pending(),
	})
}

func (s *Server) metricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.env.Metrics())
}

func (s *Server) report(c *gin.Context) {
	switch c.DefaultQuery("format", report.FormatJSON) {
	case report.FormatText:
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)
		if err := report.Write(c.Writer, s.env, report.FormatText); err != nil {
			loggerFrom(c, s.log).Warn(c.Request.Context(), "report write failed", logging.Err(err))
		}
	case report.FormatJSON:
		st, err := report.Build(s.env)
		if err != nil {
			writeError(c, err)
			return
		}
		data, err := report.JSON(st, false)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	default:
		writeError(c, errBadRequest("format must be text or json"))
	}
}

func (s *Server) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.env.Devices())
}

func (s *Server) getDevice(c *gin.Context) {
	id := c.Param("id")
	for _, d := range s.env.Devices() {
		if d.ID == id {
			c.JSON(http.StatusOK, d)
			return
		}
	}
	writeError(c, errNotFound("device", id))
}

func (s *Server) listUAVs(c *gin.Context) {
	c.JSON(http.StatusOK, s.env.UAVs())
}

func (s *Server) getUAV(c *gin.Context) {
	id := c.Param("id")
	if u, ok := s.findUAV(id); ok {
		c.JSON(http.StatusOK, u)
		return
	}
	writeError(c, errNotFound("uav", id))
}

func (s *Server) findUAV(id string) (model.UAVSnapshot, bool) {
	for _, u := range s.env.UAVs() {
		if u.ID == id {
			return u, true
		}
	}
	return model.UAVSnapshot{}, false
}

type targetRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
	Z *float64 `json:"z" binding:"required"`
}

func (s *Server) setUAVTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest(err.Error()))
		return
	}
	area := s.env.Config().Area
	if !area.Contains(*req.X, *req.Y) || *req.Z < 0 || *req.Z > area.Height {
		writeError(c, errBadRequest("target outside the simulation area"))
		return
	}
	id := c.Param("id")
	if err := s.env.SetUAVTarget(id, model.NewLocation(*req.X, *req.Y, *req.Z)); err != nil {
		writeError(c, err)
		return
	}
	loggerFrom(c, s.log).Info(c.Request.Context(), "uav retargeted",
		logging.String("uav_id", id),
		logging.Float("x", *req.X),
		logging.Float("y", *req.Y),
		logging.Float("z", *req.Z))
	u, _ := s.findUAV(id)
	c.JSON(http.StatusOK, u)
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setUAVMaintenance(c *gin.Context) {
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest(err.Error()))
		return
	}
	id := c.Param("id")
	if err := s.env.SetUAVMaintenance(id, req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	loggerFrom(c, s.log).Info(c.Request.Context(), "uav maintenance changed",
		logging.String("uav_id", id),
		logging.Bool("enabled", req.Enabled))
	u, _ := s.findUAV(id)
	c.JSON(http.StatusOK, u)
}

func (s *Server) listRuns(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getSamples(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := s.runs.GetRun(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	samples, err := s.runs.Samples(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, samples)
}

func (s *Server) requireRuns(c *gin.Context) bool {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history is not enabled"})
		return false
	}
	return true
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(c, errBadRequest("limit must be a non-negative integer"))
		return 0, false
	}
	return limit, true
}
