// internal/web/server.go
package web

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"sitemonitor/internal/config"
	"sitemonitor/internal/database"
	"sitemonitor/internal/metrics"
	"sitemonitor/internal/monitoring"
)

type Server struct {
	config    *config.Config
	store     database.ExtendedStore
	assembler *monitoring.Assembler
	janitor   *monitoring.Janitor
	metrics   *metrics.Collector
	router    *gin.Engine
	templates *template.Template
	limiter   *RateLimiter
	server    *http.Server

	wsMu      sync.Mutex
	wsClients map[*WSClient]bool
}

func NewServer(cfg *config.Config, store database.ExtendedStore, assembler *monitoring.Assembler, janitor *monitoring.Janitor, metricsCollector *metrics.Collector) (*Server, error) {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := registerValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))

	server := &Server{
		config:    cfg,
		store:     store,
		assembler: assembler,
		janitor:   janitor,
		metrics:   metricsCollector,
		router:    router,
		limiter:   NewRateLimiter(rate.Limit(cfg.Server.AdminRateLimit), cfg.Server.AdminBurst),
		wsClients: make(map[*WSClient]bool),
	}

	if cfg.Web.TemplatesDir != "" {
		tmpl, err := template.ParseGlob(filepath.Join(cfg.Web.TemplatesDir, "*.html"))
		if err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}
		router.SetHTMLTemplate(tmpl)
		server.templates = tmpl
	}
	if cfg.Web.StaticDir != "" {
		router.Static("/static", cfg.Web.StaticDir)
	}

	server.setupRoutes()
	return server, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

	go s.updateMetricsRoutine(ctx)
	go s.limiter.Cleanup(ctx, 5*time.Minute)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.closeWebSockets()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/favicon.ico", s.serveFavicon)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/monitor")
	})

	// Dashboard
	monitor := s.router.Group("/monitor")
	{
		monitor.GET("", s.monitorIndex)
		monitor.GET("/index", s.monitorIndex)
		monitor.GET("/:page/:country/:name", s.monitorPage)
		monitor.POST("/preferences", s.limiter.Middleware(), s.savePreference)
	}

	// Admin API, writes are rate limited per client
	api := s.router.Group("/api", s.limiter.Middleware())
	{
		api.GET("/sites", s.getSites)
		api.GET("/sites/:id", s.getSite)
		api.POST("/sites", s.createSite)
		api.PUT("/sites/:id", s.updateSite)
		api.DELETE("/sites/:id", s.deleteSite)

		api.GET("/hosts", s.getHosts)
		api.GET("/hosts/:id", s.getHost)
		api.POST("/hosts", s.createHost)
		api.PUT("/hosts/:id", s.updateHost)
		api.DELETE("/hosts/:id", s.deleteHost)
		api.GET("/vips", s.getVIPs)

		api.GET("/monitors", s.getMonitors)
		api.GET("/monitors/:id", s.getMonitor)
		api.POST("/monitors", s.createMonitor)
		api.PUT("/monitors/:id", s.updateMonitor)
		api.DELETE("/monitors/:id", s.deleteMonitor)

		api.GET("/applications", s.getApplications)
		api.GET("/applications/:id", s.getApplication)
		api.POST("/applications", s.createApplication)
		api.PUT("/applications/:id", s.updateApplication)
		api.DELETE("/applications/:id", s.deleteApplication)

		api.GET("/build-info", s.getBuildInfo)
	}
	s.setupPurgeRoutes(api)

	s.router.GET("/ws", s.handleWebSocket)

	if s.config.Prometheus.Enabled {
		s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   Version,
	})
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
	if s.metrics == nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
			logrus.WithError(err).Error("Failed to update system metrics")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cors.New(cfg)
}
