package api

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/services/charity/config"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/services"
	"example.com/backstage/services/charity/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	services   *services.Services
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
	auth       *Authenticator
	limiter    *RateLimiter
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, svc *services.Services, m *metrics.Metrics, tracer tracing.Tracer) (*Server, error) {
	auth, err := NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	if tracer == nil {
		tracer = tracing.NewNoopTracer()
	}

	server := &Server{
		config:   cfg,
		services: svc,
		metrics:  m,
		tracer:   tracer,
		auth:     auth,
		limiter:  NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, m),
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	return server, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(gin.Recovery())
	if app := s.tracer.Application(); app != nil {
		router.Use(NewRelicMiddleware(app))
	}
	router.Use(CORSMiddleware(s.config.Server.CorsOrigins))
	router.Use(LoggingMiddleware())
	router.Use(MetricsMiddleware(s.metrics))
	router.Use(s.auth.Middleware())

	router.GET("/health", s.health)
	router.GET("/metrics", s.allMetrics)
	router.GET("/metrics/prometheus", gin.WrapH(s.metrics.PrometheusHandler()))

	v1 := router.Group("/api/v1")
	user := RequireUser()
	limited := s.limiter.Handler()

	events := v1.Group("/events")
	{
		events.POST("", user, s.createEvent)
		events.GET("/:id", s.showEvent)
		events.PUT("/:id", user, s.updateEvent)
		events.DELETE("/:id", user, s.deleteEvent)
		events.POST("/:id/approve", user, s.approveEvent)

		events.GET("/:id/demand", s.listDemand)
		events.POST("/:id/demand", user, s.createDemand)
		events.PUT("/:id/demand", user, s.updateDemand)

		events.POST("/:id/volunteers/:slot_id/responses", user, limited, s.respondVolunteer)
		events.GET("/:id/volunteers/confirm/:token", s.confirmVolunteer)
		events.POST("/:id/supplies/responses", user, limited, s.respondSupply)
		events.GET("/:id/supplies/confirm/:token", s.confirmSupply)

		events.GET("/:id/updates", s.listUpdates)
		events.POST("/:id/updates", user, s.createUpdate)
		events.GET("/:id/updates/:update_id", s.showUpdate)
		events.PUT("/:id/updates/:update_id", user, s.editUpdate)
		events.DELETE("/:id/updates/:update_id", user, s.deleteUpdate)

		events.GET("/:id/comments", s.listComments)
		events.POST("/:id/comments", user, limited, s.createComment)
		events.DELETE("/:id/comments/:comment_id", user, s.deleteComment)

		events.POST("/:id/images", user, s.uploadImage)
		events.PUT("/:id/images/:image_id/preview", user, s.setPreviewImage)
		events.DELETE("/:id/images/:image_id", user, s.deleteImage)

		events.POST("/:id/payment-account", user, s.createPaymentAccount)
		events.POST("/:id/payments", limited, s.createPayment)
		events.GET("/:id/payments", s.listPayments)
		events.GET("/:id/payments/total", s.paymentsTotal)
	}

	v1.PUT("/volunteer-responses/:id/approve", user, s.approveVolunteerResponse)
	v1.PUT("/supply-responses/:id/sent", user, s.markParcelSent)
	v1.PUT("/supply-responses/:id/received", user, s.markParcelReceived)
	v1.POST("/comments/:comment_id/like", user, s.toggleLike)

	v1.GET("/delivery-options", s.deliveryOptions)
	v1.GET("/search", s.search)
	v1.GET("/search/suggest", s.suggest)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}

// CleanupLimiters periodically resets the rate limiter table until ctx ends
func (s *Server) CleanupLimiters(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}
