package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/slotmeter/internal/billing"
	billingdomain "github.com/smallbiznis/slotmeter/internal/billing/domain"
	"github.com/smallbiznis/slotmeter/internal/config"
	"github.com/smallbiznis/slotmeter/internal/observability"
	obslogger "github.com/smallbiznis/slotmeter/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/slotmeter/internal/observability/metrics"
	obstracing "github.com/smallbiznis/slotmeter/internal/observability/tracing"
	"github.com/smallbiznis/slotmeter/internal/resource"
	resourcedomain "github.com/smallbiznis/slotmeter/internal/resource/domain"
	"github.com/smallbiznis/slotmeter/internal/session"
	sessiondomain "github.com/smallbiznis/slotmeter/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	resource.Module,
	billing.Module,
	session.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	resourceSvc resourcedomain.Service
	sessionSvc  sessiondomain.Service
	billingSvc  billingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	ResourceSvc resourcedomain.Service
	SessionSvc  sessiondomain.Service
	BillingSvc  billingdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		resourceSvc: p.ResourceSvc,
		sessionSvc:  p.SessionSvc,
		billingSvc:  p.BillingSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/resources", s.ListResources)
	api.POST("/resources", s.CreateResource)
	api.GET("/resources/:id", s.GetResourceByID)
	api.PUT("/resources/:id", s.UpdateResource)
	api.PATCH("/resources/:id", s.UpdateResource)
	api.DELETE("/resources/:id", s.DeleteResource)

	sessions := api.Group("/usage-sessions")
	{
		sessions.GET("", s.ListUsageSessions)
		sessions.GET("/resource/:resource_id", s.ListUsageSessionsByResource)
		sessions.GET("/user/:user_id", s.ListUsageSessionsByUser)
		sessions.GET("/id/:id", s.GetUsageSessionByID)
		sessions.POST("/start", s.StartUsageSession)
		sessions.POST("/stop", s.StopUsageSession)
	}

	billingGroup := api.Group("/billing")
	{
		billingGroup.GET("", s.ListBillingRecords)
		billingGroup.GET("/user/:user_id", s.ListBillingRecordsByUser)
		billingGroup.GET("/user/:user_id/total", s.GetUserTotalSpent)
		billingGroup.GET("/user/:user_id/summary", s.GetUserBillingSummary)
		billingGroup.GET("/resource/:resource_id", s.ListBillingRecordsByResource)
		billingGroup.GET("/session/:session_id", s.GetBillingRecordBySession)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
