package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/internal/observability"
	obslogger "github.com/smallbiznis/invoicely/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	obstracing "github.com/smallbiznis/invoicely/internal/observability/tracing"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(classifyErrorForLog))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(obsmetrics.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg.Debug())
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http.server.start", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
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
	engine    *gin.Engine
	schedules scheduledomain.Service
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Schedules scheduledomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		schedules: p.Schedules,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	s.registerAPIRoutes()
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", OrgContext())

	// -------- Recurring invoices --------
	recurring := api.Group("/recurring-invoices")
	recurring.GET("", s.ListSchedules)
	recurring.POST("", s.CreateSchedule)
	recurring.GET("/stats", s.GetScheduleStats)
	recurring.GET("/:id", s.GetSchedule)
	recurring.PUT("/:id", s.UpdateSchedule)
	recurring.DELETE("/:id", s.DeleteSchedule)
	recurring.POST("/:id/pause", s.PauseSchedule)
	recurring.POST("/:id/resume", s.ResumeSchedule)
	recurring.POST("/:id/cancel", s.CancelSchedule)
	recurring.POST("/:id/generate", s.GenerateNow)
	recurring.GET("/:id/logs", s.ListGenerationLogs)
}
