package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/config"
	"github.com/amankumarsingh77/mhr-streamer/internal/estimator"
	jobsUsecase "github.com/amankumarsingh77/mhr-streamer/internal/jobs/usecase"
	"github.com/amankumarsingh77/mhr-streamer/internal/worker"
	"github.com/amankumarsingh77/mhr-streamer/pkg/kafka"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	maxHeaderBytes = 1 << 20
	ctxTimeout     = 5
	drainTimeout   = 30
)

// Server owns the HTTP surface and the single job worker behind it. The
// infrastructure clients are optional; a nil client disables its sink.
type Server struct {
	echo         *echo.Echo
	cfg          *config.Config
	db           *sqlx.DB
	redisClient  *redis.Client
	s3Client     *s3.Client
	producer     kafka.Producer
	estimators   *estimator.Lazy
	orchestrator *worker.Orchestrator
	sink         *jobsUsecase.JobSink
	logger       logger.Logger
}

func NewServer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, s3Client *s3.Client, producer kafka.Producer, logger logger.Logger) *Server {
	return &Server{
		echo:        echo.New(),
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		s3Client:    s3Client,
		producer:    producer,
		logger:      logger,
	}
}

func (s *Server) Run() error {
	s.echo.HideBanner = true
	if err := s.MapHandlers(s.echo); err != nil {
		return err
	}
	server := &http.Server{
		Addr:           s.cfg.Server.Port,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}
	go func() {
		s.logger.Infof("Server is listening on PORT: %s", s.cfg.Server.Port)
		if err := s.echo.StartServer(server); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("error starting Server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, os.Interrupt)
	<-quit

	ctx, shutdown := context.WithTimeout(context.Background(), time.Second*ctxTimeout)
	defer shutdown()
	s.logger.Infof("shutting down server")
	err := s.echo.Server.Shutdown(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Second*drainTimeout)
	defer cancel()
	if derr := s.orchestrator.Shutdown(drainCtx); derr != nil {
		s.logger.Warnf("worker did not stop in time: %v", derr)
	}
	s.sink.Close()
	if cerr := s.estimators.Close(); cerr != nil {
		s.logger.Warnf("closing estimator: %v", cerr)
	}
	return err
}

// applyMiddlewares installs the middleware every route shares.
func (s *Server) applyMiddlewares(e *echo.Echo, origins []string) {
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderOrigin, echo.HeaderAccept},
		MaxAge:       300,
	}))
	if s.cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(s.cfg.Server.BodyLimit))
	}
}
