package server

import (
	_ "embed"
	"net/http"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/estimator"
	"github.com/amankumarsingh77/mhr-streamer/internal/framestream"
	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	jobsHttp "github.com/amankumarsingh77/mhr-streamer/internal/jobs/delivery/http"
	jobsRepository "github.com/amankumarsingh77/mhr-streamer/internal/jobs/repository"
	jobsUsecase "github.com/amankumarsingh77/mhr-streamer/internal/jobs/usecase"
	"github.com/amankumarsingh77/mhr-streamer/internal/media"
	"github.com/amankumarsingh77/mhr-streamer/internal/middleware"
	"github.com/amankumarsingh77/mhr-streamer/internal/worker"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/labstack/echo/v4"
)

//go:embed web/index.html
var indexPage []byte

func (s *Server) MapHandlers(e *echo.Echo) error {
	var (
		jRepo      jobs.Repository
		jRedisRepo jobs.RedisRepository
		jAWSRepo   jobs.AWSRepository
		jEventRepo jobs.EventRepository
	)
	if s.db != nil {
		jRepo = jobsRepository.NewJobsRepo(s.db)
	}
	if s.redisClient != nil {
		jRedisRepo = jobsRepository.NewJobsRedisRepo(s.redisClient)
	}
	if s.s3Client != nil {
		jAWSRepo = jobsRepository.NewAwsRepository(s.s3Client)
	}
	if s.producer != nil {
		jEventRepo = jobsRepository.NewEventRepo(s.producer, s.cfg.Kafka.Topic)
	}

	store := artifact.NewStore(s.cfg.Worker.OutputDir)
	s.estimators = estimator.NewLazy(estimator.SubprocessLoader(estimator.NewConfig(s.cfg.Estimator), s.logger))
	s.sink = jobsUsecase.NewJobSink(s.cfg, jRepo, jRedisRepo, jAWSRepo, jEventRepo, s.logger)
	s.orchestrator = worker.NewOrchestrator(
		store,
		s.estimators,
		media.NewImageDecoder(),
		media.NewFFmpegDecoder(s.cfg.Media.FFmpegPath, s.cfg.Media.FFprobePath),
		s.sink,
		s.logger,
	)

	frames := framestream.NewService(s.orchestrator)
	jobsUC := jobsUsecase.NewJobsUseCase(s.cfg, s.orchestrator, frames, store, jRepo, jRedisRepo, s.logger)
	jobsHandlers := jobsHttp.NewJobsHandler(jobsUC)

	mw := middleware.NewMiddlewareManager(s.cfg, []string{"*"}, s.logger)
	s.applyMiddlewares(e, mw.Origins())

	e.GET("/", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, indexPage)
	})

	api := e.Group("/api")
	v1 := api.Group("/v1")
	health := v1.Group("/health")
	jobsGroup := v1.Group("/jobs")

	jobsHttp.MapViewerRoutes(api, jobsHandlers, mw)
	jobsHttp.MapJobsRoutes(jobsGroup, jobsHandlers, mw)
	health.GET("", func(c echo.Context) error {
		s.logger.Infof("Health check RequestID: %s", utils.GetRequestID(c))
		usage, err := utils.CPUUsage()
		if err != nil {
			return c.JSON(http.StatusOK, map[string]interface{}{"status": "OK", "busy": s.orchestrator.Running()})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "OK",
			"cpu":    usage,
			"busy":   s.orchestrator.Running(),
		})
	})
	return nil
}
