package http

import (
	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/middleware"
	"github.com/labstack/echo/v4"
)

// MapViewerRoutes registers the endpoints polled by the viewer page.
func MapViewerRoutes(apiGroup *echo.Group, h jobs.Handler, mw *middleware.MiddlewareManager) {
	apiGroup.Use(mw.RequestLoggerMiddleware)
	apiGroup.POST("/upload", h.Upload())
	apiGroup.GET("/progress", h.Progress())
	apiGroup.GET("/mhr", h.SingleResult())
	apiGroup.GET("/video_info", h.Manifest())
	apiGroup.GET("/faces", h.Topology())
	apiGroup.GET("/frame/:file", h.Frame())
	apiGroup.GET("/files", h.ListFiles())
}

func MapJobsRoutes(jobsGroup *echo.Group, h jobs.Handler, mw *middleware.MiddlewareManager) {
	jobsGroup.Use(mw.RequestLoggerMiddleware)
	jobsGroup.GET("", h.ListJobs())
	jobsGroup.GET("/live", h.LiveStatus())
	jobsGroup.GET("/:job_id", h.GetJobByID())
}
