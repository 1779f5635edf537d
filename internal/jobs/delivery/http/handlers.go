package http

import (
	"errors"
	"net/http"

	"github.com/amankumarsingh77/mhr-streamer/internal/framestream"
	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/internal/worker"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	emptyObject = []byte("{}")
	jsonNull    = []byte("null")
)

type jobsHandler struct {
	jobsUC jobs.UseCase
}

func NewJobsHandler(jobsUC jobs.UseCase) jobs.Handler {
	return &jobsHandler{
		jobsUC: jobsUC,
	}
}

// errorStatus maps use case errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, jobs.ErrInvalidUpload):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, jobs.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, jobs.ErrJobNotFound), errors.Is(err, framestream.ErrFrameNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *jobsHandler) Upload() echo.HandlerFunc {
	return func(c echo.Context) error {
		file, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
		}
		src, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid file"})
		}
		defer src.Close()

		input := &models.UploadInput{
			File:       src,
			FileName:   file.Filename,
			FrameSkip:  utils.FormInt(c, "frame_skip", 0),
			StartFrame: utils.FormInt(c, "start_frame", 0),
			EndFrame:   utils.FormInt(c, "end_frame", -1),
		}
		job, err := h.jobsUC.Upload(c.Request().Context(), input)
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status": "processing",
			"job_id": job.JobID.String(),
		})
	}
}

func (h *jobsHandler) Progress() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, h.jobsUC.Progress(c.Request().Context()))
	}
}

func (h *jobsHandler) SingleResult() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, ok := h.jobsUC.SingleResult(c.Request().Context())
		if !ok {
			return c.JSONBlob(http.StatusOK, emptyObject)
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (h *jobsHandler) Manifest() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, ok := h.jobsUC.Manifest(c.Request().Context())
		if !ok {
			return c.JSONBlob(http.StatusOK, jsonNull)
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (h *jobsHandler) Topology() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, ok := h.jobsUC.Topology(c.Request().Context())
		if !ok {
			return c.JSONBlob(http.StatusOK, jsonNull)
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (h *jobsHandler) Frame() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := h.jobsUC.Frame(c.Request().Context(), c.Param("file"))
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": "Frame not found"})
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (h *jobsHandler) ListFiles() echo.HandlerFunc {
	return func(c echo.Context) error {
		files, err := h.jobsUC.ListFiles(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"files": files})
	}
}

func (h *jobsHandler) ListJobs() echo.HandlerFunc {
	return func(c echo.Context) error {
		pagination, err := utils.GetPaginationFromCtx(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		list, err := h.jobsUC.ListJobs(c.Request().Context(), pagination)
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, list)
	}
}

func (h *jobsHandler) GetJobByID() echo.HandlerFunc {
	return func(c echo.Context) error {
		jobID, err := uuid.Parse(c.Param("job_id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid job id"})
		}
		job, err := h.jobsUC.GetJob(c.Request().Context(), jobID)
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, job)
	}
}

func (h *jobsHandler) LiveStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := h.jobsUC.LiveStatus(c.Request().Context())
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, status)
	}
}
