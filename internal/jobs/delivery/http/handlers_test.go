package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/config"
	"github.com/amankumarsingh77/mhr-streamer/internal/framestream"
	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/middleware"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/internal/worker"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
)

type stubUC struct {
	uploadErr error
	lastInput models.UploadInput
	lastBody  string
	manifest  []byte
	frames    map[string][]byte
}

func (s *stubUC) Upload(ctx context.Context, input *models.UploadInput) (*models.Job, error) {
	body, _ := io.ReadAll(input.File)
	s.lastInput = *input
	s.lastBody = string(body)
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return models.NewJob(input.FileName, "/tmp/"+input.FileName, input.FrameSkip, input.StartFrame, input.EndFrame), nil
}

func (s *stubUC) Progress(ctx context.Context) models.ProcessingStatus {
	return models.ProcessingStatus{IsProcessing: true, Progress: 30, Message: "model loaded", IsVideo: true}
}

func (s *stubUC) SingleResult(ctx context.Context) ([]byte, bool) { return nil, false }

func (s *stubUC) Manifest(ctx context.Context) ([]byte, bool) {
	return s.manifest, s.manifest != nil
}

func (s *stubUC) Topology(ctx context.Context) ([]byte, bool) { return nil, false }

func (s *stubUC) Frame(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.frames[name]; ok {
		return data, nil
	}
	return nil, errors.Wrap(framestream.ErrFrameNotFound, name)
}

func (s *stubUC) ListFiles(ctx context.Context) ([]artifact.ResultEntry, error) {
	return []artifact.ResultEntry{{Name: "clip", IsVideo: true}}, nil
}

func (s *stubUC) ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	return nil, jobs.ErrNotConfigured
}

func (s *stubUC) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return nil, jobs.ErrJobNotFound
}

func (s *stubUC) LiveStatus(ctx context.Context) (*models.ProcessingStatus, error) {
	return nil, jobs.ErrNotConfigured
}

func newTestEcho(t *testing.T, uc jobs.UseCase) *echo.Echo {
	t.Helper()
	e := echo.New()
	log := logger.NewFromZap(zaptest.NewLogger(t))
	mw := middleware.NewMiddlewareManager(config.Default(), []string{"*"}, log)
	h := NewJobsHandler(uc)
	MapViewerRoutes(e.Group("/api"), h, mw)
	MapJobsRoutes(e.Group("/api/v1/jobs"), h, mw)
	return e
}

func multipartUpload(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if withFile {
		fw, err := w.CreateFormFile("file", "walk.mp4")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("video bytes"))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	uc := &stubUC{}
	e := newTestEcho(t, uc)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartUpload(t, map[string]string{"frame_skip": "2", "end_frame": "40"}, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "processing" || body["job_id"] == "" {
		t.Fatalf("body = %v", body)
	}
	if uc.lastInput.FileName != "walk.mp4" || uc.lastBody != "video bytes" {
		t.Fatalf("input = %+v body = %q", uc.lastInput, uc.lastBody)
	}
	if uc.lastInput.FrameSkip != 2 || uc.lastInput.StartFrame != 0 || uc.lastInput.EndFrame != 40 {
		t.Fatalf("frame range = %+v", uc.lastInput)
	}
}

func TestUploadHandlerDefaults(t *testing.T) {
	uc := &stubUC{}
	e := newTestEcho(t, uc)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartUpload(t, map[string]string{"frame_skip": "abc"}, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if uc.lastInput.FrameSkip != 0 || uc.lastInput.EndFrame != -1 {
		t.Fatalf("defaults = %+v", uc.lastInput)
	}
}

func TestUploadHandlerErrors(t *testing.T) {
	tests := []struct {
		name     string
		withFile bool
		err      error
		want     int
	}{
		{"missing file", false, nil, http.StatusBadRequest},
		{"invalid", true, errors.Wrap(jobs.ErrInvalidUpload, "frame_skip"), http.StatusBadRequest},
		{"running", true, worker.ErrJobRunning, http.StatusConflict},
		{"busy", true, jobs.ErrBusy, http.StatusServiceUnavailable},
		{"internal", true, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho(t, &stubUC{uploadErr: tt.err})
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, multipartUpload(t, nil, tt.withFile))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("body = %s", rec.Body)
			}
		})
	}
}

func TestReadEndpoints(t *testing.T) {
	uc := &stubUC{
		manifest: []byte(`{"fps":10,"processed_frames":[]}`),
		frames:   map[string][]byte{"frame_000000.mhr.json": []byte(`{"num_people":1}`)},
	}
	e := newTestEcho(t, uc)

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/api/mhr", http.StatusOK, "{}"},
		{"/api/video_info", http.StatusOK, `{"fps":10,"processed_frames":[]}`},
		{"/api/faces", http.StatusOK, "null"},
		{"/api/frame/frame_000000.mhr.json", http.StatusOK, `{"num_people":1}`},
		{"/api/frame/frame_000002.mhr.json", http.StatusNotFound, ""},
		{"/api/v1/jobs", http.StatusNotImplemented, ""},
		{"/api/v1/jobs/live", http.StatusNotImplemented, ""},
		{"/api/v1/jobs/not-a-uuid", http.StatusBadRequest, ""},
		{"/api/v1/jobs/" + uuid.NewString(), http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.code)
			continue
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("%s: body = %s, want %s", tt.path, rec.Body, tt.body)
		}
	}
}

func TestProgressEndpoint(t *testing.T) {
	e := newTestEcho(t, &stubUC{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/progress", nil))

	var raw map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"is_processing", "progress", "message", "current_frame", "total_frames", "eta", "error", "result_path", "is_video"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("progress payload missing %q", key)
		}
	}
	if raw["error"] != nil || raw["result_path"] != nil {
		t.Errorf("unset fields must be null: %v", raw)
	}
}
