package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/pkg/errors"
)

const defaultHTTPTimeout = 30 * time.Second

var ErrFrameNotFound = errors.New("frame not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the streaming endpoints of one server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type UploadOptions struct {
	FrameSkip  int
	StartFrame int
	EndFrame   int
}

// Upload streams the file at path to the server and returns the job id.
func (c *Client) Upload(ctx context.Context, path string, opts UploadOptions) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(mw, f, filepath.Base(path), opts))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var body struct {
		Status string `json:"status"`
		JobID  string `json:"job_id"`
	}
	if err := c.do(req, &body); err != nil {
		pr.Close()
		return "", err
	}
	return body.JobID, nil
}

func writeUploadBody(mw *multipart.Writer, r io.Reader, name string, opts UploadOptions) error {
	fields := map[string]int{
		"frame_skip":  opts.FrameSkip,
		"start_frame": opts.StartFrame,
		"end_frame":   opts.EndFrame,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, strconv.Itoa(v)); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) Progress(ctx context.Context) (models.ProcessingStatus, error) {
	var status models.ProcessingStatus
	err := c.getJSON(ctx, "/api/progress", &status)
	return status, err
}

// Manifest returns nil while no video result is available.
func (c *Client) Manifest(ctx context.Context) (*models.VideoManifest, error) {
	var m *models.VideoManifest
	if err := c.getJSON(ctx, "/api/video_info", &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Faces returns the shared topology, or nil before the first frame is written.
func (c *Client) Faces(ctx context.Context) (models.Faces, error) {
	var faces models.Faces
	if err := c.getJSON(ctx, "/api/faces", &faces); err != nil {
		return nil, err
	}
	return faces, nil
}

func (c *Client) Frame(ctx context.Context, name string) (*models.FrameRecord, error) {
	rec := &models.FrameRecord{}
	err := c.getJSON(ctx, "/api/frame/"+name, rec)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, errors.Wrap(ErrFrameNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SingleResult returns the image record, or nil while the server answers {}.
func (c *Client) SingleResult(ctx context.Context) (*models.FrameRecord, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/mhr", &raw); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("{}")) {
		return nil, nil
	}
	rec := &models.FrameRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, errors.Wrap(err, "decode result")
	}
	return rec, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body map[string]string
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body["error"] != "" {
			msg = body["error"]
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", req.URL.Path)
	}
	return nil
}
