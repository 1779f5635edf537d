package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClientUpload(t *testing.T) {
	var gotFields map[string]string
	var gotFile, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFields = map[string]string{}
		for _, k := range []string{"frame_skip", "start_frame", "end_frame"} {
			gotFields[k] = r.FormValue(k)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotFile, gotName = string(b), hdr.Filename
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"processing","job_id":"job-1"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL+"/", nil)
	id, err := c.Upload(context.Background(), path, UploadOptions{FrameSkip: 2, StartFrame: 10, EndFrame: -1})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != "job-1" {
		t.Fatalf("job id = %q", id)
	}
	if gotName != "clip.mp4" || gotFile != "video bytes" {
		t.Fatalf("uploaded %q = %q", gotName, gotFile)
	}
	want := map[string]string{"frame_skip": "2", "start_frame": "10", "end_frame": "-1"}
	for k, v := range want {
		if gotFields[k] != v {
			t.Errorf("%s = %q, want %q", k, gotFields[k], v)
		}
	}
}

func TestClientUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"a job is already running"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewClient(srv.URL, nil).Upload(context.Background(), path, UploadOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Message != "a job is already running" {
		t.Fatalf("err = %v", err)
	}
}

func newReadServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_processing":true,"progress":40,"message":"Processing frame 4/10","current_frame":4,"total_frames":10,"eta":"3s","error":null,"result_path":null,"is_video":true}`))
	})
	mux.HandleFunc("/api/video_info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})
	mux.HandleFunc("/api/faces", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[0,1,2]]`))
	})
	mux.HandleFunc("/api/mhr", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/frame/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "frame_000000.json") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Frame not found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"version":    "1.0",
			"image_path": "frame_000000",
			"image_size": []int{64, 48},
			"num_people": 0,
			"faces":      nil,
			"people":     []interface{}{},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientReads(t *testing.T) {
	c := NewClient(newReadServer(t).URL, nil)
	ctx := context.Background()

	st, err := c.Progress(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Progress != 40 || !st.IsVideo || st.Terminal() {
		t.Fatalf("progress = %+v", st)
	}

	m, err := c.Manifest(ctx)
	if err != nil || m != nil {
		t.Fatalf("Manifest = %v, %v; want nil before any frame", m, err)
	}

	faces, err := c.Faces(ctx)
	if err != nil || len(faces) != 1 {
		t.Fatalf("Faces = %v, %v", faces, err)
	}

	rec, err := c.SingleResult(ctx)
	if err != nil || rec != nil {
		t.Fatalf("SingleResult = %v, %v; want nil for {}", rec, err)
	}

	if _, err := c.Frame(ctx, "frame_000000.json"); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if _, err := c.Frame(ctx, "frame_000009.json"); !errors.Is(err, ErrFrameNotFound) {
		t.Fatalf("missing frame err = %v", err)
	}
}
