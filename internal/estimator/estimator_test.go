package estimator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/media"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
)

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	in := &request{Type: requestEstimate, Image: []byte{1, 2, 3}, Width: 4, Height: 5, BBoxThreshold: 0.8}
	if err := writeMessage(&buf, in); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}
	prefix := buf.Bytes()[:4]
	if got := int(prefix[0])<<24 | int(prefix[1])<<16 | int(prefix[2])<<8 | int(prefix[3]); got != buf.Len()-4 {
		t.Fatalf("length prefix = %d, payload = %d", got, buf.Len()-4)
	}
	out := &request{}
	if err := readMessage(&buf, out); err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if out.Type != in.Type || out.Width != 4 || out.Height != 5 || !bytes.Equal(out.Image, in.Image) {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}
}

func TestReadMessageTruncated(t *testing.T) {
	if err := readMessage(bytes.NewReader([]byte{0, 0, 0, 9, 1}), &response{}); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

// fakeWorker answers framed requests the way the inference process does.
func fakeWorker(t *testing.T, r io.Reader, w io.Writer, handle func(*request) *response) {
	t.Helper()
	go func() {
		for {
			req := &request{}
			if err := readMessage(r, req); err != nil {
				return
			}
			if err := writeMessage(w, handle(req)); err != nil {
				return
			}
		}
	}()
}

func newPipeSession(t *testing.T, timeout time.Duration, handle func(*request) *response) *session {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	t.Cleanup(func() {
		reqW.Close()
		respW.Close()
	})
	fakeWorker(t, reqR, respW, handle)
	return newSession(reqW, respR, timeout)
}

func TestSessionCall(t *testing.T) {
	sess := newPipeSession(t, time.Second, func(req *request) *response {
		switch req.Type {
		case requestFaces:
			return &response{OK: true, Faces: [][]int{{0, 1, 2}, {2, 1, 3}}}
		case requestEstimate:
			return &response{OK: true, People: []models.BodyRecord{{FocalLength: 500, BBox: []float64{0, 0, float64(req.Width), float64(req.Height)}}}}
		}
		return &response{OK: false, Error: "unknown request"}
	})

	resp, err := sess.call(context.Background(), &request{Type: requestFaces})
	if err != nil {
		t.Fatalf("faces call: %v", err)
	}
	faces, err := toFaces(resp.Faces)
	if err != nil || len(faces) != 2 || faces[1] != [3]int{2, 1, 3} {
		t.Fatalf("faces = %v, err = %v", faces, err)
	}

	resp, err = sess.call(context.Background(), &request{Type: requestEstimate, Width: 64, Height: 48})
	if err != nil {
		t.Fatalf("estimate call: %v", err)
	}
	if len(resp.People) != 1 || resp.People[0].BBox[2] != 64 || resp.People[0].FocalLength != 500 {
		t.Fatalf("people = %+v", resp.People)
	}

	if _, err := sess.call(context.Background(), &request{Type: "bogus"}); err == nil {
		t.Fatalf("expected worker error to surface")
	}
	if sess.broken.Load() {
		t.Fatalf("an application error must not break the session")
	}
}

func TestSessionTimeoutBreaksSession(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	sess := newPipeSession(t, 50*time.Millisecond, func(req *request) *response {
		<-block
		return &response{OK: true}
	})

	if _, err := sess.call(context.Background(), &request{Type: requestPing}); err == nil {
		t.Fatalf("expected timeout")
	}
	if _, err := sess.call(context.Background(), &request{Type: requestPing}); !errors.Is(err, errSessionBroken) {
		t.Fatalf("err = %v, want errSessionBroken", err)
	}
}

func TestToFacesRejectsNonTriangles(t *testing.T) {
	if _, err := toFaces([][]int{{1, 2}}); err == nil {
		t.Fatalf("expected error")
	}
}

type stubEstimator struct {
	alive  bool
	closed int
}

func (s *stubEstimator) Estimate(context.Context, *media.Image) ([]models.BodyRecord, error) {
	return nil, nil
}
func (s *stubEstimator) Faces() models.Faces { return nil }
func (s *stubEstimator) Close() error        { s.closed++; return nil }
func (s *stubEstimator) Alive() bool         { return s.alive }

func TestLazyRetriesAfterFailure(t *testing.T) {
	calls := 0
	stub := &stubEstimator{alive: true}
	lazy := NewLazy(func(context.Context) (Estimator, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("checkpoint missing")
		}
		return stub, nil
	})

	if _, err := lazy.Get(context.Background()); !errors.Is(err, ErrInit) {
		t.Fatalf("err = %v, want ErrInit", err)
	}
	est, err := lazy.Get(context.Background())
	if err != nil || est != stub {
		t.Fatalf("second Get = %v, %v", est, err)
	}
	if _, err := lazy.Get(context.Background()); err != nil || calls != 2 {
		t.Fatalf("loaded estimator was not reused, calls = %d", calls)
	}

	stub.alive = false
	if _, err := lazy.Get(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if calls != 3 || stub.closed != 1 {
		t.Fatalf("dead estimator not replaced: calls = %d, closed = %d", calls, stub.closed)
	}
}
