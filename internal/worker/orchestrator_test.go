package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/estimator"
	"github.com/amankumarsingh77/mhr-streamer/internal/media"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"go.uber.org/zap/zaptest"
)

var testFaces = models.Faces{{0, 1, 2}}

type fakeEstimator struct {
	mu       sync.Mutex
	seen     []string
	fail     map[string]error
	panicOn  map[string]bool
	empty    map[string]bool
	block    chan struct{}
	noPeople bool
}

func (f *fakeEstimator) Estimate(ctx context.Context, img *media.Image) ([]models.BodyRecord, error) {
	f.mu.Lock()
	f.seen = append(f.seen, img.Path)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicOn[img.Path] {
		panic("boom")
	}
	if err := f.fail[img.Path]; err != nil {
		return nil, err
	}
	if f.noPeople || f.empty[img.Path] {
		return nil, nil
	}
	return []models.BodyRecord{{
		FocalLength: 500,
		Mesh:        models.Mesh{Vertices: [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}},
	}}, nil
}

func (f *fakeEstimator) Faces() models.Faces { return testFaces }
func (f *fakeEstimator) Close() error        { return nil }

func (f *fakeEstimator) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type staticSource struct {
	est estimator.Estimator
	err error
}

func (s staticSource) Get(context.Context) (estimator.Estimator, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.est, nil
}

type fakeImages struct{ err error }

func (f fakeImages) DecodeImage(_ context.Context, path string) (*media.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &media.Image{Path: path, Data: []byte{0xff}, Width: 640, Height: 480}, nil
}

type fakeVideo struct {
	frames     int
	unreadable map[int]bool
}

func (f fakeVideo) Probe(context.Context, string) (*media.VideoInfo, error) {
	return &media.VideoInfo{Width: 320, Height: 240, FPS: 25, TotalFrames: f.frames}, nil
}

func (f fakeVideo) ReadFrame(_ context.Context, _ string, index int) (*media.Image, error) {
	if f.unreadable[index] {
		return nil, media.ErrDecode
	}
	return &media.Image{Path: fmt.Sprintf("frame_%d", index), Width: 320, Height: 240}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []models.ProcessingStatus
	started  int
	finished []*models.Job
}

func (r *recordingObserver) JobStarted(context.Context, *models.Job) {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *recordingObserver) StatusChanged(_ context.Context, s models.ProcessingStatus) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *recordingObserver) JobFinished(_ context.Context, job *models.Job, _ models.ProcessingStatus) {
	r.mu.Lock()
	copied := *job
	r.finished = append(r.finished, &copied)
	r.mu.Unlock()
}

func newTestOrchestrator(t *testing.T, src EstimatorSource, images media.ImageDecoder, videos media.VideoDecoder, obs Observer) (*Orchestrator, *artifact.Store) {
	t.Helper()
	store := artifact.NewStore(t.TempDir())
	log := logger.NewFromZap(zaptest.NewLogger(t))
	return NewOrchestrator(store, src, images, videos, obs, log), store
}

func TestVideoJobSkipsFailedFrame(t *testing.T) {
	est := &fakeEstimator{fail: map[string]error{"frame_4": errors.New("cuda error")}}
	obs := &recordingObserver{}
	o, store := newTestOrchestrator(t, staticSource{est: est}, fakeImages{}, fakeVideo{frames: 10}, obs)

	job := models.NewJob("clip.mp4", "/data/clip.mp4", 1, 0, -1)
	if err := o.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"frame_0", "frame_2", "frame_4", "frame_6", "frame_8"}
	if got := est.attempted(); !reflect.DeepEqual(got, want) {
		t.Fatalf("attempted %v, want %v", got, want)
	}

	st := o.Status().Snapshot()
	if st.IsProcessing || st.Error != nil || st.ResultLocator == nil {
		t.Fatalf("unexpected terminal status %+v", st)
	}
	if st.Progress != 100 || st.TotalFrames != 5 || st.CurrentFrame != 5 || !st.IsVideo {
		t.Fatalf("status = %+v", st)
	}

	dir := store.VideoDir("clip")
	if *st.ResultLocator != dir {
		t.Fatalf("result = %s, want %s", *st.ResultLocator, dir)
	}
	data, err := os.ReadFile(filepath.Join(dir, artifact.ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest models.VideoManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	var idx []int
	for _, f := range manifest.ProcessedFrames {
		idx = append(idx, f.FrameIdx)
	}
	if !reflect.DeepEqual(idx, []int{0, 2, 6, 8}) {
		t.Fatalf("manifest frames = %v", idx)
	}
	if manifest.TotalFrames != 10 || manifest.FPS != 25 || manifest.FrameSkip != 1 || manifest.EndFrame != 10 {
		t.Fatalf("manifest header = %+v", manifest)
	}

	faces, err := os.ReadFile(filepath.Join(dir, artifact.FacesFile))
	if err != nil {
		t.Fatalf("faces.json missing: %v", err)
	}
	if strings.TrimSpace(string(faces)) != "[[0,1,2]]" {
		t.Fatalf("faces.json = %s", faces)
	}
	first, err := os.ReadFile(filepath.Join(dir, artifact.FrameFileName(0)))
	if err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	if !strings.Contains(string(first), `"faces":[[0,1,2]]`) {
		t.Fatalf("first stored frame should carry the topology: %s", first)
	}
	later, err := os.ReadFile(filepath.Join(dir, artifact.FrameFileName(6)))
	if err != nil {
		t.Fatalf("frame 6: %v", err)
	}
	if !strings.Contains(string(later), `"faces":null`) {
		t.Fatalf("later frames should defer to the shared topology: %s", later)
	}

	if len(obs.finished) != 1 || obs.finished[0].Status != models.JobStatusCompleted || obs.finished[0].Frames != 4 {
		t.Fatalf("finished notifications = %+v", obs.finished)
	}
}

func TestVideoJobProgressAndETA(t *testing.T) {
	obs := &recordingObserver{}
	o, _ := newTestOrchestrator(t, staticSource{est: &fakeEstimator{}}, fakeImages{}, fakeVideo{frames: 5, unreadable: map[int]bool{3: true}}, obs)

	if err := o.Run(context.Background(), models.NewJob("walk.mov", "walk.mov", 0, 0, -1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	prev := -1
	var frameProgress []int
	for _, s := range obs.statuses {
		if s.Progress < prev {
			t.Fatalf("progress went backwards: %d after %d", s.Progress, prev)
		}
		prev = s.Progress
		if s.CurrentFrame > 0 && s.ETA != "" {
			frameProgress = append(frameProgress, s.Progress)
		}
	}
	if !reflect.DeepEqual(frameProgress, []int{28, 46, 64, 82, 100}) {
		t.Fatalf("per-frame progress = %v", frameProgress)
	}
	last := obs.statuses[len(obs.statuses)-1]
	if last.Progress != 100 || last.IsProcessing {
		t.Fatalf("last status = %+v", last)
	}
}

func TestVideoJobFrameRange(t *testing.T) {
	est := &fakeEstimator{}
	o, _ := newTestOrchestrator(t, staticSource{est: est}, fakeImages{}, fakeVideo{frames: 100}, nil)

	if err := o.Run(context.Background(), models.NewJob("a.mkv", "a.mkv", 2, 10, 20)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"frame_10", "frame_13", "frame_16", "frame_19"}
	if got := est.attempted(); !reflect.DeepEqual(got, want) {
		t.Fatalf("attempted %v, want %v", got, want)
	}
}

func TestVideoJobSurvivesEstimatorPanic(t *testing.T) {
	est := &fakeEstimator{panicOn: map[string]bool{"frame_1": true}, empty: map[string]bool{"frame_2": true}}
	o, store := newTestOrchestrator(t, staticSource{est: est}, fakeImages{}, fakeVideo{frames: 4}, nil)

	if err := o.Run(context.Background(), models.NewJob("p.mp4", "p.mp4", 0, 0, -1)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for idx, want := range map[int]bool{0: true, 1: false, 2: false, 3: true} {
		_, err := os.Stat(filepath.Join(store.VideoDir("p"), artifact.FrameFileName(idx)))
		if got := err == nil; got != want {
			t.Errorf("frame %d written = %v, want %v", idx, got, want)
		}
	}
}

func TestImageJob(t *testing.T) {
	est := &fakeEstimator{}
	o, store := newTestOrchestrator(t, staticSource{est: est}, fakeImages{}, fakeVideo{}, nil)

	if err := o.Run(context.Background(), models.NewJob("me.png", "/up/me.png", 0, 0, -1)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := o.Status().Snapshot()
	want := store.ImageRecordPath("me")
	if st.ResultLocator == nil || *st.ResultLocator != want || st.Progress != 100 || st.IsVideo || st.IsProcessing {
		t.Fatalf("status = %+v", st)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	var rec models.FrameRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rec.Faces.IsInline() || rec.ImageSize != [2]int{640, 480} || rec.ImagePath != "/up/me.png" {
		t.Fatalf("record = %+v", rec)
	}
	out, ok := o.ActiveOutput()
	if !ok || out.IsVideo || out.Path != want {
		t.Fatalf("active output = %+v, %v", out, ok)
	}
}

func TestImageJobWithoutDetection(t *testing.T) {
	obs := &recordingObserver{}
	o, store := newTestOrchestrator(t, staticSource{est: &fakeEstimator{noPeople: true}}, fakeImages{}, fakeVideo{}, obs)

	err := o.Run(context.Background(), models.NewJob("empty.jpg", "empty.jpg", 0, 0, -1))
	if !errors.Is(err, ErrNoDetection) {
		t.Fatalf("err = %v, want ErrNoDetection", err)
	}
	st := o.Status().Snapshot()
	if st.Error == nil || *st.Error != "no human detected" {
		t.Fatalf("error = %v", st.Error)
	}
	if st.ResultLocator != nil || st.IsProcessing {
		t.Fatalf("status = %+v", st)
	}
	if _, err := os.Stat(store.ImageRecordPath("empty")); !os.IsNotExist(err) {
		t.Fatalf("no record should be written")
	}
	if obs.finished[0].Status != models.JobStatusFailed {
		t.Fatalf("job status = %s", obs.finished[0].Status)
	}
}

func TestJobLevelErrors(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		src    EstimatorSource
		images media.ImageDecoder
		want   error
	}{
		{"unsupported", "notes.txt", staticSource{est: &fakeEstimator{}}, fakeImages{}, media.ErrUnsupportedFormat},
		{"init", "a.jpg", staticSource{err: fmt.Errorf("%w: missing checkpoint", estimator.ErrInit)}, fakeImages{}, estimator.ErrInit},
		{"decode", "a.jpg", staticSource{est: &fakeEstimator{}}, fakeImages{err: media.ErrDecode}, media.ErrDecode},
		{"video init", "a.mp4", staticSource{err: estimator.ErrInit}, fakeImages{}, estimator.ErrInit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, store := newTestOrchestrator(t, tt.src, tt.images, fakeVideo{frames: 3}, nil)
			err := o.Run(context.Background(), models.NewJob(tt.file, tt.file, 0, 0, -1))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			st := o.Status().Snapshot()
			if st.Error == nil || st.ResultLocator != nil || st.IsProcessing {
				t.Fatalf("status = %+v", st)
			}
			entries, _ := os.ReadDir(store.Root())
			if len(entries) != 0 {
				t.Fatalf("partial output left behind: %d entries", len(entries))
			}
			if o.Running() {
				t.Fatalf("guard not released")
			}
		})
	}
}

func TestSubmitRejectsConcurrentJob(t *testing.T) {
	est := &fakeEstimator{block: make(chan struct{})}
	o, _ := newTestOrchestrator(t, staticSource{est: est}, fakeImages{}, fakeVideo{}, nil)

	if err := o.Submit(models.NewJob("a.jpg", "a.jpg", 0, 0, -1)); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if st := o.Status().Snapshot(); !st.IsProcessing {
		t.Fatalf("status must be processing as soon as Submit returns")
	}
	if err := o.Submit(models.NewJob("b.jpg", "b.jpg", 0, 0, -1)); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("second Submit err = %v, want ErrJobRunning", err)
	}

	close(est.block)
	deadline := time.Now().Add(5 * time.Second)
	for o.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := o.Submit(models.NewJob("c.jpg", "c.jpg", 0, 0, -1)); err != nil {
		t.Fatalf("Submit after completion: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdownCancelsRunningJob(t *testing.T) {
	est := &fakeEstimator{block: make(chan struct{})}
	o, _ := newTestOrchestrator(t, staticSource{est: est}, fakeImages{}, fakeVideo{frames: 50}, nil)

	if err := o.Submit(models.NewJob("long.mp4", "long.mp4", 0, 0, -1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	st := o.Status().Snapshot()
	if st.IsProcessing || st.Error == nil {
		t.Fatalf("status after shutdown = %+v", st)
	}
}

// flakyEstimator loses its worker on the frame named dieOn and fails every
// call after that, the way a timed-out subprocess session does.
type flakyEstimator struct {
	fakeEstimator
	dieOn string
	dead  atomic.Bool
}

func (f *flakyEstimator) Estimate(ctx context.Context, img *media.Image) ([]models.BodyRecord, error) {
	if f.dead.Load() {
		return nil, errors.New("estimator session is no longer usable")
	}
	if img.Path == f.dieOn {
		f.dead.Store(true)
		return nil, errors.New("estimator did not answer in time")
	}
	return f.fakeEstimator.Estimate(ctx, img)
}

func (f *flakyEstimator) Alive() bool { return !f.dead.Load() }

type respawningSource struct {
	mu        sync.Mutex
	loads     int
	dieOn     string
	reloadErr error
	cur       *flakyEstimator
}

func (s *respawningSource) Get(context.Context) (estimator.Estimator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && s.cur.Alive() {
		return s.cur, nil
	}
	if s.loads > 0 && s.reloadErr != nil {
		return nil, s.reloadErr
	}
	s.loads++
	s.cur = &flakyEstimator{}
	if s.loads == 1 {
		s.cur.dieOn = s.dieOn
	}
	return s.cur, nil
}

func TestVideoJobRestartsDeadEstimator(t *testing.T) {
	src := &respawningSource{dieOn: "frame_2"}
	o, store := newTestOrchestrator(t, src, fakeImages{}, fakeVideo{frames: 6}, nil)

	if err := o.Run(context.Background(), models.NewJob("long.mp4", "long.mp4", 0, 0, -1)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.loads != 2 {
		t.Fatalf("estimator loaded %d times, want 2", src.loads)
	}
	for idx := 0; idx < 6; idx++ {
		_, err := os.Stat(filepath.Join(store.VideoDir("long"), artifact.FrameFileName(idx)))
		if got, want := err == nil, idx != 2; got != want {
			t.Errorf("frame %d written = %v, want %v", idx, got, want)
		}
	}
	st := o.Status().Snapshot()
	if st.Error != nil || st.CurrentFrame != 6 || st.Progress != 100 {
		t.Fatalf("status = %+v", st)
	}
}

func TestVideoJobFailsWhenEstimatorCannotRestart(t *testing.T) {
	src := &respawningSource{dieOn: "frame_1", reloadErr: estimator.ErrInit}
	o, _ := newTestOrchestrator(t, src, fakeImages{}, fakeVideo{frames: 4}, nil)

	err := o.Run(context.Background(), models.NewJob("clip.mp4", "clip.mp4", 0, 0, -1))
	if !errors.Is(err, estimator.ErrInit) {
		t.Fatalf("err = %v, want ErrInit", err)
	}
	if st := o.Status().Snapshot(); st.Error == nil || st.IsProcessing {
		t.Fatalf("status = %+v", st)
	}
}

// slowFinishObserver holds JobFinished open until release is closed.
type slowFinishObserver struct {
	entered chan struct{}
	release chan struct{}
}

func (s *slowFinishObserver) JobStarted(context.Context, *models.Job)                 {}
func (s *slowFinishObserver) StatusChanged(context.Context, models.ProcessingStatus) {}

func (s *slowFinishObserver) JobFinished(context.Context, *models.Job, models.ProcessingStatus) {
	s.entered <- struct{}{}
	<-s.release
}

func TestSlotFreeWhileObserversFinish(t *testing.T) {
	obs := &slowFinishObserver{entered: make(chan struct{}, 2), release: make(chan struct{})}
	o, _ := newTestOrchestrator(t, staticSource{est: &fakeEstimator{}}, fakeImages{}, fakeVideo{}, obs)

	if err := o.Submit(models.NewJob("a.jpg", "a.jpg", 0, 0, -1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-obs.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("job never finished")
	}

	st := o.Status().Snapshot()
	if st.IsProcessing || st.ResultLocator == nil {
		t.Fatalf("status should be terminal: %+v", st)
	}
	if o.Running() {
		t.Fatalf("slot still taken while observers finish")
	}
	if err := o.Submit(models.NewJob("b.jpg", "b.jpg", 0, 0, -1)); err != nil {
		t.Fatalf("Submit after terminal status: %v", err)
	}

	close(obs.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestFrameSequence(t *testing.T) {
	tests := []struct {
		total, start, end, skip int
		want                    []int
	}{
		{10, 0, -1, 1, []int{0, 2, 4, 6, 8}},
		{10, 0, -1, 0, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{10, 3, 7, 2, []int{3, 6}},
		{10, 0, 99, 4, []int{0, 5}},
		{10, 8, 4, 0, []int{}},
		{0, 0, -1, 0, []int{}},
	}
	for _, tt := range tests {
		got := FrameSequence(tt.total, tt.start, tt.end, tt.skip)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("FrameSequence(%d,%d,%d,%d) = %v, want %v", tt.total, tt.start, tt.end, tt.skip, got, tt.want)
		}
	}
}
