package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/estimator"
	"github.com/amankumarsingh77/mhr-streamer/internal/media"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/pkg/errors"
)

// Orchestrator runs one job at a time and reports through its StatusChannel.
type Orchestrator struct {
	store      *artifact.Store
	estimators EstimatorSource
	images     media.ImageDecoder
	videos     media.VideoDecoder
	status     *StatusChannel
	observer   Observer
	logger     logger.Logger

	running atomic.Bool
	active  atomic.Pointer[models.JobOutput]

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(
	store *artifact.Store,
	estimators EstimatorSource,
	images media.ImageDecoder,
	videos media.VideoDecoder,
	observer Observer,
	log logger.Logger,
) *Orchestrator {
	if observer == nil {
		observer = Observers{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:      store,
		estimators: estimators,
		images:     images,
		videos:     videos,
		status:     NewStatusChannel(),
		observer:   observer,
		logger:     log,
		baseCtx:    ctx,
		cancel:     cancel,
	}
	o.status.OnChange(func(s models.ProcessingStatus) {
		o.observer.StatusChanged(context.Background(), s)
	})
	return o
}

func (o *Orchestrator) Status() *StatusChannel {
	return o.status
}

func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// ActiveOutput locates the artifacts of the running or last finished job.
// Video jobs are visible from the moment their directory exists.
func (o *Orchestrator) ActiveOutput() (models.JobOutput, bool) {
	out := o.active.Load()
	if out == nil {
		return models.JobOutput{}, false
	}
	return *out, true
}

// Submit starts job on the background worker and returns at once.
func (o *Orchestrator) Submit(job *models.Job) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	o.begin(job)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.run(o.baseCtx, job); err != nil {
			o.logger.Warnf("job %s ended with error: %v", job.JobID, err)
		}
	}()
	return nil
}

// Run processes job on the calling goroutine.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	o.begin(job)
	return o.run(ctx, job)
}

// Shutdown cancels the running job and waits for the worker to drain.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin resets the shared state before the caller returns, so a poll right
// after Submit never sees the previous job's terminal status.
func (o *Orchestrator) begin(job *models.Job) {
	job.Kind = media.Classify(job.FileName)
	job.Status = models.JobStatusProcessing
	job.StartedAt = time.Now()
	o.active.Store(nil)
	o.status.Begin(job.Kind == models.MediaVideo)
}

func (o *Orchestrator) run(ctx context.Context, job *models.Job) (err error) {
	released := false
	defer func() {
		if !released {
			o.running.Store(false)
		}
	}()

	notifyCtx := context.WithoutCancel(ctx)
	o.observer.JobStarted(notifyCtx, job)
	o.logger.Infof("job %s started: %s (%s, frame_skip=%d)", job.JobID, job.FileName, job.Kind, job.FrameSkip)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job panicked: %v", r)
		}
		job.CompletedAt = time.Now()
		if err != nil {
			job.Status = models.JobStatusFailed
			job.Error = err.Error()
			o.status.Fail(err.Error())
			o.logger.Errorf("job %s failed: %v", job.JobID, err)
		} else {
			job.Status = models.JobStatusCompleted
			o.logger.Infof("job %s completed in %s: %s", job.JobID, job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond), job.ResultPath)
		}
		o.status.Finish()
		final := o.status.Snapshot()
		// Observers may be slow; the slot frees once the status is terminal.
		o.running.Store(false)
		released = true
		o.observer.JobFinished(notifyCtx, job, final)
	}()

	switch job.Kind {
	case models.MediaImage:
		return o.processImage(ctx, job)
	case models.MediaVideo:
		return o.processVideo(ctx, job)
	default:
		return errors.Wrapf(media.ErrUnsupportedFormat, "%s", filepath.Ext(job.FileName))
	}
}

func (o *Orchestrator) loadEstimator(ctx context.Context) (estimator.Estimator, error) {
	o.status.Update(func(s *models.ProcessingStatus) {
		s.Message = "loading model"
	})
	est, err := o.estimators.Get(ctx)
	if err != nil {
		return nil, err
	}
	o.status.Update(func(s *models.ProcessingStatus) {
		s.Progress = progressModelLoaded
		s.Message = "model loaded"
	})
	return est, nil
}

func (o *Orchestrator) processImage(ctx context.Context, job *models.Job) error {
	est, err := o.loadEstimator(ctx)
	if err != nil {
		return err
	}

	img, err := o.images.DecodeImage(ctx, job.FilePath)
	if err != nil {
		return err
	}
	o.status.Update(func(s *models.ProcessingStatus) {
		s.Progress = progressDecoded
		s.Message = "estimating pose"
		s.TotalFrames = 1
	})

	people, err := safeEstimate(ctx, est, img)
	if err != nil {
		return errors.Wrap(err, "estimate")
	}
	o.status.Update(func(s *models.ProcessingStatus) {
		s.Progress = progressEstimated
		s.CurrentFrame = 1
		s.Message = "saving result"
	})
	if len(people) == 0 {
		return ErrNoDetection
	}

	rec := models.NewFrameRecord(job.FilePath, img.Width, img.Height, people, models.InlineTopology(est.Faces()))
	path, err := o.store.WriteImageRecord(media.Stem(job.FileName), rec)
	if err != nil {
		return errors.Wrap(err, "write record")
	}

	job.ResultPath = path
	job.Frames = 1
	o.active.Store(&models.JobOutput{JobID: job.JobID.String(), Path: path})
	o.status.Complete(path)
	return nil
}

func (o *Orchestrator) processVideo(ctx context.Context, job *models.Job) error {
	est, err := o.loadEstimator(ctx)
	if err != nil {
		return err
	}

	info, err := o.videos.Probe(ctx, job.FilePath)
	if err != nil {
		return err
	}
	end := job.EndFrame
	if end <= 0 || end > info.TotalFrames {
		end = info.TotalFrames
	}
	indices := FrameSequence(info.TotalFrames, job.StartFrame, end, job.FrameSkip)
	n := len(indices)

	writer, err := o.store.NewVideoWriter(media.Stem(job.FileName), models.VideoManifest{
		VideoPath:   job.FilePath,
		VideoName:   job.FileName,
		FPS:         info.FPS,
		TotalFrames: info.TotalFrames,
		Width:       info.Width,
		Height:      info.Height,
		FrameSkip:   job.FrameSkip,
		StartFrame:  job.StartFrame,
		EndFrame:    end,
	})
	if err != nil {
		return errors.Wrap(err, "prepare output")
	}
	o.active.Store(&models.JobOutput{JobID: job.JobID.String(), Path: writer.Dir(), IsVideo: true})
	o.status.Update(func(s *models.ProcessingStatus) {
		s.TotalFrames = n
		s.Message = fmt.Sprintf("processing 0/%d", n)
	})
	o.logger.Infof("job %s: %d frames at %.2f fps, visiting %d", job.JobID, info.TotalFrames, info.FPS, n)

	var spent time.Duration
	for i, idx := range indices {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "job cancelled")
		}
		started := time.Now()
		if est, err = o.processFrame(ctx, est, writer, job.FilePath, idx); err != nil {
			return err
		}
		spent += time.Since(started)

		eta := utils.FormatETA(utils.EstimateRemaining(spent, i+1, n-i-1))
		o.status.Update(func(s *models.ProcessingStatus) {
			s.Progress = frameProgress(i, n)
			s.CurrentFrame = i + 1
			s.Message = fmt.Sprintf("processing %d/%d", i+1, n)
			s.ETA = eta
		})
	}

	dir, err := writer.Finalize()
	if err != nil {
		return errors.Wrap(err, "finalize manifest")
	}
	if writer.FramesWritten() == 0 {
		o.logger.Warnf("job %s: no frame produced a detection", job.JobID)
	}
	job.ResultPath = dir
	job.Frames = writer.FramesWritten()
	o.status.Complete(dir)
	return nil
}

// processFrame handles one video frame and returns the estimator to use for
// the next one. Read and estimation failures skip the frame; a failed write or
// an estimator that cannot be restarted stops the job.
func (o *Orchestrator) processFrame(ctx context.Context, est estimator.Estimator, writer *artifact.VideoWriter, path string, idx int) (estimator.Estimator, error) {
	img, err := o.videos.ReadFrame(ctx, path, idx)
	if err != nil {
		o.logger.Warnf("frame %d: read failed, skipping: %v", idx, err)
		return est, nil
	}
	people, err := safeEstimate(ctx, est, img)
	if err != nil {
		if ctx.Err() != nil {
			return est, errors.Wrap(ctx.Err(), "job cancelled")
		}
		o.logger.Warnf("frame %d: estimation failed, skipping: %v", idx, err)
		return o.reviveEstimator(ctx, est)
	}
	if len(people) == 0 {
		o.logger.Debugf("frame %d: no detection", idx)
		return est, nil
	}

	var faces models.Topology
	if writer.TopologyWrites() == 0 {
		faces = models.InlineTopology(est.Faces())
	}
	rec := models.NewFrameRecord(fmt.Sprintf("frame_%d", idx), img.Width, img.Height, people, faces)
	if _, err := writer.WriteFrame(idx, rec); err != nil {
		return est, errors.Wrapf(err, "write frame %d", idx)
	}
	return est, nil
}

// reviveEstimator swaps in a fresh estimator when est reports that its worker
// is gone, so one lost frame does not cost the rest of the video.
func (o *Orchestrator) reviveEstimator(ctx context.Context, est estimator.Estimator) (estimator.Estimator, error) {
	if a, ok := est.(interface{ Alive() bool }); !ok || a.Alive() {
		return est, nil
	}
	o.logger.Warnf("estimator worker is no longer usable, restarting it")
	fresh, err := o.estimators.Get(ctx)
	if err != nil {
		return est, errors.Wrap(err, "restart estimator")
	}
	return fresh, nil
}

func safeEstimate(ctx context.Context, est estimator.Estimator, img *media.Image) (people []models.BodyRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("estimator panicked: %v", r)
		}
	}()
	return est.Estimate(ctx, img)
}

// Snapshot returns a copy of the current status.
func (o *Orchestrator) Snapshot() models.ProcessingStatus {
	return o.status.Snapshot()
}
