package usecase

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/config"
	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/internal/worker"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"

	sinkTimeout     = 5 * time.Second
	mirrorTimeout   = 2 * time.Minute
	mirrorParallel  = 8
	jsonContentType = "application/json"
)

// JobSink records job lifecycle in the enabled infrastructure. Status
// updates reach redis from a background goroutine that only ever writes the
// newest one, so a slow redis never holds up the worker.
type JobSink struct {
	cfg       *config.Config
	jobsRepo  jobs.Repository
	redisRepo jobs.RedisRepository
	awsRepo   jobs.AWSRepository
	eventRepo jobs.EventRepository
	logger    logger.Logger

	mu        sync.Mutex
	pending   *models.ProcessingStatus
	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewJobSink returns a worker.Observer backed by the given repos. Any repo may
// be nil. Failures are logged and never reach the job. Close stops the status
// mirror after writing the last pending update.
func NewJobSink(
	cfg *config.Config,
	jobsRepo jobs.Repository,
	redisRepo jobs.RedisRepository,
	awsRepo jobs.AWSRepository,
	eventRepo jobs.EventRepository,
	log logger.Logger,
) *JobSink {
	s := &JobSink{
		cfg:       cfg,
		jobsRepo:  jobsRepo,
		redisRepo: redisRepo,
		awsRepo:   awsRepo,
		eventRepo: eventRepo,
		logger:    log,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if redisRepo != nil {
		go s.mirrorStatus()
	} else {
		close(s.done)
	}
	return s
}

var _ worker.Observer = (*JobSink)(nil)

func (s *JobSink) JobStarted(ctx context.Context, job *models.Job) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if s.jobsRepo != nil {
		if _, err := s.jobsRepo.CreateJob(ctx, job); err != nil {
			s.logger.Errorf("JobStarted - CreateJob error: %v", err)
		}
	}
	s.publish(ctx, EventJobStarted, job)
}

// StatusChanged queues status for redis and returns at once. An update still
// queued when a newer one arrives is dropped.
func (s *JobSink) StatusChanged(_ context.Context, status models.ProcessingStatus) {
	if s.redisRepo == nil {
		return
	}
	s.mu.Lock()
	s.pending = &status
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *JobSink) mirrorStatus() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.flushStatus()
		case <-s.stop:
			s.flushStatus()
			return
		}
	}
}

func (s *JobSink) flushStatus() {
	s.mu.Lock()
	status := s.pending
	s.pending = nil
	s.mu.Unlock()
	if status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := s.redisRepo.SetStatus(ctx, s.cfg.Redis.StatusKey, *status, s.cfg.Redis.StatusTTL); err != nil {
		s.logger.Warnf("StatusChanged - SetStatus error: %v", err)
	}
}

// Close stops the status mirror and waits for its last write.
func (s *JobSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}

func (s *JobSink) JobFinished(ctx context.Context, job *models.Job, status models.ProcessingStatus) {
	if s.redisRepo != nil {
		lctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := s.redisRepo.ReleaseLock(lctx, lockKey(s.cfg), job.JobID.String()); err != nil {
			s.logger.Warnf("JobFinished - ReleaseLock error: %v", err)
		}
		cancel()
	}

	if job.Status == models.JobStatusCompleted && s.awsRepo != nil {
		mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		n, err := s.mirror(mctx, job)
		cancel()
		if err != nil {
			s.logger.Errorf("JobFinished - mirror of job %s error: %v", job.JobID, err)
		} else {
			s.logger.Infof("JobFinished - mirrored %d objects for job %s", n, job.JobID)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if s.jobsRepo != nil {
		if err := s.jobsRepo.FinishJob(ctx, job); err != nil {
			s.logger.Errorf("JobFinished - FinishJob error: %v", err)
		}
	}
	if job.Status == models.JobStatusCompleted {
		s.publish(ctx, EventJobCompleted, job)
	} else {
		s.publish(ctx, EventJobFailed, job)
	}
}

func (s *JobSink) publish(ctx context.Context, eventType string, job *models.Job) {
	if s.eventRepo == nil {
		return
	}
	event := &models.JobEvent{
		Type:       eventType,
		JobID:      job.JobID.String(),
		FileName:   job.FileName,
		Kind:       job.Kind,
		Status:     job.Status,
		Error:      job.Error,
		ResultPath: job.ResultPath,
		Frames:     job.Frames,
		Timestamp:  time.Now(),
	}
	if err := s.eventRepo.Publish(ctx, event); err != nil {
		s.logger.Warnf("publish %s for job %s error: %v", eventType, job.JobID, err)
	}
}

// mirror uploads the job's result files under <job_id>/ in the output bucket
// and returns how many objects the bucket holds for the job afterwards.
func (s *JobSink) mirror(ctx context.Context, job *models.Job) (int, error) {
	files, err := resultFiles(job.ResultPath)
	if err != nil {
		return 0, err
	}
	prefix := job.JobID.String() + "/"

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mirrorParallel)
	for _, f := range files {
		obj := models.ArtifactObject{
			LocalPath:   f,
			Bucket:      s.cfg.S3.OutputBucket,
			Key:         path.Join(prefix, filepath.Base(f)),
			ContentType: jsonContentType,
		}
		g.Go(func() error {
			_, err := s.awsRepo.PutObject(gctx, obj)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	keys, err := s.awsRepo.ListObjects(ctx, s.cfg.S3.OutputBucket, prefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// resultFiles expands a result path into the files to mirror: the record
// itself for an image job, every regular file in the directory for a video.
func resultFiles(resultPath string) ([]string, error) {
	info, err := os.Stat(resultPath)
	if err != nil {
		return nil, errors.Wrap(err, "stat result")
	}
	if !info.IsDir() {
		return []string{resultPath}, nil
	}
	entries, err := os.ReadDir(resultPath)
	if err != nil {
		return nil, errors.Wrap(err, "read result dir")
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(resultPath, e.Name()))
		}
	}
	return files, nil
}
