package usecase

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/config"
	"github.com/amankumarsingh77/mhr-streamer/internal/framestream"
	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/internal/worker"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const lockSuffix = ":lock"

type jobsUC struct {
	cfg       *config.Config
	runner    jobs.Runner
	frames    *framestream.Service
	store     *artifact.Store
	jobsRepo  jobs.Repository
	redisRepo jobs.RedisRepository
	logger    logger.Logger
}

// NewJobsUseCase builds the job use case. jobsRepo and redisRepo may be nil
// when postgres or redis are disabled.
func NewJobsUseCase(
	cfg *config.Config,
	runner jobs.Runner,
	frames *framestream.Service,
	store *artifact.Store,
	jobsRepo jobs.Repository,
	redisRepo jobs.RedisRepository,
	log logger.Logger,
) jobs.UseCase {
	return &jobsUC{
		cfg:       cfg,
		runner:    runner,
		frames:    frames,
		store:     store,
		jobsRepo:  jobsRepo,
		redisRepo: redisRepo,
		logger:    log,
	}
}

func lockKey(cfg *config.Config) string {
	return cfg.Redis.StatusKey + lockSuffix
}

func (u *jobsUC) Upload(ctx context.Context, input *models.UploadInput) (*models.Job, error) {
	if input == nil {
		return nil, errors.Wrap(jobs.ErrInvalidUpload, "no file provided")
	}
	if err := utils.ValidateStruct(ctx, input); err != nil {
		u.logger.Errorf("Upload - ValidateStruct error: %v", err)
		return nil, errors.Wrap(jobs.ErrInvalidUpload, err.Error())
	}
	if ok, usage := utils.CheckCPUUsage(u.cfg.Worker.MaxCPUUsage); !ok {
		u.logger.Warnf("Upload - rejecting %s, cpu at %.1f%%", input.FileName, usage)
		return nil, jobs.ErrBusy
	}
	if u.runner.Running() {
		return nil, worker.ErrJobRunning
	}

	job := models.NewJob(input.FileName, "", input.FrameSkip, input.StartFrame, input.EndFrame)
	path, err := u.store.SaveUpload(job.JobID.String(), input.FileName, input.File)
	if err != nil {
		u.logger.Errorf("Upload - SaveUpload error: %v", err)
		return nil, errors.Wrap(jobs.ErrInvalidUpload, err.Error())
	}
	job.FilePath = path

	locked := false
	if u.redisRepo != nil {
		ok, err := u.redisRepo.AcquireLock(ctx, lockKey(u.cfg), job.JobID.String(), u.cfg.Redis.StatusTTL)
		if err != nil {
			u.logger.Warnf("Upload - AcquireLock error, continuing without lock: %v", err)
		} else if !ok {
			return nil, worker.ErrJobRunning
		} else {
			locked = true
		}
	}

	if err := u.runner.Submit(job); err != nil {
		if locked {
			if rerr := u.redisRepo.ReleaseLock(ctx, lockKey(u.cfg), job.JobID.String()); rerr != nil {
				u.logger.Warnf("Upload - ReleaseLock error: %v", rerr)
			}
		}
		return nil, err
	}
	u.logger.Infof("Upload - job %s submitted for %s", job.JobID, input.FileName)
	return job, nil
}

func (u *jobsUC) Progress(ctx context.Context) models.ProcessingStatus {
	return u.runner.Snapshot()
}

func (u *jobsUC) SingleResult(ctx context.Context) ([]byte, bool) {
	return u.frames.SingleResult()
}

func (u *jobsUC) Manifest(ctx context.Context) ([]byte, bool) {
	return u.frames.Manifest()
}

func (u *jobsUC) Topology(ctx context.Context) ([]byte, bool) {
	return u.frames.Topology()
}

func (u *jobsUC) Frame(ctx context.Context, name string) ([]byte, error) {
	return u.frames.Frame(name)
}

func (u *jobsUC) ListFiles(ctx context.Context) ([]artifact.ResultEntry, error) {
	return u.store.ListResults()
}

func (u *jobsUC) ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	if u.jobsRepo == nil {
		return nil, jobs.ErrNotConfigured
	}
	list, err := u.jobsRepo.GetJobs(ctx, pq)
	if err != nil {
		u.logger.Errorf("ListJobs - GetJobs error: %v", err)
		return nil, err
	}
	return list, nil
}

func (u *jobsUC) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	if u.jobsRepo == nil {
		return nil, jobs.ErrNotConfigured
	}
	job, err := u.jobsRepo.GetJobByID(ctx, jobID)
	if err != nil {
		u.logger.Errorf("GetJob - GetJobByID error: %v", err)
		return nil, err
	}
	return job, nil
}

// LiveStatus reads the status mirrored to redis, falling back to the local
// snapshot when nothing has been mirrored yet.
func (u *jobsUC) LiveStatus(ctx context.Context) (*models.ProcessingStatus, error) {
	if u.redisRepo == nil {
		return nil, jobs.ErrNotConfigured
	}
	status, err := u.redisRepo.GetStatus(ctx, u.cfg.Redis.StatusKey)
	if err != nil {
		u.logger.Errorf("LiveStatus - GetStatus error: %v", err)
		return nil, err
	}
	if status == nil {
		snap := u.runner.Snapshot()
		return &snap, nil
	}
	return status, nil
}
