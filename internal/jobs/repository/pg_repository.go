package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type jobsRepo struct {
	db *sqlx.DB
}

func NewJobsRepo(db *sqlx.DB) jobs.Repository {
	return &jobsRepo{
		db: db,
	}
}

func (r *jobsRepo) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	created := &models.Job{}
	if err := r.db.QueryRowxContext(
		ctx,
		createJobQuery,
		job.JobID,
		job.FileName,
		job.FilePath,
		job.Kind,
		job.FrameSkip,
		job.StartFrame,
		job.EndFrame,
		job.Status,
		job.CreatedAt,
		job.StartedAt,
	).StructScan(created); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return created, nil
}

func (r *jobsRepo) FinishJob(ctx context.Context, job *models.Job) error {
	res, err := r.db.ExecContext(
		ctx,
		finishJobQuery,
		job.Status,
		job.Error,
		job.ResultPath,
		job.Frames,
		job.CompletedAt,
		job.JobID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}

func (r *jobsRepo) GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job := &models.Job{}
	if err := r.db.QueryRowxContext(ctx, getJobByIDQuery, jobID).StructScan(job); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by id: %w", err)
	}
	return job, nil
}

func (r *jobsRepo) GetJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, getTotalJobsQuery); err != nil {
		return nil, fmt.Errorf("failed to get total jobs count: %w", err)
	}
	if totalCount == 0 {
		return &models.JobList{
			Jobs:       make([]*models.Job, 0),
			TotalCount: 0,
			Page:       0,
			PageSize:   0,
			HasMore:    false,
		}, nil
	}

	rows, err := r.db.QueryxContext(ctx, getJobsQuery, pq.GetOffset(), pq.GetLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	defer rows.Close()

	list := make([]*models.Job, 0, pq.GetSize())
	for rows.Next() {
		var job models.Job
		if err = rows.StructScan(&job); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		list = append(list, &job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return &models.JobList{
		Jobs:       list,
		TotalCount: totalCount,
		TotalPages: utils.GetTotalPages(totalCount, pq.GetSize()),
		Page:       pq.GetPage(),
		PageSize:   pq.GetSize(),
		HasMore:    utils.GetHasMore(pq.GetPage(), totalCount, pq.GetSize()),
	}, nil
}
