package repository

const (
	jobColumns = `job_id, file_name, file_path, kind, frame_skip, start_frame, end_frame, status,
					COALESCE(error_message, '') AS error_message, COALESCE(result_path, '') AS result_path, frames,
					created_at, started_at, COALESCE(completed_at, started_at) AS completed_at`

	createJobQuery = `INSERT INTO jobs (job_id, file_name, file_path, kind, frame_skip, start_frame, end_frame, status, frames, created_at, started_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10) RETURNING ` + jobColumns
	finishJobQuery = `UPDATE jobs
					SET status = $1,
					    error_message = NULLIF($2, ''),
					    result_path = NULLIF($3, ''),
					    frames = $4,
					    completed_at = $5
					WHERE job_id = $6`
	getJobByIDQuery   = `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`
	getJobsQuery      = `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC OFFSET $1 LIMIT $2`
	getTotalJobsQuery = `SELECT COUNT(job_id) FROM jobs`
)
