package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fibreville/tigris/internal/models"
)

type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// AddJob records a job for ownerID. Job ids come from a per-owner sequence
// starting at 0 and are never handed out twice, even after RemoveJob.
// The owner does not need an account.
func (s *JobStore) AddJob(ctx context.Context, ownerID, title string, salary int64) (models.Job, error) {
	job := models.Job{UserID: ownerID, Title: title, Salary: salary}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return job, storageErr("add job", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO job_sequences (user_id, next_job_id)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE SET next_job_id = job_sequences.next_job_id + 1
		RETURNING next_job_id - 1`,
		ownerID).Scan(&job.JobID)
	if err != nil {
		return job, storageErr("add job", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (user_id, job_id, title, salary)
		VALUES ($1, $2, $3, $4)`,
		ownerID, job.JobID, title, salary); err != nil {
		return job, storageErr("add job", err)
	}

	if err := tx.Commit(); err != nil {
		return job, storageErr("add job", err)
	}
	return job, nil
}

func (s *JobStore) RemoveJob(ctx context.Context, ownerID string, jobID int64) (models.Job, error) {
	var job models.Job
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM jobs WHERE user_id = $1 AND job_id = $2
		RETURNING user_id, job_id, title, salary`,
		ownerID, jobID).Scan(&job.UserID, &job.JobID, &job.Title, &job.Salary)
	if errors.Is(err, sql.ErrNoRows) {
		return job, ErrJobNotFound
	}
	if err != nil {
		return job, storageErr("remove job", err)
	}
	return job, nil
}

func (s *JobStore) GetJob(ctx context.Context, ownerID string, jobID int64) (models.Job, error) {
	var job models.Job
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, job_id, title, salary FROM jobs WHERE user_id = $1 AND job_id = $2`,
		ownerID, jobID).Scan(&job.UserID, &job.JobID, &job.Title, &job.Salary)
	if errors.Is(err, sql.ErrNoRows) {
		return job, ErrJobNotFound
	}
	if err != nil {
		return job, storageErr("get job", err)
	}
	return job, nil
}

func (s *JobStore) ListJobs(ctx context.Context, ownerID string) ([]models.Job, error) {
	return s.queryJobs(ctx, `
		SELECT user_id, job_id, title, salary FROM jobs WHERE user_id = $1 ORDER BY job_id ASC`, ownerID)
}

func (s *JobStore) ListAllJobs(ctx context.Context) ([]models.Job, error) {
	return s.queryJobs(ctx, `
		SELECT user_id, job_id, title, salary FROM jobs ORDER BY user_id ASC, job_id ASC`)
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list jobs", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.UserID, &job.JobID, &job.Title, &job.Salary); err != nil {
			return nil, storageErr("list jobs", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list jobs", err)
	}
	return jobs, nil
}

// TotalSalary sums the salaries of every job held by ownerID. ErrNoJobs is
// returned when the owner has none.
func (s *JobStore) TotalSalary(ctx context.Context, ownerID string) (int64, error) {
	return s.totalSalary(ctx, s.db, ownerID)
}

func (s *JobStore) totalSalary(ctx context.Context, q querier, ownerID string) (int64, error) {
	var total sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT SUM(salary) FROM jobs WHERE user_id = $1`, ownerID).Scan(&total)
	if err != nil {
		return 0, storageErr("total salary", err)
	}
	if !total.Valid {
		return 0, ErrNoJobs
	}
	return total.Int64, nil
}

func (s *JobStore) ListAllTotalSalaries(ctx context.Context) ([]models.SalaryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, SUM(salary) AS total FROM jobs
		GROUP BY user_id
		ORDER BY total DESC, user_id ASC`)
	if err != nil {
		return nil, storageErr("list salaries", err)
	}
	defer rows.Close()

	totals := []models.SalaryTotal{}
	for rows.Next() {
		var t models.SalaryTotal
		if err := rows.Scan(&t.UserID, &t.Total); err != nil {
			return nil, storageErr("list salaries", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list salaries", err)
	}
	return totals, nil
}
