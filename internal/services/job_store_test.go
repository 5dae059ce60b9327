package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// Job ids come from this upsert: the first job of an owner gets 0 and each
	// later one the previous counter value. Nothing else writes job_sequences,
	// so removing a job never frees its id.
	nextJobIDSQL = `INSERT INTO job_sequences \(user_id, next_job_id\) VALUES \(\$1, 1\) ` +
		`ON CONFLICT \(user_id\) DO UPDATE SET next_job_id = job_sequences\.next_job_id \+ 1 ` +
		`RETURNING next_job_id - 1`
	insertJobSQL = `INSERT INTO jobs \(user_id, job_id, title, salary\)`
)

func expectAddJob(m sqlmock.Sqlmock, owner string, jobID int64, title string, salary int64) {
	m.ExpectBegin()
	m.ExpectQuery(nextJobIDSQL).
		WithArgs(owner).
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow(jobID))
	m.ExpectExec(insertJobSQL).
		WithArgs(owner, jobID, title, salary).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
}

func TestJobStore_AddAndRemove(t *testing.T) {
	ctx := context.Background()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewJobStore(db)

	expectAddJob(dbMock, "100", 0, "Baker", 500)
	expectAddJob(dbMock, "100", 1, "Miner", 300)
	expectAddJob(dbMock, "100", 2, "Guard", 200)
	dbMock.ExpectQuery(`DELETE FROM jobs WHERE user_id = \$1 AND job_id = \$2`).
		WithArgs("100", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "job_id", "title", "salary"}).AddRow("100", 1, "Miner", 300))
	dbMock.ExpectQuery(`DELETE FROM jobs WHERE user_id = \$1 AND job_id = \$2`).
		WithArgs("100", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "job_id", "title", "salary"}))
	expectAddJob(dbMock, "100", 3, "Scribe", 100)

	for i, title := range []string{"Baker", "Miner", "Guard"} {
		job, err := store.AddJob(ctx, "100", title, []int64{500, 300, 200}[i])
		require.NoError(t, err)
		assert.Equal(t, int64(i), job.JobID)
	}

	// RemoveJob must only delete from jobs; any other statement is unexpected.
	removed, err := store.RemoveJob(ctx, "100", 1)
	require.NoError(t, err)
	assert.Equal(t, "Miner", removed.Title)
	assert.Equal(t, int64(300), removed.Salary)

	_, err = store.RemoveJob(ctx, "100", 1)
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, err := store.AddJob(ctx, "100", "Scribe", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), job.JobID)

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestJobStore_AddJobRollsBackOnInsertFailure(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(nextJobIDSQL).
		WithArgs("100").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow(0))
	dbMock.ExpectExec(insertJobSQL).
		WillReturnError(assert.AnError)
	dbMock.ExpectRollback()

	_, err = NewJobStore(db).AddJob(context.Background(), "100", "Baker", 500)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestJobStore_Queries(t *testing.T) {
	ctx := context.Background()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewJobStore(db)

	columns := []string{"user_id", "job_id", "title", "salary"}

	dbMock.ExpectQuery(`SELECT user_id, job_id, title, salary FROM jobs WHERE user_id = \$1 AND job_id = \$2`).
		WithArgs("100", int64(7)).
		WillReturnRows(sqlmock.NewRows(columns))
	dbMock.ExpectQuery(`SELECT user_id, job_id, title, salary FROM jobs WHERE user_id = \$1 ORDER BY job_id`).
		WithArgs("100").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("100", 0, "Baker", 500).
			AddRow("100", 2, "Guard", 200))
	dbMock.ExpectQuery(`SELECT user_id, job_id, title, salary FROM jobs ORDER BY user_id`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("100", 0, "Baker", 500).
			AddRow("200", 0, "Miner", 900))
	dbMock.ExpectQuery(sumSQL).
		WithArgs("100").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(700))
	dbMock.ExpectQuery(sumSQL).
		WithArgs("300").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))
	dbMock.ExpectQuery(`SELECT user_id, SUM\(salary\) AS total FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "total"}).
			AddRow("200", 900).
			AddRow("100", 700))

	_, err = store.GetJob(ctx, "100", 7)
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs, err := store.ListJobs(ctx, "100")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(2), jobs[1].JobID)

	all, err := store.ListAllJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	total, err := store.TotalSalary(ctx, "100")
	assert.NoError(t, err)
	assert.Equal(t, int64(700), total)

	_, err = store.TotalSalary(ctx, "300")
	assert.ErrorIs(t, err, ErrNoJobs)

	totals, err := store.ListAllTotalSalaries(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "200", totals[0].UserID)
	assert.Equal(t, int64(900), totals[0].Total)

	assert.NoError(t, dbMock.ExpectationsWereMet())
}
