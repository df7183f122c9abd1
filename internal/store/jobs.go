package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, name, status, total_count, success_count, fail_count, min_delay, max_delay, skip_count, position, waiting, created_at, updated_at"

// CreateJob inserts a job in the wait state together with its items, one
// pending row per seed in order.
func (s *Store) CreateJob(ctx context.Context, name string, minDelay, maxDelay int, seeds []ItemSeed) (*TransferJob, error) {
	if name == "" {
		return nil, errors.New("job name is required")
	}
	if len(seeds) == 0 {
		return nil, errors.New("job requires at least one item")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create job tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO transfer_jobs (name, status, total_count, min_delay, max_delay, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name,
		JobWait,
		len(seeds),
		minDelay,
		maxDelay,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	jobID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO transfer_items (job_id, position, source_ref, title, access_code, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i, seed := range seeds {
		if _, err := stmt.ExecContext(
			ctx,
			jobID,
			i+1,
			seed.SourceRef,
			nullableString(seed.Title),
			nullableString(seed.AccessCode),
			ItemPending,
			timestamp,
			timestamp,
		); err != nil {
			return nil, fmt.Errorf("insert item %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create job: %w", err)
	}
	return s.GetJob(ctx, jobID)
}

// GetJob fetches a job by identifier. Returns nil when absent.
func (s *Store) GetJob(ctx context.Context, id int64) (*TransferJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM transfer_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs ordered by creation time.
func (s *Store) ListJobs(ctx context.Context) ([]*TransferJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM transfer_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*TransferJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob persists changes to an existing job row.
func (s *Store) UpdateJob(ctx context.Context, job *TransferJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE transfer_jobs
         SET name = ?, status = ?, total_count = ?, success_count = ?, fail_count = ?,
             min_delay = ?, max_delay = ?, skip_count = ?, position = ?, waiting = ?, updated_at = ?
         WHERE id = ?`,
		job.Name,
		job.Status,
		job.TotalCount,
		job.SuccessCount,
		job.FailCount,
		job.MinDelay,
		job.MaxDelay,
		job.SkipCount,
		job.Position,
		boolToInt(job.Waiting),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// TransitionJob atomically moves a job between statuses. It reports whether
// the job was in one of the expected source statuses.
func (s *Store) TransitionJob(ctx context.Context, id int64, from []JobStatus, to JobStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition requires source statuses")
	}
	placeholders := makePlaceholders(len(from))
	args := make([]any, 0, len(from)+3)
	args = append(args, to, time.Now().UTC().Format(time.RFC3339Nano), id)
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transfer_jobs SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// JobByStatus returns the oldest job in any of the provided statuses.
func (s *Store) JobByStatus(ctx context.Context, statuses ...JobStatus) (*TransferJob, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM transfer_jobs WHERE status IN (`+placeholders+`) ORDER BY created_at, id LIMIT 1`,
		args...,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// RecomputeJobCounters refreshes a job's success/fail counters from its items.
func (s *Store) RecomputeJobCounters(ctx context.Context, jobID int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE transfer_jobs
         SET success_count = (SELECT COUNT(1) FROM transfer_items WHERE job_id = ? AND status = ?),
             fail_count = (SELECT COUNT(1) FROM transfer_items WHERE job_id = ? AND status = ?),
             updated_at = ?
         WHERE id = ?`,
		jobID, ItemSuccess,
		jobID, ItemFailed,
		time.Now().UTC().Format(time.RFC3339Nano),
		jobID,
	)
	if err != nil {
		return fmt.Errorf("recompute counters: %w", err)
	}
	return nil
}

// ApplySkipCount marks items at or before the offset skipped and the rest
// pending. Used only on a fresh (non-resume) start.
func (s *Store) ApplySkipCount(ctx context.Context, jobID int64, skipCount int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin skip tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE transfer_items SET status = ?, updated_at = ? WHERE job_id = ? AND position <= ?`,
		ItemSkipped, now, jobID, skipCount,
	); err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE transfer_items SET status = ?, updated_at = ? WHERE job_id = ? AND position > ?`,
		ItemPending, now, jobID, skipCount,
	); err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE transfer_jobs SET skip_count = ?, position = ?, updated_at = ? WHERE id = ?`,
		skipCount, skipCount, now, jobID,
	); err != nil {
		return fmt.Errorf("record skip count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit skip tx: %w", err)
	}
	return s.RecomputeJobCounters(ctx, jobID)
}

// RecoverInterrupted forces jobs stranded in in-flight states back to paused
// and resets processing items to pending. Returns the affected row counts.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	placeholders := makePlaceholders(len(interruptedJobStatuses))
	args := make([]any, 0, len(interruptedJobStatuses)+2)
	args = append(args, JobPaused, now)
	for _, status := range interruptedJobStatuses {
		args = append(args, status)
	}
	jobRes, err := s.db.ExecContext(
		ctx,
		`UPDATE transfer_jobs SET status = ?, waiting = 0, updated_at = ? WHERE status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("recover jobs: %w", err)
	}
	jobs, err := jobRes.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("rows affected: %w", err)
	}

	itemRes, err := s.db.ExecContext(
		ctx,
		`UPDATE transfer_items SET status = ?, updated_at = ? WHERE status = ?`,
		ItemPending, now, ItemProcessing,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("recover items: %w", err)
	}
	items, err := itemRes.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("rows affected: %w", err)
	}
	return jobs, items, nil
}

// DeleteJob removes a job and, via the foreign key cascade, its items.
func (s *Store) DeleteJob(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transfer_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*TransferJob, error) {
	var (
		id         int64
		name       string
		statusStr  string
		total      int
		success    int
		fail       int
		minDelay   int
		maxDelay   int
		skipCount  int
		position   int
		waiting    sql.NullInt64
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&statusStr,
		&total,
		&success,
		&fail,
		&minDelay,
		&maxDelay,
		&skipCount,
		&position,
		&waiting,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &TransferJob{
		ID:           id,
		Name:         name,
		Status:       JobStatus(statusStr),
		TotalCount:   total,
		SuccessCount: success,
		FailCount:    fail,
		MinDelay:     minDelay,
		MaxDelay:     maxDelay,
		SkipCount:    skipCount,
		Position:     position,
	}
	if waiting.Valid {
		job.Waiting = waiting.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
