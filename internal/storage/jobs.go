package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/twistyyb/insurefire/internal/inventory"
)

const jobColumns = `id, created_at, video_address, result, total_value, num_items, status`

// SaveJob inserts or replaces a job row.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := prepareJobRecord(job)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_address = excluded.video_address,
			result = excluded.result,
			total_value = excluded.total_value,
			num_items = excluded.num_items,
			status = excluded.status`,
		job.ID, job.CreatedAt, job.VideoAddress, nullBytes(results), job.TotalValue, job.NumItems, job.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id.
// Returns nil, nil if the job doesn't exist.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job WHERE id = ?`, id)
	job, err := scanSQLiteJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// LatestJob retrieves the most recently created job.
// Returns nil, nil if there are no jobs.
func (s *SQLiteStore) LatestJob(ctx context.Context) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	job, err := scanSQLiteJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return job, nil
}

func scanSQLiteJob(row *sql.Row) (*JobRecord, error) {
	var job JobRecord
	var result sql.NullString
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.VideoAddress, &result, &job.TotalValue, &job.NumItems, &job.Status); err != nil {
		return nil, err
	}
	if result.Valid {
		rs, err := inventory.ParseResultSet([]byte(result.String))
		if err != nil {
			return nil, err
		}
		job.Results = rs
	}
	return &job, nil
}

func nullBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
