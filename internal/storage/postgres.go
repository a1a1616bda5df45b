package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twistyyb/insurefire/internal/inventory"
)

// PostgresStore implements MetadataStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS file_uploads (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	original_name TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	file_type TEXT NOT NULL,
	file_path TEXT NOT NULL,
	public_url TEXT NOT NULL,
	data_type TEXT NOT NULL,
	job_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_uploads_job ON file_uploads(job_id);
CREATE TABLE IF NOT EXISTS job (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	video_address TEXT NOT NULL DEFAULT '',
	result JSONB,
	total_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	num_items INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_job_created ON job(created_at);`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertUpload stores an upload row and returns its id.
func (s *PostgresStore) InsertUpload(ctx context.Context, row *UploadRow) (string, error) {
	prepareUploadRow(row)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO file_uploads (id, user_id, file_name, original_name, file_size, file_type, file_path, public_url, data_type, job_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, row.ID, row.UserID, row.FileName, row.OriginalName, row.FileSize, row.FileType,
		row.FilePath, row.PublicURL, row.DataType, nullString(row.JobID), row.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert upload: %w", err)
	}
	return row.ID, nil
}

// SaveJob inserts or replaces a job row.
func (s *PostgresStore) SaveJob(ctx context.Context, job *JobRecord) error {
	results, err := prepareJobRecord(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO job (`+jobColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			video_address = EXCLUDED.video_address,
			result = EXCLUDED.result,
			total_value = EXCLUDED.total_value,
			num_items = EXCLUDED.num_items,
			status = EXCLUDED.status
	`, job.ID, job.CreatedAt, job.VideoAddress, results, job.TotalValue, job.NumItems, job.Status)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// GetJob returns nil, nil if the job doesn't exist.
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM job WHERE id=$1`, id)
	job, err := scanPostgresJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// LatestJob returns nil, nil if there are no jobs.
func (s *PostgresStore) LatestJob(ctx context.Context) (*JobRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM job ORDER BY created_at DESC LIMIT 1`)
	job, err := scanPostgresJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest job: %w", err)
	}
	return job, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresJob(row pgx.Row) (*JobRecord, error) {
	var job JobRecord
	var result []byte
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.VideoAddress, &result, &job.TotalValue, &job.NumItems, &job.Status); err != nil {
		return nil, err
	}
	rs, err := inventory.ParseResultSet(result)
	if err != nil {
		return nil, err
	}
	job.Results = rs
	return &job, nil
}
