package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/twistyyb/insurefire/internal/inventory"
	_ "modernc.org/sqlite"
)

// DefaultUserID owns uploads when no user is configured.
const DefaultUserID = "66274d9c-6ece-4eeb-a8ed-19051a8a2103"

// UploadRow is a row in the file_uploads table.
type UploadRow struct {
	ID           string
	UserID       string
	FileName     string
	OriginalName string
	FileSize     int64
	FileType     string
	FilePath     string
	PublicURL    string
	DataType     string
	JobID        string
	CreatedAt    time.Time
}

// JobRecord is a row in the job table. Results is nil until the backend has
// written them.
type JobRecord struct {
	ID           string
	CreatedAt    time.Time
	VideoAddress string
	Results      inventory.ResultSet
	TotalValue   float64
	NumItems     int
	Status       string
}

// MetadataStore persists upload metadata and job rows.
type MetadataStore interface {
	InsertUpload(ctx context.Context, row *UploadRow) (string, error)
	SaveJob(ctx context.Context, job *JobRecord) error
	// GetJob returns nil, nil if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	// LatestJob returns the most recently created job, or nil, nil if there are none.
	LatestJob(ctx context.Context) (*JobRecord, error)
	Close() error
}

var (
	_ MetadataStore = (*SQLiteStore)(nil)
	_ MetadataStore = (*PostgresStore)(nil)
)

// SQLiteStore implements MetadataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based metadata store.
// The dbPath is the path to the SQLite database file, or ":memory:".
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// WAL mode and busy timeout for concurrent readers
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, 0600); err != nil {
			log.Warn().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database permissions")
		}
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	uploadsQuery := `
	CREATE TABLE IF NOT EXISTS file_uploads (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		original_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_type TEXT NOT NULL,
		file_path TEXT NOT NULL,
		public_url TEXT NOT NULL,
		data_type TEXT NOT NULL,
		job_id TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_file_uploads_job ON file_uploads(job_id);
	`
	if _, err := s.db.Exec(uploadsQuery); err != nil {
		return fmt.Errorf("failed to create file_uploads table: %w", err)
	}

	jobQuery := `
	CREATE TABLE IF NOT EXISTS job (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		video_address TEXT NOT NULL DEFAULT '',
		result TEXT,
		total_value REAL NOT NULL DEFAULT 0,
		num_items INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending'
	);
	CREATE INDEX IF NOT EXISTS idx_job_created ON job(created_at);
	`
	if _, err := s.db.Exec(jobQuery); err != nil {
		return fmt.Errorf("failed to create job table: %w", err)
	}

	return nil
}

// InsertUpload stores an upload row and returns its id.
func (s *SQLiteStore) InsertUpload(ctx context.Context, row *UploadRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareUploadRow(row)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_uploads (id, user_id, file_name, original_name, file_size, file_type, file_path, public_url, data_type, job_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.FileName, row.OriginalName, row.FileSize, row.FileType,
		row.FilePath, row.PublicURL, row.DataType, nullString(row.JobID), row.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert upload: %w", err)
	}
	return row.ID, nil
}

// UploadsForJob returns the uploads linked to a job, oldest first.
func (s *SQLiteStore) UploadsForJob(ctx context.Context, jobID string) ([]UploadRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, file_name, original_name, file_size, file_type, file_path, public_url, data_type, COALESCE(job_id, ''), created_at
		FROM file_uploads WHERE job_id = ? ORDER BY created_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []UploadRow
	for rows.Next() {
		var u UploadRow
		if err := rows.Scan(&u.ID, &u.UserID, &u.FileName, &u.OriginalName, &u.FileSize, &u.FileType,
			&u.FilePath, &u.PublicURL, &u.DataType, &u.JobID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func prepareUploadRow(row *UploadRow) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.UserID == "" {
		row.UserID = DefaultUserID
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
}

func prepareJobRecord(job *JobRecord) ([]byte, error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = inventory.StoredPending
	}
	if job.Results == nil {
		return nil, nil
	}
	data, err := json.Marshal(job.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	return data, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
