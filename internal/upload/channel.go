package upload

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/twistyyb/insurefire/internal/apperr"
	"github.com/twistyyb/insurefire/internal/metrics"
	"github.com/twistyyb/insurefire/internal/storage"
)

const (
	// DefaultDataType is used when the requested category sanitizes to nothing.
	DefaultDataType = "uploads"

	defaultFileName = "file"
	tokenLength     = 7

	MsgUploadFailed = "Failed to upload file. Please try again."
)

var (
	unsafeNameChars     = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	unsafeDataTypeChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)
)

// Record describes an uploaded file. RecordID is empty when the metadata
// write failed.
type Record struct {
	StoragePath   string
	PublicURL     string
	SanitizedName string
	OriginalName  string
	SizeBytes     int64
	MIMEType      string
	DataType      string
	JobID         string
	RecordID      string
}

// MetadataWriter records upload metadata.
type MetadataWriter interface {
	InsertUpload(ctx context.Context, row *storage.UploadRow) (string, error)
}

// Channel moves a local file into object storage and records its metadata.
type Channel struct {
	objects  storage.ObjectStore
	metadata MetadataWriter
	userID   string
	now      func() time.Time
}

// NewChannel creates a Channel. metadata may be nil, in which case no
// metadata row is written.
func NewChannel(objects storage.ObjectStore, metadata MetadataWriter, userID string) *Channel {
	return &Channel{
		objects:  objects,
		metadata: metadata,
		userID:   userID,
		now:      time.Now,
	}
}

// Upload stores the file under a unique path and returns its record. A
// storage failure fails the upload; a metadata failure is logged and the
// record is returned without a RecordID.
func (c *Channel) Upload(ctx context.Context, file *File, jobID, dataType string) (*Record, error) {
	safeName := SanitizeFileName(file.Name)
	safeDataType := SanitizeDataType(dataType)
	path := c.storagePath(safeDataType, safeName)

	contentType := file.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	log.Info().Str("jobID", jobID).Str("path", path).Int64("size", file.Size).Msg("uploading file")

	if err := file.Rewind(); err != nil {
		metrics.IncUploads(metrics.ResultFailure)
		return nil, apperr.New(apperr.KindUpload, "upload", jobID, MsgUploadFailed, err)
	}
	if err := c.objects.Put(ctx, path, file.Content, file.Size, contentType); err != nil {
		metrics.IncUploads(metrics.ResultFailure)
		return nil, apperr.New(apperr.KindUpload, "upload", jobID, MsgUploadFailed, err)
	}

	record := &Record{
		StoragePath:   path,
		PublicURL:     c.objects.PublicURL(path),
		SanitizedName: safeName,
		OriginalName:  file.Name,
		SizeBytes:     file.Size,
		MIMEType:      contentType,
		DataType:      safeDataType,
		JobID:         jobID,
	}

	if c.metadata != nil {
		id, err := c.metadata.InsertUpload(ctx, &storage.UploadRow{
			UserID:       c.userID,
			FileName:     safeName,
			OriginalName: file.Name,
			FileSize:     file.Size,
			FileType:     contentType,
			FilePath:     path,
			PublicURL:    record.PublicURL,
			DataType:     safeDataType,
			JobID:        jobID,
		})
		if err != nil {
			log.Warn().Err(err).Str("jobID", jobID).Str("path", path).Msg("failed to record upload metadata")
			metrics.IncUploads(metrics.ResultPartial)
			return record, nil
		}
		record.RecordID = id
	}

	metrics.IncUploads(metrics.ResultSuccess)
	return record, nil
}

func (c *Channel) storagePath(dataType, name string) string {
	return fmt.Sprintf("%s/%d-%s-%s", dataType, c.now().UnixMilli(), randomToken(), name)
}

// SanitizeFileName removes every character outside [A-Za-z0-9.-].
func SanitizeFileName(name string) string {
	safe := unsafeNameChars.ReplaceAllString(name, "")
	if strings.Trim(safe, ".") == "" {
		return defaultFileName
	}
	return safe
}

// SanitizeDataType removes every character outside [A-Za-z0-9-].
func SanitizeDataType(dataType string) string {
	safe := unsafeDataTypeChars.ReplaceAllString(dataType, "")
	if safe == "" {
		return DefaultDataType
	}
	return safe
}

// randomToken returns 7 lowercase alphanumeric characters.
func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}
