package frames

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/twistyyb/insurefire/internal/processing"
)

// Sample is a displayable frame resource. Release frees it and is safe to
// call more than once.
type Sample struct {
	JobID       string
	Path        string
	ContentType string
	Size        int
	FetchedAt   time.Time

	release func() error
	once    sync.Once
	err     error
}

// NewSample wraps a resource with its release function.
func NewSample(jobID, path, contentType string, size int, release func() error) *Sample {
	return &Sample{
		JobID:       jobID,
		Path:        path,
		ContentType: contentType,
		Size:        size,
		FetchedAt:   time.Now(),
		release:     release,
	}
}

// Release frees the underlying resource once.
func (s *Sample) Release() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// Sink turns fetched frames into displayable samples.
type Sink interface {
	Install(jobID string, frame *processing.Frame) (*Sample, error)
}

// FileSink writes each frame to its own temporary file, removed on release.
type FileSink struct {
	Dir string
}

var _ Sink = (*FileSink)(nil)

func (s *FileSink) Install(jobID string, frame *processing.Frame) (*Sample, error) {
	f, err := os.CreateTemp(s.Dir, "frame-*"+extensionFor(frame.ContentType))
	if err != nil {
		return nil, fmt.Errorf("failed to create frame file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(frame.Data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write frame: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close frame file: %w", err)
	}

	return NewSample(jobID, path, frame.ContentType, len(frame.Data), func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}), nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	}
	return ".img"
}
