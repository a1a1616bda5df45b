package processing

import (
	"context"
	"fmt"
	"io"
)

// API is the remote analysis backend contract used by the controllers.
type API interface {
	CreateJob(ctx context.Context) (string, error)
	ProcessVideo(ctx context.Context, body ProcessVideoRequest) error
	LatestFrame(ctx context.Context, jobID string) (*Frame, error)
	InitializeVoice(ctx context.Context, jobID string) (string, error)
	ProcessVoice(ctx context.Context, jobID string, audio []byte, mimeType string) (*VoiceReply, error)
}

// readLimited reads r fully, failing if it holds more than maxSize bytes.
func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("response too large: exceeds limit of %d bytes", maxSize)
	}
	return data, nil
}
