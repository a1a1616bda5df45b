package voice

import (
	"context"

	"github.com/twistyyb/insurefire/internal/processing"
)

// API is the voice part of the remote backend.
type API interface {
	InitializeVoice(ctx context.Context, jobID string) (string, error)
	ProcessVoice(ctx context.Context, jobID string, audio []byte, mimeType string) (*processing.VoiceReply, error)
}

// Recorder opens the audio capture device.
type Recorder interface {
	Open(ctx context.Context) (Capture, error)
}

// Capture is an open recording. Chunks is closed once Stop has returned and
// every captured chunk has been delivered.
type Capture interface {
	Chunks() <-chan []byte
	MIMEType() string
	Stop() error
}

// Player plays synthesized speech, returning when playback has finished or
// ctx is cancelled.
type Player interface {
	Play(ctx context.Context, speech *processing.Speech) error
}
