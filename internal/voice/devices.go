package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/twistyyb/insurefire/internal/processing"
)

const fileChunkSize = 16 * 1024

// ErrNoInput is returned by FileRecorder when no recording is queued.
var ErrNoInput = errors.New("no audio input available")

// FileRecorder plays back prerecorded audio files as captured input, one
// file per Open. It stands in for a microphone on headless hosts.
type FileRecorder struct {
	mu    sync.Mutex
	queue []string
}

var _ Recorder = (*FileRecorder)(nil)

// NewFileRecorder creates a recorder that will yield paths in order.
func NewFileRecorder(paths ...string) *FileRecorder {
	return &FileRecorder{queue: append([]string(nil), paths...)}
}

// Queue appends a file to be returned by a later Open.
func (r *FileRecorder) Queue(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, path)
}

// Remaining returns the number of queued files.
func (r *FileRecorder) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *FileRecorder) Open(ctx context.Context) (Capture, error) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return nil, ErrNoInput
	}
	path := r.queue[0]
	r.queue = r.queue[1:]
	r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio input: %w", err)
	}

	chunks := make(chan []byte, len(data)/fileChunkSize+1)
	for start := 0; start < len(data); start += fileChunkSize {
		end := min(start+fileChunkSize, len(data))
		chunks <- data[start:end]
	}
	close(chunks)

	return &fileCapture{chunks: chunks, mimeType: audioMIMEType(path)}, nil
}

type fileCapture struct {
	chunks   chan []byte
	mimeType string
}

func (c *fileCapture) Chunks() <-chan []byte { return c.chunks }
func (c *fileCapture) MIMEType() string      { return c.mimeType }
func (c *fileCapture) Stop() error           { return nil }

func audioMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	}
	return "audio/webm"
}

// FilePlayer writes each reply to a file and optionally runs a command on it,
// e.g. "afplay" or "mpv --no-video".
type FilePlayer struct {
	Dir     string
	Command []string

	mu    sync.Mutex
	count int
	last  string
}

var _ Player = (*FilePlayer)(nil)

func (p *FilePlayer) Play(ctx context.Context, speech *processing.Speech) error {
	p.mu.Lock()
	p.count++
	name := fmt.Sprintf("reply-%03d%s", p.count, speechExtension(speech.MIMEType))
	p.mu.Unlock()

	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create speech dir: %w", err)
	}
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, speech.Data, 0644); err != nil {
		return fmt.Errorf("failed to write speech: %w", err)
	}

	p.mu.Lock()
	p.last = path
	p.mu.Unlock()

	if len(p.Command) == 0 {
		return nil
	}
	args := append(append([]string(nil), p.Command[1:]...), path)
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("playback command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// LastPath returns the file written by the most recent Play.
func (p *FilePlayer) LastPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func speechExtension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	}
	return ".audio"
}
