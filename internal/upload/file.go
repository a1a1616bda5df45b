package upload

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// File is a user-selected file ready for upload.
type File struct {
	Name     string
	Size     int64
	MIMEType string
	Content  io.Reader
}

// IsVideo reports whether the file has a video MIME type.
func (f *File) IsVideo() bool {
	return strings.HasPrefix(f.MIMEType, "video/")
}

// Rewindable reports whether Content can be read again from the start.
func (f *File) Rewindable() bool {
	_, ok := f.Content.(io.Seeker)
	return ok
}

// Rewind moves Content back to its start. It does nothing for readers that
// cannot seek.
func (f *File) Rewind() error {
	seeker, ok := f.Content.(io.Seeker)
	if !ok {
		return nil
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind file: %w", err)
	}
	return nil
}

// OpenFile builds a File from a path on disk. The caller closes the returned
// closer once the upload has finished.
func OpenFile(path string) (*File, io.Closer, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		fh.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}

	mimeType, err := detectMIMEType(fh, path)
	if err != nil {
		fh.Close()
		return nil, nil, err
	}

	return &File{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: mimeType,
		Content:  fh,
	}, fh, nil
}

// Not every system mime table knows these.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
}

// detectMIMEType uses the extension first and falls back to sniffing the
// first 512 bytes. The file offset is reset afterwards.
func detectMIMEType(fh *os.File, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t, nil
	}
	if t := mime.TypeByExtension(ext); t != "" {
		mediaType, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mediaType, nil
		}
		return t, nil
	}

	head := make([]byte, 512)
	n, err := fh.Read(head)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file header: %w", err)
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind file: %w", err)
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return mediaType, nil
}
