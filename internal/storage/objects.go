package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultBucket holds uploaded media.
const DefaultBucket = "file-upload"

const cacheControl = "max-age=3600"

// ObjectStore is the blob storage for uploaded media.
type ObjectStore interface {
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	PublicURL(path string) string
}

var (
	_ ObjectStore = (*MinioStore)(nil)
	_ ObjectStore = (*MemoryObjectStore)(nil)
)

// MinioConfig configures an S3-compatible object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// PublicBaseURL is prefixed to object paths to build public links. When
	// empty, links point at the endpoint itself.
	PublicBaseURL string
}

// MinioStore wraps MinIO/S3 interactions for uploaded media.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	region     string
	publicBase string
}

// NewMinioStore creates a MinIO client from cfg.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, bucket)
	}

	return &MinioStore{
		client:     client,
		bucket:     bucket,
		region:     cfg.Region,
		publicBase: publicBase,
	}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads an object. Existing objects at path are not overwritten.
func (s *MinioStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{}); err == nil {
		return fmt.Errorf("object %s already exists", path)
	}

	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	}
	if _, err := s.client.PutObject(ctx, s.bucket, path, r, size, opts); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// PublicURL returns the public link for path.
func (s *MinioStore) PublicURL(path string) string {
	return s.publicBase + "/" + escapePath(path)
}

// StoredObject is an object held by MemoryObjectStore.
type StoredObject struct {
	Data         []byte
	ContentType  string
	CacheControl string
}

// MemoryObjectStore keeps objects in memory. Used for local runs without an
// S3 endpoint and in tests.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]StoredObject
}

// NewMemoryObjectStore constructs an empty MemoryObjectStore.
func NewMemoryObjectStore(bucket string) *MemoryObjectStore {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &MemoryObjectStore{
		bucket:  bucket,
		objects: make(map[string]StoredObject),
	}
}

func (m *MemoryObjectStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("read object: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; ok {
		return fmt.Errorf("object %s already exists", path)
	}
	m.objects[path] = StoredObject{
		Data:         buf.Bytes(),
		ContentType:  contentType,
		CacheControl: cacheControl,
	}
	return nil
}

func (m *MemoryObjectStore) PublicURL(path string) string {
	return "memory://" + m.bucket + "/" + escapePath(path)
}

// Get returns the object at path.
func (m *MemoryObjectStore) Get(path string) (StoredObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj, ok
}

// Len returns the number of stored objects.
func (m *MemoryObjectStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
