package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twistyyb/insurefire/config"
	"github.com/twistyyb/insurefire/internal/processing"
	"github.com/twistyyb/insurefire/internal/storage"
)

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return &config.Config{}
}

func newAPIClient(cfg *config.Config) *processing.Client {
	return processing.NewClient(processing.ClientOpts{
		BaseURL: cfg.API.URL,
		Timeout: cfg.API.Timeout,
	})
}

// openMetadataStore opens the job and upload tables for the configured driver.
func openMetadataStore(ctx context.Context, cfg *config.Config) (storage.MetadataStore, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := storage.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		log.Info().Msg("postgres metadata store initialized")
		return store, nil
	default:
		store, err := storage.NewSQLiteStore(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		log.Info().Str("dbPath", cfg.Database.DSN).Msg("sqlite metadata store initialized")
		return store, nil
	}
}

// openObjectStore returns MinIO/S3 storage when an endpoint is configured and
// an in-memory store otherwise.
func openObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	s3 := cfg.Storage
	if s3.Endpoint == "" {
		log.Warn().Msg("INSUREFIRE_S3_ENDPOINT is not set, uploads are kept in memory and will not be reachable by the backend")
		return storage.NewMemoryObjectStore(s3.Bucket), nil
	}

	store, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:      s3.Endpoint,
		AccessKey:     s3.AccessKey,
		SecretKey:     s3.SecretKey,
		UseSSL:        s3.UseSSL,
		Region:        s3.Region,
		Bucket:        s3.Bucket,
		PublicBaseURL: s3.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info().Str("endpoint", s3.Endpoint).Str("bucket", s3.Bucket).Msg("object store initialized")
	return store, nil
}
