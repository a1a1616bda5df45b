// import-inventory loads an item metadata JSON file produced by the
// analysis pipeline into the job table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twistyyb/insurefire/config"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/storage"
)

func main() {
	var jobID, video string

	flag.StringVar(&jobID, "job", "", "Job ID to write (a new one is generated when empty)")
	flag.StringVar(&video, "video", "", "Public URL or path of the source video")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: import-inventory [-job <id>] [-video <url|path>] <item_metadata.json>\n")
		os.Exit(1)
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	record, err := buildJobRecord(jobID, data, video, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.SaveJob(ctx, record); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving job: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Imported job %s\n", record.ID)
	fmt.Printf("  video:       %s\n", record.VideoAddress)
	fmt.Printf("  items:       %d\n", record.NumItems)
	fmt.Printf("  total value: %s\n", inventory.FormatPrice(record.TotalValue))
}

// buildJobRecord parses an item metadata document into a completed job row.
func buildJobRecord(jobID string, data []byte, video string, now time.Time) (*storage.JobRecord, error) {
	rs, err := inventory.ParseResultSet(data)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = inventory.ResultSet{}
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}
	return &storage.JobRecord{
		ID:           jobID,
		CreatedAt:    now,
		VideoAddress: videoAddress(video),
		Results:      rs,
		TotalValue:   rs.TotalValue(),
		NumItems:     rs.ItemCount(),
		Status:       inventory.StoredCompleted,
	}, nil
}

// videoAddress keeps URLs as they are and reduces local paths to the file
// name.
func videoAddress(video string) string {
	if video == "" || strings.HasPrefix(video, "http://") || strings.HasPrefix(video, "https://") {
		return video
	}
	return filepath.Base(video)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.MetadataStore, error) {
	if cfg.Database.Driver == config.DriverPostgres {
		return storage.NewPostgresStore(ctx, cfg.Database.DSN)
	}
	return storage.NewSQLiteStore(cfg.Database.DSN)
}
