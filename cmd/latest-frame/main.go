// latest-frame downloads the current visualization frame of a processing job.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/twistyyb/insurefire/config"
	"github.com/twistyyb/insurefire/internal/processing"
)

func main() {
	var jobID, out string
	var timeout time.Duration

	flag.StringVar(&jobID, "job", "", "Job ID")
	flag.StringVar(&out, "o", "frame.jpg", "Output file")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	if jobID == "" && flag.NArg() > 0 {
		jobID = flag.Arg(0)
	}
	if jobID == "" {
		fmt.Fprintf(os.Stderr, "Usage: latest-frame [-o frame.jpg] -job <job_id>\n")
		fmt.Fprintf(os.Stderr, "       latest-frame [-o frame.jpg] <job_id>\n")
		os.Exit(1)
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	client := processing.NewClient(processing.ClientOpts{BaseURL: cfg.API.URL})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	frame, err := client.LatestFrame(ctx, jobID)
	if errors.Is(err, processing.ErrNoFrame) {
		fmt.Fprintf(os.Stderr, "No frame available for job %s yet\n", jobID)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching frame: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(out, frame.Data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%s, %s)\n", out, frame.ContentType, humanize.Bytes(uint64(len(frame.Data))))
}
