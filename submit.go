package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/twistyyb/insurefire/internal/frames"
	"github.com/twistyyb/insurefire/internal/job"
	"github.com/twistyyb/insurefire/internal/storage"
	"github.com/twistyyb/insurefire/internal/upload"
)

func newSubmitCmd() *cobra.Command {
	var (
		showDisplay bool
		dataType    string
	)
	cmd := &cobra.Command{
		Use:   "submit <video>",
		Short: "Upload a walkthrough video and wait for it to be analyzed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), args[0], job.Options{
				ShowDisplay: showDisplay,
				DataType:    dataType,
			})
		},
	}
	cmd.Flags().BoolVar(&showDisplay, "show-display", false, "Ask the backend to render detection frames and show them while processing")
	cmd.Flags().StringVar(&dataType, "data-type", "videos", "Storage category for the upload")
	return cmd
}

func runSubmit(ctx context.Context, path string, opts job.Options) error {
	cfg := configFrom(ctx)

	file, closer, err := upload.OpenFile(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	metadata, err := openMetadataStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer metadata.Close()

	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	userID := cfg.Storage.UserID
	if userID == "" {
		userID = storage.DefaultUserID
	}

	api := newAPIClient(cfg)
	channel := upload.NewChannel(objects, metadata, userID)

	var ctrl *job.Controller
	poller := frames.NewPoller(api, &frames.FileSink{Dir: cfg.Service.FrameDir}, frames.Options{
		Interval: cfg.Service.FrameInterval,
		Gate:     func() bool { return ctrl.ProcessingActive() },
		OnFrame: func(s *frames.Sample) {
			fmt.Printf("Latest frame: %s (%s)\n", s.Path, humanize.Bytes(uint64(s.Size)))
		},
	})

	var last string
	ctrl = job.NewController(api, channel, poller, job.Config{
		SettleDelay: cfg.Service.SettleDelay,
		OnChange: func(s job.Snapshot) {
			if line := formatSnapshot(s); line != "" && line != last {
				last = line
				fmt.Println(line)
			}
		},
	})
	defer ctrl.Close()

	if err := ctrl.Select(file); err != nil {
		return err
	}

	log.Info().
		Str("file", file.Name).
		Str("size", humanize.Bytes(uint64(file.Size))).
		Str("api", api.BaseURL()).
		Msg("submitting video")

	return runWithMetrics(ctx, func(ctx context.Context) error {
		jobID, err := ctrl.Submit(ctx, opts)
		if err != nil {
			if j := ctrl.Job(); j != nil {
				log.Info().Str("jobID", j.ID).Str("status", string(j.Status)).Msg("submission ended without results")
			}
			return err
		}
		fmt.Println(formatText(jobFinishedText, jobID, jobID))
		return nil
	})
}
