package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/twistyyb/insurefire/internal/apperr"
	"github.com/twistyyb/insurefire/internal/results"
	"github.com/twistyyb/insurefire/internal/voice"
)

type talkOptions struct {
	jobID     string
	speechDir string
	playCmd   string
}

func newTalkCmd() *cobra.Command {
	var opts talkOptions
	cmd := &cobra.Command{
		Use:   "talk <audio-file>...",
		Short: "Ask the voice assistant about a job's items using recorded questions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTalk(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.jobID, "job", "", "Job to talk about (defaults to the latest job)")
	cmd.Flags().StringVar(&opts.speechDir, "speech-dir", "", "Write spoken replies to this directory")
	cmd.Flags().StringVar(&opts.playCmd, "play-cmd", "", "Command used to play each spoken reply, e.g. \"mpv --no-video\"")
	return cmd
}

func runTalk(ctx context.Context, audioFiles []string, opts talkOptions) error {
	cfg := configFrom(ctx)

	metadata, err := openMetadataStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer metadata.Close()

	j, err := results.NewResolver(metadata).ResolveJob(ctx, opts.jobID)
	if err != nil {
		return err
	}
	if j == nil {
		return errors.New(noJobText)
	}

	var player voice.Player
	if opts.speechDir != "" || opts.playCmd != "" {
		dir := opts.speechDir
		if dir == "" {
			dir = "speech"
		}
		player = &voice.FilePlayer{Dir: dir, Command: strings.Fields(opts.playCmd)}
	}

	c := voice.New(newAPIClient(cfg), voice.NewFileRecorder(audioFiles...), player, j.ID, j.Results)
	defer c.Close()

	fmt.Println(formatTalkIntro(j.Results))

	return runWithMetrics(ctx, func(ctx context.Context) error {
		state, err := c.WaitFor(ctx, voice.StateIdle, voice.StateError)
		if err != nil {
			return err
		}
		if state == voice.StateError {
			return c.Err()
		}

		printed := printTurns(c.Conversation(), 0)
		for range audioFiles {
			if err := c.StartRecording(); err != nil {
				return err
			}
			if err := c.StopRecording(); err != nil {
				return err
			}
			if _, err := c.WaitFor(ctx, voice.StateIdle); err != nil {
				return err
			}
			printed = printTurns(c.Conversation(), printed)
			if err := c.Err(); err != nil {
				fmt.Println(apperr.UserMessage(err))
			}
		}
		return nil
	})
}

// printTurns prints turns from index from onwards and returns the new count.
func printTurns(turns []voice.Turn, from int) int {
	for _, t := range turns[from:] {
		fmt.Println(formatTurn(t))
	}
	return len(turns)
}
