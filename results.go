package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/results"
)

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results [job-id]",
		Short: "Show the items detected for a job (the latest job by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobID string
			if len(args) == 1 {
				jobID = args[0]
			}
			return runResults(cmd.Context(), jobID)
		},
	}
}

func runResults(ctx context.Context, jobID string) error {
	metadata, err := openMetadataStore(ctx, configFrom(ctx))
	if err != nil {
		return err
	}
	defer metadata.Close()

	j, err := results.NewResolver(metadata).ResolveJob(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Println(describeJob(j))
	return nil
}

func describeJob(j *inventory.Job) string {
	switch {
	case j == nil:
		return noJobText
	case j.Results == nil && j.Status != inventory.JobComplete:
		return fmt.Sprintf(jobPendingText, j.ID, j.Status)
	case j.Results.ItemCount() == 0:
		return noResultsText
	}
	return formatInventory(j.ID, j.Results)
}
