// Package results loads a job's detected inventory from the metadata store.
package results

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/twistyyb/insurefire/internal/apperr"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/storage"
)

const MsgFetchFailed = "Failed to fetch results"

// JobReader is the read side of the metadata store.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*storage.JobRecord, error)
	LatestJob(ctx context.Context) (*storage.JobRecord, error)
}

// Resolver looks up result sets by job id.
type Resolver struct {
	store JobReader
}

func NewResolver(store JobReader) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the results of jobID, or of the most recently created job
// when jobID is empty. It returns nil, nil when there is no such job or the
// job has no results yet.
func (r *Resolver) Resolve(ctx context.Context, jobID string) (inventory.ResultSet, error) {
	job, err := r.ResolveJob(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	return job.Results, nil
}

// ResolveJob is like Resolve but returns the job with its status.
func (r *Resolver) ResolveJob(ctx context.Context, jobID string) (*inventory.Job, error) {
	var (
		rec *storage.JobRecord
		err error
	)
	if jobID == "" {
		rec, err = r.store.LatestJob(ctx)
	} else {
		rec, err = r.store.GetJob(ctx, jobID)
	}
	if err != nil {
		e := apperr.New(apperr.KindFetch, "fetch-results", jobID, MsgFetchFailed, err)
		e.Log()
		return nil, e
	}
	if rec == nil {
		log.Debug().Str("jobID", jobID).Msg("no job found")
		return nil, nil
	}

	return &inventory.Job{
		ID:      rec.ID,
		Status:  inventory.StatusFromStored(rec.Status),
		Results: rec.Results,
	}, nil
}
