package job

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twistyyb/insurefire/internal/apperr"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/metrics"
	"github.com/twistyyb/insurefire/internal/processing"
	"github.com/twistyyb/insurefire/internal/upload"
)

// DefaultSettleDelay is how long a completed job stays on screen before the
// controller hands the job id back.
const DefaultSettleDelay = 1500 * time.Millisecond

// Progress milestones.
const (
	ProgressUploadStarted = 33
	ProgressUploaded      = 66
	ProgressComplete      = 100
)

// API is the part of the backend the controller drives.
type API interface {
	CreateJob(ctx context.Context) (string, error)
	ProcessVideo(ctx context.Context, body processing.ProcessVideoRequest) error
}

// Uploader stores the selected file for a job.
type Uploader interface {
	Upload(ctx context.Context, file *upload.File, jobID, dataType string) (*upload.Record, error)
}

// FramePoller shows live frames while a job is processing.
type FramePoller interface {
	Activate(jobID string)
	Deactivate()
}

// Options are per-submission settings.
type Options struct {
	// ShowDisplay asks the backend to render visualization frames and
	// enables live frame polling.
	ShowDisplay bool
	// DataType is the storage category for the upload.
	DataType string
}

// Config configures a Controller.
type Config struct {
	SettleDelay time.Duration
	// OnChange receives a snapshot after every state change.
	OnChange func(Snapshot)
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State            State
	Progress         int
	JobID            string
	Err              error
	ProcessingActive bool
	Upload           *upload.Record
	FileName         string
}

// Controller drives one video submission from file selection to a completed
// job. Submissions cannot be aborted once started.
type Controller struct {
	api         API
	uploader    Uploader
	poller      FramePoller
	settleDelay time.Duration
	onChange    func(Snapshot)

	mu               sync.Mutex
	state            State
	progress         int
	jobID            string
	err              error
	processingActive bool
	file             *upload.File
	record           *upload.Record
	running          bool
}

// NewController creates an idle controller. poller may be nil.
func NewController(api API, uploader Uploader, poller FramePoller, cfg Config) *Controller {
	settle := cfg.SettleDelay
	if settle < 0 {
		settle = 0
	}
	return &Controller{
		api:         api,
		uploader:    uploader,
		poller:      poller,
		settleDelay: settle,
		onChange:    cfg.OnChange,
		state:       StateIdle,
	}
}

// Select sets the file to submit. Only video files are accepted; on
// rejection the previous selection is kept.
func (c *Controller) Select(file *upload.File) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return apperr.Validation(MsgSubmissionInProgress)
	}
	if file == nil || !file.IsVideo() {
		c.err = apperr.Validation(MsgSelectVideo)
		err := c.err
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.file = file
	c.err = nil
	c.mu.Unlock()
	c.notify()
	return nil
}

// Deselect clears the selected file. It has no effect while a submission is
// running.
func (c *Controller) Deselect() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.file = nil
	c.err = nil
	c.mu.Unlock()
	c.notify()
}

// Submit creates a job, uploads the selected file, triggers processing and
// waits for it to finish. It returns the job id once the job is complete and
// the settle delay has passed.
//
// ctx only bounds the wait; cancelling it mid-flight does not abort the
// remote job.
func (c *Controller) Submit(ctx context.Context, opts Options) (string, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return "", apperr.Validation(MsgSubmissionInProgress)
	}
	file := c.file
	if file == nil {
		c.err = apperr.Validation(MsgSelectVideoFirst)
		err := c.err
		c.mu.Unlock()
		c.notify()
		return "", err
	}
	c.running = true
	c.err = nil
	c.jobID = ""
	c.record = nil
	c.progress = 0
	c.mu.Unlock()

	uploadStarted := false
	defer func() {
		c.mu.Lock()
		c.running = false
		// A one-shot reader is spent once uploaded; it has to be selected again
		if uploadStarted && !file.Rewindable() {
			c.file = nil
		}
		c.mu.Unlock()
	}()

	c.transition(StateCreating, -1)
	jobID, err := c.api.CreateJob(ctx)
	if err != nil {
		return "", c.fail(apperr.New(apperr.KindJobCreation, "create-job", "", MsgJobCreationFailed, err))
	}

	c.mu.Lock()
	c.jobID = jobID
	c.mu.Unlock()
	log.Info().Str("jobID", jobID).Str("file", file.Name).Msg("job created")

	c.transition(StateUploading, ProgressUploadStarted)
	uploadStarted = true
	record, err := c.uploader.Upload(ctx, file, jobID, opts.DataType)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUpload {
			err = apperr.New(apperr.KindUpload, "upload", jobID, upload.MsgUploadFailed, err)
		}
		return "", c.fail(err)
	}

	c.mu.Lock()
	c.record = record
	c.progress = ProgressUploaded
	c.processingActive = opts.ShowDisplay
	c.mu.Unlock()

	c.transition(StateTriggering, -1)
	if opts.ShowDisplay && c.poller != nil {
		c.poller.Activate(jobID)
	}

	// The backend answers once processing has finished, so the job is
	// processing for as long as the request is outstanding.
	c.transition(StateProcessing, -1)
	err = c.api.ProcessVideo(ctx, processing.ProcessVideoRequest{
		FileURL:     record.PublicURL,
		JobID:       jobID,
		ShowDisplay: opts.ShowDisplay,
	})
	if err != nil {
		c.stopDisplay()
		return "", c.fail(apperr.New(apperr.KindProcessingTrigger, "process-video", jobID, MsgProcessingFailed, err))
	}

	c.transition(StateComplete, ProgressComplete)
	log.Info().Str("jobID", jobID).Msg("job complete")

	c.settle(ctx)
	c.stopDisplay()

	return jobID, nil
}

// settle keeps the completed state visible for the settle delay.
func (c *Controller) settle(ctx context.Context) {
	if c.settleDelay == 0 {
		return
	}
	timer := time.NewTimer(c.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (c *Controller) stopDisplay() {
	if c.poller != nil {
		c.poller.Deactivate()
	}
	c.mu.Lock()
	changed := c.processingActive
	c.processingActive = false
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// transition moves to state and, when progress is not negative, sets the
// progress value.
func (c *Controller) transition(state State, progress int) {
	c.mu.Lock()
	c.state = state
	if progress >= 0 {
		c.progress = progress
	}
	jobID := c.jobID
	c.mu.Unlock()

	log.Debug().Str("jobID", jobID).Str("state", string(state)).Msg("job state changed")
	metrics.IncJobTransition(string(state))
	c.notify()
}

// fail records err, enters the failed state and returns err. Progress keeps
// its last value.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = StateFailed
	c.err = err
	c.mu.Unlock()

	if e, ok := err.(*apperr.Error); ok {
		e.Log()
	} else {
		log.Error().Err(err).Msg("job failed")
	}
	metrics.IncJobTransition(string(StateFailed))
	c.notify()
	return err
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange(c.Snapshot())
	}
}

// Snapshot returns the current controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:            c.state,
		Progress:         c.progress,
		JobID:            c.jobID,
		Err:              c.err,
		ProcessingActive: c.processingActive,
		Upload:           c.record,
	}
	if c.file != nil {
		s.FileName = c.file.Name
	}
	return s
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProcessingActive reports whether live frames should be fetched.
func (c *Controller) ProcessingActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processingActive
}

// Job returns the job being driven, or nil before one has been created.
func (c *Controller) Job() *inventory.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobID == "" {
		return nil
	}
	return &inventory.Job{ID: c.jobID, Status: c.state.JobStatus()}
}

// Close stops frame polling.
func (c *Controller) Close() {
	c.stopDisplay()
}
