package job

import "github.com/twistyyb/insurefire/internal/inventory"

// State is a step of the submission lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateCreating   State = "creating"
	StateUploading  State = "uploading"
	StateTriggering State = "triggering"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// User-facing messages.
const (
	MsgSelectVideo          = "Please select a video file"
	MsgSelectVideoFirst     = "Please select a video file first"
	MsgSubmissionInProgress = "A video is already being processed"
	MsgJobCreationFailed    = "Failed to create a processing job. Please try again."
	MsgProcessingFailed     = "Failed to start video processing. Please try again."
)

// JobStatus maps the controller state onto the job lifecycle.
func (s State) JobStatus() inventory.JobStatus {
	switch s {
	case StateCreating:
		return inventory.JobCreated
	case StateUploading:
		return inventory.JobUploading
	case StateTriggering, StateProcessing:
		return inventory.JobProcessing
	case StateComplete:
		return inventory.JobComplete
	case StateFailed:
		return inventory.JobFailed
	}
	return inventory.JobCreated
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}
