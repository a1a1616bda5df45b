package inventory

// JobStatus is the client-side view of a job's lifecycle.
type JobStatus string

const (
	JobCreated    JobStatus = "created"
	JobUploading  JobStatus = "uploading"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobFailed     JobStatus = "failed"
)

// Status strings written by the analysis backend to the job table.
const (
	StoredPending    = "pending"
	StoredProcessing = "processing"
	StoredCompleted  = "completed"
	StoredFailed     = "failed"
)

// Job is a unit of remote processing. Results are nil until complete.
type Job struct {
	ID      string
	Status  JobStatus
	Results ResultSet
}

// StatusFromStored maps a stored status string to a JobStatus.
func StatusFromStored(s string) JobStatus {
	switch s {
	case StoredPending, string(JobCreated):
		return JobCreated
	case StoredProcessing:
		return JobProcessing
	case StoredCompleted, string(JobComplete):
		return JobComplete
	case StoredFailed:
		return JobFailed
	case string(JobUploading):
		return JobUploading
	}
	return JobCreated
}
