package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/job"
	"github.com/twistyyb/insurefire/internal/voice"
)

func TestFormatText(t *testing.T) {
	got := formatText(`
		Job %s complete.
		Next: %s`, "abc", "talk")
	assert.Equal(t, "Job abc complete.\nNext: talk", got)
}

func TestFormatSnapshot(t *testing.T) {
	tests := []struct {
		snap job.Snapshot
		want string
	}{
		{job.Snapshot{State: job.StateIdle}, ""},
		{job.Snapshot{State: job.StateCreating}, "Creating processing job..."},
		{job.Snapshot{State: job.StateUploading, Progress: 33, FileName: "room.mp4"}, "Uploading room.mp4 (33%)"},
		{job.Snapshot{State: job.StateUploading, Progress: 66, FileName: "room.mp4"}, "Uploaded room.mp4 (66%)"},
		{job.Snapshot{State: job.StateProcessing, JobID: "j1"}, "Processing video for job j1..."},
		{job.Snapshot{State: job.StateComplete, Progress: 100}, "Processing complete (100%)"},
		{job.Snapshot{State: job.StateFailed}, ""},
		{job.Snapshot{State: job.StateFailed, JobID: "j1", Progress: 66}, "Job j1 failed at 66%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSnapshot(tt.snap), "state %s", tt.snap.State)
	}
}

func TestFormatInventory(t *testing.T) {
	rs := inventory.ResultSet{
		"tv_1":    {Class: "tv", BestConfidence: 0.914, EstimatedName: "Samsung TV", EstimatedPrice: inventory.Price(1250)},
		"chair_2": {Class: "chair", BestConfidence: 0.5},
	}

	want := "Inventory for job j1\n" +
		"Items: 2\n" +
		"Total estimated value: $1,250.00\n" +
		"Unknown Item\n" +
		"  class: chair  confidence: 50%  price: N/A\n" +
		"Samsung TV\n" +
		"  class: tv  confidence: 91%  price: $1,250.00"
	assert.Equal(t, want, formatInventory("j1", rs))
}

func TestDescribeJob(t *testing.T) {
	assert.Equal(t, noJobText, describeJob(nil))
	assert.Equal(t, "Job j1 is processing, results are not available yet",
		describeJob(&inventory.Job{ID: "j1", Status: inventory.JobProcessing}))
	assert.Equal(t, noResultsText, describeJob(&inventory.Job{ID: "j1", Status: inventory.JobComplete}))
	assert.Contains(t, describeJob(&inventory.Job{
		ID:      "j1",
		Status:  inventory.JobComplete,
		Results: inventory.ResultSet{"a": {Class: "lamp"}},
	}), "Items: 1")
}

func TestFormatTurn(t *testing.T) {
	assert.Equal(t, "You: hello", formatTurn(voice.Turn{Role: voice.RoleUser, Content: "hello"}))
	assert.Equal(t, "Embers: hi", formatTurn(voice.Turn{Role: voice.RoleAssistant, Content: "hi"}))
}
