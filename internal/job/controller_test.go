package job

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twistyyb/insurefire/internal/apperr"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/processing"
	"github.com/twistyyb/insurefire/internal/storage"
	"github.com/twistyyb/insurefire/internal/upload"
)

type uploaderMock struct {
	mock.Mock
}

func (m *uploaderMock) Upload(ctx context.Context, file *upload.File, jobID, dataType string) (*upload.Record, error) {
	args := m.Called(ctx, file, jobID, dataType)
	record, _ := args.Get(0).(*upload.Record)
	return record, args.Error(1)
}

type pollerMock struct {
	mock.Mock
}

func (m *pollerMock) Activate(jobID string) { m.Called(jobID) }
func (m *pollerMock) Deactivate()          { m.Called() }

type recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []State
	for _, s := range r.snapshots {
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	}
	return states
}

func (r *recorder) progressAt(state State) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var values []int
	for _, s := range r.snapshots {
		if s.State == state {
			values = append(values, s.Progress)
		}
	}
	return values
}

func videoFile() *upload.File {
	return &upload.File{Name: "tour.mp4", Size: 4, MIMEType: "video/mp4", Content: strings.NewReader("data")}
}

func uploadRecord(jobID string) *upload.Record {
	return &upload.Record{
		StoragePath: "videos/1-abcdefg-tour.mp4",
		PublicURL:   "https://cdn.example.com/videos/1-abcdefg-tour.mp4",
		JobID:       jobID,
	}
}

func TestSubmit_NoFile(t *testing.T) {
	api := &processing.MockAPI{}
	up := &uploaderMock{}
	c := NewController(api, up, nil, Config{})

	jobID, err := c.Submit(context.Background(), Options{})
	assert.Empty(t, jobID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, MsgSelectVideoFirst, apperr.UserMessage(err))

	assert.Empty(t, api.Calls)
	up.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Job())
}

func TestSelect_RejectsNonVideo(t *testing.T) {
	c := NewController(&processing.MockAPI{}, &uploaderMock{}, nil, Config{})

	require.NoError(t, c.Select(videoFile()))
	err := c.Select(&upload.File{Name: "notes.txt", MIMEType: "text/plain"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, MsgSelectVideo, apperr.UserMessage(err))
	assert.Equal(t, "tour.mp4", c.Snapshot().FileName)

	c.Deselect()
	assert.Empty(t, c.Snapshot().FileName)
	assert.Nil(t, c.Snapshot().Err)
}

func TestSubmit_CreationFailure(t *testing.T) {
	api := &processing.MockAPI{
		CreateJobFunc: func(ctx context.Context) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	up := &uploaderMock{}
	rec := &recorder{}
	c := NewController(api, up, nil, Config{OnChange: rec.record})
	require.NoError(t, c.Select(videoFile()))

	_, err := c.Submit(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindJobCreation))

	snap := c.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, err, snap.Err)
	up.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, api.CallCount("ProcessVideo"))
	assert.Equal(t, []State{StateIdle, StateCreating, StateFailed}, rec.states())
}

func TestSubmit_Success(t *testing.T) {
	api := &processing.MockAPI{
		CreateJobFunc: func(ctx context.Context) (string, error) { return "job-42", nil },
	}
	file := videoFile()
	up := &uploaderMock{}
	up.On("Upload", mock.Anything, file, "job-42", "videos").Return(uploadRecord("job-42"), nil)
	rec := &recorder{}
	c := NewController(api, up, nil, Config{OnChange: rec.record})
	require.NoError(t, c.Select(file))

	jobID, err := c.Submit(context.Background(), Options{DataType: "videos"})
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)

	snap := c.Snapshot()
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, ProgressComplete, snap.Progress)
	assert.False(t, snap.ProcessingActive)
	assert.Equal(t, "job-42", snap.JobID)
	assert.Equal(t, &inventory.Job{ID: "job-42", Status: inventory.JobComplete}, c.Job())

	assert.Equal(t, []State{StateIdle, StateCreating, StateUploading, StateTriggering, StateProcessing, StateComplete}, rec.states())
	assert.Equal(t, []int{ProgressUploadStarted}, rec.progressAt(StateUploading))
	assert.Equal(t, []int{ProgressUploaded}, rec.progressAt(StateTriggering))

	calls := api.CallsFor("ProcessVideo")
	require.Len(t, calls, 1)
	assert.Equal(t, processing.ProcessVideoRequest{
		FileURL:     "https://cdn.example.com/videos/1-abcdefg-tour.mp4",
		JobID:       "job-42",
		ShowDisplay: false,
	}, calls[0].Args[0])
	up.AssertExpectations(t)
}

func TestSubmit_UploadFailure(t *testing.T) {
	api := &processing.MockAPI{}
	up := &uploaderMock{}
	up.On("Upload", mock.Anything, mock.Anything, "mock-job-id", "").Return(nil, errors.New("disk full"))
	c := NewController(api, up, nil, Config{})
	require.NoError(t, c.Select(videoFile()))

	_, err := c.Submit(context.Background(), Options{})
	assert.True(t, apperr.Is(err, apperr.KindUpload))

	snap := c.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ProgressUploadStarted, snap.Progress)
	assert.Equal(t, 0, api.CallCount("ProcessVideo"))
}

func TestSubmit_WithDisplay(t *testing.T) {
	var c *Controller
	var activeDuringProcessing bool
	api := &processing.MockAPI{
		ProcessVideoFunc: func(ctx context.Context, body processing.ProcessVideoRequest) error {
			activeDuringProcessing = c.ProcessingActive()
			assert.Equal(t, StateProcessing, c.State())
			return nil
		},
	}
	up := &uploaderMock{}
	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(uploadRecord("mock-job-id"), nil)
	poller := &pollerMock{}
	poller.On("Activate", "mock-job-id").Once()
	poller.On("Deactivate").Once()

	c = NewController(api, up, poller, Config{SettleDelay: 20 * time.Millisecond})
	require.NoError(t, c.Select(videoFile()))

	start := time.Now()
	jobID, err := c.Submit(context.Background(), Options{ShowDisplay: true})
	require.NoError(t, err)
	assert.Equal(t, "mock-job-id", jobID)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.True(t, activeDuringProcessing)
	assert.False(t, c.ProcessingActive())
	poller.AssertExpectations(t)

	calls := api.CallsFor("ProcessVideo")
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Args[0].(processing.ProcessVideoRequest).ShowDisplay)
}

func TestSubmit_SettleKeepsPollerRunning(t *testing.T) {
	api := &processing.MockAPI{}
	up := &uploaderMock{}
	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(uploadRecord("mock-job-id"), nil)

	var mu sync.Mutex
	var deactivatedAt time.Time
	var completedAt time.Time
	poller := &pollerMock{}
	poller.On("Activate", mock.Anything)
	poller.On("Deactivate").Run(func(mock.Arguments) {
		mu.Lock()
		deactivatedAt = time.Now()
		mu.Unlock()
	})

	c := NewController(api, up, poller, Config{
		SettleDelay: 30 * time.Millisecond,
		OnChange: func(s Snapshot) {
			if s.State == StateComplete && completedAt.IsZero() {
				completedAt = time.Now()
			}
		},
	})
	require.NoError(t, c.Select(videoFile()))

	_, err := c.Submit(context.Background(), Options{ShowDisplay: true})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, deactivatedAt.Sub(completedAt), 30*time.Millisecond)
}

func TestSubmit_TriggerFailure(t *testing.T) {
	api := &processing.MockAPI{
		ProcessVideoFunc: func(ctx context.Context, body processing.ProcessVideoRequest) error {
			return errors.New("request failed: POST /api/process-video (status: 500)")
		},
	}
	up := &uploaderMock{}
	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(uploadRecord("mock-job-id"), nil)
	poller := &pollerMock{}
	poller.On("Activate", "mock-job-id")
	poller.On("Deactivate")

	c := NewController(api, up, poller, Config{})
	require.NoError(t, c.Select(videoFile()))

	_, err := c.Submit(context.Background(), Options{ShowDisplay: true})
	assert.True(t, apperr.Is(err, apperr.KindProcessingTrigger))
	assert.Equal(t, MsgProcessingFailed, apperr.UserMessage(err))

	snap := c.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ProgressUploaded, snap.Progress)
	assert.False(t, snap.ProcessingActive)
	poller.AssertCalled(t, "Deactivate")
}

func TestSubmit_RetryAfterTriggerFailureUploadsFullFile(t *testing.T) {
	attempts := 0
	api := &processing.MockAPI{
		ProcessVideoFunc: func(ctx context.Context, body processing.ProcessVideoRequest) error {
			attempts++
			if attempts == 1 {
				return errors.New("request failed: POST /api/process-video (status: 502)")
			}
			return nil
		},
	}
	objects := storage.NewMemoryObjectStore("")
	c := NewController(api, upload.NewChannel(objects, nil, ""), nil, Config{})
	require.NoError(t, c.Select(&upload.File{
		Name:     "tour.mp4",
		Size:     10,
		MIMEType: "video/mp4",
		Content:  bytes.NewReader([]byte("0123456789")),
	}))

	_, err := c.Submit(context.Background(), Options{})
	assert.True(t, apperr.Is(err, apperr.KindProcessingTrigger))
	assert.Equal(t, "tour.mp4", c.Snapshot().FileName)

	jobID, err := c.Submit(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "mock-job-id", jobID)

	snap := c.Snapshot()
	require.NotNil(t, snap.Upload)
	obj, ok := objects.Get(snap.Upload.StoragePath)
	require.True(t, ok)
	assert.Equal(t, []byte("0123456789"), obj.Data)
	assert.Equal(t, 2, objects.Len())
}

func TestSubmit_OneShotReaderMustBeReselected(t *testing.T) {
	api := &processing.MockAPI{
		ProcessVideoFunc: func(ctx context.Context, body processing.ProcessVideoRequest) error {
			return errors.New("request failed: POST /api/process-video (status: 502)")
		},
	}
	objects := storage.NewMemoryObjectStore("")
	c := NewController(api, upload.NewChannel(objects, nil, ""), nil, Config{})
	require.NoError(t, c.Select(&upload.File{
		Name:     "tour.mp4",
		Size:     4,
		MIMEType: "video/mp4",
		Content:  io.MultiReader(strings.NewReader("data")),
	}))

	_, err := c.Submit(context.Background(), Options{})
	assert.True(t, apperr.Is(err, apperr.KindProcessingTrigger))
	assert.Empty(t, c.Snapshot().FileName)

	_, err = c.Submit(context.Background(), Options{})
	assert.Equal(t, MsgSelectVideoFirst, apperr.UserMessage(err))
	assert.Equal(t, 1, objects.Len())
}

func TestSubmit_RejectsConcurrentSubmit(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &processing.MockAPI{
		CreateJobFunc: func(ctx context.Context) (string, error) {
			close(entered)
			<-release
			return "", errors.New("stop")
		},
	}
	c := NewController(api, &uploaderMock{}, nil, Config{})
	require.NoError(t, c.Select(videoFile()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Submit(context.Background(), Options{})
	}()
	<-entered

	_, err := c.Submit(context.Background(), Options{})
	assert.Equal(t, MsgSubmissionInProgress, apperr.UserMessage(err))
	assert.Error(t, c.Select(videoFile()))

	close(release)
	<-done
	assert.Equal(t, 1, api.CallCount("CreateJob"))
}

func TestSubmit_SettleCutShortByContext(t *testing.T) {
	api := &processing.MockAPI{}
	up := &uploaderMock{}
	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(uploadRecord("mock-job-id"), nil)
	c := NewController(api, up, nil, Config{SettleDelay: time.Hour})
	require.NoError(t, c.Select(videoFile()))

	ctx, cancel := context.WithCancel(context.Background())
	c.onChange = func(s Snapshot) {
		if s.State == StateComplete {
			cancel()
		}
	}

	jobID, err := c.Submit(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, "mock-job-id", jobID)
}

func TestState_JobStatus(t *testing.T) {
	assert.Equal(t, inventory.JobProcessing, StateTriggering.JobStatus())
	assert.Equal(t, inventory.JobFailed, StateFailed.JobStatus())
	assert.True(t, StateComplete.Terminal())
	assert.False(t, StateProcessing.Terminal())
}
