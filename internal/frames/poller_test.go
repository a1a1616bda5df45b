package frames

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twistyyb/insurefire/internal/processing"
)

const testInterval = 5 * time.Millisecond

// countingSink tracks installs and releases of in-memory samples.
type countingSink struct {
	mu       sync.Mutex
	installs int
	releases map[int]int
	live     int
	maxLive  int
}

func newCountingSink() *countingSink {
	return &countingSink{releases: make(map[int]int)}
}

func (s *countingSink) Install(jobID string, frame *processing.Frame) (*Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installs++
	id := s.installs
	s.live++
	if s.live > s.maxLive {
		s.maxLive = s.live
	}
	return NewSample(jobID, "", frame.ContentType, len(frame.Data), func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.releases[id]++
		s.live--
		return nil
	}), nil
}

func (s *countingSink) snapshot() (installs, live, maxLive int, releases map[int]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[int]int, len(s.releases))
	for k, v := range s.releases {
		copied[k] = v
	}
	return s.installs, s.live, s.maxLive, copied
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestPoller_FetchesWhileActive(t *testing.T) {
	api := &processing.MockAPI{}
	sink := newCountingSink()
	p := NewPoller(api, sink, Options{Interval: testInterval})

	p.Activate("job-1")
	waitFor(t, func() bool { return api.CallCount("LatestFrame") >= 3 })
	p.Deactivate()

	installs, live, maxLive, releases := sink.snapshot()
	assert.GreaterOrEqual(t, installs, 3)
	assert.Equal(t, 0, live)
	assert.Equal(t, 1, maxLive)
	for id := 1; id <= installs; id++ {
		assert.Equal(t, 1, releases[id], "sample %d released exactly once", id)
	}
	assert.Nil(t, p.Current())

	for _, call := range api.CallsFor("LatestFrame") {
		assert.Equal(t, "job-1", call.Args[0])
	}
}

func TestPoller_NoFetchAfterDeactivate(t *testing.T) {
	api := &processing.MockAPI{}
	p := NewPoller(api, newCountingSink(), Options{Interval: testInterval})

	p.Activate("job-1")
	waitFor(t, func() bool { return api.CallCount("LatestFrame") >= 1 })
	p.Deactivate()

	calls := api.CallCount("LatestFrame")
	time.Sleep(10 * testInterval)
	assert.Equal(t, calls, api.CallCount("LatestFrame"))
	assert.False(t, p.Active())
}

func TestPoller_Idempotent(t *testing.T) {
	api := &processing.MockAPI{}
	sink := newCountingSink()
	p := NewPoller(api, sink, Options{Interval: testInterval})

	p.Deactivate()
	p.Activate("job-1")
	p.Activate("job-1")
	p.Activate("job-2")
	assert.True(t, p.Active())

	waitFor(t, func() bool { return api.CallCount("LatestFrame") >= 2 })
	p.Deactivate()
	p.Deactivate()

	for _, call := range api.CallsFor("LatestFrame") {
		assert.Equal(t, "job-1", call.Args[0])
	}
	_, live, _, releases := sink.snapshot()
	assert.Equal(t, 0, live)
	for id, n := range releases {
		assert.Equal(t, 1, n, "sample %d released exactly once", id)
	}
}

func TestPoller_GateSkipsFetch(t *testing.T) {
	api := &processing.MockAPI{}
	var open atomic.Bool
	var gateChecks atomic.Int32
	p := NewPoller(api, newCountingSink(), Options{
		Interval: testInterval,
		Gate: func() bool {
			gateChecks.Add(1)
			return open.Load()
		},
	})
	defer p.Deactivate()

	p.Activate("job-1")
	waitFor(t, func() bool { return gateChecks.Load() >= 3 })
	assert.Equal(t, 0, api.CallCount("LatestFrame"))

	open.Store(true)
	waitFor(t, func() bool { return api.CallCount("LatestFrame") >= 1 })
}

func TestPoller_FetchErrorsAreSkipped(t *testing.T) {
	var calls atomic.Int32
	api := &processing.MockAPI{
		LatestFrameFunc: func(ctx context.Context, jobID string) (*processing.Frame, error) {
			n := calls.Add(1)
			if n%2 == 1 {
				return nil, errors.New("backend unavailable")
			}
			return &processing.Frame{Data: []byte("f"), ContentType: "image/jpeg"}, nil
		},
	}
	sink := newCountingSink()
	var frames atomic.Int32
	p := NewPoller(api, sink, Options{
		Interval: testInterval,
		OnFrame:  func(*Sample) { frames.Add(1) },
	})

	p.Activate("job-1")
	waitFor(t, func() bool { return frames.Load() >= 2 })
	p.Deactivate()

	installs, live, _, _ := sink.snapshot()
	assert.Equal(t, int(frames.Load()), installs)
	assert.Equal(t, 0, live)
}

func TestPoller_InFlightFetchDuringDeactivate(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	api := &processing.MockAPI{
		LatestFrameFunc: func(ctx context.Context, jobID string) (*processing.Frame, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return &processing.Frame{Data: []byte("late"), ContentType: "image/jpeg"}, nil
		},
	}
	sink := newCountingSink()
	p := NewPoller(api, sink, Options{Interval: testInterval})

	p.Activate("job-1")
	<-started
	p.Deactivate()

	installs, live, _, _ := sink.snapshot()
	assert.Equal(t, 0, installs)
	assert.Equal(t, 0, live)
	assert.Nil(t, p.Current())
}

func TestFileSink(t *testing.T) {
	sink := &FileSink{Dir: t.TempDir()}

	sample, err := sink.Install("job-1", &processing.Frame{Data: []byte("png-data"), ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, ".png", sample.Path[len(sample.Path)-4:])

	data, err := os.ReadFile(sample.Path)
	require.NoError(t, err)
	assert.Equal(t, "png-data", string(data))

	require.NoError(t, sample.Release())
	require.NoError(t, sample.Release())
	_, err = os.Stat(sample.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestSample_ReleaseNil(t *testing.T) {
	var s *Sample
	assert.NoError(t, s.Release())
}
