package frames

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twistyyb/insurefire/internal/metrics"
	"github.com/twistyyb/insurefire/internal/processing"
)

// DefaultInterval is the time between latest-frame requests.
const DefaultInterval = time.Second

// Fetcher retrieves the newest frame for a job.
type Fetcher interface {
	LatestFrame(ctx context.Context, jobID string) (*processing.Frame, error)
}

type Options struct {
	// Interval between fetches. Defaults to DefaultInterval.
	Interval time.Duration
	// Gate is consulted on every tick; fetching only happens while it
	// returns true. A nil Gate always allows fetching.
	Gate func() bool
	// OnFrame is called after a new sample has been installed.
	OnFrame func(*Sample)
}

// Poller periodically fetches the latest visualization frame of a job while
// it is being processed. At most one sample is live at a time.
type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	gate     func() bool
	onFrame  func(*Sample)

	// lifecycle serializes Activate and Deactivate
	lifecycle sync.Mutex

	mu      sync.Mutex
	jobID   string
	cancel  context.CancelFunc
	done    chan struct{}
	current *Sample
}

// NewPoller creates an inactive poller.
func NewPoller(fetcher Fetcher, sink Sink, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		sink:     sink,
		interval: interval,
		gate:     opts.Gate,
		onFrame:  opts.OnFrame,
	}
}

// Activate starts polling for jobID. Calling it while already active does
// nothing.
func (p *Poller) Activate(jobID string) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		if p.jobID != jobID {
			log.Warn().Str("jobID", jobID).Str("activeJobID", p.jobID).Msg("frame poller already active for another job")
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.jobID = jobID
	p.cancel = cancel
	p.done = make(chan struct{})

	log.Debug().Str("jobID", jobID).Dur("interval", p.interval).Msg("frame poller activated")
	go p.run(ctx, jobID, p.done)
}

// Deactivate stops polling, waits for any in-flight tick to finish and
// releases the current sample. Calling it while inactive does nothing.
func (p *Poller) Deactivate() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	cancel, done, jobID := p.cancel, p.done, p.jobID
	p.cancel = nil
	p.done = nil
	p.jobID = ""
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	current := p.current
	p.current = nil
	p.mu.Unlock()

	if err := current.Release(); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("failed to release frame")
	}
	log.Debug().Str("jobID", jobID).Msg("frame poller deactivated")
}

// Active reports whether the poller is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Current returns the live sample, or nil.
func (p *Poller) Current() *Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Poller) run(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, jobID)
		}
	}
}

// poll performs one fetch. Failures are logged and the tick is skipped.
func (p *Poller) poll(ctx context.Context, jobID string) {
	if p.gate != nil && !p.gate() {
		metrics.IncFrameFetches(metrics.ResultSkipped)
		return
	}

	frame, err := p.fetcher.LatestFrame(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, processing.ErrNoFrame) {
			log.Debug().Str("jobID", jobID).Msg("no frame available yet")
		} else {
			log.Warn().Err(err).Str("jobID", jobID).Msg("failed to fetch latest frame")
		}
		metrics.IncFrameFetches(metrics.ResultFailure)
		return
	}
	if ctx.Err() != nil {
		return
	}

	// Release the previous frame before installing the next one
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()
	if err := prev.Release(); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("failed to release frame")
	}

	sample, err := p.sink.Install(jobID, frame)
	if err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("failed to install frame")
		metrics.IncFrameFetches(metrics.ResultFailure)
		return
	}

	p.mu.Lock()
	p.current = sample
	p.mu.Unlock()

	metrics.IncFrameFetches(metrics.ResultSuccess)
	if p.onFrame != nil {
		p.onFrame(sample)
	}
}
