package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twistyyb/insurefire/internal/apperr"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/metrics"
	"github.com/twistyyb/insurefire/internal/processing"
)

// State is the voice assistant's interaction state.
type State string

const (
	StateInitializing State = "initializing"
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateError        State = "error"
)

// User-facing text.
const (
	MsgProcessingAudio = "Processing your audio..."
	MsgAudioError      = "Error processing audio. Please try again."
	MsgInitFailed      = "Failed to initialize voice assistant"
	MsgInitConnect     = "Error connecting to voice assistant"
	MsgMicrophone      = "Could not access microphone. Please check your audio device permissions."
	MsgExchangeFailed  = "Error communicating with the voice assistant. Please try again."
)

var (
	// ErrNotReady is returned when a control is used in a state that does
	// not allow it.
	ErrNotReady = errors.New("voice assistant is not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("voice assistant is closed")
)

// captureStopTimeout bounds how long StopRecording waits for the capture to
// flush its remaining chunks.
const captureStopTimeout = 5 * time.Second

type eventType int

const (
	evInitDone eventType = iota
	evStartRecording
	evStopRecording
	evExchangeDone
	evPlaybackDone
	evClose
)

// event is a message processed by the controller worker.
type event struct {
	typ   eventType
	reply chan error // set for synchronous requests

	greeting string
	voice    *processing.VoiceReply
	err      error
	turn     int
	started  time.Time
}

// recordingSession accumulates chunks from an open capture.
type recordingSession struct {
	capture   Capture
	mu        sync.Mutex
	chunks    [][]byte
	collected chan struct{}
}

func newRecordingSession(capture Capture) *recordingSession {
	s := &recordingSession{capture: capture, collected: make(chan struct{})}
	go s.collect()
	return s
}

func (s *recordingSession) collect() {
	defer close(s.collected)
	for chunk := range s.capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.mu.Lock()
		s.chunks = append(s.chunks, chunk)
		s.mu.Unlock()
	}
}

// finish releases the capture device and returns everything recorded.
func (s *recordingSession) finish() ([]byte, error) {
	err := s.capture.Stop()
	select {
	case <-s.collected:
	case <-time.After(captureStopTimeout):
		log.Warn().Msg("audio capture did not flush after stop")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	audio := bytes.Join(s.chunks, nil)
	s.chunks = nil
	return audio, err
}

// Controller runs a voice conversation about one job's results. State
// changes happen on a single worker goroutine; network calls and playback run
// separately and report back through the worker inbox.
type Controller struct {
	api      API
	recorder Recorder
	player   Player
	jobID    string

	totalValue float64
	itemCount  int

	inbox     chan event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu           sync.Mutex
	state        State
	conversation Conversation
	err          error
	changed      chan struct{}

	// Owned by the worker goroutine
	session      *recordingSession
	stopPlayback context.CancelFunc
}

// New creates a controller for jobID and starts initializing the remote
// voice session. player may be nil to skip speech playback.
func New(api API, recorder Recorder, player Player, jobID string, results inventory.ResultSet) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:        api,
		recorder:   recorder,
		player:     player,
		jobID:      jobID,
		totalValue: results.TotalValue(),
		itemCount:  results.ItemCount(),
		inbox:      make(chan event, 16),
		ctx:        ctx,
		cancel:     cancel,
		state:      StateInitializing,
		changed:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.runWorker()
	go c.initialize()

	return c
}

// --- Thread-safe accessors ---

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conversation returns a copy of the turns so far.
func (c *Controller) Conversation() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation.Turns()
}

// Err returns the most recent error shown to the user, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CanRecord reports whether the record control is enabled.
func (c *Controller) CanRecord() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateIdle || c.state == StateRecording
}

// TotalValue is the summed estimated value of the job's items.
func (c *Controller) TotalValue() float64 {
	return c.totalValue
}

// ItemCount is the number of items in the job's results.
func (c *Controller) ItemCount() int {
	return c.itemCount
}

// JobID returns the job the conversation is about.
func (c *Controller) JobID() string {
	return c.jobID
}

// WaitFor blocks until the controller is in one of states or ctx is done.
func (c *Controller) WaitFor(ctx context.Context, states ...State) (State, error) {
	for {
		c.mu.Lock()
		current := c.state
		changed := c.changed
		c.mu.Unlock()

		for _, s := range states {
			if current == s {
				return current, nil
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return current, ctx.Err()
		}
	}
}

// --- Controls ---

// StartRecording opens the capture device. It only has an effect when idle.
func (c *Controller) StartRecording() error {
	return c.request(evStartRecording)
}

// StopRecording releases the capture device and sends the recording to the
// assistant. It only has an effect while recording.
func (c *Controller) StopRecording() error {
	return c.request(evStopRecording)
}

// Close releases the capture device, stops playback, cancels in-flight
// requests and stops the worker.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		_ = c.request(evClose)
		c.cancel()
		c.wg.Wait()
	})
}

// --- Worker ---

func (c *Controller) post(ev event) bool {
	select {
	case c.inbox <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// request queues an event and waits for the worker to handle it.
func (c *Controller) request(typ eventType) error {
	ev := event{typ: typ, reply: make(chan error, 1)}
	if !c.post(ev) {
		return ErrClosed
	}
	select {
	case err := <-ev.reply:
		return err
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Controller) runWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			// Drain any remaining events and signal completion
			for {
				select {
				case ev := <-c.inbox:
					if ev.reply != nil {
						ev.reply <- ErrClosed
					}
				default:
					return
				}
			}
		case ev := <-c.inbox:
			c.processEvent(ev)
		}
	}
}

func (c *Controller) processEvent(ev event) {
	var err error
	defer func() {
		// Recover from any panics to keep the worker running
		if r := recover(); r != nil {
			log.Error().
				Str("jobID", c.jobID).
				Interface("panic", r).
				Msg("recovered from panic in voice worker")
			err = fmt.Errorf("voice worker panic: %v", r)
		}
		if ev.reply != nil {
			ev.reply <- err
		}
	}()

	switch ev.typ {
	case evInitDone:
		c.handleInitDone(ev)
	case evStartRecording:
		err = c.handleStartRecording()
	case evStopRecording:
		err = c.handleStopRecording()
	case evExchangeDone:
		c.handleExchangeDone(ev)
	case evPlaybackDone:
		c.handlePlaybackDone(ev)
	case evClose:
		c.handleClose()
	}
}

// update mutates state under the lock and wakes WaitFor callers.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) initialize() {
	greeting, err := c.api.InitializeVoice(c.ctx, c.jobID)
	c.post(event{typ: evInitDone, greeting: greeting, err: err})
}

func (c *Controller) handleInitDone(ev event) {
	if ev.err != nil {
		msg := MsgInitConnect
		var statusErr *processing.StatusError
		if errors.As(ev.err, &statusErr) {
			msg = MsgInitFailed
		}
		e := apperr.New(apperr.KindInitialization, "voice-initialize", c.jobID, msg, ev.err)
		e.Log()
		c.update(func() {
			c.state = StateError
			c.err = e
		})
		return
	}

	log.Info().Str("jobID", c.jobID).Msg("voice assistant initialized")
	c.update(func() {
		c.conversation.Append(Turn{Role: RoleAssistant, Content: ev.greeting})
		c.state = StateIdle
	})
}

func (c *Controller) handleStartRecording() error {
	if c.State() != StateIdle {
		return ErrNotReady
	}

	capture, err := c.recorder.Open(c.ctx)
	if err != nil {
		e := apperr.New(apperr.KindMicrophoneAccess, "voice-record", c.jobID, MsgMicrophone, err)
		e.Log()
		c.update(func() { c.err = e })
		return e
	}

	c.session = newRecordingSession(capture)
	c.update(func() {
		c.state = StateRecording
		c.err = nil
	})
	log.Debug().Str("jobID", c.jobID).Msg("recording started")
	return nil
}

func (c *Controller) handleStopRecording() error {
	if c.State() != StateRecording || c.session == nil {
		return ErrNotReady
	}

	session := c.session
	c.session = nil
	audio, err := session.finish()
	if err != nil {
		log.Warn().Err(err).Str("jobID", c.jobID).Msg("failed to stop audio capture cleanly")
	}
	mimeType := session.capture.MIMEType()

	var turn int
	c.update(func() {
		turn = c.conversation.Append(Turn{Role: RoleUser, Content: MsgProcessingAudio, Pending: true})
		c.state = StateThinking
	})
	log.Debug().Str("jobID", c.jobID).Int("bytes", len(audio)).Msg("recording stopped")

	go c.exchange(turn, audio, mimeType)
	return nil
}

func (c *Controller) exchange(turn int, audio []byte, mimeType string) {
	started := time.Now()
	reply, err := c.api.ProcessVoice(c.ctx, c.jobID, audio, mimeType)
	c.post(event{typ: evExchangeDone, voice: reply, err: err, turn: turn, started: started})
}

func (c *Controller) handleExchangeDone(ev event) {
	elapsed := time.Since(ev.started).Seconds()

	if ev.err != nil {
		msg := MsgExchangeFailed
		var statusErr *processing.StatusError
		if errors.As(ev.err, &statusErr) {
			msg = MsgAudioError
		}
		e := apperr.New(apperr.KindExchange, "voice-process", c.jobID, msg, ev.err)
		e.Log()
		metrics.ObserveVoiceExchange(metrics.ResultFailure, elapsed)
		c.update(func() {
			c.resolveTurn(ev.turn, MsgAudioError)
			c.err = e
			c.state = StateIdle
		})
		return
	}

	metrics.ObserveVoiceExchange(metrics.ResultSuccess, elapsed)
	speech := ev.voice.Speech
	speak := speech != nil && len(speech.Data) > 0 && c.player != nil
	c.update(func() {
		c.resolveTurn(ev.turn, ev.voice.Transcription)
		c.conversation.Append(Turn{Role: RoleAssistant, Content: ev.voice.Response})
		if speak {
			c.state = StateSpeaking
		} else {
			c.state = StateIdle
		}
	})

	if speak {
		ctx, cancel := context.WithCancel(c.ctx)
		c.stopPlayback = cancel
		go func() {
			err := c.player.Play(ctx, speech)
			cancel()
			c.post(event{typ: evPlaybackDone, err: err})
		}()
	}
}

// resolveTurn must be called inside update.
func (c *Controller) resolveTurn(index int, content string) {
	if err := c.conversation.Resolve(index, content); err != nil {
		log.Error().Err(err).Str("jobID", c.jobID).Msg("failed to resolve turn")
	}
}

func (c *Controller) handlePlaybackDone(ev event) {
	c.stopPlayback = nil
	if ev.err != nil && !errors.Is(ev.err, context.Canceled) {
		log.Warn().Err(ev.err).Str("jobID", c.jobID).Msg("speech playback failed")
	}
	if c.State() == StateSpeaking {
		c.update(func() { c.state = StateIdle })
	}
}

func (c *Controller) handleClose() {
	if c.session != nil {
		if _, err := c.session.finish(); err != nil {
			log.Warn().Err(err).Str("jobID", c.jobID).Msg("failed to stop audio capture")
		}
		c.session = nil
	}
	if c.stopPlayback != nil {
		c.stopPlayback()
		c.stopPlayback = nil
	}
}
