package processing

import (
	"context"
	"sync"
)

// MockAPI is a test double for API.
// Each method can be overridden with a custom function.
// If not overridden, methods return sensible defaults.
// Thread-safe for use in concurrent tests.
type MockAPI struct {
	CreateJobFunc       func(ctx context.Context) (string, error)
	ProcessVideoFunc    func(ctx context.Context, body ProcessVideoRequest) error
	LatestFrameFunc     func(ctx context.Context, jobID string) (*Frame, error)
	InitializeVoiceFunc func(ctx context.Context, jobID string) (string, error)
	ProcessVoiceFunc    func(ctx context.Context, jobID string, audio []byte, mimeType string) (*VoiceReply, error)

	mu sync.Mutex

	// Calls tracks all method invocations for assertions
	Calls []MockCall
}

// MockCall records a method call for test assertions.
type MockCall struct {
	Method string
	Args   []any
}

// Ensure MockAPI implements API
var _ API = (*MockAPI)(nil)

func (m *MockAPI) CreateJob(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "CreateJob"})
	fn := m.CreateJobFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return "mock-job-id", nil
}

func (m *MockAPI) ProcessVideo(ctx context.Context, body ProcessVideoRequest) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "ProcessVideo", Args: []any{body}})
	fn := m.ProcessVideoFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, body)
	}
	return nil
}

func (m *MockAPI) LatestFrame(ctx context.Context, jobID string) (*Frame, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "LatestFrame", Args: []any{jobID}})
	fn := m.LatestFrameFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, jobID)
	}
	return &Frame{Data: []byte("mock-frame"), ContentType: "image/jpeg"}, nil
}

func (m *MockAPI) InitializeVoice(ctx context.Context, jobID string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "InitializeVoice", Args: []any{jobID}})
	fn := m.InitializeVoiceFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, jobID)
	}
	return "Hi, I'm Embers.", nil
}

func (m *MockAPI) ProcessVoice(ctx context.Context, jobID string, audio []byte, mimeType string) (*VoiceReply, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "ProcessVoice", Args: []any{jobID, len(audio), mimeType}})
	fn := m.ProcessVoiceFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, jobID, audio, mimeType)
	}
	return &VoiceReply{Transcription: "mock transcription", Response: "mock response"}, nil
}

// CallCount returns how many times method was called.
func (m *MockAPI) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CallsFor returns the recorded calls for method.
func (m *MockAPI) CallsFor(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, c := range m.Calls {
		if c.Method == method {
			calls = append(calls, c)
		}
	}
	return calls
}
