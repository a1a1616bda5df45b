package processing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://localhost:8080"

	// DefaultMaxFrameSize is the largest frame accepted from the latest-frame endpoint (10MB).
	DefaultMaxFrameSize = 10 * 1024 * 1024

	// DefaultMaxSpeechSize caps speech audio fetched by URL (25MB).
	DefaultMaxSpeechSize = 25 * 1024 * 1024

	statusSuccess = "success"
	statusError   = "error"
)

// ErrNoFrame is returned when the backend has not produced a frame yet.
var ErrNoFrame = errors.New("no frame available")

// StatusError is returned when the backend answers with a non-success status
// in the response body.
type StatusError struct {
	Endpoint string
	Status   string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %q", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s returned status %q: %s", e.Endpoint, e.Status, e.Message)
}

// ProcessVideoRequest is the body of POST /api/process-video.
type ProcessVideoRequest struct {
	FileURL     string `json:"fileUrl"`
	JobID       string `json:"job_id"`
	ShowDisplay bool   `json:"show_display"`
}

// Frame is a rendered visualization frame.
type Frame struct {
	Data        []byte
	ContentType string
}

// Speech is synthesized reply audio.
type Speech struct {
	Data     []byte
	MIMEType string
}

// VoiceReply is the result of one voice exchange.
type VoiceReply struct {
	Transcription string
	Response      string
	Speech        *Speech
}

type createJobResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type voiceProcessRequest struct {
	JobID string `json:"job_id"`
	Audio string `json:"audio"`
}

type voiceProcessResponse struct {
	Status        string `json:"status"`
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
	Speech        string `json:"speech"`
	Error         string `json:"error"`
}

type ClientOpts struct {
	BaseURL string
	// Timeout applies to each request. Zero means no timeout.
	Timeout time.Duration
}

// Client talks to the remote analysis backend.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	maxFrame   int64
	maxSpeech  int64
}

var _ API = (*Client)(nil)

func NewClient(opts ClientOpts) *Client {
	c := Client{
		baseURL:   DefaultBaseURL,
		maxFrame:  DefaultMaxFrameSize,
		maxSpeech: DefaultMaxSpeechSize,
	}
	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	c.httpClient = resty.New().
		SetDebug(false).
		SetBaseURL(c.baseURL).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		c.httpClient.SetTimeout(opts.Timeout)
	}

	return &c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) req(ctx context.Context, result any) *resty.Request {
	request := c.httpClient.
		NewRequest().
		SetContext(ctx)

	if result != nil {
		request.SetResult(result)
	}

	return request
}

// CreateJob asks the backend for a new job id.
func (c *Client) CreateJob(ctx context.Context) (string, error) {
	result := &createJobResponse{}
	_, err := handleError(c.req(ctx, result).
		Post("/api/create-job"))
	if err != nil {
		return "", err
	}
	if result.JobID == "" {
		return "", errors.New("create-job response did not contain a job id")
	}
	return result.JobID, nil
}

// ProcessVideo triggers analysis of an uploaded video. The backend answers
// when processing has finished.
func (c *Client) ProcessVideo(ctx context.Context, body ProcessVideoRequest) error {
	result := &statusResponse{}
	_, err := handleError(c.req(ctx, result).
		SetBody(body).
		Post("/api/process-video"))
	if err != nil {
		return err
	}
	if result.Status == statusError {
		return &StatusError{Endpoint: "process-video", Status: result.Status, Message: firstNonEmpty(result.Error, result.Message)}
	}
	return nil
}

// LatestFrame fetches the most recent visualization frame for a job.
func (c *Client) LatestFrame(ctx context.Context, jobID string) (*Frame, error) {
	res, err := handleError(c.req(ctx, nil).
		SetQueryParam("job_id", jobID).
		SetHeader("Accept", "image/*").
		SetDoNotParseResponse(true).
		Get("/api/latest-frame"))
	if err != nil {
		return nil, err
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() == http.StatusNoContent {
		return nil, ErrNoFrame
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("invalid content type: expected image/*, got %s", contentType)
	}

	data, err := readLimited(body, c.maxFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}

	return &Frame{Data: data, ContentType: contentType}, nil
}

// InitializeVoice starts a voice session for a job and returns the
// assistant's greeting.
func (c *Client) InitializeVoice(ctx context.Context, jobID string) (string, error) {
	result := &statusResponse{}
	_, err := handleError(c.req(ctx, result).
		SetPathParams(map[string]string{
			"jobId": jobID,
		}).
		Get("/api/voice/initialize/{jobId}"))
	if err != nil {
		return "", err
	}
	if result.Status != statusSuccess {
		return "", &StatusError{Endpoint: "voice/initialize", Status: result.Status, Message: firstNonEmpty(result.Error, result.Message)}
	}
	return result.Message, nil
}

// ProcessVoice sends one recorded utterance and returns the transcription,
// the assistant's answer and its speech audio when present.
func (c *Client) ProcessVoice(ctx context.Context, jobID string, audio []byte, mimeType string) (*VoiceReply, error) {
	result := &voiceProcessResponse{}
	_, err := handleError(c.req(ctx, result).
		SetBody(voiceProcessRequest{
			JobID: jobID,
			Audio: EncodeDataURL(mimeType, audio),
		}).
		Post("/api/voice/process"))
	if err != nil {
		return nil, err
	}
	if result.Status != statusSuccess {
		return nil, &StatusError{Endpoint: "voice/process", Status: result.Status, Message: result.Error}
	}

	reply := &VoiceReply{
		Transcription: result.Transcription,
		Response:      result.Response,
	}
	// Speech is optional; a reply without audio is still a successful exchange
	if result.Speech != "" {
		speech, err := c.resolveSpeech(ctx, result.Speech)
		if err != nil {
			log.Warn().Err(err).Str("jobID", jobID).Msg("failed to resolve speech, continuing without audio")
		} else {
			reply.Speech = speech
		}
	}
	return reply, nil
}

// resolveSpeech turns the speech field into audio bytes. It is either a data
// URL or a link to fetch.
func (c *Client) resolveSpeech(ctx context.Context, ref string) (*Speech, error) {
	if strings.HasPrefix(ref, "data:") {
		mimeType, data, err := DecodeDataURL(ref)
		if err != nil {
			return nil, err
		}
		return &Speech{Data: data, MIMEType: mimeType}, nil
	}

	res, err := handleError(c.req(ctx, nil).
		SetDoNotParseResponse(true).
		Get(ref))
	if err != nil {
		return nil, err
	}
	body := res.RawBody()
	defer body.Close()

	data, err := readLimited(body, c.maxSpeech)
	if err != nil {
		return nil, err
	}
	return &Speech{Data: data, MIMEType: res.Header().Get("Content-Type")}, nil
}

// EncodeDataURL encodes data as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL decodes a base64 data URL.
func DecodeDataURL(s string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data URL")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return mimeType, []byte(payload), nil
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return mimeType, data, nil
}

// handleError is a generic error handler for failing response (>399 status
// code). Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		if res.RawResponse != nil && res.RawBody() != nil {
			res.RawBody().Close()
		}
		return res, fmt.Errorf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}

	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
