// Package api is the client for the remote interview service: the question
// bank and the recording submission endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/justapithecus/rehearse/types"
)

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// Endpoint paths.
const (
	QuestionsPath = "/interview/{difficulty}"
	RecordingPath = "/interview/recording"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retriable reports whether the request may succeed if repeated:
// server errors and 429 are, other client errors are not.
func (e *StatusError) Retriable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. https://api.example.com.
	BaseURL string
	// Timeout bounds each request (default 30s).
	Timeout time.Duration
	// Tokens supplies the bearer credential. Nil sends no Authorization.
	Tokens TokenSource
	// HTTPClient overrides the underlying transport client.
	HTTPClient *http.Client
}

// Client calls the interview service.
type Client struct {
	rest   *resty.Client
	tokens TokenSource
}

// NewClient creates a client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var rest *resty.Client
	if config.HTTPClient != nil {
		rest = resty.NewWithClient(config.HTTPClient)
	} else {
		rest = resty.New()
	}
	rest.SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", "rehearse/"+types.Version).
		SetHeader("Accept", "application/json")

	return &Client{rest: rest, tokens: config.Tokens}, nil
}

// request builds an authenticated request bound to ctx.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	req := c.rest.R().SetContext(ctx)
	if c.tokens == nil {
		return req, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if token != "" {
		req.SetAuthToken(token)
	}
	return req, nil
}

// Questions fetches the questions of one difficulty, in bank order.
func (c *Client) Questions(ctx context.Context, difficulty types.Difficulty) ([]types.Question, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetPathParam("difficulty", string(difficulty)).Get(QuestionsPath)
	if err != nil {
		return nil, fmt.Errorf("fetch %s questions: %w", difficulty, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var questions []types.Question
	if err := json.Unmarshal(resp.Body(), &questions); err != nil {
		return nil, fmt.Errorf("decode %s questions: %w", difficulty, err)
	}
	for i := range questions {
		if questions[i].Difficulty == "" {
			questions[i].Difficulty = difficulty
		}
	}
	return questions, nil
}

// Recording is one submission to the recording endpoint.
type Recording struct {
	QuestionID string
	MediaType  string
	Data       io.Reader
	SizeBytes  int64
}

// Ack is the service's acknowledgement of a stored recording.
type Ack struct {
	ID       string `json:"_id"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// SubmitRecording uploads a recording as multipart/form-data with fields
// questionId, mediaType, sizeBytes and the file part "recording".
func (c *Client) SubmitRecording(ctx context.Context, rec Recording) (*Ack, error) {
	if rec.QuestionID == "" {
		return nil, errors.New("submit recording: question id is required")
	}
	if rec.Data == nil {
		return nil, errors.New("submit recording: no data")
	}
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.
		SetMultipartFormData(map[string]string{
			"questionId": rec.QuestionID,
			"mediaType":  rec.MediaType,
			"sizeBytes":  fmt.Sprintf("%d", rec.SizeBytes),
		}).
		SetMultipartField("recording", "recording.webm", rec.MediaType, rec.Data).
		Post(RecordingPath)
	if err != nil {
		return nil, fmt.Errorf("submit recording: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var ack Ack
	if body := resp.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &ack); err != nil {
			return nil, fmt.Errorf("decode recording ack: %w", err)
		}
	}
	return &ack, nil
}

// maxErrorBody bounds the response body kept in a StatusError.
const maxErrorBody = 512

func checkStatus(resp *resty.Response) error {
	if !resp.IsError() && resp.StatusCode() < 300 {
		return nil
	}
	body := strings.TrimSpace(resp.String())
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	path := resp.Request.URL
	if req := resp.Request.RawRequest; req != nil {
		path = req.URL.Path
	}
	return &StatusError{
		Method:     resp.Request.Method,
		Path:       path,
		StatusCode: resp.StatusCode(),
		Body:       body,
	}
}
