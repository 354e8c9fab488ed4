package completion

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"syscall"
	"time"

	"chatengine/internal/history"
	"chatengine/internal/metrics"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	maxAttempts    = 3
	defaultTimeout = 30 * time.Second
)

type Client struct {
	api     *openai.Client
	backoff time.Duration
	timeout time.Duration
}

type Option func(*Client)

// WithBackoff sets the unit multiplied by the attempt number between retries.
func WithBackoff(unit time.Duration) Option {
	return func(c *Client) {
		c.backoff = unit
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient talks to any OpenAI-compatible chat completion service. An empty
// baseURL targets the public OpenAI endpoint.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{backoff: time.Second, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: c.timeout}
	c.api = openai.NewClientWithConfig(cfg)
	return c
}

func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	temperature := float32(req.Temperature)
	if temperature == 0 {
		// A zero temperature is omitted from the request body and the service
		// would apply its own default.
		temperature = math.SmallestNonzeroFloat32
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    toOpenAI(req.Messages),
	}

	started := time.Now()
	defer func() {
		metrics.CompletionDuration.Observe(time.Since(started).Seconds())
	}()

	var (
		lastErr error
		used    int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		used = attempt
		resp, err := c.api.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			metrics.RecordCompletion("ok", resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			return toResult(resp), nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxAttempts {
			break
		}
		metrics.RecordCompletion("retry", 0, 0)
		logrus.WithFields(logrus.Fields{
			"model":   req.Model,
			"attempt": attempt,
		}).Warnf("completion attempt failed, retrying: %v", err)

		select {
		case <-ctx.Done():
			return Result{}, &UpstreamError{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}

	metrics.RecordCompletion("failed", 0, 0)
	upstream := &UpstreamError{StatusCode: statusCode(lastErr), Attempts: used, Err: lastErr}
	logrus.WithField("model", req.Model).Errorf("completion failed: %v", upstream)
	return Result{}, upstream
}

func toOpenAI(msgs []history.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func toResult(resp openai.ChatCompletionResponse) Result {
	res := Result{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		res.Empty = true
		return res
	}
	res.Text = Clean(resp.Choices[0].Message.Content)
	res.Empty = res.Text == ""
	return res
}

// Clean strips a surrounding Markdown code fence, with or without a language tag.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		tag := strings.TrimSpace(text[:nl])
		if !strings.ContainsAny(tag, " {[\"") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// A peer that closes the connection without answering surfaces as io.EOF.
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return statusCode(err) >= http.StatusInternalServerError
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
