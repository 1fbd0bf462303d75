package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

// Prefixes of the analysis text when the service call fails.
const (
	APIErrorPrefix      = "API Error: "
	RequestFailedPrefix = "Request Failed: "
)

const generationPath = "/services/aigc/text-generation/generation"

// Summarizer produces free-form analysis text from a serialized result.
//
// Summarize always returns text for the analysis field. When the call
// fails, the text describes the failure and err wraps
// common.ErrSummarization.
type Summarizer interface {
	Summarize(ctx context.Context, payload, model string) (string, error)
}

// Client calls the DashScope text-generation API.
type Client struct {
	cfg        common.SummarizerConfig
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a DashScope client. A nil httpClient gets a default
// one bounded by cfg.Timeout.
func NewClient(cfg common.SummarizerConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, httpClient: httpClient, log: logger}
}

// New returns a Client when an API key is configured and Disabled otherwise.
func New(cfg common.SummarizerConfig, logger *zap.Logger) Summarizer {
	if cfg.APIKey == "" {
		return Disabled{}
	}
	return NewClient(cfg, nil, logger)
}

// Summarize sends payload in chunks of at most MaxPromptChars runes. The
// first failing chunk ends the call and its message becomes the result;
// otherwise the chunk answers are joined with newlines.
func (c *Client) Summarize(ctx context.Context, payload, model string) (string, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	chunks := splitChunks(payload, c.cfg.MaxPromptChars)
	answers := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		text, err := c.call(ctx, chunk, model)
		if err != nil {
			c.log.Error("summarize.chunk_failed",
				zap.Int("chunk", i),
				zap.Int("chunks", len(chunks)),
				zap.Error(err),
			)
			return text, err
		}
		answers = append(answers, text)
	}
	return strings.Join(answers, "\n"), nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generationRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []message `json:"messages"`
	} `json:"input"`
	Parameters struct {
		ResultFormat string `json:"result_format"`
	} `json:"parameters"`
}

type generationResponse struct {
	Output *struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (c *Client) call(ctx context.Context, content, model string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("summarize.start",
		zap.String("req_id", rid),
		zap.String("model", model),
		zap.Int("content_len", len(content)),
	)

	var body generationRequest
	body.Model = model
	body.Input.Messages = []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: content},
	}
	body.Parameters.ResultFormat = "message"

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + generationPath
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return requestFailed(err)
	}

	var resp generationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return requestFailed(fmt.Errorf("decode response: %w", err))
	}
	if resp.Output == nil {
		msg := resp.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return apiError(msg)
	}
	if len(resp.Output.Choices) == 0 {
		return apiError("no choices in response")
	}

	c.log.Info("summarize.ok",
		zap.String("req_id", rid),
		zap.String("service_request_id", resp.RequestID),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return resp.Output.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("response body close error", zap.Error(err))
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(buf.String()))
	}
	return buf.Bytes(), nil
}

func requestFailed(err error) (string, error) {
	text := RequestFailedPrefix + err.Error()
	return text, common.NewAppError("SUMMARIZATION_ERROR", text, errors.Join(common.ErrSummarization, err))
}

func apiError(msg string) (string, error) {
	text := APIErrorPrefix + msg
	return text, common.NewAppError("SUMMARIZATION_ERROR", text, common.ErrSummarization)
}

// splitChunks cuts s into pieces of at most max runes. max <= 0 disables
// splitting.
func splitChunks(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	if len(runes) <= max {
		return []string{s}
	}
	chunks := make([]string, 0, len(runes)/max+1)
	for i := 0; i < len(runes); i += max {
		end := min(i+max, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// Disabled is used when no API key is configured.
type Disabled struct{}

// DisabledText is the analysis text produced by Disabled.
const DisabledText = "Analysis unavailable: no summarization API key is configured"

func (Disabled) Summarize(context.Context, string, string) (string, error) {
	return DisabledText, nil
}
