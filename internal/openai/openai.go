package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	ctxpkg "github.com/stupiduntilnot/lmrelay/internal/context"
	modelpkg "github.com/stupiduntilnot/lmrelay/internal/model"
)

// Client is a minimal client for OpenAI-compatible chat completion servers
// such as LM Studio.
type Client struct {
	apiKey      string
	url         string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewClient creates a chat completions client. apiKey may be empty for local
// servers that do not check it.
func NewClient(apiKey, url, model string, temperature float64, timeout time.Duration) *Client {
	return &Client{
		apiKey:      apiKey,
		url:         url,
		model:       model,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Message represents a chat message on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// ChatCompletion sends a non-streaming chat completion request with no
// length limit. Returned errors are marked with modelpkg.ErrConnection,
// modelpkg.ErrTimeout, or modelpkg.ErrUnexpected.
func (c *Client) ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (modelpkg.CompletionResponse, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: lo.Map(messages, func(m ctxpkg.Message, _ int) Message {
			return Message{Role: m.Role, Content: m.Content}
		}),
		Temperature: c.temperature,
		MaxTokens:   -1,
		Stream:      false,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return modelpkg.CompletionResponse{}, unexpected(errors.Wrap(err, "failed to marshal openai request"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return modelpkg.CompletionResponse{}, unexpected(errors.Wrap(err, "failed to create openai request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return modelpkg.CompletionResponse{}, markTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return modelpkg.CompletionResponse{}, markTransportError(errors.Wrap(err, "failed reading openai response"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return modelpkg.CompletionResponse{}, unexpected(errors.Newf(
			"openai non-success status=%d body=%s", resp.StatusCode, truncate(string(body), 400)))
	}
	if !gjson.ValidBytes(body) {
		return modelpkg.CompletionResponse{}, unexpected(errors.Newf(
			"failed to parse openai response: %s", truncate(string(body), 400)))
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return modelpkg.CompletionResponse{}, unexpected(errors.Newf(
			"openai response has no choices.0.message.content: %s", truncate(string(body), 400)))
	}

	result := modelpkg.CompletionResponse{
		Content:      content.String(),
		InputTokens:  int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
	}
	return result, nil
}

func markTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Mark(errors.Wrap(err, "openai request timed out"), modelpkg.ErrTimeout)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Mark(errors.Wrap(err, "openai request failed"), modelpkg.ErrConnection)
	}
	return unexpected(errors.Wrap(err, "openai request failed"))
}

func unexpected(err error) error {
	return errors.Mark(err, modelpkg.ErrUnexpected)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
