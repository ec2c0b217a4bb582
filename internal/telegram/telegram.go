package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	cmdpkg "github.com/stupiduntilnot/lmrelay/internal/commander"
)

// maxMessageChars keeps replies under the Bot API limit of 4096 characters.
const maxMessageChars = 3900

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Telegram client for the given bot API base URL
// (e.g. "https://api.telegram.org/bot<token>").
func NewClient(apiBase string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: apiBase,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result"`
}

type Update = cmdpkg.Update
type Message = cmdpkg.Message
type User = cmdpkg.User
type Chat = cmdpkg.Chat

// GetUpdates calls the getUpdates API. Only message updates are requested.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))
	params.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "telegram getUpdates request")
	}
	tgResp, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "telegram getUpdates")
	}

	var updates []Update
	if err := json.Unmarshal(tgResp.Result, &updates); err != nil {
		return nil, errors.Wrap(err, "failed to parse getUpdates result")
	}
	return updates, nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getMe", nil)
	if err != nil {
		return User{}, errors.Wrap(err, "telegram getMe request")
	}
	tgResp, err := c.do(req)
	if err != nil {
		return User{}, errors.Wrap(err, "telegram getMe")
	}

	var me User
	if err := json.Unmarshal(tgResp.Result, &me); err != nil {
		return User{}, errors.Wrap(err, "failed to parse getMe result")
	}
	return me, nil
}

// SendMessage sends a text message to the given chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	limited := truncate(text, maxMessageChars)
	payload := fmt.Sprintf(`{"chat_id":%d,"text":%s}`, chatID, jsonString(limited))
	if err := c.post(ctx, "sendMessage", payload); err != nil {
		return errors.Wrapf(err, "telegram sendMessage chat_id=%d", chatID)
	}
	return nil
}

// SendChatAction shows a transient status such as "typing" in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	payload := fmt.Sprintf(`{"chat_id":%d,"action":%s}`, chatID, jsonString(action))
	if err := c.post(ctx, "sendChatAction", payload); err != nil {
		return errors.Wrapf(err, "telegram sendChatAction chat_id=%d", chatID)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) (Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, errors.Wrap(err, "failed to read response")
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return Response{}, errors.Wrapf(err, "failed to parse response status=%d", resp.StatusCode)
	}
	if !tgResp.OK {
		return Response{}, errors.Newf("api error status=%d: %s", resp.StatusCode, tgResp.Description)
	}
	return tgResp, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
