// Package dummy provides scripted stand-ins for the messaging platform and
// the inference server so the relay can run without either.
//
// A script is a comma separated list of actions consumed one per call; the
// last action repeats once the script is exhausted:
//
//	ok            no updates / default reply
//	err:<class>   fail; for providers <class> may be connection or timeout
//	sleep:<ms>    wait before answering
//	msg:<text>    deliver <text> as a message / reply
//	msgb64:<b64>  same as msg with base64 encoded text
package dummy

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	cmdpkg "github.com/stupiduntilnot/lmrelay/internal/commander"
	ctxpkg "github.com/stupiduntilnot/lmrelay/internal/context"
	modelpkg "github.com/stupiduntilnot/lmrelay/internal/model"
)

// UserID is the sender id of every scripted message.
const UserID int64 = 1

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" {
			actions = append(actions, action{kind: "ok"})
			continue
		}
		matched := false
		for _, kind := range []string{"err", "sleep", "msg", "msgb64"} {
			if strings.HasPrefix(token, kind+":") {
				actions = append(actions, action{kind: kind, arg: strings.TrimPrefix(token, kind+":")})
				matched = true
				break
			}
		}
		if !matched {
			return nil, errors.Newf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

func (a action) text() (string, error) {
	if a.kind != "msgb64" {
		return a.arg, nil
	}
	raw, err := base64.StdEncoding.DecodeString(a.arg)
	if err != nil {
		return "", errors.Wrap(err, "dummy msgb64 decode failed")
	}
	return string(raw), nil
}

func sleepFor(ctx context.Context, arg string) error {
	ms, _ := strconv.Atoi(arg)
	if ms <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sent is a message recorded by Commander.SendMessage.
type Sent struct {
	ChatID int64
	Text   string
}

// Commander replays a poll script and records everything sent through it.
type Commander struct {
	mu       sync.Mutex
	poll     *scriptRunner
	send     *scriptRunner
	updateID int64
	sent     []Sent
	actions  []string
}

func NewCommander(pollScript, sendScript string) (*Commander, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Commander{poll: poll, send: send, updateID: 1}, nil
}

func (c *Commander) GetUpdates(ctx context.Context, offset int64, timeout int) ([]cmdpkg.Update, error) {
	c.mu.Lock()
	a := c.poll.next()
	c.mu.Unlock()

	switch a.kind {
	case "err":
		return nil, errors.Newf("dummy commander error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		return nil, sleepFor(ctx, a.arg)
	case "msg", "msgb64":
		text, err := a.text()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.updateID++
		return []cmdpkg.Update{
			{
				UpdateID: c.updateID,
				Message: &cmdpkg.Message{
					MessageID: c.updateID,
					From:      &cmdpkg.User{ID: UserID, FirstName: "Dummy"},
					Chat:      cmdpkg.Chat{ID: UserID},
					Text:      &text,
					Date:      time.Now().Unix(),
				},
			},
		}, nil
	default:
		return nil, nil
	}
}

func (c *Commander) SendMessage(ctx context.Context, chatID int64, text string) error {
	c.mu.Lock()
	a := c.send.next()
	c.mu.Unlock()

	switch a.kind {
	case "err":
		return errors.Newf("dummy commander send error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepFor(ctx, a.arg); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{ChatID: chatID, Text: text})
	return nil
}

func (c *Commander) SendChatAction(ctx context.Context, chatID int64, action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

// Sent returns a copy of the messages delivered so far.
func (c *Commander) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Actions returns a copy of the chat actions sent so far.
func (c *Commander) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

// Provider replays a reply script and records every request it receives.
type Provider struct {
	mu       sync.Mutex
	model    string
	script   *scriptRunner
	requests [][]ctxpkg.Message
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

func (p *Provider) ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (modelpkg.CompletionResponse, error) {
	p.mu.Lock()
	a := p.script.next()
	p.requests = append(p.requests, append([]ctxpkg.Message(nil), messages...))
	p.mu.Unlock()

	switch a.kind {
	case "err":
		return modelpkg.CompletionResponse{}, providerError(a.arg)
	case "sleep":
		if err := sleepFor(ctx, a.arg); err != nil {
			return modelpkg.CompletionResponse{}, errors.Mark(err, modelpkg.ErrTimeout)
		}
		return reply("dummy-after-sleep"), nil
	case "msg", "msgb64":
		text, err := a.text()
		if err != nil {
			return modelpkg.CompletionResponse{}, errors.Mark(err, modelpkg.ErrUnexpected)
		}
		return reply(text), nil
	default:
		return reply(emptyAs(a.arg, "dummy-ok")), nil
	}
}

// Requests returns every message list passed to ChatCompletion so far.
func (p *Provider) Requests() [][]ctxpkg.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]ctxpkg.Message(nil), p.requests...)
}

func reply(content string) modelpkg.CompletionResponse {
	return modelpkg.CompletionResponse{
		Content:      content,
		InputTokens:  1,
		OutputTokens: 1,
	}
}

func providerError(class string) error {
	err := errors.Newf("dummy provider error class=%s", emptyAs(class, "provider_api"))
	switch modelpkg.ErrorClass(class) {
	case modelpkg.ClassConnection:
		return errors.Mark(err, modelpkg.ErrConnection)
	case modelpkg.ClassTimeout:
		return errors.Mark(err, modelpkg.ErrTimeout)
	default:
		return errors.Mark(err, modelpkg.ErrUnexpected)
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
