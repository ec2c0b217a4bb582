package dummy

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"

	ctxpkg "github.com/stupiduntilnot/lmrelay/internal/context"
	modelpkg "github.com/stupiduntilnot/lmrelay/internal/model"
)

func TestNewProvider_InvalidScript(t *testing.T) {
	_, err := NewProvider("x", "boom")
	if err == nil {
		t.Fatal("expected parse error for invalid script")
	}
}

func TestProvider_ScriptedResponses(t *testing.T) {
	p, err := NewProvider("x", "err:timeout,msg:hello")
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected first call to error")
	}
	if !errors.Is(err, modelpkg.ErrTimeout) {
		t.Fatalf("expected timeout mark, got %v", err)
	}

	resp, err := p.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Fatalf("expected hello, got %q", resp.Content)
	}
	if got := len(p.Requests()); got != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", got)
	}
}

func TestProvider_ErrorClasses(t *testing.T) {
	p, err := NewProvider("x", "err:connection,err:other")
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.ChatCompletion(context.Background(), nil)
	if modelpkg.Classify(err) != modelpkg.ClassConnection {
		t.Fatalf("expected connection class, got %v", err)
	}
	_, err = p.ChatCompletion(context.Background(), nil)
	if modelpkg.Classify(err) != modelpkg.ClassUnexpected {
		t.Fatalf("expected unexpected class, got %v", err)
	}
}

func TestCommander_MsgAction(t *testing.T) {
	c, err := NewCommander("msg:test-msg", "ok")
	if err != nil {
		t.Fatal(err)
	}
	updates, err := c.GetUpdates(context.Background(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].Message == nil || updates[0].Message.Text == nil {
		t.Fatalf("unexpected updates: %+v", updates)
	}
	if *updates[0].Message.Text != "test-msg" {
		t.Fatalf("expected test-msg, got %q", *updates[0].Message.Text)
	}
	if updates[0].Message.From == nil || updates[0].Message.From.ID != UserID {
		t.Fatalf("expected sender %d, got %+v", UserID, updates[0].Message.From)
	}
}

func TestCommander_RecordsSends(t *testing.T) {
	c, err := NewCommander("ok", "ok,err:send")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SendMessage(context.Background(), 5, "first"); err != nil {
		t.Fatal(err)
	}
	if err := c.SendMessage(context.Background(), 5, "second"); err == nil {
		t.Fatal("expected scripted send error")
	}
	sent := c.Sent()
	if len(sent) != 1 || sent[0].Text != "first" || sent[0].ChatID != 5 {
		t.Fatalf("unexpected sent: %+v", sent)
	}
}

func TestProvider_MsgB64Action(t *testing.T) {
	p, err := NewProvider("x", "msgb64:aGVsbG8=") // "hello"
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Fatalf("expected hello, got %q", resp.Content)
	}
}
