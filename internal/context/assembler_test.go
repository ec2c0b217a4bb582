package context

import "testing"

func TestStandardAssembler_Assemble(t *testing.T) {
	a := &StandardAssembler{}
	history := []Message{
		{Role: "user", Content: "prev question"},
		{Role: "assistant", Content: "prev answer"},
	}
	result := a.Assemble("You are a bot.", history)

	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}

	if result[0].Role != "system" || result[0].Content != "You are a bot." {
		t.Errorf("unexpected system message: %+v", result[0])
	}
	if result[1].Role != "user" || result[1].Content != "prev question" {
		t.Errorf("unexpected history[0]: %+v", result[1])
	}
	if result[2].Role != "assistant" || result[2].Content != "prev answer" {
		t.Errorf("unexpected history[1]: %+v", result[2])
	}
}

func TestStandardAssembler_EmptyHistory(t *testing.T) {
	a := &StandardAssembler{}
	result := a.Assemble("system", nil)

	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	if result[0].Role != "system" {
		t.Errorf("expected system role, got %q", result[0].Role)
	}
}

func TestStandardAssembler_DoesNotMutateHistory(t *testing.T) {
	a := &StandardAssembler{}
	history := make([]Message, 1, 4)
	history[0] = Message{Role: "user", Content: "hi"}
	_ = a.Assemble("system", history)

	if history[0].Role != "user" || history[0].Content != "hi" {
		t.Fatalf("history was modified: %+v", history)
	}
}
