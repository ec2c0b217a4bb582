package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBlock(t *testing.T) {
	assert.Equal(t, "role: user\nHello\n\n", FormatBlock("user", "Hello"))
	assert.Equal(t, "role: assistant\n\n\n", FormatBlock("assistant", ""))
}

func TestParseTranscript_Empty(t *testing.T) {
	for _, in := range []string{"", " ", "\n\n", "\t \n  \n"} {
		got := ParseTranscript(in)
		assert.NotNil(t, got)
		assert.Empty(t, got, "input %q", in)
	}
}

func TestParseTranscript_RoundTrip(t *testing.T) {
	want := []Message{
		{Role: RoleUser, Content: "My name is Ann."},
		{Role: RoleAssistant, Content: "Nice to meet you, Ann."},
		{Role: RoleUser, Content: "line one\nline two\nline three"},
		{Role: RoleAssistant, Content: "ok"},
	}

	var transcript string
	for _, m := range want {
		transcript += FormatBlock(m.Role, m.Content)
	}

	assert.Equal(t, want, ParseTranscript(transcript))
}

func TestParseTranscript_SkipsUnknownRoles(t *testing.T) {
	transcript := FormatBlock("system", "ignored") +
		FormatBlock("ROLE", "ignored too") +
		FormatBlock("", "no role") +
		FormatBlock("user", "kept")

	assert.Equal(t, []Message{{Role: RoleUser, Content: "kept"}}, ParseTranscript(transcript))
}

func TestParseTranscript_SkipsHeaderOnlyBlocks(t *testing.T) {
	transcript := FormatBlock("user", "") + FormatBlock("assistant", "answer")

	assert.Equal(t, []Message{{Role: RoleAssistant, Content: "answer"}}, ParseTranscript(transcript))
}

func TestParseTranscript_SkipsMalformedHeaders(t *testing.T) {
	transcript := "rol: user\nbad prefix\n\n" +
		"Role: user\nwrong case\n\n" +
		"role:user\nmissing space\n\n" +
		"role:  user  \ntrimmed tag\n\n"

	assert.Equal(t, []Message{{Role: RoleUser, Content: "trimmed tag"}}, ParseTranscript(transcript))
}

func TestParseTranscript_IsDeterministic(t *testing.T) {
	transcript := FormatBlock("user", "a") + FormatBlock("assistant", "b")

	first := ParseTranscript(transcript)
	second := ParseTranscript(transcript)
	assert.Equal(t, first, second)
}

func TestIsConversationRole(t *testing.T) {
	assert.True(t, IsConversationRole(RoleUser))
	assert.True(t, IsConversationRole(RoleAssistant))
	assert.False(t, IsConversationRole(RoleSystem))
	assert.False(t, IsConversationRole(""))
}
