package context

import "strings"

const (
	rolePrefix     = "role: "
	blockSeparator = "\n\n"
)

// FormatBlock renders one transcript block. Blocks are concatenated in
// arrival order to form a user's transcript.
func FormatBlock(role, content string) string {
	return rolePrefix + role + "\n" + content + blockSeparator
}

// ParseTranscript converts a transcript into the ordered messages it encodes.
// Blocks without content, without a "role: " header, or with a role other
// than user/assistant are skipped.
func ParseTranscript(transcript string) []Message {
	messages := []Message{}
	if strings.TrimSpace(transcript) == "" {
		return messages
	}

	for _, block := range strings.Split(strings.TrimSpace(transcript), blockSeparator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		header, content, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		if !strings.HasPrefix(header, rolePrefix) {
			continue
		}
		role := strings.TrimSpace(strings.TrimPrefix(header, rolePrefix))
		if !IsConversationRole(role) {
			continue
		}
		messages = append(messages, Message{Role: role, Content: content})
	}
	return messages
}
