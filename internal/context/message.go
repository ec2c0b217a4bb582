package context

// Role tags understood by the inference API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a model-agnostic chat message used across the context pipeline.
type Message struct {
	Role    string
	Content string
}

// IsConversationRole reports whether role may appear in a stored transcript.
func IsConversationRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
