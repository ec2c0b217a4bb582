package context

// Store keeps the accumulated transcript for every user the process has seen.
type Store interface {
	Get(userID int64) string
	Append(userID int64, role, content string)
	Clear(userID int64) bool
	Len() int
}

// Assembler combines the system prompt and parsed history into a final message list.
type Assembler interface {
	Assemble(system string, history []Message) []Message
}
