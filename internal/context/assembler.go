package context

// StandardAssembler prepends the system prompt to the conversation history.
type StandardAssembler struct{}

// Assemble builds the final message list: system + history.
func (a *StandardAssembler) Assemble(system string, history []Message) []Message {
	messages := make([]Message, 0, 1+len(history))
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, history...)
	return messages
}
