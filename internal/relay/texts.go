package relay

import "fmt"

// User-facing texts.
const (
	clearedText    = "Conversation history cleared. Let's start a new conversation!"
	connectionText = "Could not connect to LM Studio. Make sure the server is running."
	timeoutText    = "The response took too long."
	unexpectedText = "An error occurred while generating the response."
	handlerText    = "An error occurred. Please try again or use /clear."
	emptyReplyText = "(empty model response)"
)

func welcomeText(firstName string) string {
	return fmt.Sprintf("Hello, %s!\n\n"+
		"I am a bot that keeps track of our conversation.\n"+
		"I remember what we talked about and answer with the earlier messages in mind.\n\n"+
		"Available commands:\n"+
		"/start - start the conversation over\n"+
		"/clear - clear the conversation history\n\n"+
		"Just send me a message!", firstName)
}
