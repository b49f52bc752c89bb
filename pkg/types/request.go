// Package types defines the data contracts shared between the prompt
// management layers and the LLM provider integrations.
package types

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single chat message exchanged with an LLM provider.
type Message struct {
	Role    MessageRole
	Content string
}

// NewSystemMessage creates a message with the system role.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a message with the user role.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a message with the assistant role.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// CompletionRequest is an outbound model request before provider dispatch.
// The orchestrator mutates it in place: the selected preset's prefix block
// is prepended to SystemPrompt and the active fragments to UserPrompt.
type CompletionRequest struct {
	// SystemPrompt is the system instruction for the request. May be empty.
	SystemPrompt string

	// UserPrompt is the user-authored content of the request.
	UserPrompt string
}

// Messages converts the request into the message list sent to a provider.
// An empty system prompt produces no system message.
func (r *CompletionRequest) Messages() []*Message {
	messages := make([]*Message, 0, 2)
	if r.SystemPrompt != "" {
		messages = append(messages, NewSystemMessage(r.SystemPrompt))
	}
	messages = append(messages, NewUserMessage(r.UserPrompt))
	return messages
}
