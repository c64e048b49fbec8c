package engine

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
)

// Session accumulates the message history for one conversation with the
// model. It holds only the in-flight API transcript; durable memory lives
// behind the coordinator.
type Session struct {
	ID             string
	UserID         string
	ConversationID string
	StartedAt      time.Time

	messages []anthropic.MessageParam
}

// NewSession creates a session for a user and conversation.
func NewSession(userID, conversationID string) *Session {
	return &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		StartedAt:      time.Now(),
	}
}

// AddUserMessage appends a user text message.
func (s *Session) AddUserMessage(content string) {
	s.messages = append(s.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
}

// AddAssistantMessage appends an assistant text message.
func (s *Session) AddAssistantMessage(content string) {
	s.messages = append(s.messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
}

// AddAssistantResponse appends a full model response, preserving tool_use
// blocks so follow-up tool results pair correctly.
func (s *Session) AddAssistantResponse(resp *anthropic.Message) {
	s.messages = append(s.messages, resp.ToParam())
}

// AddToolResults appends tool result blocks as a single user message.
func (s *Session) AddToolResults(blocks []anthropic.ContentBlockParamUnion) {
	if len(blocks) == 0 {
		return
	}
	s.messages = append(s.messages, anthropic.NewUserMessage(blocks...))
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (s *Session) Len() int {
	return len(s.messages)
}
