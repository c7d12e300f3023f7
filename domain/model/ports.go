package model

import "context"

// AgentReply is the answer of the agent: either free text or an envelope.
type AgentReply struct {
	Text     string
	Envelope *CommandEnvelope
}

// AgentPort turns a prompt into text or a structured command envelope.
// The pipeline treats it as opaque.
type AgentPort interface {
	Generate(ctx context.Context, prompt string, context map[string]any) (*AgentReply, error)
}

// ConversationPort appends messages to a conversation history.
// Callers treat it as fire-and-forget.
type ConversationPort interface {
	AddMessage(ctx context.Context, conversationID, role, content string, meta map[string]any) error
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
