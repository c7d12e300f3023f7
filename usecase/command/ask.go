package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kompox/patchbay/domain/model"
)

// ErrAgentUnavailable is returned by Ask when no agent is configured.
var ErrAgentUnavailable = errors.New("agent not configured")

// AskInput is a free-form prompt for a workspace.
type AskInput struct {
	WorkspaceID    string                 `json:"workspace_id"`
	Prompt         string                 `json:"prompt"`
	Context        map[string]any         `json:"context,omitempty"`
	Messages       []model.BackendMessage `json:"messages,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
}

// AskOutput holds either the agent's text answer or the result of the
// command it produced.
type AskOutput struct {
	Text     string          `json:"text,omitempty"`
	Dispatch *DispatchOutput `json:"dispatch,omitempty"`
}

// Ask passes the prompt to the agent. A text answer is returned as is; an
// envelope answer goes through Dispatch like any submitted command.
func (u *UseCase) Ask(ctx context.Context, in *AskInput) (*AskOutput, error) {
	if in == nil || in.WorkspaceID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	if u.Agent == nil {
		return nil, ErrAgentUnavailable
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("ask: prompt is empty")
	}
	reply, err := u.Agent.Generate(ctx, in.Prompt, in.Context)
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	if reply == nil || reply.Envelope == nil {
		out := &AskOutput{}
		if reply != nil {
			out.Text = reply.Text
		}
		u.remember(ctx, in.ConversationID, model.RoleUser, in.Prompt, map[string]any{"workspace_id": in.WorkspaceID})
		u.remember(ctx, in.ConversationID, model.RoleAssistant, out.Text, map[string]any{"workspace_id": in.WorkspaceID})
		return out, nil
	}
	env := *reply.Envelope
	if env.Instruction == "" {
		env.Instruction = in.Prompt
	}
	raw, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("ask: encode envelope: %w", err)
	}
	res, err := u.Dispatch(ctx, &DispatchInput{
		WorkspaceID:    in.WorkspaceID,
		Envelope:       raw,
		Context:        in.Context,
		Messages:       in.Messages,
		ConversationID: in.ConversationID,
	})
	return &AskOutput{Text: reply.Text, Dispatch: res}, err
}
