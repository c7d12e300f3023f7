// Package command is the entry point of the command pipeline. It admits a
// command against the workspace state, the company plan and its credit
// balance, routes it to the workspace's engine backend, charges for it and
// records the resulting patch.
package command

import (
	"context"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/usecase/classify"
	"github.com/kompox/patchbay/usecase/envelope"
	"github.com/kompox/patchbay/usecase/ledger"
	"github.com/kompox/patchbay/usecase/patch"
	"github.com/kompox/patchbay/usecase/session"
)

// Repos holds repositories needed for command use cases.
type Repos struct {
	Workspace domain.WorkspaceRepository
	Company   domain.CompanyRepository
}

// Sender delivers a command to the backend session of a workspace.
type Sender interface {
	SendCommand(ctx context.Context, ws *model.Workspace, env *model.CommandEnvelope, opts session.SendOptions) (*model.BackendResponse, error)
}

// UseCase wires the collaborators of the command pipeline.
type UseCase struct {
	Repos      *Repos
	Ledger     *ledger.UseCase
	Validator  *envelope.Validator
	Classifier *classify.Classifier
	Sessions   Sender
	Patches    *patch.UseCase

	// Agent and Conversations are optional.
	Agent         model.AgentPort
	Conversations model.ConversationPort
}
