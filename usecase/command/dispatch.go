package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
	"github.com/kompox/patchbay/usecase/classify"
	"github.com/kompox/patchbay/usecase/envelope"
	"github.com/kompox/patchbay/usecase/patch"
	"github.com/kompox/patchbay/usecase/session"
)

// previewRunes bounds the instruction preview kept in ledger entries.
const previewRunes = 120

// DispatchInput is one command submitted against a workspace.
type DispatchInput struct {
	WorkspaceID string          `json:"workspace_id"`
	Envelope    json.RawMessage `json:"envelope"`
	Context     map[string]any  `json:"context,omitempty"`
	// Messages is prior chat history forwarded to the backend.
	Messages []model.BackendMessage `json:"messages,omitempty"`
	// ConversationID, when set, receives the command and its outcome.
	ConversationID string `json:"conversation_id,omitempty"`
}

// Metadata describes how a command was admitted, routed and charged.
type Metadata struct {
	CreditsUsed      int64                  `json:"credits_used"`
	CreditsRemaining int64                  `json:"credits_remaining"`
	Surcharge        int64                  `json:"surcharge"`
	EngineType       model.EngineType       `json:"engine_type"`
	DetectedBy       classify.Source        `json:"detected_by"`
	PatchID          string                 `json:"patch_id,omitempty"`
	Capabilities     []string               `json:"capabilities,omitempty"`
	Compatibility    classify.Compatibility `json:"compatibility"`
}

// DispatchOutput is the normalized result of a dispatched command.
type DispatchOutput struct {
	Success bool `json:"success"`
	// Data is the raw backend response.
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	Metadata Metadata        `json:"metadata"`
}

// Dispatch runs one command through the pipeline. Every admission check
// happens before a backend is contacted. Credits are charged only after the
// backend reported success.
func (u *UseCase) Dispatch(ctx context.Context, in *DispatchInput) (*DispatchOutput, error) {
	if in == nil || in.WorkspaceID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	started := time.Now()
	log := logging.FromContext(ctx).With("workspace", in.WorkspaceID)

	ws, err := u.Repos.Workspace.Get(ctx, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	co, err := u.Repos.Company.Get(ctx, ws.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := classify.CheckReady(ws); err != nil {
		return nil, err
	}

	features := u.Classifier.Capabilities(string(in.Envelope))
	if err := classify.CheckPlan(co.Plan, ws.EngineType, features); err != nil {
		return nil, err
	}

	res := u.Validator.Validate(in.Envelope)
	if err := envelope.AsError(res); err != nil {
		return nil, err
	}
	env := res.Envelope
	estimate := u.Ledger.EstimateCost(env)
	surcharge := u.Ledger.Surcharge(ws.EngineType)
	if _, err := u.Ledger.Admit(ctx, co.ID, estimate+surcharge); err != nil {
		return nil, err
	}

	cls, err := u.Classifier.Classify(&classify.Request{Workspace: ws, Envelope: env, Context: in.Context})
	if err != nil {
		log.Info(ctx, "command rejected", "kind", string(model.KindOf(err)), "err", err)
		return nil, err
	}

	u.remember(ctx, in.ConversationID, model.RoleUser, env.Instruction, map[string]any{"workspace_id": ws.ID})

	sent := time.Now()
	resp, err := u.Sessions.SendCommand(ctx, ws, env, session.SendOptions{
		Messages: in.Messages,
		System:   env.System,
		Context:  mergeContext(env.Context, in.Context),
	})
	if err != nil {
		return nil, err
	}
	backendMs := time.Since(sent).Milliseconds()

	out := &DispatchOutput{
		Success: resp.Success,
		Data:    resp.Raw,
		Message: resp.Message,
		Metadata: Metadata{
			EngineType:    cls.Engine,
			DetectedBy:    cls.DetectedBy,
			Capabilities:  features,
			Compatibility: cls.Compatibility,
		},
	}

	var (
		debitErr error
		charged  int64
		balKnown bool
	)
	base := estimate
	if resp.TokensUsed > 0 {
		base = resp.TokensUsed
	}
	if resp.Success {
		tx, err := u.Ledger.Debit(ctx, co.ID, base+surcharge, model.ReasonCommand, model.TransactionMetadata{
			EngineType:     ws.EngineType,
			WorkspaceID:    ws.ID,
			CommandPreview: env.Preview(previewRunes),
			PatchID:        resp.PatchID,
			Surcharge:      surcharge,
		})
		if err != nil {
			// The backend already applied the command. Keep the patch so it
			// can be undone, then report the failed charge.
			log.Warn(ctx, "debit after backend success failed", "company", co.ID, "amount", base+surcharge, "err", err)
			debitErr = err
		} else {
			charged = tx.Amount
			if charged < 0 {
				charged = -charged
			}
			out.Metadata.CreditsRemaining = tx.BalanceAfter
			balKnown = true
		}
	}
	out.Metadata.CreditsUsed = charged
	if charged > 0 {
		out.Metadata.Surcharge = surcharge
	}
	if !balKnown {
		if bal, err := u.Ledger.Balance(ctx, co.ID); err == nil {
			out.Metadata.CreditsRemaining = bal
		}
	}

	if resp.HasPatch() || !resp.Success {
		out.Metadata.PatchID = u.record(ctx, ws, in.Envelope, resp, base, charged, model.PatchTimings{
			QueueMs:   sent.Sub(started).Milliseconds(),
			BackendMs: backendMs,
			TotalMs:   time.Since(started).Milliseconds(),
		})
	}

	u.remember(ctx, in.ConversationID, model.RoleAssistant, outcomeText(resp), map[string]any{
		"workspace_id": ws.ID,
		"patch_id":     out.Metadata.PatchID,
		"success":      resp.Success,
		"credits_used": charged,
	})

	if debitErr != nil {
		if model.KindOf(debitErr) == model.KindInsufficientCredits {
			return out, model.WrapError(model.KindInsufficientCredits, debitErr, "command applied but could not be charged").
				WithDetail("applied", true).
				WithDetail("patch_id", out.Metadata.PatchID).
				WithDetail("required", base+surcharge)
		}
		return out, debitErr
	}
	log.Info(ctx, "command dispatched",
		"engine", string(cls.Engine), "success", resp.Success, "credits", charged, "patch", out.Metadata.PatchID)
	return out, nil
}

// record stores the patch of a backend response. Failures are logged and
// swallowed: the command already ran against the workspace.
func (u *UseCase) record(ctx context.Context, ws *model.Workspace, submitted json.RawMessage, resp *model.BackendResponse, tokens, charged int64, timings model.PatchTimings) string {
	if u.Patches == nil {
		return ""
	}
	env := resp.Patch
	if !resp.HasPatch() {
		env = submitted
	}
	if resp.Timings != nil && resp.Timings.BackendMs > 0 {
		timings.BackendMs = resp.Timings.BackendMs
	}
	p, err := u.Patches.Record(ctx, &patch.RecordInput{
		WorkspaceID:    ws.ID,
		EngineType:     ws.EngineType,
		PatchID:        resp.PatchID,
		Envelope:       env,
		Diff:           resp.Diff,
		ETag:           resp.ETag,
		TokensUsed:     tokens,
		CreditsCharged: charged,
		Success:        resp.Success,
		Timings:        timings,
	})
	if err != nil {
		logging.FromContext(ctx).Warn(ctx, "record patch failed", "workspace", ws.ID, "patch", resp.PatchID, "err", err)
		return ""
	}
	return p.PatchID
}

// remember appends to the conversation history. Errors never reach the
// caller.
func (u *UseCase) remember(ctx context.Context, conversationID, role, content string, meta map[string]any) {
	if u.Conversations == nil || conversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := u.Conversations.AddMessage(ctx, conversationID, role, content, meta); err != nil {
		logging.FromContext(ctx).Warn(ctx, "conversation append failed", "conversation", conversationID, "err", err)
	}
}

func outcomeText(resp *model.BackendResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	if resp.Success {
		return "command applied"
	}
	return "command failed"
}

// mergeContext overlays the caller context on the envelope context.
func mergeContext(base, over map[string]any) map[string]any {
	if len(base) == 0 {
		return over
	}
	if len(over) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
