package patch

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/diffblob"
)

// RecordInput carries one backend outcome to persist.
type RecordInput struct {
	WorkspaceID string           `json:"workspace_id"`
	EngineType  model.EngineType `json:"engine_type"`
	// PatchID is the backend id; a ULID is generated when empty.
	PatchID string `json:"patch_id,omitempty"`
	// Envelope is the patch envelope (JSON) to store.
	Envelope json.RawMessage `json:"envelope"`
	// Diff is the forward diff reported by the backend, if any.
	Diff           json.RawMessage    `json:"diff,omitempty"`
	ETag           string             `json:"etag,omitempty"`
	TokensUsed     int64              `json:"tokens_used"`
	CreditsCharged int64              `json:"credits_charged"`
	Success        bool               `json:"success"`
	Timings        model.PatchTimings `json:"timings"`
}

// Record persists a patch. The id defaults to a ULID, the ETag to a
// BLAKE3 digest of the envelope, and the reverse diff is derived from the
// forward diff and stored compressed.
func (u *UseCase) Record(ctx context.Context, in *RecordInput) (*model.Patch, error) {
	if in == nil || in.WorkspaceID == "" {
		return nil, fmt.Errorf("record patch: workspace id is required")
	}
	reverse, err := diffblob.Encode(in.Diff)
	if err != nil {
		return nil, fmt.Errorf("record patch: %w", err)
	}
	p := &model.Patch{
		PatchID:        in.PatchID,
		WorkspaceID:    in.WorkspaceID,
		EngineType:     in.EngineType,
		Envelope:       in.Envelope,
		ReverseDiff:    reverse,
		TokensUsed:     in.TokensUsed,
		CreditsCharged: in.CreditsCharged,
		Success:        in.Success,
		Timings:        in.Timings,
		ETag:           in.ETag,
		CreatedAt:      time.Now().UTC(),
	}
	if p.PatchID == "" {
		p.PatchID = ulid.Make().String()
	}
	if len(p.Envelope) == 0 {
		p.Envelope = json.RawMessage("{}")
	}
	if p.ETag == "" {
		p.ETag = ETag(p.Envelope)
	}
	if err := u.Repos.Patch.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ETag returns the content tag of an envelope.
func ETag(envelope []byte) string {
	sum := blake3.Sum256(envelope)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
