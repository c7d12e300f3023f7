package model

import (
	"encoding/json"
	"time"
)

// Patch is the persisted result of one dispatched command.
type Patch struct {
	PatchID        string
	WorkspaceID    string
	EngineType     EngineType
	Envelope       []byte // JSON
	ReverseDiff    []byte // gzip-compressed
	TokensUsed     int64
	CreditsCharged int64
	Success        bool
	Timings        PatchTimings
	ETag           string
	UndoneAt       *time.Time
	CreatedAt      time.Time
}

// PatchTimings records how long a dispatch took, in milliseconds.
type PatchTimings struct {
	QueueMs   int64 `json:"queue_ms,omitempty"`
	BackendMs int64 `json:"backend_ms,omitempty"`
	TotalMs   int64 `json:"total_ms,omitempty"`
}

// Undoable reports whether the patch is a valid undo target.
func (p *Patch) Undoable() bool {
	return p.Success && p.UndoneAt == nil
}

// BackendMessage is one chat message forwarded to a backend.
type BackendMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BackendRequest is the body of a backend command call.
type BackendRequest struct {
	Command  *CommandEnvelope `json:"command"`
	Messages []BackendMessage `json:"messages,omitempty"`
	System   string           `json:"system,omitempty"`
	Context  map[string]any   `json:"context,omitempty"`
}

// BackendResponse is the body returned by a backend command call.
type BackendResponse struct {
	Success    bool            `json:"success"`
	PatchID    string          `json:"patch_id,omitempty"`
	Patch      json.RawMessage `json:"patch,omitempty"`
	Diff       json.RawMessage `json:"diff,omitempty"`
	TokensUsed int64           `json:"tokens_used,omitempty"`
	Timings    *PatchTimings   `json:"timings,omitempty"`
	ETag       string          `json:"etag,omitempty"`
	Message    string          `json:"message,omitempty"`

	// Raw is the undecoded response body.
	Raw json.RawMessage `json:"-"`
}

// HasPatch reports whether the response carries a patch envelope.
func (r *BackendResponse) HasPatch() bool {
	return len(r.Patch) > 0 && string(r.Patch) != "null"
}

// UndoRequest is the body of a backend reverse call.
type UndoRequest struct {
	PatchID string `json:"patch_id"`
	ETag    string `json:"etag,omitempty"`
}

// ReverseResult is the body returned by a backend reverse call.
type ReverseResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
