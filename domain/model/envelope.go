package model

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Default and hard ceilings for the number of actions in one envelope.
const (
	DefaultMaxOps = 50
	HardMaxOps    = 200
)

// CommandEnvelope is an untrusted structured command submitted for execution.
type CommandEnvelope struct {
	ID          string         `json:"id,omitempty"`
	Instruction string         `json:"instruction"`
	Actions     []Action       `json:"actions,omitempty"`
	Constraints *Constraints   `json:"constraints,omitempty"`
	Engine      string         `json:"engine,omitempty"`
	System      string         `json:"system,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Action is one primitive edit operation.
type Action struct {
	Type   string         `json:"type"`
	Target string         `json:"target,omitempty"`
	Name   string         `json:"name,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Constraints bound the execution of an envelope.
type Constraints struct {
	MaxOps int `json:"maxOps,omitempty"`
}

// MaxOps returns the effective operation ceiling of the envelope given the
// configured default and hard ceiling.
func (e *CommandEnvelope) MaxOps(def, hard int) int {
	if def <= 0 {
		def = DefaultMaxOps
	}
	if hard <= 0 {
		hard = HardMaxOps
	}
	limit := def
	if e.Constraints != nil && e.Constraints.MaxOps > 0 {
		limit = e.Constraints.MaxOps
	}
	if limit > hard {
		limit = hard
	}
	return limit
}

// Text returns all free text of the envelope (instruction, system prompt and
// serialized actions) joined by newlines.
func (e *CommandEnvelope) Text() string {
	var b strings.Builder
	b.WriteString(e.Instruction)
	if e.System != "" {
		b.WriteString("\n")
		b.WriteString(e.System)
	}
	for _, a := range e.Actions {
		raw, err := json.Marshal(a)
		if err != nil {
			continue
		}
		b.WriteString("\n")
		b.Write(raw)
	}
	return b.String()
}

// Preview returns at most n runes of the instruction.
func (e *CommandEnvelope) Preview(n int) string {
	s := strings.TrimSpace(e.Instruction)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
