package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/usecase/command"
	"github.com/kompox/patchbay/usecase/envelope"
)

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mark(ok bool) string {
	if ok {
		return color.GreenString("✓")
	}
	return color.RedString("✗")
}

// renderDispatch prints the outcome of one command.
func renderDispatch(w io.Writer, out *command.DispatchOutput) {
	md := out.Metadata
	fmt.Fprintf(w, "[%s] %s\n", mark(out.Success), out.Message)
	fmt.Fprintf(w, "  engine:    %s (%s)\n", color.CyanString(string(md.EngineType)), md.DetectedBy)
	if md.PatchID != "" {
		fmt.Fprintf(w, "  patch:     %s\n", md.PatchID)
	}
	fmt.Fprintf(w, "  credits:   %d used, %d remaining", md.CreditsUsed, md.CreditsRemaining)
	if md.Surcharge > 0 {
		fmt.Fprintf(w, " (surcharge %d)", md.Surcharge)
	}
	fmt.Fprintln(w)
	if len(md.Capabilities) > 0 {
		fmt.Fprintf(w, "  features:  %s\n", strings.Join(md.Capabilities, ", "))
	}
	if len(md.Compatibility.OwnMatches) > 0 {
		fmt.Fprintf(w, "  signals:   %s\n", strings.Join(md.Compatibility.OwnMatches, ", "))
	}
}

// renderPatches prints one line per patch, newest first.
func renderPatches(w io.Writer, patches []*model.Patch) {
	if len(patches) == 0 {
		fmt.Fprintln(w, "no patches")
		return
	}
	for _, p := range patches {
		state := ""
		if p.UndoneAt != nil {
			state = color.YellowString(" undone")
		}
		fmt.Fprintf(w, "[%s] %s  %s  %d credits  %s%s\n",
			mark(p.Success), p.PatchID, p.EngineType, p.CreditsCharged,
			p.CreatedAt.Format("2006-01-02 15:04:05"), state)
	}
}

// renderValidation prints a validation result.
func renderValidation(w io.Writer, res *envelope.Result) {
	if res.Valid {
		fmt.Fprintf(w, "[%s] valid (%d/%d operations)\n", mark(true), res.Count, res.Limit)
		return
	}
	fmt.Fprintf(w, "[%s] invalid\n", mark(false))
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s: %s %s\n", color.YellowString(e.Field), e.Kind, e.Message)
	}
}

// renderSessions prints workspace session bindings.
func renderSessions(w io.Writer, rows []sessionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	for _, r := range rows {
		live := color.YellowString("recorded")
		if r.Live {
			live = color.GreenString(string(r.Health))
		}
		fmt.Fprintf(w, "%s  %s  port=%d pid=%d  %s", r.WorkspaceID, r.EngineType, r.Port, r.PID, live)
		if r.PreviewURL != "" {
			fmt.Fprintf(w, "  %s", r.PreviewURL)
		}
		fmt.Fprintln(w)
	}
}
