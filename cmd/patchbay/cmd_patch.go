package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kompox/patchbay/adapters/httpapi"
	"github.com/kompox/patchbay/internal/diffblob"
	"github.com/kompox/patchbay/usecase/patch"
)

func newCmdPatch() *cobra.Command {
	c := &cobra.Command{
		Use:                "patch",
		Short:              "Inspect and undo recorded patches",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.AddCommand(newCmdPatchList())
	c.AddCommand(newCmdPatchShow())
	c.AddCommand(newCmdPatchUndo())
	return c
}

func newCmdPatchList() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	c := &cobra.Command{
		Use:                "list <workspace>",
		Short:              "List patches of a workspace, newest first",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			out, err := s.Patches.List(ctx, &patch.ListInput{WorkspaceID: args[0], Limit: limit})
			if err != nil {
				return err
			}
			if !asJSON {
				renderPatches(cmd.OutOrStdout(), out.Patches)
				return nil
			}
			views := make([]httpapi.PatchView, 0, len(out.Patches))
			for _, p := range out.Patches {
				views = append(views, httpapi.NewPatchView(p))
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "Maximum number of patches (0 for all)")
	c.Flags().BoolVar(&asJSON, "json", false, "Print patches as JSON")
	return c
}

// patchDetail is a patch with its decoded reverse diff.
type patchDetail struct {
	httpapi.PatchView
	Reverse *diffblob.Reverse `json:"reverse_diff,omitempty"`
}

func newCmdPatchShow() *cobra.Command {
	return &cobra.Command{
		Use:                "show <workspace> <patch>",
		Short:              "Show a patch and its reverse diff",
		Args:               cobra.ExactArgs(2),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			p, err := s.Patches.FindByPatchID(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			detail := patchDetail{PatchView: httpapi.NewPatchView(p)}
			if len(p.ReverseDiff) > 0 {
				if detail.Reverse, err = diffblob.Decode(p.ReverseDiff); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), detail)
		},
	}
}

func newCmdPatchUndo() *cobra.Command {
	var timeout time.Duration
	c := &cobra.Command{
		Use:                "undo <workspace> <patch>",
		Short:              "Reverse a patch through the engine backend",
		Args:               cobra.ExactArgs(2),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ctx, cleanup := withCmdRunLogger(ctx, "patch.undo", args[0]+"/"+args[1])
			defer func() { cleanup(err) }()
			defer stopSessions(ctx, s)
			out, err := s.Patches.Undo(ctx, &patch.UndoInput{WorkspaceID: args[0], PatchID: args[1]})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"success": out.Result.Success,
				"patch":   httpapi.NewPatchView(out.Patch),
				"result":  out.Result,
			})
		},
	}
	c.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	return c
}
