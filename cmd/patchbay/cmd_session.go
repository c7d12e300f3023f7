package main

import (
	"context"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/usecase/workspace"
)

// sessionRow describes one session: live in this process, or only recorded
// as a workspace binding by another process.
type sessionRow struct {
	WorkspaceID string           `json:"workspace_id"`
	EngineType  model.EngineType `json:"engine_type"`
	Port        int              `json:"port"`
	PID         int              `json:"pid,omitempty"`
	PreviewURL  string           `json:"preview_url,omitempty"`
	Live        bool             `json:"live"`
	Health      model.Health     `json:"health,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	LastUsedAt  *time.Time       `json:"last_used_at,omitempty"`
}

// sessionRows merges live sessions with recorded bindings. A live session
// wins over the binding of the same workspace.
func sessionRows(live []*model.ExecutionSession, workspaces []*model.Workspace) []sessionRow {
	seen := make(map[string]bool, len(live))
	rows := make([]sessionRow, 0, len(live)+len(workspaces))
	for _, s := range live {
		started, used := s.StartedAt, s.LastUsedAt
		rows = append(rows, sessionRow{
			WorkspaceID: s.WorkspaceID,
			EngineType:  s.EngineType,
			Port:        s.Port,
			PID:         s.PID,
			Live:        true,
			Health:      s.Health,
			StartedAt:   &started,
			LastUsedAt:  &used,
		})
		seen[s.WorkspaceID] = true
	}
	for _, ws := range workspaces {
		if seen[ws.ID] || !ws.HasSessionBinding() {
			continue
		}
		rows = append(rows, sessionRow{
			WorkspaceID: ws.ID,
			EngineType:  ws.EngineType,
			Port:        ws.SessionPort,
			PID:         ws.SessionPID,
			PreviewURL:  ws.PreviewURL,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].WorkspaceID < rows[j].WorkspaceID })
	return rows
}

func newCmdSession() *cobra.Command {
	c := &cobra.Command{
		Use:                "session",
		Short:              "Inspect and stop backend sessions",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.AddCommand(newCmdSessionList())
	c.AddCommand(newCmdSessionStop())
	return c
}

func newCmdSessionList() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:                "list",
		Short:              "List sessions and recorded session bindings",
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
			out, err := s.Workspaces.List(ctx, &workspace.ListInput{})
			if err != nil {
				return err
			}
			rows := sessionRows(s.Sessions.List(ctx), out.Workspaces)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			renderSessions(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "Print sessions as JSON")
	return c
}

func newCmdSessionStop() *cobra.Command {
	return &cobra.Command{
		Use:                "stop <workspace>",
		Short:              "Stop the session of a workspace and clear its binding",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ctx, cleanup := withCmdRunLogger(ctx, "session.stop", args[0])
			defer func() { cleanup(err) }()
			return s.Sessions.Stop(ctx, args[0])
		},
	}
}
