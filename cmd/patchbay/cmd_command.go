package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kompox/patchbay/internal/logging"
	"github.com/kompox/patchbay/usecase/command"
)

func newCmdCommand() *cobra.Command {
	c := &cobra.Command{
		Use:                "command",
		Aliases:            []string{"cmd"},
		Short:              "Run commands against a workspace backend",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.AddCommand(newCmdCommandRun())
	c.AddCommand(newCmdCommandAsk())
	return c
}

// stopSessions tears down the sessions started by this process. Bindings
// left behind would be discarded by the next process anyway.
func stopSessions(ctx context.Context, s *services) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.Sessions.StopAll(ctx); err != nil {
		logging.FromContext(ctx).Warn(ctx, "stop sessions failed", "err", err)
	}
}

func newCmdCommandRun() *cobra.Command {
	var (
		file           string
		engine         string
		maxOps         int
		contextPairs   []string
		conversationID string
		asJSON         bool
		timeout        time.Duration
	)
	c := &cobra.Command{
		Use:                "run <workspace> [instruction...]",
		Short:              "Dispatch one command (envelope file or free text)",
		Args:               cobra.MinimumNArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			var raw json.RawMessage
			if file != "" {
				raw, err = readEnvelopeFile(cmd, file)
			} else {
				raw, err = envelopeFromText(strings.Join(args[1:], " "), engine, maxOps)
			}
			if err != nil {
				return err
			}
			extra, err := parseKeyValues(contextPairs)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ctx, cleanup := withCmdRunLogger(ctx, "command.run", args[0])
			defer func() { cleanup(err) }()
			defer stopSessions(ctx, s)

			out, err := s.Commands.Dispatch(ctx, &command.DispatchInput{
				WorkspaceID:    args[0],
				Envelope:       raw,
				Context:        extra,
				ConversationID: conversationID,
			})
			if out != nil {
				if asJSON {
					if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
						return werr
					}
				} else {
					renderDispatch(cmd.OutOrStdout(), out)
				}
			}
			if err != nil {
				return err
			}
			if !out.Success {
				return errors.New("backend reported failure")
			}
			return nil
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "Envelope file (JSON or JSONC), or '-' for stdin")
	c.Flags().StringVar(&engine, "engine", "", "Explicit engine for a free-text instruction")
	c.Flags().IntVar(&maxOps, "max-ops", 0, "Operation ceiling for a free-text instruction")
	c.Flags().StringArrayVar(&contextPairs, "context", nil, "Context entry key=value passed to the backend (repeatable)")
	c.Flags().StringVar(&conversationID, "conversation", "", "Conversation id to record the exchange under")
	c.Flags().BoolVar(&asJSON, "json", false, "Print the raw dispatch result as JSON")
	c.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout")
	return c
}

func newCmdCommandAsk() *cobra.Command {
	return &cobra.Command{
		Use:                "ask <workspace> <prompt...>",
		Short:              "Ask the agent to plan a command",
		Args:               cobra.MinimumNArgs(2),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			ctx, cleanup := withCmdRunLogger(cmd.Context(), "command.ask", args[0])
			defer func() { cleanup(err) }()
			out, err := s.Commands.Ask(ctx, &command.AskInput{
				WorkspaceID: args[0],
				Prompt:      strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
