package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/usecase/workspace"
)

func newCmdAdminWorkspace() *cobra.Command {
	c := &cobra.Command{
		Use:                "workspace",
		Aliases:            []string{"ws"},
		Short:              "Workspace admin commands",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.AddCommand(newCmdAdminWorkspaceList())
	c.AddCommand(newCmdAdminWorkspaceGet())
	c.AddCommand(newCmdAdminWorkspaceCreate())
	c.AddCommand(newCmdAdminWorkspaceFromTemplate())
	c.AddCommand(newCmdAdminWorkspaceUpdate())
	c.AddCommand(newCmdAdminWorkspaceDelete())
	c.AddCommand(newCmdAdminWorkspaceStatus())
	return c
}

func buildWorkspaceUseCase(cmd *cobra.Command) (*workspace.UseCase, error) {
	s, err := buildServices(cmd)
	if err != nil {
		return nil, err
	}
	return s.Workspaces, nil
}

func newCmdAdminWorkspaceList() *cobra.Command {
	var company, engine string
	c := &cobra.Command{
		Use:                "list",
		Short:              "List workspaces",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildWorkspaceUseCase(cmd)
			if err != nil {
				return err
			}
			in := &workspace.ListInput{CompanyID: company}
			if engine != "" {
				if in.EngineType, err = model.ParseEngineType(engine); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.List(ctx, in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, it := range out.Workspaces {
				if err := enc.Encode(it); err != nil {
					return err
				}
			}
			return nil
		},
	}
	c.Flags().StringVar(&company, "company", "", "Only workspaces of this company")
	c.Flags().StringVar(&engine, "engine", "", "Only workspaces of this engine")
	return c
}

func newCmdAdminWorkspaceGet() *cobra.Command {
	return &cobra.Command{
		Use:                "get <id>",
		Short:              "Get a workspace",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildWorkspaceUseCase(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.Get(ctx, &workspace.GetInput{WorkspaceID: args[0]})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Workspace)
		},
	}
}

func newCmdAdminWorkspaceCreate() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:                "create",
		Short:              "Create a workspace for an existing project (from spec file)",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildWorkspaceUseCase(cmd)
			if err != nil {
				return err
			}
			var spec patchbaycfg.WorkspaceSpec
			if err := readYAMLSpec(cmd, file, &spec); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.Create(ctx, &workspace.CreateInput{
				ID:         spec.ID,
				Name:       spec.Name,
				CompanyID:  spec.CompanyID,
				EngineType: spec.Engine,
				Status:     spec.Status,
				TemplateID: spec.TemplateID,
				ProjectDir: spec.ProjectDir,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Workspace)
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "Path to workspace spec (YAML), or '-' for stdin")
	_ = c.MarkFlagRequired("file")
	return c
}

func newCmdAdminWorkspaceFromTemplate() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:                "from-template",
		Short:              "Create a workspace and its project directory from a template (spec file)",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			uc, err := buildWorkspaceUseCase(cmd)
			if err != nil {
				return err
			}
			var spec patchbaycfg.WorkspaceSpec
			if err := readYAMLSpec(cmd, file, &spec); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ctx, cleanup := withCmdRunLogger(ctx, "workspace.from-template", spec.Name)
			defer func() { cleanup(err) }()
			out, err := uc.CreateFromTemplate(ctx, &workspace.CreateFromTemplateInput{
				Name:       spec.Name,
				CompanyID:  spec.CompanyID,
				EngineType: spec.Engine,
				TemplateID: spec.TemplateID,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Workspace)
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "Path to workspace spec (YAML), or '-' for stdin")
	_ = c.MarkFlagRequired("file")
	return c
}

func newCmdAdminWorkspaceUpdate() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:                "update <id>",
		Short:              "Update a workspace (merge from spec)",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildWorkspaceUseCase(cmd)
			if err != nil {
				return err
			}
			var spec patchbaycfg.WorkspaceSpec
			if err := readYAMLSpec(cmd, file, &spec); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			in := &workspace.UpdateInput{WorkspaceID: args[0]}
			if spec.Name != "" {
				in.Name = &spec.Name
			}
			if spec.ProjectDir != "" {
				in.ProjectDir = &spec.ProjectDir
			}
			out, err := uc.Update(ctx, in)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Workspace)
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "Path to workspace spec (YAML), or '-' for stdin")
	_ = c.MarkFlagRequired("file")
	return c
}

func newCmdAdminWorkspaceDelete() *cobra.Command {
	return &cobra.Command{
		Use:                "delete <id>",
		Short:              "Delete a workspace",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			uc, err := buildWorkspaceUseCase(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ctx, cleanup := withCmdRunLogger(ctx, "workspace.delete", args[0])
			defer func() { cleanup(err) }()
			_, err = uc.Delete(ctx, &workspace.DeleteInput{WorkspaceID: args[0]})
			return err
		},
	}
}

func newCmdAdminWorkspaceStatus() *cobra.Command {
	return &cobra.Command{
		Use:                "status <id> <status>",
		Short:              "Move a workspace to another status (initializing|ready|building|published|error)",
		Args:               cobra.ExactArgs(2),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			uc, err := buildWorkspaceUseCase(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			ctx, cleanup := withCmdRunLogger(ctx, "workspace.status", args[0])
			defer func() { cleanup(err) }()
			out, err := uc.Transition(ctx, &workspace.TransitionInput{WorkspaceID: args[0], To: args[1]})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Workspace)
		},
	}
}
