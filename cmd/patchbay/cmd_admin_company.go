package main

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/usecase/ledger"
)

func newCmdAdminCompany() *cobra.Command {
	c := &cobra.Command{
		Use:                "company",
		Aliases:            []string{"co"},
		Short:              "Company and credit admin commands",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.AddCommand(newCmdAdminCompanyList())
	c.AddCommand(newCmdAdminCompanyGet())
	c.AddCommand(newCmdAdminCompanyCreate())
	c.AddCommand(newCmdAdminCompanyUpdate())
	c.AddCommand(newCmdAdminCompanyGrant())
	c.AddCommand(newCmdAdminCompanyTransactions())
	return c
}

func buildLedgerUseCase(cmd *cobra.Command) (*ledger.UseCase, error) {
	s, err := buildServices(cmd)
	if err != nil {
		return nil, err
	}
	return s.Ledger, nil
}

func newCmdAdminCompanyList() *cobra.Command {
	return &cobra.Command{
		Use:                "list",
		Short:              "List companies",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildLedgerUseCase(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.ListCompanies(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, it := range out.Companies {
				if err := enc.Encode(it); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCmdAdminCompanyGet() *cobra.Command {
	return &cobra.Command{
		Use:                "get <id>",
		Short:              "Get a company with its balance",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildLedgerUseCase(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.GetCompany(ctx, &ledger.GetCompanyInput{CompanyID: args[0]})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Company)
		},
	}
}

func newCmdAdminCompanyCreate() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:                "create",
		Short:              "Create a company (from spec file); balance is granted as initial credits",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildLedgerUseCase(cmd)
			if err != nil {
				return err
			}
			var spec patchbaycfg.CompanySpec
			if err := readYAMLSpec(cmd, file, &spec); err != nil {
				return err
			}
			m, err := spec.ToModel(time.Now().UTC())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.CreateCompany(ctx, &ledger.CreateCompanyInput{
				ID:             spec.ID,
				Name:           spec.Name,
				Plan:           m.Plan,
				InitialCredits: spec.Balance,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Company)
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "Path to company spec (YAML), or '-' for stdin")
	_ = c.MarkFlagRequired("file")
	return c
}

func newCmdAdminCompanyUpdate() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:                "update <id>",
		Short:              "Update name or plan of a company (merge from spec)",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildLedgerUseCase(cmd)
			if err != nil {
				return err
			}
			var spec patchbaycfg.CompanySpec
			if err := readYAMLSpec(cmd, file, &spec); err != nil {
				return err
			}
			in := &ledger.UpdateCompanyInput{CompanyID: args[0]}
			if spec.Name != "" {
				in.Name = &spec.Name
			}
			if spec.AllowedEngines != nil || spec.Features != nil {
				m, err := spec.ToModel(time.Now().UTC())
				if err != nil {
					return err
				}
				in.Plan = &m.Plan
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.UpdateCompany(ctx, in)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Company)
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "Path to company spec (YAML), or '-' for stdin")
	_ = c.MarkFlagRequired("file")
	return c
}

func newCmdAdminCompanyGrant() *cobra.Command {
	var reason string
	c := &cobra.Command{
		Use:                "grant <id> <amount>",
		Short:              "Grant credits to a company",
		Args:               cobra.ExactArgs(2),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			uc, err := buildLedgerUseCase(cmd)
			if err != nil {
				return err
			}
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			ctx, cleanup := withCmdRunLogger(ctx, "company.grant", args[0])
			defer func() { cleanup(err) }()
			out, err := uc.Grant(ctx, &ledger.GrantInput{CompanyID: args[0], Amount: amount, Reason: reason})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out.Transaction)
		},
	}
	c.Flags().StringVar(&reason, "reason", "", "Reason recorded in the ledger")
	return c
}

func newCmdAdminCompanyTransactions() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:                "transactions <id>",
		Aliases:            []string{"tx"},
		Short:              "List ledger entries of a company, newest first",
		Args:               cobra.ExactArgs(1),
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := buildLedgerUseCase(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := uc.Transactions(ctx, &ledger.TransactionsInput{CompanyID: args[0], Limit: limit})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, it := range out.Transactions {
				if err := enc.Encode(it); err != nil {
					return err
				}
			}
			return nil
		},
	}
	c.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries (0 for all)")
	return c
}
