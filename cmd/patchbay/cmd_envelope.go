package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newCmdEnvelope() *cobra.Command {
	c := &cobra.Command{
		Use:                "envelope",
		Aliases:            []string{"env"},
		Short:              "Envelope tools",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.AddCommand(newCmdEnvelopeValidate())
	return c
}

func newCmdEnvelopeValidate() *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	c := &cobra.Command{
		Use:                "validate",
		Short:              "Validate an envelope against the schema and operation ceiling",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd)
			if err != nil {
				return err
			}
			raw, err := readEnvelopeFile(cmd, file)
			if err != nil {
				return err
			}
			res := s.Validator.Validate(raw)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				renderValidation(cmd.OutOrStdout(), res)
			}
			if !res.Valid {
				return errors.New("envelope is invalid")
			}
			return nil
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "Envelope file (JSON or JSONC), or '-' for stdin")
	c.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	_ = c.MarkFlagRequired("file")
	return c
}
