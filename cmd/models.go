package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Print the provider and model catalog as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.orchestrator.Catalog(cmd.Context(), live, nil))
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "ask each configured provider for its current models")
	return cmd
}
