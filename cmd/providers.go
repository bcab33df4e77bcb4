package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/difranardo/vacancies-scrapper/internal/provider"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Lists the supported provider ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range provider.NewRegistry(rt.cfg.Timeouts(), rt.logger).IDs() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
					return fmt.Errorf("write provider: %w", err)
				}
			}
			return nil
		},
	}
}
