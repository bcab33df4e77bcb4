package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/difranardo/vacancies-scrapper/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		Long: `Starts the job API. Jobs are submitted with POST /v1/jobs, polled with
GET /v1/jobs/{id} and collected from /v1/jobs/{id}/results. SIGINT or SIGTERM
drains running jobs before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), rt.cfg, rt.logger, server.Options{})
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}
