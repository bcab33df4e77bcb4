package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/provider"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
	"github.com/difranardo/vacancies-scrapper/internal/server"
)

type scrapeOptions struct {
	query    string
	location string
	pages    int
	headless bool
	out      string
}

func newScrapeCmd() *cobra.Command {
	var opts scrapeOptions
	cmd := &cobra.Command{
		Use:   "scrape <provider>",
		Short: "Runs one scrape in-process and writes the accepted records as JSON",
		Long: `Runs a single job against the given provider, waits for it to finish and
writes the accepted records as a JSON array to --out (stdout when empty).
Interrupting the command keeps the records gathered so far.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), rt, args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.query, "query", "", "search keywords")
	cmd.Flags().StringVar(&opts.location, "location", "", "location filter")
	cmd.Flags().IntVar(&opts.pages, "pages", 0, "maximum listing pages (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.headless, "headless", true, "run the browser headless (chromedp driver)")
	cmd.Flags().StringVar(&opts.out, "out", "", "output file for the JSON records")
	return cmd
}

func runScrape(ctx context.Context, rt *runtime, providerID string, opts scrapeOptions, stdout io.Writer) error {
	if opts.pages < 0 {
		return fmt.Errorf("--pages must not be negative")
	}
	// Reject unknown providers before any infrastructure is opened.
	if _, err := provider.NewRegistry(rt.cfg.Timeouts(), rt.logger).Lookup(providerID); err != nil {
		return err
	}

	app, err := server.Build(ctx, rt.cfg, rt.logger, server.Options{})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.ShutdownTimeout())
		defer cancel()
		if cerr := app.Close(closeCtx); cerr != nil {
			rt.logger.Warn("close app failed", zap.Error(cerr))
		}
	}()

	params := scrape.SearchParams{Query: opts.query, Location: opts.location, Headless: opts.headless}
	if opts.pages > 0 {
		params.MaxPages = &opts.pages
	}
	svc := app.Jobs()
	jobID, err := svc.Submit(ctx, providerID, params)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := app.WaitJobs(ctx); err != nil {
		rt.logger.Warn("scrape interrupted, writing partial results", zap.Error(err))
	}

	status := svc.Status(jobID)
	records, _ := svc.Results(jobID)
	if records == nil {
		records = []scrape.Record{}
	}
	rt.logger.Info("scrape finished",
		zap.String("job_id", jobID),
		zap.String("status", string(status.State)),
		zap.Int("records", status.RecordCount),
		zap.Int("failed", status.FailedCount),
	)
	return writeRecords(opts.out, stdout, records)
}

func writeRecords(path string, stdout io.Writer, records []scrape.Record) (err error) {
	w := stdout
	if path != "" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return fmt.Errorf("create output: %w", createErr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}
