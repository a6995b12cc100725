package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cutover/internal/domain"
	"cutover/internal/orchestrator"
)

func newExecuteMigrationCmd(env *cliEnv) *cobra.Command {
	var (
		table         string
		all           bool
		from, to      string
		batchSize     int
		parallelism   int
		stopOnFailure bool
		pollInterval  string
		timeout       string
		validate      bool
		dryRun        bool
	)
	cmd := &cobra.Command{
		Use:   "execute-migration",
		Short: "Launch migration jobs on the external worker and supervise them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.app.Orchestrator == nil {
				return domain.ErrConfiguration(nil, "migration jobs require WORKER_URL")
			}
			r, err := parseRangeFlags(from, to)
			if err != nil {
				return err
			}
			specs, err := resolveSpecs(env, table, all, r)
			if err != nil {
				return err
			}
			if validate && env.app.Validator == nil {
				return domain.ErrConfiguration(nil, "--validate requires SOURCE_DSN and TARGET_DSN")
			}

			if batchSize == 0 {
				batchSize = env.app.Cfg.Jobs.BatchSize
			}
			jobs := make([]domain.MigrationJob, len(specs))
			for i, spec := range specs {
				jobs[i] = domain.MigrationJob{
					Table:              spec.Table,
					TargetLocation:     spec.TargetLocation,
					Range:              spec.Range,
					BatchSize:          batchSize,
					ValidateOnComplete: validate,
				}
			}

			if dryRun {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "would launch %d job(s):\n", len(jobs))
				for _, job := range jobs {
					fmt.Fprintf(w, "    %s -> %s  range %s  batch %d\n",
						job.Table, job.TargetLocation, job.Range, job.BatchSize)
				}
				return nil
			}

			opts := orchestrator.Options{
				Parallelism:   parallelism,
				StopOnFailure: stopOnFailure,
			}
			if opts.PollInterval, err = optionalDurationFlag("poll-interval", pollInterval); err != nil {
				return err
			}
			if opts.Timeout, err = optionalDurationFlag("timeout", timeout); err != nil {
				return err
			}
			if parallelism == 0 {
				opts.Parallelism = env.app.Cfg.Jobs.Parallelism
			}

			results := env.app.Orchestrator.Run(cmd.Context(), jobs, opts)
			return reportJobResults(cmd, env, results)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "migrate a single table")
	cmd.Flags().BoolVar(&all, "all", false, "migrate every table in the manifest")
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC3339 or YYYY-MM-DD), required")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC3339 or YYYY-MM-DD), required")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per worker batch (default from config)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "concurrent jobs (default from config)")
	cmd.Flags().BoolVar(&stopOnFailure, "stop-on-failure", false, "skip remaining jobs after a failure (sequential only)")
	cmd.Flags().StringVar(&pollInterval, "poll-interval", "", "worker status poll interval (default from config)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "per-job deadline, e.g. 4h (default from config)")
	cmd.Flags().BoolVar(&validate, "validate", false, "run integrity validation after each completed job")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the jobs without launching them")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	cmd.MarkFlagsOneRequired("table", "all")
	cmd.MarkFlagsMutuallyExclusive("table", "all")
	return cmd
}

func optionalDurationFlag(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return parseDurationFlag(name, value)
}

// reportJobResults prints results and maps the worst outcome to the exit
// code: failure beats warning beats success.
func reportJobResults(cmd *cobra.Command, env *cliEnv, results []*domain.JobResult) error {
	if env.output == "json" {
		if err := printJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, result := range results {
			renderJobResult(w, result)
		}
	}

	failed, warned := 0, 0
	for _, result := range results {
		if result.Status != domain.JobStatusCompleted {
			failed++
			continue
		}
		if result.Validation != nil && result.Validation.Status == domain.ValidationWarning {
			warned++
		}
	}
	switch {
	case failed > 0:
		return fmt.Errorf("%d of %d jobs did not complete", failed, len(results))
	case warned > 0:
		return errWarning
	default:
		return nil
	}
}
