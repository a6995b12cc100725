package cli

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cutover/internal/domain"
	"cutover/internal/orchestrator"
)

func newMonitorCmd(env *cliEnv) *cobra.Command {
	var (
		jobIDs       []string
		autoDiscover bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Follow already-running migration jobs until they finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.app.Orchestrator == nil {
				return domain.ErrConfiguration(nil, "monitoring jobs requires WORKER_URL")
			}

			if autoDiscover {
				active, err := env.app.History.ListJobs(cmd.Context(), true)
				if err != nil {
					return fmt.Errorf("discover active jobs: %w", err)
				}
				for _, job := range active {
					jobIDs = append(jobIDs, job.JobID)
				}
			}
			if len(jobIDs) == 0 {
				cmd.Println("no jobs to monitor")
				return nil
			}

			opts := orchestrator.Options{Parallelism: len(jobIDs)}
			if env.output != "json" {
				opts.OnProgress = newProgressRenderer(cmd, jobIDs)
			}

			results := env.app.Orchestrator.Watch(cmd.Context(), jobIDs, opts)
			if env.output != "json" {
				cmd.Println()
			}
			return reportJobResults(cmd, env, results)
		},
	}
	cmd.Flags().StringSliceVar(&jobIDs, "job-id", nil, "worker job ID to follow (repeatable)")
	cmd.Flags().BoolVar(&autoDiscover, "auto-discover", false, "follow every job recorded as pending or running")
	cmd.MarkFlagsOneRequired("job-id", "auto-discover")
	return cmd
}

// newProgressRenderer returns an OnProgress hook that drives one progress bar
// per job. Polling goroutines share the hook, so updates are serialized.
func newProgressRenderer(cmd *cobra.Command, jobIDs []string) func(string, *domain.WorkerStatus) {
	var mu sync.Mutex
	bars := make(map[string]*progressbar.ProgressBar, len(jobIDs))
	for _, id := range jobIDs {
		bars[id] = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(id),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
		)
	}
	return func(jobID string, status *domain.WorkerStatus) {
		mu.Lock()
		defer mu.Unlock()
		bar, ok := bars[jobID]
		if !ok {
			return
		}
		if status.CurrentStep != "" {
			bar.Describe(fmt.Sprintf("%s (%s)", jobID, status.CurrentStep))
		}
		_ = bar.Set(int(status.ProgressPercentage))
		switch {
		case status.Status == domain.JobStatusCompleted:
			_ = bar.Finish()
		case status.Status.Terminal():
			_ = bar.Exit()
		}
	}
}
