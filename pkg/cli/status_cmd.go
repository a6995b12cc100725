package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"cutover/internal/domain"
)

// statusReport is the machine-readable shape of the status command.
type statusReport struct {
	Configuration domain.ConfigurationSnapshot             `json:"configuration"`
	Backends      map[domain.Backend]domain.BackendSummary `json:"backends"`
	LatestRollout *domain.RolloutRun                       `json:"latest_rollout,omitempty"`
	ActiveJobs    []domain.JobResult                       `json:"active_jobs"`
}

func newStatusCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current flags, backend performance, and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			report := statusReport{
				Configuration: env.app.Flags.Get(ctx),
				Backends:      env.app.Monitor.Summary(),
			}

			latest, err := env.app.History.LatestRollout(ctx)
			var nf *domain.NotFoundError
			switch {
			case err == nil:
				report.LatestRollout = latest
			case errors.As(err, &nf):
				// No rollout has run yet.
			default:
				return fmt.Errorf("load latest rollout: %w", err)
			}

			report.ActiveJobs, err = env.app.History.ListJobs(ctx, true)
			if err != nil {
				return fmt.Errorf("load active jobs: %w", err)
			}

			if env.output == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}

			w := cmd.OutOrStdout()
			snap := report.Configuration
			fmt.Fprintf(w, "flags (version %s, fetched %s):\n", snap.Version, snap.FetchedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "    ingestion enabled: %v\n", snap.IngestionEnabled)
			fmt.Fprintf(w, "    query enabled:     %v\n", snap.QueryEnabled)
			fmt.Fprintf(w, "    traffic to target: %d%%\n", snap.EffectivePercentage())

			backends := make([]domain.Backend, 0, len(report.Backends))
			for b := range report.Backends {
				backends = append(backends, b)
			}
			sort.Slice(backends, func(i, j int) bool { return backends[i] < backends[j] })
			fmt.Fprintln(w, "backends:")
			for _, b := range backends {
				s := report.Backends[b]
				fmt.Fprintf(w, "    %-8s requests=%d  avg latency=%.1fms  error rate=%.2f%%\n",
					b, s.TotalRequests, s.AvgLatencyMs, s.ErrorRate*100)
			}

			if report.LatestRollout != nil {
				renderRollout(w, report.LatestRollout)
			}
			if len(report.ActiveJobs) > 0 {
				fmt.Fprintln(w, "active jobs:")
				for i := range report.ActiveJobs {
					renderJobResult(w, &report.ActiveJobs[i])
				}
			}
			return nil
		},
	}
}
