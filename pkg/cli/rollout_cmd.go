package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cutover/internal/domain"
)

func newEnableQueriesCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "enable-queries",
		Short: "Enable query routing to the target backend at 0% traffic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.app.Controller.EnableQueries(cmd.Context()); err != nil {
				return err
			}
			snapshot := env.app.Flags.Get(cmd.Context())
			cmd.Printf("queries enabled (version %s, traffic %d%%)\n",
				snapshot.Version, snapshot.EffectivePercentage())
			return nil
		},
	}
}

func newSetPercentageCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "set-percentage <percentage>",
		Short: "Deploy a specific target-backend traffic percentage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.Atoi(args[0])
			if err != nil {
				return domain.ErrValidation("percentage must be an integer, got %q", args[0])
			}
			if err := env.app.Controller.SetPercentage(cmd.Context(), pct); err != nil {
				return err
			}
			cmd.Printf("traffic percentage set to %d%%\n", pct)
			return nil
		},
	}
}

func newGradualRolloutCmd(env *cliEnv) *cobra.Command {
	var (
		target int
		step   int
		wait   string
	)
	cmd := &cobra.Command{
		Use:   "gradual-rollout",
		Short: "Ramp target-backend traffic to a goal in supervised steps",
		Long: "Ramps the target backend's traffic share toward --target in steps of --step " +
			"percentage points, soaking for --wait after each step and rolling back to the " +
			"last healthy percentage if error rate or latency degrade.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.app.Cfg
			stepWait := cfg.Rollout.DefaultStepWait
			if wait != "" {
				var err error
				stepWait, err = parseDurationFlag("wait", wait)
				if err != nil {
					return err
				}
			}
			if step == 0 {
				step = cfg.Rollout.DefaultStepSize
			}

			// Summaries keep flowing to the sink while the ramp soaks.
			env.app.Publisher.Start()
			defer env.app.Publisher.Stop()

			run, err := env.app.Controller.Run(cmd.Context(), target, step, stepWait)
			if run != nil {
				if env.output == "json" {
					_ = printJSON(cmd.OutOrStdout(), run)
				} else {
					renderRollout(cmd.OutOrStdout(), run)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&target, "target", 100, "target traffic percentage [0,100]")
	cmd.Flags().IntVar(&step, "step", 0, "percentage points per step (default from config)")
	cmd.Flags().StringVar(&wait, "wait", "", "soak time per step, e.g. 5m (default from config)")
	return cmd
}

func parseDurationFlag(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value %q: %w", name, value, err)
	}
	return d, nil
}
