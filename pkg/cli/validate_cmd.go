package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cutover/internal/domain"
	"cutover/internal/validator"
)

func newValidateCmd(env *cliEnv) *cobra.Command {
	var (
		table         string
		all           bool
		from, to      string
		parallelism   int
		stopOnFailure bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate migrated data integrity for one table or the whole manifest",
		Long: "Runs count, time-range, schema, sample, and checksum comparisons between the " +
			"source and target backends for the requested tables and time range.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.app.Validator == nil {
				return domain.ErrConfiguration(nil, "validation requires SOURCE_DSN and TARGET_DSN")
			}
			r, err := parseRangeFlags(from, to)
			if err != nil {
				return err
			}

			specs, err := resolveSpecs(env, table, all, r)
			if err != nil {
				return err
			}

			if parallelism == 0 {
				parallelism = env.app.Cfg.Validation.Parallelism
			}
			summary := env.app.Validator.ValidateMany(cmd.Context(), specs, validator.BatchOptions{
				Parallelism:   parallelism,
				StopOnFailure: stopOnFailure,
			})

			for _, result := range summary.Results {
				if err := env.app.History.RecordValidation(cmd.Context(), result); err != nil {
					env.app.Logger.Warn("recording validation result failed", "error", err)
				}
			}

			if env.output == "json" {
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				for _, result := range summary.Results {
					renderValidation(w, result)
				}
				fmt.Fprintf(w, "%d passed, %d warned, %d failed, %d skipped\n",
					summary.Passed, summary.Warned, summary.Failed, summary.Skipped)
			}

			switch summary.Status {
			case domain.ValidationFailed:
				return fmt.Errorf("validation failed for %d of %d tables", summary.Failed, len(summary.Results))
			case domain.ValidationWarning:
				return errWarning
			default:
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "validate a single table")
	cmd.Flags().BoolVar(&all, "all", false, "validate every table in the manifest")
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC3339 or YYYY-MM-DD), required")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC3339 or YYYY-MM-DD), required")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "concurrent table validations (default from config)")
	cmd.Flags().BoolVar(&stopOnFailure, "stop-on-failure", false, "skip remaining tables after a failure (sequential only)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	cmd.MarkFlagsOneRequired("table", "all")
	cmd.MarkFlagsMutuallyExclusive("table", "all")
	return cmd
}

// resolveSpecs maps the command flags to table specs, preferring manifest
// entries so column metadata and critical fields apply.
func resolveSpecs(env *cliEnv, table string, all bool, r domain.TimeRange) ([]domain.TableSpec, error) {
	if all {
		if env.app.Manifest == nil {
			return nil, domain.ErrConfiguration(nil, "--all requires a table manifest at %s", env.app.Cfg.TableManifest)
		}
		return env.app.Manifest.Specs(r), nil
	}

	if env.app.Manifest != nil {
		if entry, ok := env.app.Manifest.Find(table); ok {
			return []domain.TableSpec{entry.Spec(r)}, nil
		}
	}
	return []domain.TableSpec{{Table: table, TargetLocation: table, Range: r}}, nil
}

func parseRangeFlags(from, to string) (domain.TimeRange, error) {
	start, err := parseTimeFlag("from", from)
	if err != nil {
		return domain.TimeRange{}, err
	}
	end, err := parseTimeFlag("to", to)
	if err != nil {
		return domain.TimeRange{}, err
	}
	r := domain.TimeRange{Start: start, End: end}
	return r, r.Validate()
}

func parseTimeFlag(name, value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.ErrValidation("invalid --%s value %q: want RFC3339 or YYYY-MM-DD", name, value)
}
