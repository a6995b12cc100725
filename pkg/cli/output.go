package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cutover/internal/domain"
)

const timePrecision = 10 * time.Millisecond

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderValidation(w io.Writer, r *domain.ValidationResult) {
	fmt.Fprintf(w, "%s  %s -> %s  [%s]  (%s)\n",
		statusGlyph(string(r.Status)), r.SourceTable, r.TargetLocation, r.Status, r.Duration.Round(timePrecision))
	fmt.Fprintf(w, "    counts: source=%d target=%d  sample accuracy: %.2f%%  checksum match: %v  time range match: %v\n",
		r.SourceCount, r.TargetCount, r.SampleAccuracy*100, r.ChecksumMatch, r.TimeRangeMatch)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "    error: %s\n", e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "    warning: %s\n", warn)
	}
}

func renderJobResult(w io.Writer, r *domain.JobResult) {
	fmt.Fprintf(w, "%s  %s  table=%s  [%s]  %.1f%%  records=%d\n",
		statusGlyph(string(r.Status)), r.JobID, r.Table, r.Status, r.ProgressPercentage, r.ExportedRecords)
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "    error: %s\n", r.ErrorMessage)
	}
	if r.Validation != nil {
		renderValidation(w, r.Validation)
	}
}

func renderRollout(w io.Writer, run *domain.RolloutRun) {
	fmt.Fprintf(w, "rollout %s  stage=%s  %d%% -> %d%% (step %d, reached %d%%)\n",
		run.ID, run.Stage, run.StartPercentage, run.TargetPercentage, run.StepSize, run.FinalPercentage)
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "    error: %s\n", run.ErrorMessage)
	}
}

func statusGlyph(status string) string {
	switch strings.ToLower(status) {
	case "passed", "completed", "complete":
		return "OK "
	case "warning":
		return "WRN"
	case "failed", "timeout", "rolled_back":
		return "ERR"
	default:
		return "..."
	}
}
