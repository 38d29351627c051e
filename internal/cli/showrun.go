package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stepcheck/internal/harness"
	"github.com/roach88/stepcheck/internal/store"
)

// ShowRunResult is the JSON payload of show-run.
type ShowRunResult struct {
	Run    *store.RunRecord `json:"run"`
	Report json.RawMessage  `json:"report"`
}

// NewShowRunCommand creates the show-run command.
func NewShowRunCommand(rootOpts *RootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "show-run <id>",
		Short: "Show one recorded run and its failed steps",
		Long: `Show one recorded run: its summary, failed steps, and the stored
report rendered as the run log.

Example:
  stepcheck show-run --db ./runs.db 0192f0c4-7a1e-7c3a-9d2b-5f0e8a1b2c3d`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openExisting(database)
			if err != nil {
				return err
			}
			defer st.Close()

			out := newFormatter(rootOpts, cmd)
			rec, err := st.GetRun(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				if out.IsJSON() {
					if err := out.Error(CodeNotFound, fmt.Sprintf("run not found: %s", args[0]), nil); err != nil {
						return err
					}
				}
				return WrapExitError(ExitCommandError, "run not found", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load run", err)
			}

			if out.IsJSON() {
				return out.Success(ShowRunResult{Run: rec, Report: json.RawMessage(rec.ReportJSON)})
			}

			var report harness.Report
			if err := json.Unmarshal([]byte(rec.ReportJSON), &report); err != nil {
				return WrapExitError(ExitCommandError, "stored report is unreadable", err)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "run:      %s (seq %d)\n", rec.ID, rec.Seq)
			fmt.Fprintf(&b, "recorded: %s\n", rec.RecordedAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(&b, "fixture:  %s (%s)\n", rec.FixtureName, rec.FixtureDigest)
			fmt.Fprintf(&b, "mode:     %s\n", rec.Mode)
			fmt.Fprintf(&b, "verdict:  %s\n", rec.Verdict)
			fmt.Fprintf(&b, "digest:   %s\n", rec.ReportDigest)
			if len(rec.Failures) > 0 {
				b.WriteString("failures:\n")
				for _, f := range rec.Failures {
					fmt.Fprintf(&b, "  step %d %s: %s\n", f.Step, f.Kind, f.Detail)
				}
			}
			b.WriteString("\n")
			b.WriteString(harness.Render(&report))
			return out.Success(strings.TrimSuffix(b.String(), "\n"))
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
