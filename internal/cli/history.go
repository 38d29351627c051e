package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stepcheck/internal/store"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		database string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Long: `List runs recorded with "stepcheck run --db", newest first.

Examples:
  stepcheck history --db ./runs.db
  stepcheck history --db ./runs.db --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openExisting(database)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list runs", err)
			}

			out := newFormatter(rootOpts, cmd)
			if out.IsJSON() {
				return out.Success(runs)
			}
			if len(runs) == 0 {
				return out.Success("No runs recorded.")
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%4s  %-36s  %-7s  %-9s  %-20s  %s\n", "SEQ", "ID", "VERDICT", "PASS", "RECORDED", "FIXTURE")
			for _, r := range runs {
				fmt.Fprintf(&b, "%4d  %-36s  %-7s  %-9s  %-20s  %s\n",
					r.Seq, r.ID, r.Verdict,
					fmt.Sprintf("%d/%d", r.PassCount, r.Steps),
					r.RecordedAt.UTC().Format(time.RFC3339),
					r.FixtureName)
			}
			return out.Success(strings.TrimSuffix(b.String(), "\n"))
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 for all)")

	return cmd
}

// openExisting opens a store that must already exist. store.Open would
// create an empty database instead.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
