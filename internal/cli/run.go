package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stepcheck/internal/config"
	"github.com/roach88/stepcheck/internal/fixture"
	"github.com/roach88/stepcheck/internal/harness"
	"github.com/roach88/stepcheck/internal/store"
	"github.com/roach88/stepcheck/internal/testutil"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Fixture    string
	Mode       string
	Window     int
	Steps      int
	Database   string
	Timeout    time.Duration
	faults     faultSpec

	// IDs overrides the run ID generator (for testing).
	// If nil, defaults to store.UUIDv7Generator.
	IDs store.IDGenerator

	// Now overrides the recording clock (for testing).
	Now func() time.Time
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Report *harness.Report `json:"report"`
	Digest string          `json:"digest"`
	RunID  string          `json:"run_id,omitempty"`
	Seq    int64           `json:"seq,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the step suite against a fixture",
		Long: `Run the step suite against the replay unit of a golden fixture.

The replay unit performs the fixture's recorded writes, so a clean run
passes every step. Faults can be injected to exercise the harness.

Exit codes:
  0 - Every step passed
  1 - A step failed or the run was aborted
  2 - Command error (bad flags, unreadable config or fixture, etc.)

Examples:
  stepcheck run
  stepcheck run --mode resync --drop-write 16:0
  stepcheck run --inject-register 20:x:0x42 --format json
  stepcheck run --config run.cue --db ./runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE run configuration")
	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "path to a fixture YAML (default: embedded reference)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "write trace mode (strict|resync)")
	cmd.Flags().IntVar(&opts.Window, "window", 0, "resync look-ahead window (1-64)")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "expected step count")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "abort the run after this long")
	cmd.Flags().StringArrayVar(&opts.faults.registers, "inject-register", nil, "corrupt a register after a step (step:register:value)")
	cmd.Flags().StringArrayVar(&opts.faults.writes, "inject-write", nil, "add a write at the start of a step (step:address:value)")
	cmd.Flags().StringArrayVar(&opts.faults.drops, "drop-write", nil, "drop the n-th write of a step (step:n)")

	return cmd
}

// resolveConfig loads the config file, if any, and applies flags that were
// set explicitly on top of it.
func resolveConfig(opts *RunOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("fixture") {
		cfg.Fixture = opts.Fixture
	}
	if flags.Changed("mode") {
		cfg.Mode = opts.Mode
	}
	if flags.Changed("window") {
		cfg.ResyncWindow = opts.Window
	}
	if flags.Changed("steps") {
		cfg.Steps = opts.Steps
	}
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func loadFixture(path string) (*fixture.Golden, error) {
	if path == "" {
		return fixture.Default(), nil
	}
	return fixture.Load(path)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runSuite(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	mode, err := cfg.TraceMode()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}

	golden, err := loadFixture(cfg.Fixture)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixture", err)
	}

	replay, err := testutil.NewReplayUnit(golden)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build replay unit", err)
	}
	unit, err := wrapFaults(replay, golden, opts.faults)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fault", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.SlogLevel())
	hopts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithMode(mode),
		harness.WithResyncWindow(cfg.ResyncWindow),
	}
	if cfg.Steps > 0 {
		hopts = append(hopts, harness.WithSteps(cfg.Steps))
	}
	h, err := harness.New(unit, golden, hopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up harness", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	report, runErr := h.Run(ctx)
	if report == nil {
		return WrapExitError(ExitCommandError, "step suite did not run", runErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitCommandError, "step suite failed to run", runErr)
	}

	result := RunResult{Report: report, Digest: report.Digest()}
	if cfg.Database != "" {
		id, seq, err := recordRun(cmd.Context(), opts, cfg.Database, report)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		result.RunID, result.Seq = id, seq
	}

	return outputRun(opts, cmd, result)
}

func recordRun(ctx context.Context, opts *RunOptions, path string, report *harness.Report) (string, int64, error) {
	ids := opts.IDs
	if ids == nil {
		ids = store.UUIDv7Generator{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	st, err := store.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer st.Close()

	rec, err := store.NewRunRecord(ids.Generate(), now(), report)
	if err != nil {
		return "", 0, err
	}
	seq, err := st.WriteRun(ctx, rec)
	if err != nil {
		return "", 0, err
	}
	return rec.ID, seq, nil
}

func outputRun(opts *RunOptions, cmd *cobra.Command, result RunResult) error {
	out := newFormatter(opts.RootOptions, cmd)
	report := result.Report

	var text any = strings.TrimSuffix(harness.Render(report), "\n")
	if result.RunID != "" {
		text = fmt.Sprintf("%s\nrecorded run %s (seq %d)", text, result.RunID, result.Seq)
	}
	if out.IsJSON() {
		text = result
	}

	switch {
	case report.Aborted:
		msg := fmt.Sprintf("step suite aborted after %d/%d steps", report.StepsRun, report.StepCount)
		if err := out.Failure(text, CodeAborted, msg); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	case !report.Pass:
		msg := fmt.Sprintf("%d step(s) failed", report.StepCount-report.PassCount)
		if err := out.Failure(text, CodeStepFailed, msg); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Success(text)
}
