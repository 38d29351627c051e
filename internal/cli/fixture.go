package cli

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/roach88/stepcheck/internal/fixture"
)

// FixtureSummary is the output of fixture show.
type FixtureSummary struct {
	Name      string   `json:"name"`
	Version   int      `json:"version"`
	Steps     int      `json:"steps"`
	Writes    int      `json:"writes"`
	Seed      string   `json:"seed"`
	Registers []string `json:"registers"`
	Digest    string   `json:"digest"`
}

// ConsistencyResult is the output of fixture check.
type ConsistencyResult struct {
	Name            string   `json:"name"`
	Steps           int      `json:"steps"`
	Consistent      bool     `json:"consistent"`
	Inconsistencies []string `json:"inconsistencies,omitempty"`
}

// NewFixtureCommand creates the fixture command group.
func NewFixtureCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Inspect, check and export golden fixtures",
	}

	cmd.AddCommand(newFixtureShowCommand(rootOpts))
	cmd.AddCommand(newFixtureCheckCommand(rootOpts))
	cmd.AddCommand(newFixtureExportCommand(rootOpts))

	return cmd
}

func newFixtureShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [fixture.yaml]",
		Short: "Summarize a fixture",
		Long: `Summarize a fixture: name, version, step and write counts, and digest.

Without an argument the embedded reference fixture is shown.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadFixture(optionalArg(args))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load fixture", err)
			}

			summary := FixtureSummary{
				Name:      g.Name,
				Version:   g.Version,
				Steps:     g.Steps(),
				Writes:    len(g.Writes) - 1,
				Seed:      fmt.Sprintf("%04x", g.Seed),
				Registers: g.RegisterNames(),
				Digest:    g.Digest(),
			}

			out := newFormatter(opts, cmd)
			if out.IsJSON() {
				return out.Success(summary)
			}
			return out.Success(fmt.Sprintf(
				"name:      %s\nversion:   %d\nsteps:     %d\nwrites:    %d\nseed:      %s\nregisters: %s\ndigest:    %s",
				summary.Name, summary.Version, summary.Steps, summary.Writes,
				summary.Seed, strings.Join(summary.Registers, " "), summary.Digest))
		},
	}
}

func newFixtureCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [fixture.yaml]",
		Short: "Validate a fixture and check opcodes against seeded memory",
		Long: `Validate a fixture, then replay its write schedule over the seeded
memory image and check every step's opcode against the byte at its PC.

Exit codes:
  0 - Fixture is valid and consistent
  1 - One or more steps are inconsistent
  2 - Fixture could not be loaded or is invalid`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadFixture(optionalArg(args))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load fixture", err)
			}

			found, err := fixture.CheckConsistency(g)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to check fixture", err)
			}

			result := ConsistencyResult{
				Name:       g.Name,
				Steps:      g.Steps(),
				Consistent: len(found) == 0,
			}
			for _, inc := range found {
				result.Inconsistencies = append(result.Inconsistencies, inc.String())
			}

			out := newFormatter(opts, cmd)
			if result.Consistent {
				if out.IsJSON() {
					return out.Success(result)
				}
				return out.Success(fmt.Sprintf("fixture %s: consistent (%d steps)", result.Name, result.Steps))
			}

			msg := fmt.Sprintf("%d inconsistent step(s)", len(found))
			var data any = result
			if !out.IsJSON() {
				data = fmt.Sprintf("fixture %s: %s\n%s", result.Name, msg, strings.Join(result.Inconsistencies, "\n"))
			}
			if err := out.Failure(data, CodeInconsistent, msg); err != nil {
				return err
			}
			return NewExitError(ExitFailure, msg)
		},
	}
}

func newFixtureExportCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the embedded reference fixture to a file",
		Long: `Write the embedded reference fixture to a file.

The file is replaced atomically, so an interrupted export never leaves a
partial fixture behind.

Example:
  stepcheck fixture export --output ./cpu6502_random.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := atomic.WriteFile(output, bytes.NewReader(fixture.DefaultYAML())); err != nil {
				return WrapExitError(ExitCommandError, "failed to export fixture", err)
			}

			out := newFormatter(opts, cmd)
			if out.IsJSON() {
				return out.Success(map[string]string{"path": output})
			}
			return out.Success(fmt.Sprintf("wrote %s", output))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
