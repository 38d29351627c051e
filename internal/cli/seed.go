package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stepcheck/internal/lfsr"
	"github.com/roach88/stepcheck/internal/memory"
)

// SeedResult is the output of the seed command.
type SeedResult struct {
	Seed        string `json:"seed"`
	Bytes       string `json:"bytes"`
	ImageDigest string `json:"image_digest"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		seed  string
		count int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Print LFSR output and the seeded memory digest",
		Long: `Print the first bytes of the LFSR sequence for a seed, and the SHA-256
of the full 64 KiB memory image filled from it.

Examples:
  stepcheck seed
  stepcheck seed --seed 0x1234 --count 32`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := strconv.ParseUint(seed, 0, 16)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid seed %q", seed), err)
			}
			if count < 0 || count > memory.Size {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("count %d out of range [0, %d]", count, memory.Size))
			}

			gen := lfsr.New(uint16(s))
			buf := make([]byte, count)
			gen.Fill(buf)

			result := SeedResult{
				Seed:        fmt.Sprintf("%04x", s),
				Bytes:       hex.EncodeToString(buf),
				ImageDigest: memory.New(lfsr.New(uint16(s))).Digest(),
			}

			out := newFormatter(rootOpts, cmd)
			if out.IsJSON() {
				return out.Success(result)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "seed:  %s\n", result.Seed)
			b.WriteString("bytes:")
			for _, v := range buf {
				fmt.Fprintf(&b, " %02x", v)
			}
			fmt.Fprintf(&b, "\nimage: %s", result.ImageDigest)
			return out.Success(b.String())
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "0xffff", "16-bit LFSR seed")
	cmd.Flags().IntVar(&count, "count", 16, "number of bytes to print")

	return cmd
}
