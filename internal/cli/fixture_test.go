package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepcheck/internal/fixture"
)

// badOpcodeYAML claims the first opcode is ff, but seeded memory holds fe
// at address 0001.
const badOpcodeYAML = `version: 1
name: bad-opcode
seed: 0xffff
registers: [a, pc]
snapshots:
  - [0x00, 0x0001, 0xff]
writes:
  - [0xffff, 0xffff]
schedule: [0]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFixtureShow_Default(t *testing.T) {
	stdout, _, err := execute(t, "fixture", "show")
	require.NoError(t, err)

	assert.Contains(t, stdout, "name:      cpu6502-random-256\n")
	assert.Contains(t, stdout, "steps:     256\n")
	assert.Contains(t, stdout, "writes:    55\n")
	assert.Contains(t, stdout, "seed:      ffff\n")
	assert.Contains(t, stdout, "registers: a b x y z p s pc\n")
	assert.Contains(t, stdout, "digest:    "+fixture.Default().Digest())
}

func TestFixtureShow_JSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "fixture", "show")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   FixtureSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, FixtureSummary{
		Name:      "cpu6502-random-256",
		Version:   1,
		Steps:     256,
		Writes:    55,
		Seed:      "ffff",
		Registers: []string{"a", "b", "x", "y", "z", "p", "s", "pc"},
		Digest:    fixture.Default().Digest(),
	}, resp.Data)
}

func TestFixtureShow_InvalidFile(t *testing.T) {
	path := writeFile(t, "bad.yaml", "version: 2\n")

	_, _, err := execute(t, "fixture", "show", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, fixture.ErrInvalidFixture)
}

func TestFixtureCheck_Default(t *testing.T) {
	stdout, _, err := execute(t, "fixture", "check")
	require.NoError(t, err)
	assert.Equal(t, "fixture cpu6502-random-256: consistent (256 steps)\n", stdout)
}

func TestFixtureCheck_Inconsistent(t *testing.T) {
	path := writeFile(t, "bad.yaml", badOpcodeYAML)

	stdout, _, err := execute(t, "fixture", "check", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t,
		"fixture bad-opcode: 1 inconsistent step(s)\nstep 0: opcode at 0001 is fe, fixture says ff\n",
		stdout)
}

func TestFixtureCheck_InconsistentJSON(t *testing.T) {
	path := writeFile(t, "bad.yaml", badOpcodeYAML)

	stdout, _, err := execute(t, "--format", "json", "fixture", "check", path)
	require.Error(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   ConsistencyResult `json:"data"`
		Error  *CLIError         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Consistent)
	assert.Equal(t, []string{"step 0: opcode at 0001 is fe, fixture says ff"}, resp.Data.Inconsistencies)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInconsistent, resp.Error.Code)
}

func TestFixtureExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exported.yaml")

	stdout, _, err := execute(t, "fixture", "export", "--output", path)
	require.NoError(t, err)
	assert.Equal(t, "wrote "+path+"\n", stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixture.DefaultYAML(), data)

	g, err := fixture.Load(path)
	require.NoError(t, err)
	assert.Equal(t, fixture.Default().Digest(), g.Digest())
}

func TestFixtureExport_ReplacesExisting(t *testing.T) {
	path := writeFile(t, "exported.yaml", "stale")

	_, _, err := execute(t, "fixture", "export", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixture.DefaultYAML(), data)
}

func TestFixtureExport_RequiresOutput(t *testing.T) {
	_, _, err := execute(t, "fixture", "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
