package cli_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/rrdoc/internal/cli"
)

func Test_Run_Prints_Usage_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	cli.AssertContains(t, stdout, "Usage: rr [options] <command> [args]")
	cli.AssertContains(t, stdout, "annotations <command> <file> [args]")
	cli.AssertContains(t, stdout, "print-config")
}

func Test_Run_Fails_When_Command_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
}

func Test_Run_Fails_When_Global_Flag_Invalid(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name       string
		args       []string
		wantStderr string
	}{
		{name: "unknown flag", args: []string{"--nope", "info"}, wantStderr: "unknown flag: --nope"},
		{name: "bad format", args: []string{"--format", "xml", "print-config"}, wantStderr: "format must be text, json or yaml"},
		{name: "bad log level", args: []string{"--log-level", "loud", "print-config"}, wantStderr: "log-level must be"},
		{name: "bad compression", args: []string{"--compression-level", "12", "print-config"}, wantStderr: "compression-level must be"},
		{name: "empty work dir", args: []string{"--work-dir", "", "print-config"}, wantStderr: "work-dir cannot be empty"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stderr := c.MustFail(tt.args...)

			cli.AssertContains(t, stderr, tt.wantStderr)
		})
	}
}

func Test_Command_Prints_Help_When_Help_Flag_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun("import", "--help")
	cli.AssertContains(t, stdout, "Usage: rr import <pdf> [flags]")
	cli.AssertContains(t, stdout, "--overwrite")

	stdout = c.MustRun("annotations")
	cli.AssertContains(t, stdout, "Commands:")
	cli.AssertContains(t, stdout, "annotations add <file> [flags]")
}

func Test_Command_Fails_When_Subcommand_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("meta", "drop", "x.rr")

	cli.AssertContains(t, stderr, "unknown command: meta drop")
}

func Test_PrintConfig_Shows_Defaults_And_Sources(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "effective_cwd="+c.Dir)
	cli.AssertContains(t, stdout, "work_dir="+filepath.Join(c.Env["TMPDIR"], "rr"))
	cli.AssertContains(t, stdout, "log_level=info")
	cli.AssertContains(t, stdout, "#   (using defaults only)")

	require.NoError(t, os.WriteFile(c.Path(".rr.json"), []byte(`{
		// keep sessions next to the project
		"work_dir": "sessions",
		"compression_level": 0,
	}`), 0o600))

	stdout = c.MustRun("--log-level", "debug", "print-config")
	cli.AssertContains(t, stdout, "work_dir="+c.Path("sessions"))
	cli.AssertContains(t, stdout, "compression_level=0")
	cli.AssertContains(t, stdout, "log_level=debug")
	cli.AssertContains(t, stdout, "#   project: "+c.Path(".rr.json"))
}

func Test_PrintConfig_Emits_JSON_When_Format_JSON(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--format", "json", "print-config")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))

	assert.Equal(t, c.Dir, got["effective_cwd"])
	assert.Equal(t, filepath.Join(c.Env["TMPDIR"], "rr-locks"), got["lock_dir"])
	assert.InDelta(t, -1, got["compression_level"], 0)
}

func Test_Run_Leaves_No_Working_Directories_When_Commands_Finish(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WritePDF("paper.pdf", "a")

	c.MustRun("import", "paper.pdf")
	c.MustRun("annotations", "add", "paper.rr", "--type", "note", "--page", "1", "-m", "hi")
	c.MustRun("info", "paper.rr")

	entries, err := os.ReadDir(filepath.Join(c.Env["TMPDIR"], "rr"))
	require.NoError(t, err)

	var left []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "rr-session-") {
			left = append(left, e.Name())
		}
	}

	assert.Empty(t, left)
}
