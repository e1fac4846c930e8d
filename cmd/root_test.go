package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "catalog", "submit", "import", "series", "measurements", "alerts", "export", "report"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "controlcalidad", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestAlertsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range alertsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "transition", "summary"} {
		assert.True(t, names[name], "expected alerts subcommand %q not found", name)
	}
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("batch-size")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
	require.NotNil(t, importCmd.Flags().Lookup("charset"))
	require.NotNil(t, importCmd.Flags().Lookup("tz"))
}

const seedYAML = `
lines:
  - name: Galletas
    presentations:
      - name: Paquete 200g
    control_types:
      - name: En proceso
        parameters:
          - name: Humedad
            kind: NUMERIC
            unit: "%"
            lower: 5
            upper: 10
          - name: Sellado
            kind: CHECK
`

// execute runs the root command with args against the database in dir.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("QC_STORE_DRIVER", "sqlite")
	t.Setenv("QC_STORE_DATABASE_URL", filepath.Join(dir, "qc.db"))
	t.Setenv("QC_LOG_LEVEL", "error")
	t.Setenv("QC_RECORDER_ID", "op-1")

	seedPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o600))

	out, err := execute(t, "catalog", "seed", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Created:")

	out, err = execute(t, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Line 1: Galletas")
	assert.Contains(t, out, "Humedad")

	series := []string{"--line", "1", "--presentation", "1", "--control-type", "1", "--parameter", "1"}

	out, err = execute(t, append([]string{"submit", "--value", "7,5", "--at", "2025-06-01T08:00:00Z"}, series...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "RECORD")

	out, err = execute(t, append([]string{"submit", "--value", "12", "--at", "2025-06-01T09:00:00Z", "--reference", "OT-9"}, series...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "OUT_OF_SPEC")

	_, err = execute(t, append([]string{"submit", "--value", "abc", "--at", "2025-06-01T10:00:00Z"}, series...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation error")

	out, err = execute(t, append([]string{"series", "--from", "2025-06-01", "--to", "2025-06-01"}, series...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Humedad (NUMERIC)")
	assert.Contains(t, out, "Records:")
	assert.Contains(t, out, "SPEC")

	out, err = execute(t, "measurements", "--reference", "OT-9")
	require.NoError(t, err)
	assert.Contains(t, out, "OT-9")
	assert.Contains(t, out, "12")
	assert.NotContains(t, out, "7.5")

	recordsPath := filepath.Join(dir, "orden.csv")
	_, err = execute(t, "export", "measurements", "--format", "csv", "--out", recordsPath, "--reference", "OT-9")
	require.NoError(t, err)
	data, err := os.ReadFile(recordsPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	out, err = execute(t, "alerts", "list", "--state", "pending", "--reference", "OT-9")
	require.NoError(t, err)
	assert.Contains(t, out, "OUT_OF_SPEC")
	assert.Contains(t, out, "PENDING")

	out, err = execute(t, "alerts", "transition", "1", "confirmed", "--reviewer", "sup-1", "--note", "lote retenido")
	require.NoError(t, err)
	assert.Contains(t, out, "CONFIRMED")
	assert.Contains(t, out, "sup-1")

	_, err = execute(t, "alerts", "transition", "1", "rejected", "--reviewer", "sup-1", "--note", "")
	require.Error(t, err)

	csvPath := filepath.Join(dir, "serie.csv")
	_, err = execute(t, append([]string{"export", "series", "--format", "csv", "--out", csvPath, "--from", "", "--to", ""}, series...)...)
	require.NoError(t, err)
	data, err = os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))

	out, err = execute(t, "report", "--from", "2025-06-01", "--to", "2025-06-30")
	require.NoError(t, err)
	assert.Contains(t, out, "Galletas")
	assert.Contains(t, out, "50.0%")
}
