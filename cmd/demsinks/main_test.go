package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/demsinks/internal/fsutil"
	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/raster"
	"github.com/banshee-data/demsinks/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func writeDEM(t *testing.T, rows [][]float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dem.asc")
	require.NoError(t, raster.SaveASCII(fsutil.OSFileSystem{}, path, testutil.MustGrid(t, rows, 1)))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage: demsinks")

	code, _, stderr = runCLI("bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: bogus")

	code, stdout, _ := runCLI("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "demsinks")
}

func TestRun_Sinks(t *testing.T) {
	input := writeDEM(t, testutil.Bowl())
	out := filepath.Join(t.TempDir(), "out")
	db := filepath.Join(t.TempDir(), "runs.db")

	code, stdout, stderr := runCLI("sinks", "-input", input, "-out", out, "-min-size", "0", "-env", "missing.env", "-db", db)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 depressions written to "+out)
	assert.Contains(t, stdout, "run ")

	sink, err := raster.LoadASCII(fsutil.OSFileSystem{}, filepath.Join(out, "sink.asc"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, sink.At(2, 2))
}

func TestRun_Mounts(t *testing.T) {
	input := writeDEM(t, testutil.Hill())
	out := t.TempDir()

	code, stdout, stderr := runCLI("mounts", "-input", input, "-out", out, "-min-size", "0",
		"-min-height", "0", "-interval", "2", "-env", "missing.env")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 regions, 2 nodes over 2 levels")
	_, err := os.Stat(filepath.Join(out, "dem_flip.asc"))
	assert.NoError(t, err)
}

func TestRun_ExtractErrors(t *testing.T) {
	code, _, stderr := runCLI("depressions", "-env", "missing.env")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "-input is required")

	input := writeDEM(t, testutil.Bowl())
	code, _, stderr = runCLI("depressions", "-input", input, "-conn", "6", "-out", t.TempDir(), "-env", "missing.env")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "connectivity")

	code, _, _ = runCLI("sinks", "-input", filepath.Join(t.TempDir(), "absent.asc"), "-env", "missing.env")
	assert.Equal(t, 1, code)
}

func TestResolveConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"min_size": 5, "interval": 0.5, "writers": 2}`), 0o644))

	var stderr bytes.Buffer
	f, err := parseExtractFlags("depressions", []string{"-input", "x.asc", "-config", cfgPath,
		"-env", filepath.Join(dir, "none.env"), "-interval", "1.5"}, &stderr)
	require.NoError(t, err)

	env := map[string]string{"DEMSINKS_MIN_SIZE": "7", "DEMSINKS_INTERVAL": "0.9"}
	cfg, err := resolveConfig(f, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.GetMinSize(), "environment beats file")
	assert.Equal(t, 1.5, cfg.GetInterval(), "flags beat environment")
	assert.Equal(t, 2, cfg.GetWriters(), "file beats defaults")
	assert.Equal(t, 0.3, cfg.GetMinHeight())
}

func TestRun_Migrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	code, stdout, stderr := runCLI("migrate", "-db", db, "up")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "migrate up complete")

	code, stdout, _ = runCLI("migrate", "-db", db, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "version 1 (dirty: false)")

	code, _, _ = runCLI("migrate", "-db", db, "sideways")
	assert.Equal(t, 1, code)

	code, _, _ = runCLI("migrate", "up")
	assert.Equal(t, 1, code)
}

func TestRun_RunsCatalogue(t *testing.T) {
	input := writeDEM(t, testutil.NestedBasin())
	db := filepath.Join(t.TempDir(), "runs.db")

	code, stdout, stderr := runCLI("depressions", "-input", input, "-out", t.TempDir(), "-min-size", "0",
		"-min-height", "1", "-interval", "3", "-db", db, "-env", "missing.env")
	require.Equal(t, 0, code, stderr)
	var id string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "run ") {
			id = strings.TrimPrefix(line, "run ")
		}
	}
	require.NotEmpty(t, id)

	code, stdout, stderr = runCLI("runs", "-db", db, "list")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, id)
	assert.Contains(t, stdout, "depressions")

	code, stdout, _ = runCLI("runs", "-db", db, "-kind", "mounts", "list")
	assert.Equal(t, 0, code)
	assert.NotContains(t, stdout, id)

	code, stdout, stderr = runCLI("runs", "-db", db, "show", id)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 regions, 3 nodes over 2 levels")
	assert.Contains(t, stdout, "NODE")

	code, stdout, _ = runCLI("runs", "-db", db, "delete", id)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "deleted run "+id)

	code, _, stderr = runCLI("runs", "-db", db, "show", id)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")

	code, _, _ = runCLI("runs", "-db", db, "delete")
	assert.Equal(t, 1, code)
}
