package cmd

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/api"
	"mcpgate/internal/target"
)

const memoryConfig = "oauth:\n  store: memory\n"

func TestTargets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), memoryConfig)
	writeFile(t, filepath.Join(dir, "targets", "search.yaml"), "url: "+startUpstream(t, "search", "query")+"\n")
	writeFile(t, filepath.Join(dir, "targets", "tools.yaml"), "command: mcpgate-no-such-binary\n")

	out, _, err := execute(t, "targets", "--config-path", dir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "command not found: mcpgate-no-such-binary")
	assert.Contains(t, strings.ToLower(out), "1/2 connected")
}

func TestTargets_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), memoryConfig)
	writeFile(t, filepath.Join(dir, "targets", "search.yaml"), "url: "+startUpstream(t, "search", "query")+"\ntools:\n  prefix: s_\n")

	out, _, err := execute(t, "targets", "--config-path", dir, "-o", "json")
	require.NoError(t, err)

	var snaps []target.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "search", snaps[0].Name)
	assert.Equal(t, target.StatusConnected, snaps[0].Status)
	assert.Equal(t, "s_", snaps[0].Tools.Prefix)
}

func TestTargets_ReportsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), memoryConfig)
	writeFile(t, filepath.Join(dir, "targets", "broken.yaml"), "url: [\n")

	out, errOut, err := execute(t, "targets", "--config-path", dir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "No targets configured")
	assert.Contains(t, errOut, "Configuration error report (1 errors)")
	assert.Contains(t, errOut, "broken.yaml")
}

func TestTargets_InvalidOutput(t *testing.T) {
	_, _, err := execute(t, "targets", "--config-path", t.TempDir(), "-o", "xml")
	require.Error(t, err)
	assert.True(t, api.IsBadRequest(err))
}
