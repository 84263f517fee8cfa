package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"mcpgate/internal/catalog"
	"mcpgate/internal/target"
)

func fixedNow(t *testing.T, ts time.Time) {
	t.Helper()
	orig := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = orig })
}

func snapshots(ref time.Time) []target.Snapshot {
	connectedAt := ref.Add(-5 * time.Minute)
	return []target.Snapshot{
		{
			Name:            "issues",
			Kind:            target.KindHTTP,
			Transport:       target.TransportSnapshot{URL: "https://issues.example.com/mcp"},
			Status:          target.StatusConnected,
			LastConnectedAt: &connectedAt,
		},
		{
			Name:      "files",
			Kind:      target.KindStdio,
			Transport: target.TransportSnapshot{Command: "npx", Args: []string{"server-files"}},
			Status:    target.StatusError,
			LastError: "command not found: npx",
		},
		{
			Name:     "wiki",
			Kind:     target.KindHTTP,
			Status:   target.StatusDisconnected,
			Disabled: true,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: " JSON ", want: FormatJSON},
		{in: "yaml", want: FormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargets_Table(t *testing.T) {
	ref := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	fixedNow(t, ref)

	var buf bytes.Buffer
	require.NoError(t, New(Options{Output: &buf}).Targets(snapshots(ref)))
	out := buf.String()

	assert.Contains(t, out, "https://issues.example.com/mcp")
	assert.Contains(t, out, "npx server-files")
	assert.Contains(t, out, "command not found: npx")
	assert.Contains(t, out, "5m")
	assert.Contains(t, out, "disabled")
	// go-pretty upper-cases footers.
	assert.Contains(t, strings.ToLower(out), "1/3 connected")
}

func TestTargets_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{Output: &buf}).Targets(nil))
	assert.Equal(t, "No targets configured\n", buf.String())
}

func TestTargets_JSON(t *testing.T) {
	ref := time.Now()
	var buf bytes.Buffer
	require.NoError(t, New(Options{Format: FormatJSON, Output: &buf}).Targets(snapshots(ref)))

	var got []target.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "issues", got[0].Name)
	assert.Equal(t, target.StatusError, got[1].Status)
	assert.True(t, got[2].Disabled)
}

func TestCatalogEntries(t *testing.T) {
	entries := []catalog.Entry{
		{Name: "github", URL: "https://api.example.com/mcp", OAuth: true, Tags: []string{"scm"}, Description: "Issues"},
		{Name: "files", Command: "npx"},
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(Options{Output: &buf}).CatalogEntries(entries))
		out := buf.String()
		assert.Contains(t, out, "github")
		assert.Contains(t, out, "http")
		assert.Contains(t, out, "stdio")
		assert.Contains(t, out, "scm")
	})

	t.Run("yaml uses the catalog layout", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(Options{Format: FormatYAML, Output: &buf}).CatalogEntries(entries))

		var file struct {
			Servers map[string]catalog.Entry `yaml:"servers"`
		}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &file))
		assert.Equal(t, "https://api.example.com/mcp", file.Servers["github"].URL)
		assert.Equal(t, "npx", file.Servers["files"].Command)
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(Options{Output: &buf}).CatalogEntries(nil))
		assert.Contains(t, buf.String(), "No catalog entries found")
	})
}

func TestAuthStatuses(t *testing.T) {
	rows := []AuthStatus{
		{Target: "issues", Endpoint: "https://issues.example.com/mcp", Authenticated: true},
		{Target: "wiki", Endpoint: "https://wiki.example.com/mcp"},
	}

	var buf bytes.Buffer
	require.NoError(t, New(Options{Output: &buf}).AuthStatuses(rows))
	assert.Contains(t, buf.String(), "stored")
	assert.Contains(t, buf.String(), "missing")

	buf.Reset()
	require.NoError(t, New(Options{Format: FormatYAML, Output: &buf}).AuthStatuses(rows))
	var got []AuthStatus
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, rows, got)
}
