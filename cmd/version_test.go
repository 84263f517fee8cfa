package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandExecution(t *testing.T) {
	orig := rootCmd.Version
	t.Cleanup(func() { rootCmd.Version = orig })
	rootCmd.Version = "1.2.3-test"

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Equal(t, "mcpgate version 1.2.3-test\n", buf.String())
}

func TestVersionCommandWithEmptyVersion(t *testing.T) {
	orig := rootCmd.Version
	t.Cleanup(func() { rootCmd.Version = orig })
	rootCmd.Version = ""

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mcpgate version \n", out)
}
