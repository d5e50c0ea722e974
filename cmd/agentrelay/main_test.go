package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrelay/pkg/version"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--config-dir", t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.Full()+"\n", out.String())
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	for _, level := range []string{"debug", "INFO", "warn", "error"} {
		assert.NoError(t, setupLogging(level), level)
	}
	assert.Error(t, setupLogging("verbose"))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("AGENTRELAY_TEST_PORT", "9000")
	assert.Equal(t, "9000", getEnv("AGENTRELAY_TEST_PORT", "4000"))
	assert.Equal(t, "4000", getEnv("AGENTRELAY_TEST_UNSET", "4000"))
}

func TestJWTCommandFailsWithoutConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"jwt", "--config-dir", t.TempDir()})

	assert.Error(t, cmd.Execute())
}
