package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPresets(t *testing.T) {
	out, err := run(t, "presets")
	require.NoError(t, err)
	for _, name := range []string{"moe", "moe-small", "moe-tiny"} {
		assert.Contains(t, out, name)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "moe-bench version")
}

func TestUnknownPreset(t *testing.T) {
	_, err := run(t, "--model-name", "gpt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model name")
}

func TestInvalidStrategy(t *testing.T) {
	_, err := run(t, "--strategy", "tree")
	require.Error(t, err)
}
