package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/erpconsole/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "console dev\n", out)
}

func TestDoctypes(t *testing.T) {
	out, err := run(t, "doctypes")
	require.NoError(t, err)
	assert.Contains(t, out, "suppliers")
	assert.Contains(t, out, "Supplier Group, Tax Category, Price List")
	assert.Contains(t, out, "purchase-invoice")
}

func TestDoctypes_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("doctypes_file: "+filepath.Join(dir, "missing.cue")+"\n"), 0o600))

	_, err := run(t, "--config", path, "doctypes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading doctypes")
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(config.Log{Format: "json", Level: "debug"})
	require.NoError(t, err)
	_, err = newLogger(config.Log{Format: "text", Level: "loud"})
	require.Error(t, err)
}
