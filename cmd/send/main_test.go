package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDryRun(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("BULKMAIL_LOG_LEVEL", "error")

	list := filepath.Join(dir, "list.csv")
	require.NoError(t, os.WriteFile(list, []byte("email\nada@x.com\nbad\nbob@y.org\n"), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", list, "--template", "Hello", "--dry-run", "--interval", "0s"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	text := out.String()
	assert.Contains(t, text, "2 valid addresses loaded")
	assert.Contains(t, text, "[1/2] ada@x.com ok")
	assert.Contains(t, text, "[2/2] bob@y.org ok")
	assert.Contains(t, text, "Done! 2 sent, 0 failed")
}

func TestSendRejectsEmptyTemplate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("BULKMAIL_LOG_LEVEL", "error")

	list := filepath.Join(dir, "list.csv")
	require.NoError(t, os.WriteFile(list, []byte("ada@x.com\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", list, "--dry-run"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template is empty")
}

func TestSendUnknownPolicy(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--template", "x", "--policy", "retry"})

	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
