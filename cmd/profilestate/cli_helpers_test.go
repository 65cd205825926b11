package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProfilesBinary writes a profiles stand-in that reports nothing
// installed and logs every invocation.
func fakeProfilesBinary(t *testing.T) (binary, logPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	dir := t.TempDir()
	logPath = filepath.Join(dir, "profiles.log")
	binary = filepath.Join(dir, "profiles")
	script := `#!/bin/sh
echo "$@" >> "` + logPath + `"
case "$1" in
  -P) exit 0 ;;
  -I) exit 0 ;;
  -R) exit 0 ;;
esac
exit 64
`
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	return binary, logPath
}

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func executeCommand(args ...string) (stdout, stderr string, err error) {
	root := newRootCmd()
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	root.SetOut(outBuf)
	root.SetErr(errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *exitError
	require.True(t, errors.As(err, &exitErr), "expected exit error, got %v", err)
	require.Equal(t, code, exitErr.code)
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

type runDocument struct {
	Reports []map[string]any `json:"reports"`
	Errors  []map[string]any `json:"errors"`
}

func decodeRun(t *testing.T, stdout string) runDocument {
	t.Helper()
	var doc runDocument
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	require.NotNil(t, doc.Reports, "reports is always present")
	require.NotNil(t, doc.Errors, "errors is always present")
	return doc
}
