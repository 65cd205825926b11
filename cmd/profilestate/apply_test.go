package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func installManifest(binary string) string {
	return `version: "1.0"
name: lab
settings:
  parallel: 2
  profiles_binary: ` + binary + `
profiles:
  - id: com.example.screensaver
    display_name: Screensaver
    content:
      - PayloadType: com.apple.screensaver
        idleTime: 300
  - id: com.example.legacy
    state: absent
`
}

func TestApplyInstallsProfiles(t *testing.T) {
	binary, logPath := fakeProfilesBinary(t)
	path := writeManifest(t, installManifest(binary))

	stdout, _, err := executeCommand("apply", "--config", path, "--json")
	require.NoError(t, err)

	doc := decodeRun(t, stdout)
	require.Empty(t, doc.Errors)
	reports := doc.Reports
	require.Len(t, reports, 2)
	require.Equal(t, "com.example.screensaver", reports[0]["name"])
	require.Equal(t, true, reports[0]["result"])
	require.Contains(t, reports[0]["changes"], "com.example.screensaver")
	require.Equal(t, "com.example.legacy", reports[1]["name"])
	require.Empty(t, reports[1]["changes"])

	log := readLog(t, logPath)
	require.Contains(t, log, "-I -F ")
	require.Contains(t, log, ".mobileconfig")
	require.NotContains(t, log, "-R")
}

func TestApplyDryRunDoesNotInstall(t *testing.T) {
	binary, logPath := fakeProfilesBinary(t)
	path := writeManifest(t, installManifest(binary))

	stdout, _, err := executeCommand("apply", "--config", path, "--dry-run")
	require.NoError(t, err)
	require.Contains(t, stdout, "(dry run)")
	require.Contains(t, stdout, "would-change")
	require.Contains(t, stdout, "1 would change")
	require.NotContains(t, readLog(t, logPath), "-I")
}

func TestApplyWritesMetricsTextfile(t *testing.T) {
	binary, _ := fakeProfilesBinary(t)
	metricsPath := filepath.Join(t.TempDir(), "profilestate.prom")
	manifest := strings.Replace(installManifest(binary), "  parallel: 2\n", "  parallel: 2\n  metrics_textfile: "+metricsPath+"\n", 1)
	path := writeManifest(t, manifest)

	_, _, err := executeCommand("apply", "--config", path)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `profilestate_reconcile_total{result="success",state="installed"} 1`)
}

func TestApplyCommandValidatesConfigFile(t *testing.T) {
	_, _, err := executeCommand("apply", "--config", "/path/does/not/exist")
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestApplyReportsConfigErrors(t *testing.T) {
	path := writeManifest(t, "version: \"1.0\"\nname: broken\nprofiles:\n  - id: nodots\n    state: absent\n")

	_, _, err := executeCommand("apply", "--config", path)
	requireExitCode(t, err, 2)
	require.Contains(t, err.Error(), "configuration error")
}

func TestApplyRefusesDefaultBinaryOffMacOS(t *testing.T) {
	original := hostOS
	hostOS = "linux"
	t.Cleanup(func() { hostOS = original })

	path := writeManifest(t, "version: \"1.0\"\nname: lab\nprofiles:\n  - id: com.example.a\n    state: absent\n")

	_, _, err := executeCommand("apply", "--config", path)
	requireExitCode(t, err, 3)
	require.Contains(t, err.Error(), "only available on macOS")
}

func TestValidateConfigPath(t *testing.T) {
	t.Parallel()

	require.ErrorContains(t, validateConfigPath(""), "required")
	require.ErrorContains(t, validateConfigPath("   "), "required")
	require.ErrorContains(t, validateConfigPath(t.TempDir()), "is a directory")

	file := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o600))
	require.NoError(t, validateConfigPath(file))
}

func TestRootRejectsUnknownLogFormat(t *testing.T) {
	_, _, err := executeCommand("version", "--log-format", "xml")
	require.ErrorContains(t, err, "unsupported log format")
}

func TestApplyForceFlagDescribesNoReinstall(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"apply"})
	require.NoError(t, err)

	flag := cmd.Flags().Lookup("force")
	require.NotNil(t, flag)
	require.Contains(t, flag.Usage, "does not reinstall profiles that already match")
}
