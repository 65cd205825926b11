package profile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/alexisbeaulieu97/profilestate/internal/internalexec"
	"github.com/alexisbeaulieu97/profilestate/internal/logger"
	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

const testID = "com.megacorp.preference"

type fakeRunner struct {
	listing []byte
	listErr error
	fail    map[string]bool
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (internalexec.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	switch args[0] {
	case "-P":
		if f.listErr != nil {
			return internalexec.Result{Stderr: "profiles: permission denied", ExitCode: 1}, f.listErr
		}
		return internalexec.Result{Stdout: string(f.listing)}, nil
	default:
		if f.fail[args[0]] {
			return internalexec.Result{Stderr: "profiles: error", ExitCode: 1}, errors.New("exit status 1")
		}
		return internalexec.Result{}, nil
	}
}

func sampleDesired() state.DesiredState {
	return state.DesiredState{
		Description:       "Example Description",
		DisplayName:       "Managing a Preference",
		Organization:      "MegaCorp",
		RemovalDisallowed: true,
		Content: []map[string]any{{
			"PayloadType": "com.apple.ManagedClient.preferences",
			"PayloadContent": map[string]any{
				"com.megacorp.preference": map[string]any{
					"Forced": []any{map[string]any{
						"mcx_preference_settings": map[string]any{"ExamplePreferenceKey": true},
					}},
				},
			},
		}},
		Options: map[string]any{"ConsentText": map[string]any{"default": "hello"}},
	}
}

func listingFor(t *testing.T, owner string, profiles ...map[string]any) []byte {
	t.Helper()
	entries := make([]any, 0, len(profiles))
	for _, p := range profiles {
		entries = append(entries, p)
	}
	out, err := plist.MarshalIndent(map[string]any{owner: entries}, plist.XMLFormat, "\t")
	require.NoError(t, err)
	return out
}

func installedFromContent(t *testing.T, content []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	_, err := plist.Unmarshal(content, &doc)
	require.NoError(t, err)
	return map[string]any{
		"ProfileIdentifier":        doc["PayloadIdentifier"],
		"ProfileDisplayName":       doc["PayloadDisplayName"],
		"ProfileDescription":       doc["PayloadDescription"],
		"ProfileOrganization":      doc["PayloadOrganization"],
		"ProfileRemovalDisallowed": doc["PayloadRemovalDisallowed"],
		"ProfileUUID":              doc["PayloadUUID"],
		"ProfileItems":             doc["PayloadContent"],
	}
}

func TestGenerateBuildsMobileconfig(t *testing.T) {
	t.Parallel()

	caps := New(Options{Runner: &fakeRunner{}})
	content, err := caps.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	var doc map[string]any
	_, err = plist.Unmarshal(content, &doc)
	require.NoError(t, err)

	require.Equal(t, "Configuration", doc["PayloadType"])
	require.Equal(t, testID, doc["PayloadIdentifier"])
	require.Equal(t, "Managing a Preference", doc["PayloadDisplayName"])
	require.Equal(t, "Example Description", doc["PayloadDescription"])
	require.Equal(t, "MegaCorp", doc["PayloadOrganization"])
	require.Equal(t, true, doc["PayloadRemovalDisallowed"])
	require.Equal(t, DefaultScope, doc["PayloadScope"])
	require.Equal(t, payloadUUID(testID), doc["PayloadUUID"])
	require.Contains(t, doc, "ConsentText")

	items, ok := doc["PayloadContent"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	require.Equal(t, testID+".0", item["PayloadIdentifier"])
	require.Equal(t, payloadUUID(testID+".0"), item["PayloadUUID"])
	require.Equal(t, "com.apple.ManagedClient.preferences", item["PayloadType"])
}

func TestGenerateIsDeterministic(t *testing.T) {
	t.Parallel()

	caps := New(Options{Runner: &fakeRunner{}})
	first, err := caps.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)
	second, err := caps.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestGenerateOptionsCannotOverrideGeneratedKeys(t *testing.T) {
	t.Parallel()

	desired := sampleDesired()
	desired.Options = map[string]any{"PayloadIdentifier": "com.evil", "PayloadScope": "User"}
	desired.Scope = "System"

	content, err := New(Options{Runner: &fakeRunner{}}).Generate(context.Background(), testID, desired)
	require.NoError(t, err)
	require.Contains(t, string(content), "<string>"+testID+"</string>")
	require.NotContains(t, string(content), "com.evil")
}

func TestExists(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{listing: listingFor(t, "alice", map[string]any{"ProfileIdentifier": testID})}
	caps := New(Options{Runner: runner, Binary: "/opt/profiles"})

	ok, err := caps.Exists(context.Background(), testID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = caps.Exists(context.Background(), "com.other")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, []string{"/opt/profiles", "-P", "-o", "stdout-xml"}, runner.calls[0])
}

func TestExistsEmptyListing(t *testing.T) {
	t.Parallel()

	ok, err := New(Options{Runner: &fakeRunner{}}).Exists(context.Background(), testID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExistsPropagatesListingErrors(t *testing.T) {
	t.Parallel()

	caps := New(Options{Runner: &fakeRunner{listErr: errors.New("exit status 1")}})
	_, err := caps.Exists(context.Background(), testID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "permission denied")

	caps = New(Options{Runner: &fakeRunner{listing: []byte("<plist><dict><key>broken")}})
	_, err = caps.Exists(context.Background(), testID)
	require.Error(t, err)
}

func TestValidateNotInstalled(t *testing.T) {
	t.Parallel()

	caps := New(Options{Runner: &fakeRunner{}})
	content, err := caps.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	result, err := caps.Validate(context.Background(), testID, content)
	require.NoError(t, err)
	require.False(t, result.Installed)
	require.Nil(t, result.OldPayload)
	require.Contains(t, string(result.NewPayload), "ExamplePreferenceKey")
	require.NotContains(t, string(result.NewPayload), "PayloadUUID")
}

func TestValidateMatchingProfile(t *testing.T) {
	t.Parallel()

	generator := New(Options{Runner: &fakeRunner{}})
	content, err := generator.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	installed := installedFromContent(t, content)
	// The host may assign its own UUIDs.
	installed["ProfileItems"].([]any)[0].(map[string]any)["PayloadUUID"] = "HOST-ASSIGNED"

	caps := New(Options{Runner: &fakeRunner{listing: listingFor(t, computerLevel, installed)}})
	result, err := caps.Validate(context.Background(), testID, content)
	require.NoError(t, err)
	require.True(t, result.Installed)
	require.Equal(t, result.NewPayload, result.OldPayload)
}

func TestValidateDriftedProfile(t *testing.T) {
	t.Parallel()

	generator := New(Options{Runner: &fakeRunner{}})
	oldContent, err := generator.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	changed := sampleDesired()
	changed.Content[0]["PayloadContent"] = map[string]any{"com.megacorp.preference": map[string]any{"Forced": []any{}}}
	newContent, err := generator.Generate(context.Background(), testID, changed)
	require.NoError(t, err)

	caps := New(Options{Runner: &fakeRunner{listing: listingFor(t, computerLevel, installedFromContent(t, oldContent))}})
	result, err := caps.Validate(context.Background(), testID, newContent)
	require.NoError(t, err)
	require.False(t, result.Installed)
	require.NotNil(t, result.OldPayload)
	require.Contains(t, string(result.OldPayload), "ExamplePreferenceKey")
	require.NotContains(t, string(result.NewPayload), "ExamplePreferenceKey")
}

func TestValidateDetectsAttributeDrift(t *testing.T) {
	t.Parallel()

	generator := New(Options{Runner: &fakeRunner{}})
	content, err := generator.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(installed map[string]any)
	}{
		{name: "display name", mutate: func(p map[string]any) { p["ProfileDisplayName"] = "Old Name" }},
		{name: "description", mutate: func(p map[string]any) { p["ProfileDescription"] = "Old description" }},
		{name: "organization", mutate: func(p map[string]any) { delete(p, "ProfileOrganization") }},
		{name: "removal policy", mutate: func(p map[string]any) { p["ProfileRemovalDisallowed"] = false }},
		{name: "scope reported by host", mutate: func(p map[string]any) { p["ProfileScope"] = "User" }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			installed := installedFromContent(t, content)
			tc.mutate(installed)

			caps := New(Options{Runner: &fakeRunner{listing: listingFor(t, computerLevel, installed)}})
			result, err := caps.Validate(context.Background(), testID, content)
			require.NoError(t, err)
			require.False(t, result.Installed)
			require.NotEqual(t, result.OldPayload, result.NewPayload)
		})
	}
}

func TestValidateShowsAttributesInPayloads(t *testing.T) {
	t.Parallel()

	generator := New(Options{Runner: &fakeRunner{}})
	content, err := generator.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	installed := installedFromContent(t, content)
	installed["ProfileDisplayName"] = "Old Name"

	caps := New(Options{Runner: &fakeRunner{listing: listingFor(t, computerLevel, installed)}})
	result, err := caps.Validate(context.Background(), testID, content)
	require.NoError(t, err)
	require.Contains(t, string(result.OldPayload), "<string>Old Name</string>")
	require.Contains(t, string(result.NewPayload), "<string>Managing a Preference</string>")
	require.Contains(t, string(result.NewPayload), "PayloadRemovalDisallowed")
}

func TestValidateAcceptsStringRemovalFlag(t *testing.T) {
	t.Parallel()

	generator := New(Options{Runner: &fakeRunner{}})
	content, err := generator.Generate(context.Background(), testID, sampleDesired())
	require.NoError(t, err)

	installed := installedFromContent(t, content)
	installed["ProfileRemovalDisallowed"] = "TRUE"

	caps := New(Options{Runner: &fakeRunner{listing: listingFor(t, computerLevel, installed)}})
	result, err := caps.Validate(context.Background(), testID, content)
	require.NoError(t, err)
	require.True(t, result.Installed)
}

func TestItemsMatchPairsDuplicateIdentifiers(t *testing.T) {
	t.Parallel()

	installed := []map[string]any{
		{"PayloadIdentifier": "dup", "Value": 1},
		{"PayloadIdentifier": "dup", "Value": 2},
	}
	desired := []map[string]any{
		{"PayloadIdentifier": "dup", "Value": 2},
		{"PayloadIdentifier": "dup", "Value": 2},
	}
	require.False(t, itemsMatch(installed, desired))

	desired[0]["Value"] = 1
	require.True(t, itemsMatch(installed, desired))
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	require.True(t, truthy(true))
	require.True(t, truthy("TRUE"))
	require.True(t, truthy(uint64(1)))
	require.False(t, truthy("FALSE"))
	require.False(t, truthy(nil))
}

func TestValidateRejectsMalformedContent(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Runner: &fakeRunner{}}).Validate(context.Background(), testID, []byte("garbage"))
	require.Error(t, err)
}

func TestItemsMatchIgnoresExtraInstalledKeys(t *testing.T) {
	t.Parallel()

	installed := []map[string]any{{"PayloadIdentifier": "a", "PayloadType": "t", "PayloadDisplayName": "added by host"}}
	desired := []map[string]any{{"PayloadIdentifier": "a", "PayloadType": "t"}}
	require.True(t, itemsMatch(installed, desired))

	desired[0]["PayloadType"] = "other"
	require.False(t, itemsMatch(installed, desired))
	require.False(t, itemsMatch(installed, nil))
}

func TestInstallAndRemoveArguments(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fail: map[string]bool{"-R": true}}
	caps := New(Options{Runner: runner, Binary: "profiles"})

	require.True(t, caps.Install(context.Background(), "/tmp/x.mobileconfig"))
	require.False(t, caps.Remove(context.Background(), testID))

	require.Equal(t, []string{"profiles", "-I", "-F", "/tmp/x.mobileconfig"}, runner.calls[0])
	require.Equal(t, []string{"profiles", "-R", "-p", testID}, runner.calls[1])
}

func TestCreateScopedTemp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	caps := New(Options{TempDir: dir, Runner: &fakeRunner{}})

	tmp, err := caps.CreateScopedTemp(FileSuffix, "profilestate")
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(tmp.Path()))
	require.True(t, strings.HasPrefix(filepath.Base(tmp.Path()), "profilestate-"))
	require.True(t, strings.HasSuffix(tmp.Path(), FileSuffix))

	info, err := os.Stat(tmp.Path())
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	_, err = tmp.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	require.NoError(t, tmp.Release())
	require.NoError(t, tmp.Release())
	_, err = os.Stat(tmp.Path())
	require.True(t, os.IsNotExist(err))
}

func TestScriptedProfilesBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	binDir := t.TempDir()
	logPath := filepath.Join(binDir, "profiles.log")
	script := filepath.Join(binDir, "profiles")
	writeScript(t, script, `#!/bin/sh
echo "$@" >> "`+logPath+`"
case "$1" in
  -P) exit 0 ;;
  -I) exit 0 ;;
  -R) echo "profiles: no such profile" >&2; exit 1 ;;
esac
`)

	caps := New(Options{Binary: script})

	ok, err := caps.Exists(context.Background(), testID)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, caps.Install(context.Background(), "/tmp/a.mobileconfig"))
	require.False(t, caps.Remove(context.Background(), testID))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, "-P -o stdout-xml\n-I -F /tmp/a.mobileconfig\n-R -p "+testID+"\n", string(data))
}

func TestMutateDistinguishesMissingBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := logger.New(logger.Options{Writer: buf, Level: "debug"})
	require.NoError(t, err)

	missing := New(Options{Binary: filepath.Join(t.TempDir(), "absent"), Logger: log})
	require.False(t, missing.Install(context.Background(), "/tmp/a.mobileconfig"))
	require.Contains(t, buf.String(), "profiles command could not be started")
	require.NotContains(t, buf.String(), "exit_code")

	buf.Reset()
	script := filepath.Join(t.TempDir(), "profiles")
	writeScript(t, script, "#!/bin/sh\necho \"profiles: install rejected\" >&2\nexit 3\n")
	failing := New(Options{Binary: script, Logger: log})
	require.False(t, failing.Install(context.Background(), "/tmp/a.mobileconfig"))
	require.Contains(t, buf.String(), "profiles command failed")
	require.Contains(t, buf.String(), `"exit_code":3`)
	require.Contains(t, buf.String(), "install rejected")
}

func writeScript(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
}
