package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanocat/internal/filter"
	"github.com/coffersTech/nanocat/internal/profile"
)

const logcat = `03-01 10:00:00.000  100  101 I ActivityManager: Start proc com.example
03-01 10:00:00.100  200  201 W vold: low space on /data
03-01 10:00:00.200  200  202 E crash: boom
03-01 10:00:00.300  300  301 D chatty: uid=1000 expire 3 lines
`

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(profile.EnvPath, "")
	return home
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRunFileToJSON(t *testing.T) {
	isolate(t)
	in := writeFile(t, "logcat.txt", logcat)

	out, _, err := execute(t, "-i", in, "--input-format", "threadtime", "-f", "json", "-l", "warn")
	require.NoError(t, err)

	var tags []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var rec struct {
			Tag     string `json:"tag"`
			Level   string `json:"level"`
			Process string `json:"process"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		tags = append(tags, rec.Tag+"/"+rec.Level+"/"+rec.Process)
	}
	assert.Equal(t, []string{"vold/warn/200", "crash/error/200"}, tags)
}

func TestRunProfileAndHead(t *testing.T) {
	isolate(t)
	in := writeFile(t, "logcat.txt", logcat)
	profiles := writeFile(t, "profiles.yaml", `profiles:
  quiet:
    tag: ["!chatty"]
  system:
    extends: [quiet]
    regex: ["200"]
`)

	out, _, err := execute(t, "-i", in, "-P", profiles, "-p", "system", "-f", "raw")
	require.NoError(t, err)
	assert.Equal(t, "03-01 10:00:00.100  200  201 W vold: low space on /data\n03-01 10:00:00.200  200  202 E crash: boom\n", out)

	out, _, err = execute(t, "-i", in, "-P", profiles, "-p", "quiet", "-f", "raw", "-H", "1")
	require.NoError(t, err)
	assert.Equal(t, strings.SplitAfter(logcat, "\n")[0], out)
}

func TestRunDefaultProfile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "nanocat")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles.yaml"), []byte("profiles:\n  default:\n    tag: [\"^crash$\"]\n"), 0o644))
	in := writeFile(t, "logcat.txt", logcat)

	out, _, err := execute(t, "-i", in, "-f", "raw")
	require.NoError(t, err)
	assert.Equal(t, "03-01 10:00:00.200  200  202 E crash: boom\n", out)
}

func TestRunOutputFile(t *testing.T) {
	isolate(t)
	in := writeFile(t, "logcat.txt", logcat)
	dst := filepath.Join(t.TempDir(), "out", "records.csv")

	out, _, err := execute(t, "-i", in, "-o", dst, "-f", "csv", "-t", "^vold$")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vold,200,201,low space on /data")
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestRunTerminalHighlight(t *testing.T) {
	isolate(t)
	in := writeFile(t, "logcat.txt", logcat)

	out, _, err := execute(t, "-i", in, "-h", "boom", "--color", "never", "--input-format", "threadtime")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "crash")
	assert.Contains(t, lines[2], " E ")
	assert.Contains(t, lines[2], "boom")
}

func TestRunStats(t *testing.T) {
	isolate(t)
	in := writeFile(t, "logcat.txt", logcat)

	_, errOut, err := execute(t, "-i", in, "-f", "raw", "--stats", "-h", "space")
	require.NoError(t, err)
	assert.Contains(t, errOut, "records: 4, highlighted: 1")
}

func TestRunStartupErrors(t *testing.T) {
	isolate(t)
	in := writeFile(t, "logcat.txt", logcat)

	out, _, err := execute(t, "-i", in, "--filter", "tag:")
	var syntax *filter.SyntaxError
	assert.ErrorAs(t, err, &syntax)
	assert.Empty(t, out)

	_, _, err = execute(t, "-i", in, "-p", "missing")
	assert.ErrorIs(t, err, profile.ErrUnknownProfile)

	_, _, err = execute(t, "-i", in, "ls")
	assert.ErrorContains(t, err, "not both")

	_, _, err = execute(t, "-i", in, "--input-format", "xml")
	assert.Error(t, err)

	_, _, err = execute(t, "-i", in, "-f", "yaml")
	assert.Error(t, err)

	_, _, err = execute(t, "-i", in, "-l", "loud")
	assert.ErrorContains(t, err, "loud")
}

func TestConfigFileSettings(t *testing.T) {
	isolate(t)
	in := writeFile(t, "logcat.txt", logcat)
	cfg := writeFile(t, "config.yaml", "queue_size: 0\n")

	_, _, err := execute(t, "--config", cfg, "-i", in)
	assert.ErrorContains(t, err, "queue_size")
}

func TestProfilesCommand(t *testing.T) {
	isolate(t)
	profiles := writeFile(t, "profiles.yaml", `profiles:
  base:
    comment: shared noise filter
    tag: ["!chatty"]
  wifi:
    extends: [base]
    tag: [wpa_supplicant]
`)

	out, _, err := execute(t, "profiles", "-P", profiles)
	require.NoError(t, err)
	assert.Contains(t, out, "base")
	assert.Contains(t, out, "shared noise filter")
	assert.Contains(t, out, "wifi")

	out, _, err = execute(t, "profiles", "-P", profiles, "wifi")
	require.NoError(t, err)
	assert.Equal(t, "tag:\n    - '!chatty'\n    - wpa_supplicant\n", out)

	empty := writeFile(t, "empty.yaml", "profiles: {}\n")
	_, _, err = execute(t, "profiles", "-P", empty)
	assert.ErrorIs(t, err, errNoProfiles)
}

// fakeADB installs script as $ANDROID_HOME/platform-tools/adb.
func fakeADB(t *testing.T, script string) {
	t.Helper()
	home := t.TempDir()
	dir := filepath.Join(home, "platform-tools")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "adb"), []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("ANDROID_HOME", home)
}

func TestBugreportCommand(t *testing.T) {
	isolate(t)
	fakeADB(t, "echo \"args: $*\"\necho '------ MEMORY INFO ------'\n")
	dst := filepath.Join(t.TempDir(), "reports", "device.txt")

	_, errOut, err := execute(t, "bugreport", "-s", "abc", dst)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Finished "+dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "args: -s abc bugreport\n------ MEMORY INFO ------\n", string(data))

	_, _, err = execute(t, "bugreport", dst)
	assert.ErrorContains(t, err, "--overwrite")
	_, _, err = execute(t, "bugreport", "--overwrite", dst)
	require.NoError(t, err)
}

func TestBugreportCommandZip(t *testing.T) {
	isolate(t)
	fakeADB(t, "echo '== dumpstate'\n")
	dst := filepath.Join(t.TempDir(), "report.txt")

	_, _, err := execute(t, "bugreport", "--zip", dst)
	require.NoError(t, err)

	zr, err := zip.OpenReader(dst + ".zip")
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "report.txt", zr.File[0].Name)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "== dumpstate\n", string(data))
}

func TestReportFilename(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 2, 3, 0, time.Local)
	assert.Equal(t, "03-01_10-02-03-bugreport.txt", reportFilename(now))
}
