package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vnykmshr/mediaflow/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, verbose, metricsAddr = "", false, ""
	catOffset, catLength, catOutput = 0, 0, ""
	liveSchedule = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestKinds(t *testing.T) {
	out, err := execute(t, "kinds")
	testutil.AssertNoError(t, err)
	for _, kind := range []string{"file", "memory", "ws"} {
		if !strings.Contains(out, kind+"\n") {
			t.Errorf("kinds output %q missing %s", out, kind)
		}
	}
}

func TestCat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.bin")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	out, err := execute(t, "cat", "file:"+path, "--offset", "2", "--length", "5")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "23456")

	out, err = execute(t, "cat", path, "--offset", "-3")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "789")
}

func TestCatConfiguredSource(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "mediacat.yaml")
	testutil.AssertNoError(t, os.WriteFile(cfg, []byte(`
sources:
  - name: greeting
    kind: memory
    location: ${MEDIACAT_TEST_GREETING:-hello from memory}
`), 0o644))

	out, err := execute(t, "-c", cfg, "cat", "greeting")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "hello from memory")
}

func TestLiveMemory(t *testing.T) {
	out, err := execute(t, "live", "memory:replayed", "--sync", "@every 1s")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "replayed")
}

func TestUnknownSource(t *testing.T) {
	_, err := execute(t, "cat", "nowhere:at-all")
	testutil.AssertError(t, err)
}
