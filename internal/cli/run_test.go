package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// captureRun swaps runRunner for the duration of the test. Tests using it
// must not run in parallel.
func captureRun(t *testing.T) **RunConfig {
	t.Helper()
	var captured *RunConfig
	runRunner = func(ctx context.Context, cfg *RunConfig) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { runRunner = runFuzz })
	return &captured
}

func execute(args ...string) error {
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.Execute()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunConfigDefaults(t *testing.T) {
	captured := captureRun(t)
	if err := execute("run", "--env-file", writeFile(t, "empty.env", "")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := *captured
	if got == nil {
		t.Fatalf("expected config to be captured")
	}
	want := defaultRunConfig()
	want.EnvFile = got.EnvFile
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestRunConfigFromFlags(t *testing.T) {
	captured := captureRun(t)
	err := execute(
		"--verbose",
		"run",
		"--input", "spec.yaml",
		"--target-url", "http://localhost:9000/",
		"--iterations", "4",
		"--out", "./build",
		"--auth-config", "creds.json",
		"--path-strategy", "FUZZ",
		"--limits", "extended",
		"--timeout", "5s",
		"--concurrency", "8",
		"--insecure",
		"--include-tags", "foo,bar",
		"--exclude-tags", "baz",
		"--methods", "GET,post",
		"--paths", "^/users",
		"--env-file", writeFile(t, "empty.env", ""),
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := *captured
	if got.Input != "spec.yaml" || got.TargetURL != "http://localhost:9000" || got.Iterations != 4 {
		t.Errorf("input/target/iterations mismatch: %+v", got)
	}
	if got.Out != "./build" || got.AuthConfig != "creds.json" {
		t.Errorf("out/auth mismatch: %+v", got)
	}
	if got.PathStrategy != "fuzz" || got.Limits != "extended" {
		t.Errorf("strategy/limits mismatch: %q %q", got.PathStrategy, got.Limits)
	}
	if got.Timeout != 5*time.Second || got.Concurrency != 8 || !got.Insecure || !got.Verbose {
		t.Errorf("timeout/concurrency/insecure/verbose mismatch: %+v", got)
	}
	if diff := cmp.Diff([]string{"foo", "bar"}, got.IncludeTags); diff != "" {
		t.Errorf("include tags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"get", "post"}, got.Methods); diff != "" {
		t.Errorf("methods (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"^/users"}, got.Paths); diff != "" {
		t.Errorf("paths (-want +got):\n%s", diff)
	}
}

func TestRunConfigPrecedence(t *testing.T) {
	configPath := writeFile(t, "config.yaml", strings.TrimSpace(`
input: config-spec.yaml
target-url: http://config
iterations: 2
out: from-config
includeTags:
  - cfgFoo
excludeTags: cfgBar
timeout: 10
path_strategy: resolve
verbose: true
`)+"\n")
	envPath := writeFile(t, "test.env", "TARGET_URL=http://envfile\nMAX_ITER=3\nPATH_STRATEGY=fuzz\n")
	t.Setenv("PATH_STRATEGY", "auto")

	captured := captureRun(t)
	err := execute(
		"--config", configPath,
		"run",
		"--env-file", envPath,
		"--input", "flag-spec.yaml",
		"--include-tags", "flagTag",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := *captured
	if got.Input != "flag-spec.yaml" {
		t.Errorf("input: flag must win, got %q", got.Input)
	}
	if got.TargetURL != "http://envfile" || got.Iterations != 3 {
		t.Errorf("env file must override the config file: %q %d", got.TargetURL, got.Iterations)
	}
	if got.PathStrategy != "auto" {
		t.Errorf("process env must override the env file, got %q", got.PathStrategy)
	}
	if got.Out != "from-config" || got.Timeout != 10*time.Second || !got.Verbose {
		t.Errorf("config values lost: %+v", got)
	}
	if diff := cmp.Diff([]string{"flagTag"}, got.IncludeTags); diff != "" {
		t.Errorf("include tags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"cfgBar"}, got.ExcludeTags); diff != "" {
		t.Errorf("exclude tags (-want +got):\n%s", diff)
	}
	if got.ConfigPath != configPath {
		t.Errorf("config path mismatch: got %q", got.ConfigPath)
	}
}

func TestRunConfigInvalidMaxIter(t *testing.T) {
	t.Parallel()
	envPath := writeFile(t, "bad.env", "MAX_ITER=abc\n")
	err := execute("run", "--env-file", envPath)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "MAX_ITER") {
		t.Fatalf("unexpected error message: %v", err)
	}
	if ExitCode(err) != 2 {
		t.Fatalf("usage errors exit with 2, got %d", ExitCode(err))
	}
}

func TestRunConfigValidation(t *testing.T) {
	t.Parallel()
	empty := writeFile(t, "empty.env", "")
	cases := map[string][]string{
		"iterations":  {"--iterations", "-1"},
		"strategy":    {"--path-strategy", "guess"},
		"limits":      {"--limits", "huge"},
		"method":      {"--methods", "fetch"},
		"concurrency": {"--concurrency", "-2"},
		"overlap":     {"--include-tags", "a", "--exclude-tags", "a"},
	}
	for name, args := range cases {
		err := execute(append([]string{"run", "--env-file", empty}, args...)...)
		if !errors.Is(err, ErrUsage) {
			t.Errorf("%s: expected usage error, got %v", name, err)
		}
	}
	if err := execute("run", "--env-file", filepath.Join(t.TempDir(), "missing.env")); !errors.Is(err, ErrUsage) {
		t.Errorf("explicit missing env file: expected usage error, got %v", err)
	}
}

func TestRunConfigUnknownKey(t *testing.T) {
	t.Parallel()
	configPath := writeFile(t, "bad.yaml", "unknown: value\n")
	err := execute("--config", configPath, "run", "--input", "spec.yaml")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	if ExitCode(nil) != 0 || ExitCode(errors.New("boom")) != 1 || ExitCode(newUsageError("x")) != 2 {
		t.Fatalf("unexpected exit codes")
	}
}
