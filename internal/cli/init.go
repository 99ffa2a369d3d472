package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample openapi-fuzz configuration file",
		Long:  "Scaffold a commented openapi-fuzz configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", "openapi-fuzz.yaml", "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = "openapi-fuzz.yaml"
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# openapi-fuzz configuration (YAML)
# All fields are optional. Environment variables override config values and
# command-line flags override both.

# Path or URL to the Swagger/OpenAPI document (env OPENAPI_SPEC).
# input: ./openapi.json

# Base URL of the API under test; defaults to the first server of the
# document (env TARGET_URL).
# targetUrl: http://localhost:8080

# Number of fuzzing iterations. Odd iterations derive baseline values from
# schema constraints, even ones use plain defaults (env MAX_ITER).
# iterations: 2

# Directory receiving report.json and error.log (env OUTPUT_DIR).
# out: ./output

# Login description; a missing file means unauthenticated requests
# (env AUTH_CONFIG).
# authConfig: ./auth.json

# How path parameters are filled: auto, resolve or fuzz (env PATH_STRATEGY).
# pathStrategy: auto

# Constraint violation magnitudes: default or extended (env FUZZ_LIMITS).
# limits: default

# Per-request timeout (env REQUEST_TIMEOUT).
# timeout: 30s

# Maximum requests in flight per operation; 0 means unlimited
# (env CONCURRENCY).
# concurrency: 0

# Skip TLS certificate verification of the target.
# insecure: false

# Only fuzz operations with these tags (comma-separated or list).
# includeTags: [public]

# Skip operations with these tags.
# excludeTags: [internal]

# Only fuzz these HTTP methods.
# methods: [get, post]

# Only fuzz paths matching these regular expressions.
# paths: ["^/users"]

# Environment file to read before the process environment.
# envFile: .env

# Enable verbose logging.
# verbose: false
`
