package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark3labs/openapi-fuzz/internal/assemble"
	"github.com/mark3labs/openapi-fuzz/internal/auth"
	"github.com/mark3labs/openapi-fuzz/internal/fuzzer"
	"github.com/mark3labs/openapi-fuzz/internal/pathres"
	"github.com/mark3labs/openapi-fuzz/internal/payload"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
	"github.com/mark3labs/openapi-fuzz/internal/transport"
)

var runRunner = runFuzz

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fuzz the API described by an OpenAPI/Swagger document",
		Long: "Generate correct, missing-field, invalid-type, constraint-violating and random payloads " +
			"for every operation, resolve path parameters against the target and record every answer " +
			"in <out>/report.json. Options come from defaults, a config file, the environment and flags, " +
			"in increasing order of precedence.",
		Example: strings.TrimSpace(`  openapi-fuzz run --input openapi.json --target-url http://localhost:8080
  MAX_ITER=4 openapi-fuzz --config fuzz.yaml run --path-strategy fuzz`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveRunConfig(cmd, os.LookupEnv)
			if err != nil {
				return err
			}
			return runRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document (default openapi.json)")
	flags.String("target-url", "", "Base URL of the API under test (default: first server in the document)")
	flags.Int("iterations", 0, "Number of fuzzing iterations (default 1)")
	flags.String("out", "", "Directory for report.json and error.log (default output)")
	flags.String("auth-config", "", "Login description file; missing means unauthenticated (default auth.json)")
	flags.String("path-strategy", "", "How path parameters are filled: auto, resolve or fuzz (default auto)")
	flags.String("limits", "", "Constraint violation magnitudes: default or extended")
	flags.Duration("timeout", 0, "Per-request timeout (default 30s)")
	flags.Int("concurrency", 0, "Maximum requests in flight per operation; 0 means unlimited")
	flags.Bool("insecure", false, "Skip TLS certificate verification of the target")
	flags.StringSlice("include-tags", nil, "Only fuzz operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Skip operations with these tags")
	flags.StringSlice("methods", nil, "Only fuzz these HTTP methods")
	flags.StringSlice("paths", nil, "Only fuzz paths matching these regular expressions")
	flags.String("env-file", "", "Environment file to read (default .env)")

	return cmd
}

func resolveRunConfig(cmd *cobra.Command, lookup func(string) (string, bool)) (*RunConfig, error) {
	cfg := defaultRunConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyRunConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	// only the implicit .env may be absent
	envFile, envRequired := cfg.EnvFile, cfg.EnvFile != defaultRunConfig().EnvFile
	if cmd.Flags().Changed("env-file") {
		if envFile, err = cmd.Flags().GetString("env-file"); err != nil {
			return nil, err
		}
		envRequired = true
	}
	cfg.EnvFile = strings.TrimSpace(envFile)
	if err := applyEnv(&cfg, cfg.EnvFile, envRequired, lookup); err != nil {
		return nil, err
	}

	if err := applyRunFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func runFuzz(ctx context.Context, cfg *RunConfig) error {
	logger, closeLog, err := newLogger(cfg.Out, cfg.Verbose)
	if err != nil {
		return newUsageError(fmt.Sprintf("run: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	defer closeLog()

	// 1) Load the document (file or http/https URL) with validation and conversion
	doc, err := spec.Load(ctx, cfg.Input)
	if err != nil {
		var se *spec.SpecError
		if errors.As(err, &se) {
			logger.Error("cannot load document", zap.String("input", cfg.Input), zap.String("code", string(se.Code)), zap.Error(err))
			msg := fmt.Sprintf("spec: %s", se.Message)
			if se.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
			}
			if se.JSONPointer != "" {
				msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
			}
			return newUsageError(msg)
		}
		return err
	}

	// 2) Build the service model with the operation filters
	methods := make([]spec.HttpMethod, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, spec.HttpMethod(m))
	}
	sm, err := spec.BuildServiceModel(ctx, doc,
		spec.WithIncludeTags(cfg.IncludeTags),
		spec.WithExcludeTags(cfg.ExcludeTags),
		spec.WithMethods(methods),
		spec.WithPathPatterns(cfg.Paths),
	)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	logger.Info("loaded API document",
		zap.String("title", sm.Title),
		zap.String("version", sm.Version),
		zap.Int("operations", len(sm.Endpoints)))

	// 3) Wire the session
	var authCfg *auth.Config
	if cfg.AuthConfig != "" {
		authCfg = auth.LoadOptional(cfg.AuthConfig, logger.Named("auth"))
	}
	client := transport.New(
		transport.WithTimeout(cfg.Timeout),
		transport.WithInsecure(cfg.Insecure),
		transport.WithLogger(logger.Named("transport")),
	)
	limits := payload.DefaultLimits()
	if cfg.Limits == limitsExtended {
		limits = payload.ExtendedLimits()
	}
	strategy, _ := pathres.ParseStrategy(cfg.PathStrategy)

	session, err := fuzzer.New(sm, client, fuzzer.Config{
		Iterations:  cfg.Iterations,
		TargetURL:   cfg.TargetURL,
		OutDir:      cfg.Out,
		Auth:        authCfg,
		Strategy:    strategy,
		Concurrency: cfg.Concurrency,
	},
		fuzzer.WithLogger(logger),
		fuzzer.WithBuilder(assemble.NewBuilder(nil, assemble.DefaultGenerators(limits, nil)...)),
	)
	if err != nil {
		return newUsageError(fmt.Sprintf("run: %v\nHint: pass --target-url or set TARGET_URL.", err))
	}

	// 4) Fuzz; a report is written even when the run is interrupted
	res, err := session.Run(ctx)
	if res != nil && res.ReportPath != "" {
		fmt.Fprintf(os.Stdout, "Wrote report to %s (%d requests over %d iterations)\n", res.ReportPath, res.Requests, res.Iterations)
	}
	return err
}
