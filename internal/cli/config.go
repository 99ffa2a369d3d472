package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/openapi-fuzz/internal/pathres"
	"github.com/mark3labs/openapi-fuzz/internal/spec"
)

// RunConfig captures all inputs that influence the run command after
// merging defaults, the config file, the environment and CLI overrides.
type RunConfig struct {
	Input        string
	TargetURL    string
	Iterations   int
	Out          string
	AuthConfig   string
	PathStrategy string
	Limits       string
	Timeout      time.Duration
	Concurrency  int
	Insecure     bool
	IncludeTags  []string
	ExcludeTags  []string
	Methods      []string
	Paths        []string
	EnvFile      string
	ConfigPath   string
	Verbose      bool
}

const (
	limitsDefault  = "default"
	limitsExtended = "extended"
)

func defaultRunConfig() RunConfig {
	return RunConfig{
		Input:        "openapi.json",
		Iterations:   1,
		Out:          "output",
		AuthConfig:   "auth.json",
		PathStrategy: string(pathres.StrategyAuto),
		Limits:       limitsDefault,
		Timeout:      30 * time.Second,
		EnvFile:      ".env",
	}
}

// envBinding ties an environment variable to a config field.
type envBinding struct {
	name  string
	apply func(cfg *RunConfig, value string) error
}

var envBindings = []envBinding{
	{"OPENAPI_SPEC", func(c *RunConfig, v string) error { c.Input = v; return nil }},
	{"TARGET_URL", func(c *RunConfig, v string) error { c.TargetURL = v; return nil }},
	{"MAX_ITER", func(c *RunConfig, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return newUsageError(fmt.Sprintf("MAX_ITER must be a positive integer, got %q", v))
		}
		c.Iterations = n
		return nil
	}},
	{"OUTPUT_DIR", func(c *RunConfig, v string) error { c.Out = v; return nil }},
	{"AUTH_CONFIG", func(c *RunConfig, v string) error { c.AuthConfig = v; return nil }},
	{"PATH_STRATEGY", func(c *RunConfig, v string) error { c.PathStrategy = v; return nil }},
	{"FUZZ_LIMITS", func(c *RunConfig, v string) error { c.Limits = v; return nil }},
	{"REQUEST_TIMEOUT", func(c *RunConfig, v string) error {
		d, err := parseDuration(v)
		if err != nil {
			return newUsageError(fmt.Sprintf("REQUEST_TIMEOUT: %v", err))
		}
		c.Timeout = d
		return nil
	}},
	{"CONCURRENCY", func(c *RunConfig, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return newUsageError(fmt.Sprintf("CONCURRENCY must be an integer, got %q", v))
		}
		c.Concurrency = n
		return nil
	}},
}

// applyEnv layers the environment over cfg. Values from the process
// environment win over the env file. A missing env file is ignored unless
// required is set.
func applyEnv(cfg *RunConfig, envFile string, required bool, lookup func(string) (string, bool)) error {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return newUsageError(fmt.Sprintf("read env file %q: %v", envFile, err))
		}
	}
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok {
			v, ok = fileVals[b.name]
		}
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(cfg, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}

func applyRunConfigFromFile(cfg *RunConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		var ferr error
		switch normalizeKey(key) {
		case "input":
			cfg.Input, ferr = valueAsString(value)
		case "targeturl":
			cfg.TargetURL, ferr = valueAsString(value)
		case "iterations", "maxiter":
			cfg.Iterations, ferr = valueAsInt(value)
		case "out":
			cfg.Out, ferr = valueAsString(value)
		case "authconfig":
			cfg.AuthConfig, ferr = valueAsString(value)
		case "pathstrategy":
			cfg.PathStrategy, ferr = valueAsString(value)
		case "limits":
			cfg.Limits, ferr = valueAsString(value)
		case "timeout":
			cfg.Timeout, ferr = valueAsDuration(value)
		case "concurrency":
			cfg.Concurrency, ferr = valueAsInt(value)
		case "insecure":
			cfg.Insecure, ferr = valueAsBool(value)
		case "includetags":
			cfg.IncludeTags, ferr = valueAsStringSlice(value)
		case "excludetags":
			cfg.ExcludeTags, ferr = valueAsStringSlice(value)
		case "methods":
			cfg.Methods, ferr = valueAsStringSlice(value)
		case "paths":
			cfg.Paths, ferr = valueAsStringSlice(value)
		case "envfile":
			cfg.EnvFile, ferr = valueAsString(value)
		case "verbose":
			cfg.Verbose, ferr = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if ferr != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, ferr))
		}
	}

	return nil
}

func applyRunFlagOverrides(flags *pflag.FlagSet, cfg *RunConfig) error {
	str := func(name string, dst *string) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(v)
		return nil
	}
	list := func(name string, dst *[]string) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = sanitizeList(v)
		return nil
	}

	for name, dst := range map[string]*string{
		"input":         &cfg.Input,
		"target-url":    &cfg.TargetURL,
		"out":           &cfg.Out,
		"auth-config":   &cfg.AuthConfig,
		"path-strategy": &cfg.PathStrategy,
		"limits":        &cfg.Limits,
	} {
		if err := str(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*[]string{
		"include-tags": &cfg.IncludeTags,
		"exclude-tags": &cfg.ExcludeTags,
		"methods":      &cfg.Methods,
		"paths":        &cfg.Paths,
	} {
		if err := list(name, dst); err != nil {
			return err
		}
	}
	if flags.Changed("iterations") {
		v, err := flags.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Iterations = v
	}
	if flags.Changed("concurrency") {
		v, err := flags.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = v
	}
	if flags.Changed("timeout") {
		v, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = v
	}
	if flags.Changed("insecure") {
		v, err := flags.GetBool("insecure")
		if err != nil {
			return err
		}
		cfg.Insecure = v
	}
	if flags.Changed("verbose") {
		v, err := flags.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = v
	}
	return nil
}

func (c *RunConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.TargetURL = strings.TrimRight(strings.TrimSpace(c.TargetURL), "/")
	c.Out = strings.TrimSpace(c.Out)
	c.AuthConfig = strings.TrimSpace(c.AuthConfig)
	c.PathStrategy = strings.ToLower(strings.TrimSpace(c.PathStrategy))
	c.Limits = strings.ToLower(strings.TrimSpace(c.Limits))
	c.IncludeTags = sanitizeList(c.IncludeTags)
	c.ExcludeTags = sanitizeList(c.ExcludeTags)
	c.Paths = sanitizeList(c.Paths)
	methods := sanitizeList(c.Methods)
	for i, m := range methods {
		methods[i] = strings.ToLower(m)
	}
	c.Methods = methods
}

var knownMethods = map[string]struct{}{
	string(spec.GET): {}, string(spec.POST): {}, string(spec.PUT): {}, string(spec.DELETE): {},
	string(spec.PATCH): {}, string(spec.HEAD): {}, string(spec.OPTIONS): {}, string(spec.TRACE): {},
}

func (c *RunConfig) validate() error {
	if c.Input == "" {
		return newUsageError("run: --input is required (set via flag, config file or OPENAPI_SPEC)")
	}
	if c.Iterations <= 0 {
		return newUsageError(fmt.Sprintf("run: --iterations must be a positive integer, got %d", c.Iterations))
	}
	if c.Out == "" {
		return newUsageError("run: --out must not be empty")
	}
	if _, err := pathres.ParseStrategy(c.PathStrategy); err != nil {
		return newUsageError("run: " + err.Error())
	}
	switch c.Limits {
	case "", limitsDefault, limitsExtended:
	default:
		return newUsageError(fmt.Sprintf("run: unsupported --limits %q (allowed: default, extended)", c.Limits))
	}
	if c.Timeout <= 0 {
		return newUsageError(fmt.Sprintf("run: --timeout must be positive, got %s", c.Timeout))
	}
	if c.Concurrency < 0 {
		return newUsageError(fmt.Sprintf("run: --concurrency must not be negative, got %d", c.Concurrency))
	}
	for _, m := range c.Methods {
		if _, ok := knownMethods[m]; !ok {
			return newUsageError(fmt.Sprintf("run: unknown HTTP method %q", m))
		}
	}
	if overlap := intersect(c.IncludeTags, c.ExcludeTags); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("run: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}
	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", val)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// valueAsDuration accepts Go duration strings or a number of seconds.
func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case int:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case string:
		return parseDuration(val)
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n", "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// sanitizeList trims, drops empties and removes duplicates, keeping order.
func sanitizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}
