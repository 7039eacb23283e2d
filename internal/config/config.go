// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/internal/remote"
	"github.com/tpkg/tpkg/pkg/platform"
)

const (
	// AppName is the application name.
	AppName = "tpkg"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	// MaxConfigFileSize bounds what loadCUEIntoViper is willing to parse.
	MaxConfigFileSize = 1 << 20

	// serverURLSeparator splits LY_PACKAGE_SERVER_URLS.
	serverURLSeparator = ";"
)

//go:embed config_schema.cue
var configSchema string

// envBindings maps config keys to the environment variables that set them,
// in precedence order. The names are the ones the older packaging scripts read.
var envBindings = map[string][]string{
	"output_folder":     {"PACKAGE_output_folder"},
	"search_path":       {"PACKAGE_search_path"},
	"server_urls":       {"LY_PACKAGE_SERVER_URLS"},
	"bucket_name":       {"PACKAGE_bucket_name", "LY_PACKAGE_BUCKET_NAME"},
	"aws_profile":       {"AWS_PROFILE", "LY_AWS_PROFILE"},
	"s3_endpoint":       {"PACKAGE_s3_endpoint"},
	"s3_region":         {"AWS_REGION"},
	"s3_insecure":       {"PACKAGE_s3_insecure"},
	"spdx_url":          {"PACKAGE_spdx_url"},
	"skip_self_check":   {"PACKAGE_skip_self_check"},
	"build_interpreter": {"PACKAGE_build_interpreter"},
	"log_level":         {"PACKAGE_log_level"},
	"temp_dir":          {"PACKAGE_temp_dir"},
}

// configDirOverride lets tests bypass os.UserHomeDir, which does not honour
// HOME on every platform.
var configDirOverride string

// SetConfigDirOverride sets a custom config directory path for tests.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}

// Reset clears test overrides.
func Reset() {
	configDirOverride = ""
}

// ConfigDir returns the tpkg configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions performs option-driven config loading. It returns the
// config together with the file it was read from ("" when only defaults
// and environment applied).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("output_folder", defaults.OutputFolder)
	v.SetDefault("search_path", defaults.SearchPath)
	v.SetDefault("server_urls", defaults.ServerURLs)
	v.SetDefault("s3_endpoint", defaults.S3Endpoint)
	v.SetDefault("spdx_url", defaults.SPDXURL)
	v.SetDefault("skip_self_check", defaults.SkipSelfCheck)
	v.SetDefault("build_interpreter", defaults.BuildInterpreter)
	v.SetDefault("log_level", string(defaults.LogLevel))

	if err := bindEnv(v, opts.LookupEnv); err != nil {
		return nil, "", err
	}

	resolvedPath, err := loadConfigFile(v, opts)
	if err != nil {
		return nil, "", err
	}

	var cfg Config
	decode := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(serverURLSeparator),
	))
	if err := v.Unmarshal(&cfg, decode); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ServerURLs = remote.SplitServerURLs(strings.Join(cfg.ServerURLs, serverURLSeparator))

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check the PACKAGE_* environment variables").
			WithSuggestion("Use 'tpkg config show' to see the effective configuration").
			Wrap(err).
			BuildError()
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

// bindEnv registers the legacy environment variable names. A custom lookup
// replaces the process environment, which keeps tests hermetic.
func bindEnv(v *viper.Viper, lookup func(string) (string, bool)) error {
	if lookup != nil {
		for key, names := range envBindings {
			for _, name := range names {
				if val, ok := lookup(name); ok && val != "" {
					v.Set(key, val)
					break
				}
			}
		}
		return nil
	}

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// loadConfigFile merges the first config file found into v: the explicit
// path, then the config directory, then the current directory. Having no
// file at all is fine.
func loadConfigFile(v *viper.Viper, opts LoadOptions) (string, error) {
	var candidates []string
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'tpkg config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %w", os.ErrNotExist)).
				BuildError()
		}
		candidates = []string{opts.ConfigFilePath}
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return "", err
		}
		candidates = []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			ConfigFileName + "." + ConfigFileExt,
		}
	}

	for _, path := range candidates {
		if !fileExists(path) {
			continue
		}
		if err := loadCUEIntoViper(v, path); err != nil {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				Wrap(err).
				BuildError()
		}
		return path, nil
	}
	return "", nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper. Fields are optional, so validation
// does not require concrete values.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > MaxConfigFileSize {
		return fmt.Errorf("%s: file size %d exceeds limit of %d bytes", path, len(data), MaxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// formatCUEError flattens CUE errors into "<file>: <path>: <message>" lines.
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", path, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.Join(cueerrors.Path(e), ".")
		msg := e.Error()
		if field != "" {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, field), ":"))
			lines = append(lines, field+": "+msg)
		} else {
			lines = append(lines, msg)
		}
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", path, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", path, strings.Join(lines, "\n  "))
}

// resolvePaths makes SearchPath absolute (defaulting to the working
// directory) and resolves a relative OutputFolder against it.
func (c *Config) resolvePaths() error {
	if c.SearchPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		c.SearchPath = wd
	}
	abs, err := filepath.Abs(c.SearchPath)
	if err != nil {
		return fmt.Errorf("failed to resolve search path: %w", err)
	}
	c.SearchPath = abs
	c.OutputFolder = c.ResolveOutputFolder(c.OutputFolder)
	return nil
}

// ResolveOutputFolder returns folder unchanged when absolute, otherwise
// joined onto the search path.
func (c *Config) ResolveOutputFolder(folder string) string {
	if filepath.IsAbs(folder) {
		return filepath.Clean(folder)
	}
	return filepath.Join(c.SearchPath, folder)
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save writes cfg as config.cue into the config directory.
func Save(cfg *Config) (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration.
// Empty optional fields are left out so the file stays valid against #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// tpkg configuration file\n\n")

	str := func(key, val string) {
		if val != "" {
			fmt.Fprintf(&sb, "%s: %q\n", key, val)
		}
	}

	str("output_folder", cfg.OutputFolder)
	str("search_path", cfg.SearchPath)
	if len(cfg.ServerURLs) > 0 {
		sb.WriteString("server_urls: [\n")
		for _, u := range cfg.ServerURLs {
			fmt.Fprintf(&sb, "\t%q,\n", u)
		}
		sb.WriteString("]\n")
	}
	str("bucket_name", cfg.BucketName)
	str("aws_profile", cfg.AWSProfile)
	str("s3_endpoint", cfg.S3Endpoint)
	str("s3_region", cfg.S3Region)
	fmt.Fprintf(&sb, "s3_insecure: %v\n", cfg.S3Insecure)
	str("spdx_url", cfg.SPDXURL)
	fmt.Fprintf(&sb, "skip_self_check: %v\n", cfg.SkipSelfCheck)
	str("build_interpreter", cfg.BuildInterpreter)
	str("log_level", string(cfg.LogLevel))
	str("temp_dir", cfg.TempDir)

	return sb.String()
}
