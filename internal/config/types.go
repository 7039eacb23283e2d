// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tpkg/tpkg/internal/buildscript"
	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/remote"
)

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	// DefaultOutputFolder is relative to the search path.
	DefaultOutputFolder = "packages"
	// DefaultBuildInterpreter runs the python build scripts without user site packages.
	DefaultBuildInterpreter = buildscript.DefaultInterpreter
	DefaultS3Endpoint       = remote.DefaultS3Endpoint
	DefaultSPDXURL          = license.DefaultSPDXURL
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level the CLI logger prints.
	LogLevel string

	// InvalidLogLevelError wraps ErrInvalidLogLevel.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError collects every field-level problem of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the effective tpkg settings.
	Config struct {
		// OutputFolder receives packed packages. A relative value is
		// resolved against SearchPath.
		OutputFolder string `json:"output_folder" mapstructure:"output_folder" yaml:"output_folder"`
		// SearchPath is where build lists and build scripts are looked up.
		SearchPath string `json:"search_path" mapstructure:"search_path" yaml:"search_path"`
		// ServerURLs are probed in order when looking for published packages.
		ServerURLs []string `json:"server_urls" mapstructure:"server_urls" yaml:"server_urls"`
		// BucketName is the upload destination.
		BucketName       string   `json:"bucket_name" mapstructure:"bucket_name" yaml:"bucket_name"`
		AWSProfile       string   `json:"aws_profile" mapstructure:"aws_profile" yaml:"aws_profile"`
		S3Endpoint       string   `json:"s3_endpoint" mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
		S3Region         string   `json:"s3_region" mapstructure:"s3_region" yaml:"s3_region"`
		S3Insecure       bool     `json:"s3_insecure" mapstructure:"s3_insecure" yaml:"s3_insecure"`
		SPDXURL          string   `json:"spdx_url" mapstructure:"spdx_url" yaml:"spdx_url"`
		SkipSelfCheck    bool     `json:"skip_self_check" mapstructure:"skip_self_check" yaml:"skip_self_check"`
		BuildInterpreter string   `json:"build_interpreter" mapstructure:"build_interpreter" yaml:"build_interpreter"`
		LogLevel         LogLevel `json:"log_level" mapstructure:"log_level" yaml:"log_level"`
		// TempDir hosts extraction folders during validation; empty means the OS default.
		TempDir string `json:"temp_dir" mapstructure:"temp_dir" yaml:"temp_dir"`
	}
)

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		OutputFolder:     DefaultOutputFolder,
		S3Endpoint:       DefaultS3Endpoint,
		SPDXURL:          DefaultSPDXURL,
		BuildInterpreter: DefaultBuildInterpreter,
		LogLevel:         LogLevelInfo,
	}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Validate returns an InvalidLogLevelError for unknown levels.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks the fields the schema cannot see, such as values that
// arrived through environment variables.
func (c *Config) Validate() error {
	var errs []error
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.OutputFolder) == "" {
		errs = append(errs, errors.New("output_folder must not be empty"))
	}
	if strings.TrimSpace(c.BuildInterpreter) == "" {
		errs = append(errs, errors.New("build_interpreter must not be empty"))
	}
	for i, u := range c.ServerURLs {
		if strings.TrimSpace(u) == "" {
			errs = append(errs, fmt.Errorf("server_urls[%d] must not be empty", i))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}
