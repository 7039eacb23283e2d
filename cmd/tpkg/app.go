// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/tpkg/tpkg/internal/config"
	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/packager"
	"github.com/tpkg/tpkg/internal/remote"
	"github.com/tpkg/tpkg/internal/validate"
)

type (
	// App wires CLI services and shared dependencies. Command handlers receive
	// an App and reach configuration, license data and remote stores through it.
	App struct {
		Config    ConfigProvider
		Licenses  license.Provider
		OpenStore StoreOpener
		stdout    io.Writer
		stderr    io.Writer

		// Set by the root command before any subcommand runs.
		cfg     *config.Config
		cfgPath string
		logger  *log.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    ConfigProvider
		Licenses  license.Provider
		OpenStore StoreOpener
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		LoadWithSource(ctx context.Context, opts config.LoadOptions) (*config.Config, string, error)
	}

	// StoreOpener opens the store behind a server URL.
	StoreOpener func(rawURL string, opts remote.Options) (remote.Store, error)
)

// NewApp creates an App with defaults for omitted dependencies. The license
// provider is built lazily from the loaded configuration when not injected.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.OpenStore == nil {
		deps.OpenStore = remote.Open
	}
	return &App{
		Config:    deps.Config,
		Licenses:  deps.Licenses,
		OpenStore: deps.OpenStore,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
		logger:    log.New(io.Discard),
	}
}

// load reads the configuration once per invocation and configures logging.
func (a *App) load(ctx context.Context, opts config.LoadOptions, verbose bool) error {
	cfg, path, err := a.Config.LoadWithSource(ctx, opts)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.cfgPath = path
	a.logger = newLogger(a.stderr, cfg.LogLevel, verbose)
	if a.Licenses == nil {
		client := license.NewClient(
			license.WithURL(cfg.SPDXURL),
			license.WithUserAgent("tpkg/"+Version),
		)
		a.Licenses = license.Cached(client.Fetch)
	}
	return nil
}

// newLogger builds the CLI logger. --verbose forces debug level.
func newLogger(w io.Writer, level config.LogLevel, verbose bool) *log.Logger {
	lvl, err := log.ParseLevel(string(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          "tpkg",
		Level:           lvl,
		ReportTimestamp: verbose,
	})
}

func (a *App) validator() *validate.Validator {
	return validate.New(
		validate.WithLicenseProvider(a.Licenses),
		validate.WithLogger(a.logger),
		validate.WithTempDir(a.cfg.TempDir),
	)
}

func (a *App) packager() *packager.Packager {
	return packager.New(
		packager.WithLogger(a.logger),
		packager.WithLicenseProvider(a.Licenses),
		packager.WithValidator(a.validator()),
		packager.WithSkipSelfCheck(a.cfg.SkipSelfCheck),
	)
}

func (a *App) storeOptions() remote.Options {
	return remote.Options{
		AWSProfile: a.cfg.AWSProfile,
		S3Endpoint: a.cfg.S3Endpoint,
		S3Region:   a.cfg.S3Region,
		S3Insecure: a.cfg.S3Insecure,
	}
}

// openBucket accepts a bare bucket name or any server URL.
func (a *App) openBucket(bucket string) (remote.Store, error) {
	if !strings.Contains(bucket, "://") {
		bucket = "s3://" + bucket
	}
	return a.OpenStore(bucket, a.storeOptions())
}

func (a *App) finder() *remote.Finder {
	return remote.OpenFinder(a.cfg.ServerURLs, a.OpenStore, a.storeOptions(), a.logger)
}
