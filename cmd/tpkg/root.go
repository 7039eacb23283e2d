// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/tpkg/tpkg/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags are the persistent flags shared by every subcommand. The path
// flags override the matching PACKAGE_* environment variables.
type rootFlags struct {
	verbose      bool
	configFile   string
	searchPath   string
	outputFolder string
}

// NewRootCommand builds the tpkg command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "tpkg",
		Short: "Package and verify prebuilt third-party dependencies",
		Long: TitleStyle.Render("tpkg") + SubtitleStyle.Render(" - package and verify prebuilt third-party dependencies") + `

A package is four files published side by side:

  <name>.tar.xz                     the archive
  <name>.tar.xz.SHA256SUMS          hash of the archive
  <name>.tar.xz.content.SHA256SUMS  hash of every file inside it
  <name>.PackageInfo.json           descriptor, written last

` + SubtitleStyle.Render("Examples:") + `
  tpkg pack ./zlib-1.2.13-rev1-linux          Pack a prepared folder
  tpkg validate zlib-1.2.13-rev1-linux        Validate a packed package
  tpkg build-all                              Build everything not yet published
  tpkg upload                                 Upload validated packages`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd.Context(), flags.loadOptions(), flags.verbose)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.StringVar(&flags.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/tpkg/config.cue)")
	pf.StringVar(&flags.searchPath, "search-path", "", "folder holding build lists and scripts (env PACKAGE_search_path)")
	pf.StringVar(&flags.outputFolder, "output-folder", "", "folder receiving packages (env PACKAGE_output_folder)")

	rootCmd.AddCommand(
		newPackCommand(app),
		newValidateCommand(app),
		newBuildCommand(app),
		newBuildAllCommand(app),
		newListCommand(app),
		newFindCommand(app),
		newUploadCommand(app),
		newCompareBucketsCommand(app),
		newConfigCommand(app),
	)

	return rootCmd
}

// loadOptions layers the path flags over the process environment.
func (f *rootFlags) loadOptions() config.LoadOptions {
	overrides := map[string]string{}
	if f.searchPath != "" {
		overrides["PACKAGE_search_path"] = f.searchPath
	}
	if f.outputFolder != "" {
		overrides["PACKAGE_output_folder"] = f.outputFolder
	}
	return config.LoadOptions{
		ConfigFilePath: f.configFile,
		LookupEnv: func(key string) (string, bool) {
			if v, ok := overrides[key]; ok {
				return v, true
			}
			return os.LookupEnv(key)
		},
	}
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the status the command asked for.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
			renderError(w, err, verbose)
		}),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
