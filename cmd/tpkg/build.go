// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tpkg/tpkg/internal/build"
	"github.com/tpkg/tpkg/internal/buildlist"
	"github.com/tpkg/tpkg/internal/buildscript"
	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/pkg/platform"
)

func newBuildCommand(app *App) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "build <package-name>",
		Short: "Build and pack one package from the build list",
		Long: `Build and pack one package from the build list.

The package's build script runs first when it has one, then the folder the
build list names for it is packed into the output folder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlan(app, target)
			if err != nil {
				return err
			}
			res, err := app.builder(nil).BuildOne(cmd.Context(), plan, args[0], app.cfg.OutputFolder)
			if err != nil {
				return issue.WrapWithContext(err, "build", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Built %s into %s\n", successIcon, CmdStyle.Render(res.Name), res.OutputFolder)
			if res.Warning != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", warningIcon, WarningStyle.Render(res.Warning))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "platform", platform.Host(), "build list platform")
	return cmd
}

func newBuildAllCommand(app *App) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "build-all",
		Short: "Build every package that is not on a package server yet",
		Long: `Build every package that is not on a package server yet.

Each configured server (server_urls, LY_PACKAGE_SERVER_URLS) is asked for
every package in the build list; only the missing ones are built and packed.
A failing build script stops the run. Packing failures are reported at the
end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := loadPlan(app, target)
			if err != nil {
				return err
			}

			finder := app.finder()
			published := build.FinderFunc(func(ctx context.Context, name string) bool {
				_, ok := finder.Find(ctx, name)
				return ok
			})

			summary, err := app.builder(published).BuildAll(cmd.Context(), plan, app.cfg.OutputFolder)
			if summary != nil {
				writeSummary(cmd, summary)
			}
			if err != nil {
				return issue.WrapWithContext(err, "build packages", app.cfg.SearchPath)
			}
			if len(summary.Failed) > 0 {
				return failed()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "platform", platform.Host(), "build list platform")
	return cmd
}

func (a *App) builder(finder build.PackageFinder) *build.Builder {
	runner := buildscript.New(
		buildscript.WithInterpreter(a.cfg.BuildInterpreter),
		buildscript.WithStdIO(a.stdout, a.stderr),
		buildscript.WithLogger(a.logger),
	)
	opts := []build.Option{build.WithLogger(a.logger)}
	if finder != nil {
		opts = append(opts, build.WithFinder(finder))
	}
	return build.New(a.packager(), runner, opts...)
}

func loadPlan(app *App, target string) (*buildlist.List, error) {
	plan, err := buildlist.Load(app.cfg.SearchPath, target)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load build list").
			WithResource(app.cfg.SearchPath).
			WithSuggestion("Pass --search-path or set PACKAGE_search_path").
			Wrap(err).
			BuildError()
	}
	return plan, nil
}

func writeSummary(cmd *cobra.Command, s *build.Summary) {
	out := cmd.OutOrStdout()
	for _, name := range s.Built {
		fmt.Fprintf(out, "%s built %s\n", successIcon, CmdStyle.Render(name))
	}
	for _, name := range s.Published {
		fmt.Fprintf(out, "%s %s already published\n", infoIcon, CmdStyle.Render(name))
	}
	for _, f := range s.Failed {
		fmt.Fprintf(out, "%s %s: %v\n", errorIcon, CmdStyle.Render(f.Name), f.Err)
	}
	fmt.Fprintf(out, "\n%d built, %d already published, %d failed\n", len(s.Built), len(s.Published), len(s.Failed))
}
