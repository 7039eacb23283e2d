// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tpkg/tpkg/internal/buildlist"
	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/pkg/platform"
)

func newListCommand(app *App) *cobra.Command {
	var (
		target string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the build plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				plan *buildlist.List
				err  error
			)
			if all {
				plan, err = buildlist.LoadAll(app.cfg.SearchPath)
				if err != nil {
					return issue.WrapWithContext(err, "load build lists", app.cfg.SearchPath)
				}
			} else {
				plan, err = loadPlan(app, target)
				if err != nil {
					return err
				}
			}
			_, err = plan.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&target, "platform", platform.Host(), "build list platform")
	cmd.Flags().BoolVar(&all, "all", false, "merge the build lists of every platform")
	return cmd
}
