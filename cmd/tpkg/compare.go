// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/tpkg/tpkg/internal/bucketdiff"
	"github.com/tpkg/tpkg/internal/buildlist"
	"github.com/tpkg/tpkg/internal/issue"
)

// renderMarkdown is swapped out in tests.
var renderMarkdown = glamour.Render

func newCompareBucketsCommand(app *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "compare-buckets <bucket1> <bucket2>",
		Short: "Compare the packages in two buckets with the build lists",
		Long: `Compare the packages in two buckets with the build lists.

Reports packages only present in the second bucket, packages in a bucket
that no build list mentions, and planned packages found in neither bucket.
Arguments are bucket names or server URLs.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.openBucket(args[0])
			if err != nil {
				return issue.WrapWithContext(err, "open bucket", args[0])
			}
			b, err := app.openBucket(args[1])
			if err != nil {
				return issue.WrapWithContext(err, "open bucket", args[1])
			}

			plan, err := buildlist.LoadAll(app.cfg.SearchPath)
			if err != nil {
				return issue.WrapWithContext(err, "load build lists", app.cfg.SearchPath)
			}

			report, err := bucketdiff.Compare(cmd.Context(), a, b, plan)
			if err != nil {
				return issue.WrapWithContext(err, "compare buckets", args[0]+" "+args[1])
			}

			md := report.Markdown()
			if !raw {
				if rendered, rerr := renderMarkdown(md, "dark"); rerr == nil {
					md = rendered
				} else {
					app.logger.Debug("markdown rendering failed", "err", rerr)
				}
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), md)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal rendering")
	return cmd
}
