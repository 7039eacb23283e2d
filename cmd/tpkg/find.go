// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFindCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "find <package-name>",
		Short: "Look a package up on the package servers",
		Long: `Look a package up on the package servers.

Servers come from server_urls (LY_PACKAGE_SERVER_URLS, separated by ';') and
are asked in order. s3:// URLs are probed for the descriptor, http(s):// URLs
for the content manifest, folders for the descriptor file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			finder := app.finder()
			if len(finder.Stores()) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s no package servers configured\n", warningIcon)
				return failed()
			}
			hit, ok := finder.Find(cmd.Context(), args[0])
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s not found\n", errorIcon, CmdStyle.Render(args[0]))
				return failed()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s found on %s (%s)\n", successIcon, CmdStyle.Render(args[0]), hit.Store.Location(), hit.Key)
			return nil
		},
	}
}
