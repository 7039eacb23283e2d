// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/internal/packager"
)

func newPackCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pack <source-folder>",
		Short: "Pack a prepared folder into a package",
		Long: `Pack a prepared folder into a package.

The folder must contain a PackageInfo.json naming the package. The four
package files are written to the output folder, the descriptor last, and
the result is validated before the command reports success.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(cmd, app, args[0])
		},
	}
}

func runPack(cmd *cobra.Command, app *App, source string) error {
	out := cmd.OutOrStdout()

	res, err := app.packager().Pack(cmd.Context(), source, app.cfg.OutputFolder)
	if err != nil {
		var selfErr *packager.SelfCheckError
		if errors.As(err, &selfErr) && selfErr.Result != nil {
			writeResultText(cmd.ErrOrStderr(), selfErr.Result, false)
		}
		return issue.NewErrorContext().
			WithOperation("pack").
			WithResource(source).
			Wrap(err).
			BuildError()
	}

	fmt.Fprintf(out, "%s Packed %s (%d files)\n", successIcon, CmdStyle.Render(res.Name), res.Files)
	fmt.Fprintf(out, "  %s %s\n", infoIcon, res.OutputFolder)
	fmt.Fprintf(out, "  %s sha256 %s\n", infoIcon, res.ArchiveHash)
	if res.Warning != "" {
		fmt.Fprintf(out, "%s %s\n", warningIcon, WarningStyle.Render(res.Warning))
	}
	return nil
}
