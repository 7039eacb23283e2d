// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/internal/validate"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var errBadFormat = errors.New("unsupported output format")

type validateFlags struct {
	folder string
	image  string
	format string
}

func newValidateCommand(app *App) *cobra.Command {
	flags := &validateFlags{}

	cmd := &cobra.Command{
		Use:   "validate [package-name]",
		Short: "Validate a packed package or an extracted image",
		Long: `Validate a packed package or an extracted image.

With a package name, the four package files are checked in order: all parts
present, archive hash, content against the content manifest, license.

With --image, a folder that already holds an extracted package is checked
against the SHA256SUMS manifest at its root.

Examples:
  tpkg validate zlib-1.2.13-rev1-linux
  tpkg validate zlib-1.2.13-rev1-linux --folder ./downloads --format json
  tpkg validate --image ./3rdParty/zlib-1.2.13-rev1-linux`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case flags.image != "" && len(args) > 0:
				return errors.New("pass either a package name or --image, not both")
			case flags.image == "" && len(args) == 0:
				return errors.New("a package name or --image is required")
			}
			return runValidate(cmd, app, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.folder, "folder", "", "folder holding the package files (default: output folder)")
	cmd.Flags().StringVar(&flags.image, "image", "", "validate an extracted package folder instead")
	cmd.Flags().StringVar(&flags.format, "format", formatText, "report format: text, json or yaml")

	return cmd
}

func runValidate(cmd *cobra.Command, app *App, flags *validateFlags, args []string) error {
	v := app.validator()

	var res *validate.Result
	if flags.image != "" {
		res = v.VerifyImage(cmd.Context(), flags.image)
	} else {
		folder := flags.folder
		if folder == "" {
			folder = app.cfg.OutputFolder
		}
		res = v.Validate(cmd.Context(), folder, args[0])
	}

	out := cmd.OutOrStdout()
	switch flags.format {
	case formatText:
		writeResultText(out, res, true)
		if !res.Valid {
			if entry := issue.Get(issueFor(res.Cause())); entry != nil {
				if rendered, err := entry.Render("dark"); err == nil {
					fmt.Fprint(cmd.ErrOrStderr(), rendered)
				}
			}
		}
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", errBadFormat, flags.format)
	}

	if !res.Valid {
		return failed()
	}
	return nil
}

// writeResultText prints a validation result. The success line is only
// printed when showValid is set.
func writeResultText(w io.Writer, res *validate.Result, showValid bool) {
	name := res.Package
	if name == "" {
		name = res.Location
	}

	if res.Valid {
		if showValid {
			fmt.Fprintf(w, "%s %s is valid\n", successIcon, CmdStyle.Render(name))
		}
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  %s %s\n", warningIcon, WarningStyle.Render(warning))
		}
		return
	}

	fmt.Fprintf(w, "%s %s failed at %s\n", errorIcon, CmdStyle.Render(name), ErrorStyle.Render(string(res.FailedStage)))
	for _, d := range res.Diagnostics {
		fmt.Fprintf(w, "  %s %s\n", infoIcon, d)
	}
	list := func(label string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(w, "  %s:\n", label)
		for _, p := range paths {
			fmt.Fprintf(w, "    - %s\n", p)
		}
	}
	list("missing", res.MissingFiles)
	list("unexpected", res.UnexpectedFiles)
	list("read-only", res.ReadOnlyFiles)
	for _, m := range res.HashMismatches {
		fmt.Fprintf(w, "  hash mismatch %s\n    expected %s\n    actual   %s\n", m.Path, m.Expected, m.Actual)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  %s %s\n", warningIcon, WarningStyle.Render(warning))
	}
}
