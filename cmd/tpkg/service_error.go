// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/tpkg/tpkg/internal/build"
	"github.com/tpkg/tpkg/internal/buildlist"
	"github.com/tpkg/tpkg/internal/buildscript"
	"github.com/tpkg/tpkg/internal/config"
	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/packager"
	"github.com/tpkg/tpkg/internal/validate"
	"github.com/tpkg/tpkg/pkg/descriptor"
)

// issueFor maps an error to the help page explaining it, 0 when none fits.
// More specific kinds are checked first.
func issueFor(err error) issue.Id {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, packager.ErrDescriptorNotFound), errors.Is(err, descriptor.ErrMissingField):
		return issue.DescriptorNotFoundId
	case errors.Is(err, packager.ErrInvalidName), errors.Is(err, build.ErrNameMismatch):
		return issue.InvalidPackageNameId
	case errors.Is(err, packager.ErrSelfCheckFailed):
		return issue.SelfCheckFailedId
	case errors.Is(err, validate.ErrMissingPart):
		return issue.MissingPartId
	case errors.Is(err, validate.ErrArchiveHashMismatch):
		return issue.ArchiveHashMismatchId
	case errors.Is(err, validate.ErrFilesetMismatch), errors.Is(err, validate.ErrContentHashMismatch):
		return issue.ContentMismatchId
	case errors.Is(err, validate.ErrReadOnlyContent):
		return issue.ReadOnlyContentId
	case errors.Is(err, license.ErrLicenseNotCompliant), errors.Is(err, license.ErrLicenseFileMissing):
		return issue.LicenseNotCompliantId
	case errors.Is(err, license.ErrListUnavailable):
		return issue.LicenseListUnavailableId
	case errors.Is(err, buildlist.ErrListNotFound):
		return issue.BuildListNotFoundId
	case errors.Is(err, buildscript.ErrScriptFailed), errors.Is(err, buildscript.ErrScriptNotFound):
		return issue.BuildScriptFailedId
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrInvalidLogLevel):
		return issue.ConfigLoadFailedId
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId
	default:
		return 0
	}
}

// renderError prints err and, when it maps to a catalogued issue, the
// rendered help page below it.
func renderError(w io.Writer, err error, verbose bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}

	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))

	id := issueFor(err)
	if id == 0 {
		return
	}
	if entry := issue.Get(id); entry != nil {
		if rendered, rerr := entry.Render("dark"); rerr == nil {
			fmt.Fprint(w, rendered)
		}
	}
}

// formatErrorForDisplay uses ActionableError formatting when available.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
