// SPDX-License-Identifier: MPL-2.0

package license

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/tpkg/tpkg/pkg/descriptor"
)

// CustomID is the escape hatch for licenses that have no SPDX identifier.
const CustomID = "custom"

var (
	// ErrLicenseFileMissing is returned when the descriptor names a license
	// file that does not exist in the package.
	ErrLicenseFileMissing = errors.New("license file missing")

	// ErrLicenseNotCompliant is returned for identifiers outside the SPDX list.
	ErrLicenseNotCompliant = errors.New("license not SPDX compliant")
)

type (
	// LicenseFileMissingError names the expected license file. Reason is set
	// when a file exists but cannot count as the package's license.
	LicenseFileMissingError struct {
		Path   string
		Reason string
	}

	// NotCompliantError names the rejected identifier.
	NotCompliantError struct {
		License string
	}

	// Outcome describes a passing license check.
	Outcome struct {
		Descriptor *descriptor.Descriptor
		// Warning is set when the check passed with a caveat.
		Warning string
		// Skipped is true when the SPDX identifier check was not performed.
		Skipped bool
	}
)

func (e *LicenseFileMissingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("license file %s %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("license file %s does not exist", e.Path)
}

// Unwrap returns ErrLicenseFileMissing.
func (e *LicenseFileMissingError) Unwrap() error { return ErrLicenseFileMissing }

func (e *NotCompliantError) Error() string {
	return fmt.Sprintf("license %q is not a valid SPDX identifier (use %q for licenses without one)", e.License, CustomID)
}

// Unwrap returns ErrLicenseNotCompliant.
func (e *NotCompliantError) Unwrap() error { return ErrLicenseNotCompliant }

// CheckFolder loads PackageInfo.json from root and applies Check to it.
func CheckFolder(ctx context.Context, root string, provider Provider, logger *log.Logger) (*Outcome, error) {
	d, err := descriptor.Read(filepath.Join(root, descriptor.FileName))
	if err != nil {
		return nil, err
	}
	return Check(ctx, root, d, provider, logger)
}

// Check verifies that d's license file exists under root and that its
// license identifier is acceptable.
func Check(ctx context.Context, root string, d *descriptor.Descriptor, provider Provider, logger *log.Logger) (*Outcome, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	rel := filepath.FromSlash(d.LicenseFile)
	if !filepath.IsLocal(rel) {
		return nil, &LicenseFileMissingError{Path: d.LicenseFile, Reason: "is outside the package"}
	}
	licensePath := filepath.Join(root, rel)
	info, err := os.Stat(licensePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LicenseFileMissingError{Path: licensePath}
		}
		return nil, fmt.Errorf("checking license file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, &LicenseFileMissingError{Path: licensePath, Reason: "is not a regular file"}
	}

	out := &Outcome{Descriptor: d}
	isCustom := strings.EqualFold(d.License, CustomID)
	if isCustom {
		out.Warning = fmt.Sprintf("license %q is not an SPDX identifier; review %s manually", d.License, d.LicenseFile)
		logger.Warn("custom license", "package", d.PackageName, "license_file", d.LicenseFile)
	}

	if provider == nil {
		out.Skipped = true
		return out, nil
	}
	set, ok := provider.Identifiers(ctx)
	if !ok {
		out.Skipped = true
		logger.Warn("SPDX license list unavailable, skipping identifier check", "package", d.PackageName)
		return out, nil
	}
	if !isCustom && !set.Contains(d.License) {
		return nil, &NotCompliantError{License: d.License}
	}
	return out, nil
}
