// SPDX-License-Identifier: MPL-2.0

// Package packager turns a prepared source folder into a published package:
// a .tar.xz archive with an embedded content manifest, the archive's own hash
// manifest, a copy of the content manifest and a copy of PackageInfo.json.
package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/tpkg/tpkg/internal/archive"
	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/validate"
	"github.com/tpkg/tpkg/pkg/artifact"
	"github.com/tpkg/tpkg/pkg/contenthash"
	"github.com/tpkg/tpkg/pkg/descriptor"
	"github.com/tpkg/tpkg/pkg/manifest"
)

var (
	// ErrDescriptorNotFound is returned when the source folder has no
	// PackageInfo.json. It wraps fs.ErrNotExist.
	ErrDescriptorNotFound = fmt.Errorf("package descriptor not found: %w", os.ErrNotExist)

	// ErrReservedPath is returned when a source file would collide with the
	// synthetic content manifest.
	ErrReservedPath = errors.New("source contains reserved path")

	// ErrInvalidName is returned when PackageName cannot be used as a file name.
	ErrInvalidName = errors.New("invalid package name")

	// ErrSelfCheckFailed is returned when the freshly published package does
	// not pass validation.
	ErrSelfCheckFailed = errors.New("published package failed validation")
)

type (
	// Packager builds packages. The zero value is not usable; call New.
	Packager struct {
		logger        *log.Logger
		licenses      license.Provider
		validator     *validate.Validator
		dictCap       int
		skipSelfCheck bool
	}

	// Option configures a Packager.
	Option func(*Packager)

	// Result describes a published package.
	Result struct {
		Name         string
		OutputFolder string
		Files        int
		ArchiveHash  string
		Manifest     *manifest.Manifest
		// Warning carries license caveats such as a custom license.
		Warning string
		// Validation is the self-check outcome, nil when skipped.
		Validation *validate.Result
	}

	// SelfCheckError carries the failed validation of a just-built package.
	SelfCheckError struct {
		Result *validate.Result
	}

	// PublishError reports a part that could not be moved into the output
	// folder. Replaced lists the parts already swapped in before it, which now
	// sit next to the previous versions of the remaining parts.
	PublishError struct {
		Part     string
		Replaced []string
		Err      error
	}
)

func (e *PublishError) Error() string {
	if len(e.Replaced) == 0 {
		return fmt.Sprintf("publishing %s: %v", e.Part, e.Err)
	}
	return fmt.Sprintf("publishing %s: %v (already replaced: %s)", e.Part, e.Err, strings.Join(e.Replaced, ", "))
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *SelfCheckError) Error() string {
	return fmt.Sprintf("package %s failed self-check: %v", e.Result.Package, e.Result.Cause())
}

// Unwrap returns ErrSelfCheckFailed.
func (e *SelfCheckError) Unwrap() error { return ErrSelfCheckFailed }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Packager) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLicenseProvider sets the SPDX identifier source for the license gate.
func WithLicenseProvider(lp license.Provider) Option {
	return func(p *Packager) { p.licenses = lp }
}

// WithValidator sets the validator used for the post-publish self-check.
func WithValidator(v *validate.Validator) Option {
	return func(p *Packager) { p.validator = v }
}

// WithDictCap sets the xz dictionary size in bytes.
func WithDictCap(n int) Option {
	return func(p *Packager) { p.dictCap = n }
}

// WithSkipSelfCheck disables validation of the published package.
func WithSkipSelfCheck(skip bool) Option {
	return func(p *Packager) { p.skipSelfCheck = skip }
}

// New creates a Packager.
func New(opts ...Option) *Packager {
	p := &Packager{logger: log.New(io.Discard), dictCap: archive.DefaultDictCap}
	for _, opt := range opts {
		opt(p)
	}
	if p.licenses == nil {
		p.licenses = license.Cached(license.NewClient().Fetch)
	}
	if p.validator == nil {
		p.validator = validate.New(validate.WithLicenseProvider(p.licenses), validate.WithLogger(p.logger))
	}
	return p
}

// Pack packages sourceFolder into outputFolder. Nothing in outputFolder is
// touched until every artifact has been built; concurrent Pack calls for the
// same package and output folder are not supported.
func (p *Packager) Pack(ctx context.Context, sourceFolder, outputFolder string) (*Result, error) {
	src, err := filepath.Abs(sourceFolder)
	if err != nil {
		return nil, fmt.Errorf("resolving source folder: %w", err)
	}

	descPath := filepath.Join(src, descriptor.FileName)
	if _, statErr := os.Stat(descPath); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDescriptorNotFound, descPath)
		}
		return nil, fmt.Errorf("checking descriptor: %w", statErr)
	}
	desc, err := descriptor.Read(descPath)
	if err != nil {
		return nil, err
	}
	name := desc.PackageName
	if !artifact.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	licenseOutcome, err := license.Check(ctx, src, desc, p.licenses, p.logger)
	if err != nil {
		return nil, err
	}

	p.logger.Info("packaging", "package", name, "source", src)

	entries, err := collect(src, p.logger)
	if err != nil {
		return nil, err
	}
	content := manifest.New()
	for _, e := range entries {
		hash, hashErr := contenthash.Hash(e.abs)
		if hashErr != nil {
			return nil, hashErr
		}
		if addErr := content.Add(e.rel, hash); addErr != nil {
			return nil, addErr
		}
	}
	p.logger.Debug("hashed package content", "package", name, "files", content.Len())

	if err := os.MkdirAll(outputFolder, 0o755); err != nil {
		return nil, fmt.Errorf("creating output folder: %w", err)
	}
	staging, err := os.MkdirTemp(outputFolder, ".tpkg-"+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging folder: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	names := artifact.NamesFor(name)
	archiveHash, err := p.stage(staging, names, descPath, entries, content)
	if err != nil {
		return nil, err
	}

	var replaced []string
	for _, part := range names.Ordered() {
		if err := replaceFile(filepath.Join(staging, part), filepath.Join(outputFolder, part)); err != nil {
			p.logger.Error("publishing interrupted", "package", name, "part", part, "replaced", replaced, "err", err)
			return nil, &PublishError{Part: part, Replaced: replaced, Err: err}
		}
		replaced = append(replaced, part)
	}
	p.logger.Info("created package", "package", name, "path", filepath.Join(outputFolder, names.Archive))

	res := &Result{
		Name:         name,
		OutputFolder: outputFolder,
		Files:        content.Len(),
		ArchiveHash:  archiveHash,
		Manifest:     content,
		Warning:      licenseOutcome.Warning,
	}
	if p.skipSelfCheck {
		return res, nil
	}

	res.Validation = p.validator.Validate(ctx, outputFolder, name)
	if !res.Validation.Valid {
		return res, &SelfCheckError{Result: res.Validation}
	}
	return res, nil
}

// stage writes all four artifacts into staging and returns the archive digest.
func (p *Packager) stage(staging string, names artifact.Names, descPath string, entries []entry, content *manifest.Manifest) (string, error) {
	manifestBytes, err := content.MarshalText()
	if err != nil {
		return "", err
	}

	archivePath := filepath.Join(staging, names.Archive)
	if err := writeArchive(archivePath, entries, manifestBytes, p.dictCap); err != nil {
		return "", err
	}

	archiveHash, err := contenthash.Hash(archivePath)
	if err != nil {
		return "", err
	}
	self := manifest.New()
	if err := self.Add(names.Archive, archiveHash); err != nil {
		return "", err
	}
	if err := self.WriteFile(filepath.Join(staging, names.ArchiveHash)); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(staging, names.ContentHash), manifestBytes, 0o644); err != nil {
		return "", fmt.Errorf("writing content manifest: %w", err)
	}

	if err := copyFile(descPath, filepath.Join(staging, names.Descriptor)); err != nil {
		return "", err
	}
	return archiveHash, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = in.Close() }() // Read-only file; close error is non-actionable

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}

// replaceFile moves src over dst. Rename replaces atomically on POSIX; on
// Windows the existing file has to be removed first.
func replaceFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}
	if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}
	return os.Rename(src, dst)
}
