// SPDX-License-Identifier: MPL-2.0

// Package validate checks that a published package is complete, untampered
// and license compliant.
//
// Validation runs four stages in order and stops at the first failure:
// part presence, archive self-hash, content integrity and license
// compliance. Failures are never returned as errors; they are recorded in a
// Result so batch callers can keep going.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/tpkg/tpkg/internal/archive"
	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/pkg/artifact"
	"github.com/tpkg/tpkg/pkg/contenthash"
	"github.com/tpkg/tpkg/pkg/descriptor"
	"github.com/tpkg/tpkg/pkg/manifest"
)

// Validation stages.
const (
	StageParts       Stage = "part-presence"
	StageArchiveHash Stage = "archive-hash"
	StageContent     Stage = "content-integrity"
	StageLicense     Stage = "license"
)

type (
	// Stage identifies a step of the validation pipeline.
	Stage string

	// HashMismatch records one file whose digest differs from the manifest.
	HashMismatch struct {
		Path     string `json:"path" yaml:"path"`
		Expected string `json:"expected" yaml:"expected"`
		Actual   string `json:"actual" yaml:"actual"`
	}

	// Result is the outcome of validating one package.
	Result struct {
		Package         string         `json:"package,omitempty" yaml:"package,omitempty"`
		Location        string         `json:"location" yaml:"location"`
		Valid           bool           `json:"valid" yaml:"valid"`
		FailedStage     Stage          `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
		Diagnostics     []string       `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
		Warnings        []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
		MissingFiles    []string       `json:"missing_files,omitempty" yaml:"missing_files,omitempty"`
		UnexpectedFiles []string       `json:"unexpected_files,omitempty" yaml:"unexpected_files,omitempty"`
		HashMismatches  []HashMismatch `json:"hash_mismatches,omitempty" yaml:"hash_mismatches,omitempty"`
		ReadOnlyFiles   []string       `json:"read_only_files,omitempty" yaml:"read_only_files,omitempty"`
		// Err is the error that failed the package, nil when Valid.
		Err error `json:"-" yaml:"-"`
	}

	// Validator runs the validation pipeline.
	Validator struct {
		licenses license.Provider
		logger   *log.Logger
		tempRoot string
	}

	// Option configures a Validator.
	Option func(*Validator)
)

// WithLicenseProvider sets the SPDX identifier source.
func WithLicenseProvider(p license.Provider) Option {
	return func(v *Validator) { v.licenses = p }
}

// WithLogger sets the logger used for progress and diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithTempDir sets the parent directory for extraction folders.
// The default is os.TempDir().
func WithTempDir(dir string) Option {
	return func(v *Validator) { v.tempRoot = dir }
}

// New creates a Validator. Without WithLicenseProvider the SPDX list is
// downloaded once on first use.
func New(opts ...Option) *Validator {
	v := &Validator{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(v)
	}
	if v.licenses == nil {
		v.licenses = license.Cached(license.NewClient().Fetch)
	}
	return v
}

// Validate fully validates the package called name in folder.
func (v *Validator) Validate(ctx context.Context, folder, name string) *Result {
	res := &Result{Package: name, Location: folder}
	names := artifact.NamesFor(name)
	v.logger.Debug("validating package", "package", name, "folder", folder)

	for _, part := range names.Ordered() {
		if _, err := os.Stat(filepath.Join(folder, part)); err != nil {
			return v.fail(res, StageParts, &MissingPartError{Folder: folder, Part: part})
		}
	}

	archivePath := filepath.Join(folder, names.Archive)
	if err := CheckArchiveHash(archivePath, filepath.Join(folder, names.ArchiveHash)); err != nil {
		return v.fail(res, StageArchiveHash, err)
	}

	tmp, err := os.MkdirTemp(v.tempRoot, "tpkg-validate-*")
	if err != nil {
		return v.fail(res, StageContent, fmt.Errorf("creating extraction folder: %w", err))
	}
	defer v.removeTree(tmp)

	if err := archive.Extract(archivePath, tmp); err != nil {
		return v.fail(res, StageContent, fmt.Errorf("extracting %s: %w", names.Archive, err))
	}

	return v.verify(ctx, tmp, res)
}

// VerifyImage runs the content integrity and license stages on an already
// unpacked package folder. Read-only files are made writable as a side effect.
func (v *Validator) VerifyImage(ctx context.Context, dir string) *Result {
	return v.verify(ctx, dir, &Result{Location: dir})
}

// CheckArchiveHash verifies archivePath against the one-entry manifest at
// manifestPath.
func CheckArchiveHash(archivePath, manifestPath string) error {
	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return err
	}

	archiveName := filepath.Base(archivePath)
	if m.Len() != 1 {
		return &ArchiveHashMismatchError{
			Archive: archiveName,
			Reason:  fmt.Sprintf("hash manifest has %d entries, want exactly 1", m.Len()),
		}
	}

	entry := m.Entries()[0]
	if entry.Path != archiveName {
		return &ArchiveHashMismatchError{
			Archive: archiveName,
			Reason:  fmt.Sprintf("hash manifest names %q", entry.Path),
		}
	}

	actual, err := contenthash.Hash(archivePath)
	if err != nil {
		return err
	}
	if actual != entry.Hash {
		return &ArchiveHashMismatchError{
			Archive:  archiveName,
			Reason:   "digest differs",
			Expected: entry.Hash,
			Actual:   actual,
		}
	}
	return nil
}

func (v *Validator) verify(ctx context.Context, dir string, res *Result) *Result {
	for _, required := range []string{artifact.ContentManifestName, descriptor.FileName} {
		if _, err := os.Stat(filepath.Join(dir, required)); err != nil {
			return v.fail(res, StageContent, &MissingPartError{Folder: dir, Part: required})
		}
	}

	m, err := manifest.ParseFile(filepath.Join(dir, artifact.ContentManifestName))
	if err != nil {
		return v.fail(res, StageContent, err)
	}

	files, readOnly, err := listFiles(dir)
	if err != nil {
		return v.fail(res, StageContent, err)
	}

	expected := m.Paths()
	res.MissingFiles = difference(expected, files)
	res.UnexpectedFiles = difference(files, expected)
	if len(res.MissingFiles) > 0 || len(res.UnexpectedFiles) > 0 {
		return v.fail(res, StageContent, &FilesetMismatchError{
			Missing:    res.MissingFiles,
			Unexpected: res.UnexpectedFiles,
		})
	}

	for _, entry := range m.Entries() {
		actual, hashErr := contenthash.Hash(filepath.Join(dir, filepath.FromSlash(entry.Path)))
		if hashErr != nil {
			return v.fail(res, StageContent, hashErr)
		}
		if actual != entry.Hash {
			res.HashMismatches = append(res.HashMismatches, HashMismatch{Path: entry.Path, Expected: entry.Hash, Actual: actual})
		}
	}
	if len(res.HashMismatches) > 0 {
		first := res.HashMismatches[0]
		return v.fail(res, StageContent, &ContentHashMismatchError{
			Path:     first.Path,
			Expected: first.Expected,
			Actual:   first.Actual,
			Count:    len(res.HashMismatches),
		})
	}

	if len(readOnly) > 0 {
		res.ReadOnlyFiles = readOnly
		return v.fail(res, StageContent, &ReadOnlyContentError{Paths: readOnly})
	}

	out, err := license.CheckFolder(ctx, dir, v.licenses, v.logger)
	if err != nil {
		return v.fail(res, StageLicense, err)
	}
	if out.Warning != "" {
		res.Warnings = append(res.Warnings, out.Warning)
	}
	if res.Package == "" {
		res.Package = out.Descriptor.PackageName
	}

	res.Valid = true
	v.logger.Info("package valid", "package", res.Package)
	return res
}

func (v *Validator) fail(res *Result, stage Stage, err error) *Result {
	res.Valid = false
	res.FailedStage = stage
	res.Err = err
	res.Diagnostics = append(res.Diagnostics, err.Error())
	v.logger.Error("package invalid", "package", res.Package, "stage", stage, "err", err)
	return res
}

// removeTree deletes dir after restoring owner write permission everywhere,
// which some platforms require before a file can be removed.
func (v *Validator) removeTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.Type()&fs.ModeSymlink != 0 {
			return nil //nolint:nilerr // best-effort permission fix before removal
		}
		if info, infoErr := d.Info(); infoErr == nil && info.Mode().Perm()&0o200 == 0 {
			_ = os.Chmod(path, info.Mode().Perm()|0o200)
		}
		return nil
	})
	if err := os.RemoveAll(dir); err != nil {
		v.logger.Warn("failed to remove extraction folder", "path", dir, "err", err)
	}
}

// listFiles returns every non-directory entry below dir as a slash-separated
// relative path, excluding the root content manifest. Regular files without
// owner write permission are made writable and reported.
func listFiles(dir string) (files, readOnly []string, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
				return nil
			}
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == artifact.ContentManifestName {
			return nil
		}
		files = append(files, rel)

		if d.Type().IsRegular() {
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			if info.Mode().Perm()&0o200 == 0 {
				readOnly = append(readOnly, rel)
				if chmodErr := os.Chmod(path, info.Mode().Perm()|0o200); chmodErr != nil {
					return fmt.Errorf("restoring write permission on %s: %w", rel, chmodErr)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("listing package content: %w", err)
	}
	return files, readOnly, nil
}

// difference returns the sorted elements of a that are not in b.
func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		seen[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

// Cause returns the failure cause, or nil for a valid package.
func (r *Result) Cause() error {
	if r.Valid {
		return nil
	}
	if r.Err == nil {
		return errors.New("package invalid")
	}
	return r.Err
}
