// SPDX-License-Identifier: MPL-2.0

// Package upload publishes locally built packages to a remote store,
// refusing anything that does not pass full validation.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/tpkg/tpkg/internal/remote"
	"github.com/tpkg/tpkg/internal/validate"
	"github.com/tpkg/tpkg/pkg/artifact"
)

type (
	// Uploader pushes validated packages to a store.
	Uploader struct {
		store     remote.Store
		validator *validate.Validator
		logger    *log.Logger
		dryRun    bool
	}

	// Option configures an Uploader.
	Option func(*Uploader)

	// Report summarizes an UploadAll run.
	Report struct {
		Uploaded []string
		// Present lists packages already on the store.
		Present []string
		Invalid []*validate.Result
	}
)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithDryRun validates without uploading.
func WithDryRun(dryRun bool) Option {
	return func(u *Uploader) { u.dryRun = dryRun }
}

// New creates an Uploader.
func New(store remote.Store, validator *validate.Validator, opts ...Option) *Uploader {
	u := &Uploader{store: store, validator: validator, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Candidates returns the names of every package archive in folder.
func Candidates(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", folder, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := artifact.NameFromArchive(e.Name()); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// UploadAll uploads every package in folder that the store does not have
// yet. Invalid packages are reported and skipped; store failures abort.
func (u *Uploader) UploadAll(ctx context.Context, folder string) (*Report, error) {
	names, err := Candidates(folder)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, name := range names {
		_, found, err := u.store.Exists(ctx, remote.ProbeKey(u.store, name))
		if err != nil {
			return report, err
		}
		if found {
			u.logger.Info("already uploaded", "package", name, "store", u.store.Location())
			report.Present = append(report.Present, name)
			continue
		}

		res := u.validator.Validate(ctx, folder, name)
		if !res.Valid {
			u.logger.Error("not uploading invalid package", "package", name, "err", res.Cause())
			report.Invalid = append(report.Invalid, res)
			continue
		}

		if u.dryRun {
			u.logger.Info("would upload", "package", name, "store", u.store.Location())
		} else {
			if err := remote.UploadPackage(ctx, u.store, folder, name); err != nil {
				return report, err
			}
			u.logger.Info("uploaded", "package", name, "store", u.store.Location())
		}
		report.Uploaded = append(report.Uploaded, name)
	}
	return report, nil
}
