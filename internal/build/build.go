// SPDX-License-Identifier: MPL-2.0

// Package build drives the build plan: it runs build scripts for packages
// that are not yet published and packs the resulting folders.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/tpkg/tpkg/internal/buildlist"
	"github.com/tpkg/tpkg/internal/packager"
	"github.com/tpkg/tpkg/pkg/descriptor"
)

var (
	// ErrNotInPlan is returned when a package is not in build_from_folder.
	ErrNotInPlan = errors.New("package not in build list")

	// ErrNameMismatch is returned when a folder's PackageName differs from
	// its build list key.
	ErrNameMismatch = errors.New("package name mismatch")
)

type (
	// ScriptRunner runs a build command.
	ScriptRunner interface {
		Run(ctx context.Context, cmd buildlist.Command) error
	}

	// PackageFinder reports whether a package is already published.
	PackageFinder interface {
		Published(ctx context.Context, name string) bool
	}

	// Builder builds packages from a build plan.
	Builder struct {
		packager *packager.Packager
		runner   ScriptRunner
		finder   PackageFinder
		logger   *log.Logger
	}

	// Option configures a Builder.
	Option func(*Builder)

	// Failure pairs a package with the error that stopped it.
	Failure struct {
		Name string
		Err  error
	}

	// Summary reports a BuildAll run.
	Summary struct {
		Built     []string
		Published []string
		Failed    []Failure
	}

	// FinderFunc adapts a function to PackageFinder.
	FinderFunc func(ctx context.Context, name string) bool
)

// Published implements PackageFinder.
func (f FinderFunc) Published(ctx context.Context, name string) bool { return f(ctx, name) }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithFinder sets how published packages are detected. Without a finder
// every package is considered unpublished.
func WithFinder(f PackageFinder) Option {
	return func(b *Builder) { b.finder = f }
}

// New creates a Builder.
func New(p *packager.Packager, runner ScriptRunner, opts ...Option) *Builder {
	b := &Builder{
		packager: p,
		runner:   runner,
		finder:   FinderFunc(func(context.Context, string) bool { return false }),
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildOne runs name's build script, when it has one, and packs its folder
// into outputFolder.
func (b *Builder) BuildOne(ctx context.Context, plan *buildlist.List, name, outputFolder string) (*packager.Result, error) {
	if _, ok := plan.BuildFromFolder[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInPlan, name)
	}
	if cmd, ok := plan.BuildFromSource[name]; ok {
		if err := b.runner.Run(ctx, cmd); err != nil {
			return nil, fmt.Errorf("building %s: %w", name, err)
		}
	}
	return b.pack(ctx, plan, name, outputFolder)
}

// BuildAll builds every planned package that is not yet published. A failing
// build script aborts the run; packing failures are collected per package.
func (b *Builder) BuildAll(ctx context.Context, plan *buildlist.List, outputFolder string) (*Summary, error) {
	summary := &Summary{}

	for _, name := range plan.SourceNames() {
		if b.finder.Published(ctx, name) {
			continue
		}
		if err := b.runner.Run(ctx, plan.BuildFromSource[name]); err != nil {
			return summary, fmt.Errorf("building %s: %w", name, err)
		}
	}

	for _, name := range plan.FolderNames() {
		if b.finder.Published(ctx, name) {
			b.logger.Info("already published", "package", name)
			summary.Published = append(summary.Published, name)
			continue
		}
		if _, err := b.pack(ctx, plan, name, outputFolder); err != nil {
			b.logger.Error("packaging failed", "package", name, "err", err)
			summary.Failed = append(summary.Failed, Failure{Name: name, Err: err})
			continue
		}
		summary.Built = append(summary.Built, name)
	}
	return summary, nil
}

func (b *Builder) pack(ctx context.Context, plan *buildlist.List, name, outputFolder string) (*packager.Result, error) {
	folder := plan.BuildFromFolder[name]
	desc, err := descriptor.Read(filepath.Join(folder, descriptor.FileName))
	if err != nil {
		return nil, err
	}
	if desc.PackageName != name {
		return nil, fmt.Errorf("%w: build list names %q, %s declares %q", ErrNameMismatch, name, descriptor.FileName, desc.PackageName)
	}
	return b.packager.Pack(ctx, folder, outputFolder)
}
