// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tpkg/tpkg/internal/archive"
	"github.com/tpkg/tpkg/pkg/artifact"
	"github.com/tpkg/tpkg/pkg/contenthash"
	"github.com/tpkg/tpkg/pkg/descriptor"
)

// entry is one file to package.
type entry struct {
	rel string // slash-separated path inside the package
	abs string
	// link is the in-package symlink target; empty for regular content.
	link    string
	modTime time.Time
}

// collect walks src in lexical order and returns every non-directory entry.
// Symlinks resolving inside src are kept as links pointing directly at their
// final target; symlinks leaving src are stored as the content they name.
func collect(src string, logger *log.Logger) ([]entry, error) {
	realRoot, err := filepath.EvalSymlinks(src)
	if err != nil {
		return nil, fmt.Errorf("resolving source folder: %w", err)
	}

	var entries []entry
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == artifact.ContentManifestName {
			return fmt.Errorf("%w: %s would be overwritten by the content manifest", ErrReservedPath, rel)
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		e := entry{rel: rel, abs: path, modTime: info.ModTime()}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			resolved, resolveErr := contenthash.Resolve(path)
			if resolveErr != nil {
				return resolveErr
			}
			target, statErr := os.Stat(resolved)
			if statErr != nil {
				return fmt.Errorf("resolving %s: %w", rel, statErr)
			}
			if target.IsDir() {
				logger.Warn("skipping symlink to directory", "path", rel)
				return nil
			}
			if realResolved, evalErr := filepath.EvalSymlinks(resolved); evalErr == nil && inside(realRoot, realResolved) {
				linkDir := filepath.Join(realRoot, filepath.Dir(filepath.FromSlash(rel)))
				link, linkErr := filepath.Rel(linkDir, realResolved)
				if linkErr == nil {
					e.link = filepath.ToSlash(link)
				}
			}
		case !info.Mode().IsRegular():
			return fmt.Errorf("%s: unsupported file type %s", rel, info.Mode().Type())
		}

		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting package content: %w", err)
	}
	return entries, nil
}

func writeArchive(path string, entries []entry, manifestBytes []byte, dictCap int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing archive: %w", closeErr)
		}
	}()

	w, err := archive.NewWriter(f, archive.WithDictCap(dictCap))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.link != "" {
			err = w.AddSymlink(e.rel, e.link, e.modTime)
		} else {
			err = w.AddFile(e.rel, e.abs)
		}
		if err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.AddBytes(artifact.ContentManifestName, manifestBytes, 0o644, manifestTime(entries)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// manifestTime stamps the synthetic manifest entry with the descriptor's
// modification time so repacking unchanged sources yields the same archive.
func manifestTime(entries []entry) time.Time {
	for _, e := range entries {
		if e.rel == descriptor.FileName {
			return e.modTime
		}
	}
	return time.Unix(0, 0)
}

func inside(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
