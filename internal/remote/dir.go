// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DirStore is a package mirror kept in a local or network-mounted folder.
type DirStore struct {
	root string
}

// NewDirStore returns a store rooted at root. The folder is created on the
// first upload.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Location implements Store.
func (d *DirStore) Location() string { return d.root }

// Exists implements Store.
func (d *DirStore) Exists(ctx context.Context, prefix string) (string, bool, error) {
	keys, err := d.List(ctx, prefix)
	if err != nil || len(keys) == 0 {
		return "", false, err
	}
	return keys[0], true, nil
}

// List implements Store. Keys use forward slashes and are sorted.
func (d *DirStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && path == d.root {
				return fs.SkipAll
			}
			return walkErr
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tpkg-upload-") {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.root, err)
	}
	slices.Sort(keys)
	return keys, nil
}

// Upload implements Store. The object appears under its final key only
// once fully written.
func (d *DirStore) Upload(_ context.Context, key, localPath string) (err error) {
	dst := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}

	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer func() { _ = in.Close() }() // Read-only file; close error is non-actionable

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tpkg-upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copying %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	renamed = true
	return nil
}
