// SPDX-License-Identifier: MPL-2.0

// Package contenthash computes the SHA-256 digests recorded in package manifests.
//
// Symlinks are followed to their final target before hashing, so a link and the
// file it names always produce the same digest. Link chains are resolved one hop
// at a time and any repeated target is reported as a cycle.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// HexLen is the length of a hex-encoded SHA-256 digest.
const HexLen = sha256.Size * 2

// maxHops bounds symlink resolution even when canonicalization keeps producing
// new spellings of the same location.
const maxHops = 255

// ErrSymlinkCycle is returned when symlink resolution revisits a target.
var ErrSymlinkCycle = errors.New("cyclic symlink")

// SymlinkCycleError records the chain of targets visited before the repeat.
type SymlinkCycleError struct {
	Path  string
	Chain []string
}

func (e *SymlinkCycleError) Error() string {
	return fmt.Sprintf("cyclic symlink detected at %s: %s", e.Path, strings.Join(e.Chain, " -> "))
}

// Unwrap returns ErrSymlinkCycle so callers can use errors.Is.
func (e *SymlinkCycleError) Unwrap() error { return ErrSymlinkCycle }

// Hash returns the lowercase hex SHA-256 digest of the file at path,
// after resolving symlinks. A missing final target yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func Hash(path string) (string, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", resolved, err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error is non-actionable

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", resolved, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("hashing %s: is a directory", resolved)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", resolved, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Resolve follows path through any chain of symlinks and returns the first
// location that is not a symlink. Relative link targets are interpreted against
// the directory containing the link.
func Resolve(path string) (string, error) {
	current := filepath.Clean(path)
	var visited []string

	for {
		info, err := os.Lstat(current)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", path, err)
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			return current, nil
		}

		target, err := os.Readlink(current)
		if err != nil {
			return "", fmt.Errorf("reading symlink %s: %w", current, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		target = canonicalize(target)

		for _, seen := range visited {
			if seen == target {
				return "", &SymlinkCycleError{Path: path, Chain: append(visited, target)}
			}
		}
		visited = append(visited, target)
		if len(visited) > maxHops {
			return "", &SymlinkCycleError{Path: path, Chain: visited}
		}
		current = target
	}
}

// IsValid reports whether s is a well-formed hex-encoded SHA-256 digest.
func IsValid(s string) bool {
	if len(s) != HexLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// canonicalize cleans p and resolves symlinks in its parent directory while
// leaving the final component alone, so the caller still sees each hop.
func canonicalize(p string) string {
	p = filepath.Clean(p)
	dir, base := filepath.Split(p)
	if dir == "" {
		return p
	}
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return p
	}
	return filepath.Join(resolvedDir, base)
}
