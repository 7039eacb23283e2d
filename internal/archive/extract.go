// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

const (
	// maxEntryBytes caps a single extracted file.
	maxEntryBytes = 16 << 30
	// maxTotalBytes caps the sum of all extracted files.
	maxTotalBytes = 64 << 30
)

// ErrUnsafeEntry is the sentinel wrapped by UnsafeEntryError.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// UnsafeEntryError reports an entry the extractor refused to materialize.
type UnsafeEntryError struct {
	Name   string
	Reason string
}

func (e *UnsafeEntryError) Error() string {
	return fmt.Sprintf("archive entry %q: %s", e.Name, e.Reason)
}

// Unwrap returns ErrUnsafeEntry.
func (e *UnsafeEntryError) Unwrap() error { return ErrUnsafeEntry }

// Extract unpacks the .tar.xz archive at archivePath into dest, which must exist.
func Extract(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error is non-actionable

	return ExtractReader(f, dest)
}

// ExtractReader unpacks an xz-compressed tar stream into dest.
// File permissions recorded in the archive are applied after writing.
func ExtractReader(r io.Reader, dest string) error {
	xzr, err := xz.NewReader(bufio.NewReader(r))
	if err != nil {
		return fmt.Errorf("creating xz reader: %w", err)
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}

	var (
		total int64
		links []string
	)
	tr := tar.NewReader(xzr)
	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return fmt.Errorf("reading tar entry: %w", nextErr)
		}

		target, joinErr := safeJoin(root, hdr.Name)
		if joinErr != nil {
			return joinErr
		}
		if err := checkParents(root, target, hdr.Name); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if hdr.Size > maxEntryBytes {
				return &UnsafeEntryError{Name: hdr.Name, Reason: "entry exceeds size limit"}
			}
			total += hdr.Size
			if total > maxTotalBytes {
				return &UnsafeEntryError{Name: hdr.Name, Reason: "archive exceeds total size limit"}
			}
			if err := writeEntry(tr, target, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLinkTarget(root, target, hdr); err != nil {
				return err
			}
			if err := prepareTarget(target); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("creating symlink %s: %w", hdr.Name, err)
			}
			links = append(links, hdr.Name)
		case tar.TypeLink:
			n, err := copyHardLink(root, target, hdr)
			if err != nil {
				return err
			}
			total += n
			if total > maxTotalBytes {
				return &UnsafeEntryError{Name: hdr.Name, Reason: "archive exceeds total size limit"}
			}
		default:
			return &UnsafeEntryError{Name: hdr.Name, Reason: fmt.Sprintf("unsupported entry type %q", hdr.Typeflag)}
		}
	}
	return checkLinksResolve(root, links)
}

func writeEntry(r io.Reader, target string, hdr *tar.Header) (err error) {
	if err := prepareTarget(target); err != nil {
		return err
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", hdr.Name, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", hdr.Name, closeErr)
		}
	}()

	if _, err := io.Copy(out, io.LimitReader(r, hdr.Size)); err != nil {
		return fmt.Errorf("extracting %s: %w", hdr.Name, err)
	}
	if err := out.Chmod(hdr.FileInfo().Mode().Perm()); err != nil {
		return fmt.Errorf("setting mode of %s: %w", hdr.Name, err)
	}
	return nil
}

// prepareTarget creates the parent directory and removes whatever currently
// occupies target so a later entry replaces an earlier one without following
// a symlink left in its place.
func prepareTarget(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", target, err)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	return nil
}

// copyHardLink materializes a hard link entry as a copy of the regular file it
// names. Link names are relative to the archive root.
func copyHardLink(root, target string, hdr *tar.Header) (int64, error) {
	source, err := safeJoin(root, hdr.Linkname)
	if err != nil {
		return 0, &UnsafeEntryError{Name: hdr.Name, Reason: "hard link target escapes destination"}
	}
	if err := checkParents(root, source, hdr.Name); err != nil {
		return 0, err
	}
	info, err := os.Lstat(source)
	if err != nil || !info.Mode().IsRegular() {
		return 0, &UnsafeEntryError{Name: hdr.Name, Reason: "hard link target is not an extracted regular file"}
	}
	if source == target {
		return 0, nil
	}

	in, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", hdr.Linkname, err)
	}
	defer func() { _ = in.Close() }() // Read-only file; close error is non-actionable

	copyHdr := *hdr
	copyHdr.Size = info.Size()
	copyHdr.Mode = int64(info.Mode().Perm())
	if err := writeEntry(in, target, &copyHdr); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// checkParents refuses target when a directory between root and target is a
// symlink, so no entry is ever written through a link an earlier entry made.
func checkParents(root, target, name string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return &UnsafeEntryError{Name: name, Reason: "path escapes destination"}
	}
	if rel == "." {
		return nil
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("inspecting parent of %s: %w", name, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return &UnsafeEntryError{Name: name, Reason: "parent directory is a symlink"}
		}
		if !info.IsDir() {
			return nil
		}
	}
	return nil
}

// checkLinksResolve runs once every entry exists and requires each extracted
// symlink to resolve to a path inside root. Lexical checks alone miss targets
// that climb out through another link.
func checkLinksResolve(root string, links []string) error {
	if len(links) == 0 {
		return nil
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}
	for _, name := range links {
		resolved, err := filepath.EvalSymlinks(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return &UnsafeEntryError{Name: name, Reason: "symlink does not resolve"}
		}
		if !within(realRoot, resolved) {
			return &UnsafeEntryError{Name: name, Reason: "symlink resolves outside destination"}
		}
	}
	return nil
}

func safeJoin(root, name string) (string, error) {
	if name == "" {
		return "", &UnsafeEntryError{Name: name, Reason: "empty name"}
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return "", &UnsafeEntryError{Name: name, Reason: "absolute path"}
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) || target == root {
		return "", &UnsafeEntryError{Name: name, Reason: "path escapes destination"}
	}
	return target, nil
}

func checkLinkTarget(root, target string, hdr *tar.Header) error {
	if hdr.Linkname == "" {
		return &UnsafeEntryError{Name: hdr.Name, Reason: "empty symlink target"}
	}
	if filepath.IsAbs(hdr.Linkname) || strings.HasPrefix(hdr.Linkname, "/") {
		return &UnsafeEntryError{Name: hdr.Name, Reason: "absolute symlink target"}
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(hdr.Linkname))
	if !within(root, resolved) {
		return &UnsafeEntryError{Name: hdr.Name, Reason: "symlink target escapes destination"}
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
