// SPDX-License-Identifier: MPL-2.0

package validate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingPart is returned when a package part file is absent.
	ErrMissingPart = errors.New("package part missing")

	// ErrArchiveHashMismatch is returned when the archive does not match its
	// one-entry hash manifest.
	ErrArchiveHashMismatch = errors.New("archive hash mismatch")

	// ErrFilesetMismatch is returned when the extracted files differ from the
	// internal manifest's path set.
	ErrFilesetMismatch = errors.New("package file set mismatch")

	// ErrContentHashMismatch is returned when an extracted file's digest
	// differs from its manifest entry.
	ErrContentHashMismatch = errors.New("content hash mismatch")

	// ErrReadOnlyContent is returned when extracted files lack owner write
	// permission.
	ErrReadOnlyContent = errors.New("read-only package content")
)

type (
	// MissingPartError names the absent part.
	MissingPartError struct {
		Folder string
		Part   string
	}

	// ArchiveHashMismatchError explains why the archive failed its self-hash.
	ArchiveHashMismatchError struct {
		Archive  string
		Reason   string
		Expected string
		Actual   string
	}

	// FilesetMismatchError lists the paths on each side of the difference.
	FilesetMismatchError struct {
		Missing    []string
		Unexpected []string
	}

	// ContentHashMismatchError reports the first mismatching file and how
	// many mismatched in total.
	ContentHashMismatchError struct {
		Path     string
		Expected string
		Actual   string
		Count    int
	}

	// ReadOnlyContentError lists the files that were not writable.
	ReadOnlyContentError struct {
		Paths []string
	}
)

func (e *MissingPartError) Error() string {
	return fmt.Sprintf("package part %s not found in %s", e.Part, e.Folder)
}

// Unwrap returns ErrMissingPart.
func (e *MissingPartError) Unwrap() error { return ErrMissingPart }

func (e *ArchiveHashMismatchError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("archive %s: %s (expected %s, got %s)", e.Archive, e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("archive %s: %s", e.Archive, e.Reason)
}

// Unwrap returns ErrArchiveHashMismatch.
func (e *ArchiveHashMismatchError) Unwrap() error { return ErrArchiveHashMismatch }

func (e *FilesetMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing from archive: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("not in manifest: %s", strings.Join(e.Unexpected, ", ")))
	}
	return "package content does not match manifest: " + strings.Join(parts, "; ")
}

// Unwrap returns ErrFilesetMismatch.
func (e *FilesetMismatchError) Unwrap() error { return ErrFilesetMismatch }

func (e *ContentHashMismatchError) Error() string {
	msg := fmt.Sprintf("hash mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
	if e.Count > 1 {
		msg += fmt.Sprintf(" (and %d more)", e.Count-1)
	}
	return msg
}

// Unwrap returns ErrContentHashMismatch.
func (e *ContentHashMismatchError) Unwrap() error { return ErrContentHashMismatch }

func (e *ReadOnlyContentError) Error() string {
	return fmt.Sprintf("package contains read-only files: %s", strings.Join(e.Paths, ", "))
}

// Unwrap returns ErrReadOnlyContent.
func (e *ReadOnlyContentError) Unwrap() error { return ErrReadOnlyContent }
