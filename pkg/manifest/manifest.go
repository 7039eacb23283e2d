// SPDX-License-Identifier: MPL-2.0

// Package manifest reads and writes SHA256SUMS-style hash manifests.
//
// Each line has the form "<64-hex-hash> *<relative/posix/path>". Entries keep
// the order in which they were added so serialization is deterministic.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/tpkg/tpkg/pkg/contenthash"
)

// BinaryMarker is written between the hash and the path of every entry.
const BinaryMarker = '*'

// ErrMalformed is the sentinel wrapped by MalformedError.
var ErrMalformed = errors.New("malformed manifest")

type (
	// Entry is one path/hash pair.
	Entry struct {
		Path string
		Hash string
	}

	// Manifest is an ordered set of entries keyed by path.
	Manifest struct {
		entries []Entry
		index   map[string]int
	}

	// MalformedError describes the offending manifest line.
	MalformedError struct {
		Source string
		Line   int
		Text   string
		Reason string
	}
)

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s:%d: %s: %q", e.Source, e.Line, e.Reason, e.Text)
}

// Unwrap returns ErrMalformed.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{index: make(map[string]int)}
}

// Add appends an entry. Paths must be unique and hashes well-formed; hashes
// are stored in lowercase.
func (m *Manifest) Add(path, hash string) error {
	if path == "" {
		return errors.New("manifest entry path must not be empty")
	}
	if !contenthash.IsValid(hash) {
		return fmt.Errorf("manifest entry %s: invalid hash %q", path, hash)
	}
	if _, dup := m.index[path]; dup {
		return fmt.Errorf("manifest entry %s: duplicate path", path)
	}
	m.index[path] = len(m.entries)
	m.entries = append(m.entries, Entry{Path: path, Hash: strings.ToLower(hash)})
	return nil
}

// Get returns the hash recorded for path.
func (m *Manifest) Get(path string) (string, bool) {
	i, ok := m.index[path]
	if !ok {
		return "", false
	}
	return m.entries[i].Hash, true
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.entries) }

// Entries returns a copy of the entries in insertion order.
func (m *Manifest) Entries() []Entry { return slices.Clone(m.entries) }

// Paths returns the entry paths in insertion order.
func (m *Manifest) Paths() []string {
	paths := make([]string, len(m.entries))
	for i, e := range m.entries {
		paths[i] = e.Path
	}
	return paths
}

// WriteTo serializes the manifest to w.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range m.entries {
		n, err := fmt.Fprintf(w, "%s %c%s\n", e.Hash, BinaryMarker, e.Path)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// MarshalText returns the serialized manifest.
func (m *Manifest) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads a manifest from r. source names the input in error messages.
// Hex digits are accepted in either case and stored in lowercase.
func Parse(r io.Reader, source string) (*Manifest, error) {
	m := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		malformed := func(reason string) error {
			return &MalformedError{Source: source, Line: lineNo, Text: line, Reason: reason}
		}

		// The hash ends at the first space; one marker character follows.
		sep := strings.IndexByte(line, ' ')
		if sep < 0 {
			return nil, malformed("missing separator")
		}
		hash := line[:sep]
		if len(hash) != contenthash.HexLen {
			return nil, malformed(fmt.Sprintf("hash has %d characters, want %d", len(hash), contenthash.HexLen))
		}
		if !contenthash.IsValid(hash) {
			return nil, malformed("hash is not hexadecimal")
		}
		if sep+2 > len(line) {
			return nil, malformed("missing path")
		}
		path := line[sep+2:]
		if path == "" {
			return nil, malformed("missing path")
		}
		if _, dup := m.index[path]; dup {
			return nil, malformed("duplicate path")
		}
		m.index[path] = len(m.entries)
		m.entries = append(m.entries, Entry{Path: path, Hash: strings.ToLower(hash)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}
	return m, nil
}

// ParseFile parses the manifest stored at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error is non-actionable

	return Parse(f, path)
}

// WriteFile writes the manifest to path with 0644 permissions.
func (m *Manifest) WriteFile(path string) error {
	data, err := m.MarshalText()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
