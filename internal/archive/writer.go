// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ulikunitz/xz"
)

const (
	// DefaultDictCap is the LZMA dictionary size used when none is configured.
	DefaultDictCap = 8 << 20

	// writeBits is OR'd into every entry's mode.
	writeBits = 0o222
)

type (
	// Writer streams entries into an xz-compressed tar archive.
	Writer struct {
		xzw *xz.Writer
		tw  *tar.Writer
	}

	// WriterOption configures a Writer.
	WriterOption func(*xz.WriterConfig)
)

// WithDictCap sets the LZMA dictionary capacity in bytes.
func WithDictCap(n int) WriterOption {
	return func(c *xz.WriterConfig) {
		if n > 0 {
			c.DictCap = n
		}
	}
}

// NewWriter returns a Writer that compresses into w. Close must be called to
// flush the tar trailer and the xz footer; it does not close w.
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	cfg := xz.WriterConfig{DictCap: DefaultDictCap, CheckSum: xz.CRC64}
	for _, opt := range opts {
		opt(&cfg)
	}
	xzw, err := cfg.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("creating xz writer: %w", err)
	}
	return &Writer{xzw: xzw, tw: tar.NewWriter(xzw)}, nil
}

// AddFile stores the content of sourcePath under name. Symlinks at sourcePath
// are followed; use AddSymlink to store the link itself.
func (w *Writer) AddFile(name, sourcePath string) (err error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", sourcePath, err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error is non-actionable

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourcePath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", sourcePath)
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(info.Mode().Perm() | writeBits),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Format:   tar.FormatPAX,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if _, err := io.Copy(w.tw, f); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// AddSymlink stores a symbolic link named name pointing at target.
func (w *Writer) AddSymlink(name, target string, modTime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     name,
		Linkname: target,
		Mode:     int64(fs.ModePerm),
		ModTime:  modTime,
		Format:   tar.FormatPAX,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing symlink %s: %w", name, err)
	}
	return nil
}

// AddBytes stores data as a regular file named name.
func (w *Writer) AddBytes(name string, data []byte, perm fs.FileMode, modTime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(perm.Perm() | writeBits),
		Size:     int64(len(data)),
		ModTime:  modTime,
		Format:   tar.FormatPAX,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Close flushes the archive.
func (w *Writer) Close() error {
	if err := w.tw.Close(); err != nil {
		_ = w.xzw.Close()
		return fmt.Errorf("closing tar stream: %w", err)
	}
	if err := w.xzw.Close(); err != nil {
		return fmt.Errorf("closing xz stream: %w", err)
	}
	return nil
}
