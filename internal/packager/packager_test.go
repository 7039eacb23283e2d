// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/testutil"
	"github.com/tpkg/tpkg/internal/validate"
	"github.com/tpkg/tpkg/pkg/artifact"
	"github.com/tpkg/tpkg/pkg/manifest"
)

func newTestPackager(t *testing.T, opts ...Option) *Packager {
	t.Helper()
	licenses := license.Static("MIT", "Apache-2.0", "Zlib")
	base := []Option{
		WithLicenseProvider(licenses),
		WithValidator(validate.New(validate.WithLicenseProvider(licenses), validate.WithTempDir(t.TempDir()))),
		WithDictCap(1 << 20),
	}
	return New(append(base, opts...)...)
}

func TestPack_PublishesAllParts(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.Source{
		Name:        "zlib-1.2.11-rev5-linux",
		License:     "Zlib",
		LicenseFile: "zlib/LICENSE",
		Files: map[string]string{
			"zlib/include/zlib.h": "/* zlib */\n",
			"zlib/lib/libz.a":     "!<arch>\n",
		},
	})
	out := filepath.Join(t.TempDir(), "packages")

	res, err := newTestPackager(t).Pack(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Validation == nil || !res.Validation.Valid {
		t.Fatalf("self-check did not pass: %+v", res.Validation)
	}

	for _, part := range artifact.Parts("zlib-1.2.11-rev5-linux") {
		testutil.MustExist(t, filepath.Join(out, part))
	}

	names := artifact.NamesFor(res.Name)
	content, err := manifest.ParseFile(filepath.Join(out, names.ContentHash))
	if err != nil {
		t.Fatalf("parsing content manifest: %v", err)
	}
	wantPaths := []string{"PackageInfo.json", "zlib/LICENSE", "zlib/include/zlib.h", "zlib/lib/libz.a"}
	if !slices.Equal(content.Paths(), wantPaths) {
		t.Errorf("content paths = %v, want %v", content.Paths(), wantPaths)
	}

	self, err := manifest.ParseFile(filepath.Join(out, names.ArchiveHash))
	if err != nil {
		t.Fatalf("parsing archive manifest: %v", err)
	}
	if h, ok := self.Get(names.Archive); !ok || h != res.ArchiveHash {
		t.Errorf("archive manifest = %v, want %s", self.Entries(), res.ArchiveHash)
	}

	original := testutil.MustReadFile(t, filepath.Join(src, "PackageInfo.json"))
	if copied := testutil.MustReadFile(t, filepath.Join(out, names.Descriptor)); copied != original {
		t.Error("descriptor copy differs from source")
	}

	leftovers, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 4 {
		t.Errorf("output folder has %d entries, want 4 (staging not cleaned?)", len(leftovers))
	}
}

func TestPack_Deterministic(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.Source{
		Name: "pkg", License: "MIT", LicenseFile: "LICENSE",
		Files: map[string]string{"b.txt": "b", "a/c.txt": "c", "a/b/d.txt": "d"},
	})
	p := newTestPackager(t)

	var manifests, archives [][]byte
	for range 2 {
		out := t.TempDir()
		if _, err := p.Pack(context.Background(), src, out); err != nil {
			t.Fatalf("Pack: %v", err)
		}
		manifests = append(manifests, []byte(testutil.MustReadFile(t, filepath.Join(out, "pkg.tar.xz.content.SHA256SUMS"))))
		archives = append(archives, []byte(testutil.MustReadFile(t, filepath.Join(out, "pkg.tar.xz"))))
	}
	if !bytes.Equal(manifests[0], manifests[1]) {
		t.Errorf("content manifests differ:\n%s\n---\n%s", manifests[0], manifests[1])
	}
	if !bytes.Equal(archives[0], archives[1]) {
		t.Error("archives of unchanged sources differ")
	}

	info, err := os.Stat(filepath.Join(src, "PackageInfo.json"))
	if err != nil {
		t.Fatal(err)
	}
	headers := tarHeaders(t, archives[0])
	sums, ok := headers["SHA256SUMS"]
	if !ok {
		t.Fatal("archive has no SHA256SUMS entry")
	}
	if !sums.ModTime.Equal(info.ModTime()) {
		t.Errorf("SHA256SUMS ModTime = %v, want descriptor ModTime %v", sums.ModTime, info.ModTime())
	}
}

func tarHeaders(t *testing.T, data []byte) map[string]*tar.Header {
	t.Helper()

	xzr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	headers := make(map[string]*tar.Header)
	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return headers
		}
		if err != nil {
			t.Fatal(err)
		}
		headers[hdr.Name] = hdr
	}
}

func TestPack_PublishFailureNamesReplacedParts(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.MinimalSource("pkg"))
	out := t.TempDir()
	names := artifact.NamesFor("pkg")
	// A non-empty directory cannot be replaced by a rename.
	testutil.MustWriteFile(t, filepath.Join(out, names.ContentHash, "blocker"), "x")

	_, err := newTestPackager(t).Pack(context.Background(), src, out)
	var publishErr *PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if publishErr.Part != names.ContentHash {
		t.Errorf("Part = %q, want %q", publishErr.Part, names.ContentHash)
	}
	if want := []string{names.Archive, names.ArchiveHash}; !slices.Equal(publishErr.Replaced, want) {
		t.Errorf("Replaced = %v, want %v", publishErr.Replaced, want)
	}
	if !strings.Contains(err.Error(), names.ArchiveHash) {
		t.Errorf("error %q does not name the replaced parts", err)
	}
	testutil.MustNotExist(t, filepath.Join(out, names.Descriptor))
}

func TestPack_RepublishReplacesArtifacts(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.MinimalSource("pkg"))
	out := t.TempDir()
	p := newTestPackager(t)

	first, err := p.Pack(context.Background(), src, out)
	if err != nil {
		t.Fatalf("first Pack: %v", err)
	}

	testutil.MustWriteFile(t, filepath.Join(src, "include", "extra.h"), "#define EXTRA 1\n")
	second, err := p.Pack(context.Background(), src, out)
	if err != nil {
		t.Fatalf("second Pack: %v", err)
	}
	if first.ArchiveHash == second.ArchiveHash {
		t.Error("archive hash unchanged after content change")
	}
	if _, ok := second.Manifest.Get("include/extra.h"); !ok {
		t.Error("new file missing from manifest")
	}
}

func TestPack_LicenseFailureProducesNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  testutil.Source
		wantErr error
	}{
		{
			name:    "not spdx",
			source:  testutil.Source{Name: "pkg", License: "Bogus", LicenseFile: "LICENSE"},
			wantErr: license.ErrLicenseNotCompliant,
		},
		{
			name:    "license file missing",
			source:  testutil.Source{Name: "pkg", License: "MIT", LicenseFile: "LICENSE", OmitLicenseFile: true},
			wantErr: license.ErrLicenseFileMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), tt.source)
			out := filepath.Join(t.TempDir(), "out")

			_, err := newTestPackager(t).Pack(context.Background(), src, out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			testutil.MustNotExist(t, out)
		})
	}
}

func TestPack_CustomLicenseWarns(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.Source{
		Name: "pkg", License: "Custom", LicenseFile: "LICENSE",
	})

	res, err := newTestPackager(t).Pack(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Warning == "" {
		t.Error("expected a custom license warning")
	}
}

func TestPack_MissingDescriptor(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(src, "file.txt"), "x")

	_, err := newTestPackager(t).Pack(context.Background(), src, t.TempDir())
	if !errors.Is(err, ErrDescriptorNotFound) {
		t.Fatalf("expected ErrDescriptorNotFound, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected error to satisfy fs.ErrNotExist: %v", err)
	}
}

func TestPack_FailureKeepsPublishedPackage(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.MinimalSource("pkg"))
	out := t.TempDir()
	p := newTestPackager(t)

	if _, err := p.Pack(context.Background(), src, out); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	before := testutil.MustReadFile(t, filepath.Join(out, "pkg.tar.xz.SHA256SUMS"))

	testutil.MustWriteFile(t, filepath.Join(src, "SHA256SUMS"), "collides\n")
	_, err := p.Pack(context.Background(), src, out)
	if !errors.Is(err, ErrReservedPath) {
		t.Fatalf("expected ErrReservedPath, got %v", err)
	}

	if after := testutil.MustReadFile(t, filepath.Join(out, "pkg.tar.xz.SHA256SUMS")); after != before {
		t.Error("published archive manifest changed after failed Pack")
	}
	v := validate.New(validate.WithLicenseProvider(license.Static("MIT")))
	if res := v.Validate(context.Background(), out, "pkg"); !res.Valid {
		t.Errorf("previous package no longer valid: %v", res.Diagnostics)
	}
}

func TestPack_InvalidPackageName(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.MinimalSource("../escape"))

	_, err := newTestPackager(t).Pack(context.Background(), src, t.TempDir())
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestPack_Symlinks(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.Source{
		Name: "pkg", License: "MIT", LicenseFile: "LICENSE",
		Files: map[string]string{"lib/libfoo.so.1.2": "ELF"},
	})
	outside := filepath.Join(t.TempDir(), "external.txt")
	testutil.MustWriteFile(t, outside, "outside content")

	testutil.MustSymlink(t, "libfoo.so.1.2", filepath.Join(src, "lib", "libfoo.so.1"))
	testutil.MustSymlink(t, "libfoo.so.1", filepath.Join(src, "lib", "libfoo.so"))
	testutil.MustSymlink(t, outside, filepath.Join(src, "external.txt"))
	testutil.MustSymlink(t, "lib", filepath.Join(src, "libdir"))

	out := t.TempDir()
	res, err := newTestPackager(t).Pack(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	for _, want := range []string{"lib/libfoo.so", "lib/libfoo.so.1", "lib/libfoo.so.1.2", "external.txt"} {
		if _, ok := res.Manifest.Get(want); !ok {
			t.Errorf("manifest missing %s", want)
		}
	}
	for _, path := range res.Manifest.Paths() {
		if strings.HasPrefix(path, "libdir") {
			t.Errorf("directory symlink content packaged: %s", path)
		}
	}
	linkHash, _ := res.Manifest.Get("lib/libfoo.so")
	realHash, _ := res.Manifest.Get("lib/libfoo.so.1.2")
	if linkHash != realHash {
		t.Errorf("symlink hash %s differs from target hash %s", linkHash, realHash)
	}
}

func TestPack_ReadOnlySourceFile(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.MinimalSource("pkg"))
	locked := filepath.Join(src, "include", "lib.h")
	if err := os.Chmod(locked, 0o444); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	res, err := newTestPackager(t).Pack(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if !res.Validation.Valid {
		t.Errorf("read-only source should package into writable content: %v", res.Validation.Diagnostics)
	}
}

func TestPack_SkipSelfCheck(t *testing.T) {
	t.Parallel()

	src := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), testutil.MinimalSource("pkg"))

	res, err := newTestPackager(t, WithSkipSelfCheck(true)).Pack(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Validation != nil {
		t.Error("expected no validation result when self-check is skipped")
	}
}
