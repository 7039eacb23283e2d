// SPDX-License-Identifier: MPL-2.0

package validate_test

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/packager"
	"github.com/tpkg/tpkg/internal/testutil"
	"github.com/tpkg/tpkg/internal/validate"
	"github.com/tpkg/tpkg/pkg/artifact"
)

var testLicenses = license.Static("MIT", "Apache-2.0")

type craftedFile struct {
	content string
	mode    int64
}

func newValidator(t *testing.T) *validate.Validator {
	t.Helper()
	return validate.New(validate.WithLicenseProvider(testLicenses), validate.WithTempDir(t.TempDir()))
}

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func descriptorJSON(license, licenseFile string) string {
	return fmt.Sprintf(`{"PackageName":"pkg","URL":"https://example.com","License":%q,"LicenseFile":%q}`, license, licenseFile)
}

// packSource builds a real package with the packager and returns its folder.
func packSource(t *testing.T, src testutil.Source) string {
	t.Helper()
	dir := testutil.WriteSource(t, filepath.Join(t.TempDir(), "src"), src)
	out := t.TempDir()
	p := packager.New(packager.WithLicenseProvider(testLicenses), packager.WithSkipSelfCheck(true), packager.WithDictCap(1<<20))
	if _, err := p.Pack(context.Background(), dir, out); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return out
}

// craftPackage writes a package whose archive holds exactly files, in a form
// the packager would never produce. The archive hash manifest is correct.
func craftPackage(t *testing.T, files map[string]craftedFile) string {
	t.Helper()

	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(xzw)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		f := files[name]
		mode := f.mode
		if mode == 0 {
			mode = 0o644
		}
		if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: mode, Size: int64(len(f.content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(f.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatal(err)
	}

	return writeParts(t, buf.Bytes())
}

func writeParts(t *testing.T, archiveData []byte) string {
	t.Helper()
	out := t.TempDir()
	names := artifact.NamesFor("pkg")
	testutil.MustWriteFile(t, filepath.Join(out, names.Archive), string(archiveData))
	testutil.MustWriteFile(t, filepath.Join(out, names.ArchiveHash), sha(string(archiveData))+" *"+names.Archive+"\n")
	testutil.MustWriteFile(t, filepath.Join(out, names.ContentHash), "")
	testutil.MustWriteFile(t, filepath.Join(out, names.Descriptor), descriptorJSON("MIT", "LICENSE"))
	return out
}

// goodFiles returns a consistent package content set with its manifest.
func goodFiles() map[string]craftedFile {
	desc := descriptorJSON("MIT", "LICENSE")
	files := map[string]craftedFile{
		"PackageInfo.json": {content: desc},
		"LICENSE":          {content: "MIT License\n"},
		"include/lib.h":    {content: "#pragma once\n"},
	}
	files["SHA256SUMS"] = craftedFile{content: sha(desc) + " *PackageInfo.json\n" +
		sha("MIT License\n") + " *LICENSE\n" +
		sha("#pragma once\n") + " *include/lib.h\n"}
	return files
}

func TestValidate_PackagedOutputIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		source      testutil.Source
		wantWarning bool
	}{
		{name: "minimal", source: testutil.MinimalSource("pkg")},
		{name: "normal", source: testutil.Source{
			Name: "pkg", License: "Apache-2.0", LicenseFile: "pkg/LICENSE.txt",
			Files: map[string]string{"pkg/bin/tool": "#!/bin/sh\n", "pkg/lib/a.a": "ar", "pkg/include/a.h": "h"},
		}},
		{name: "custom license", source: testutil.Source{Name: "pkg", License: "custom", LicenseFile: "COPYING"}, wantWarning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := packSource(t, tt.source)
			res := newValidator(t).Validate(context.Background(), out, "pkg")
			if !res.Valid {
				t.Fatalf("expected valid package, got %v", res.Diagnostics)
			}
			if (len(res.Warnings) > 0) != tt.wantWarning {
				t.Errorf("Warnings = %v, wantWarning %v", res.Warnings, tt.wantWarning)
			}
		})
	}
}

func TestValidate_CraftedGoodPackage(t *testing.T) {
	t.Parallel()

	out := craftPackage(t, goodFiles())
	if res := newValidator(t).Validate(context.Background(), out, "pkg"); !res.Valid {
		t.Fatalf("expected valid package, got %v", res.Diagnostics)
	}
}

func TestValidate_TamperedArchive(t *testing.T) {
	t.Parallel()

	out := packSource(t, testutil.MinimalSource("pkg"))
	archivePath := filepath.Join(out, "pkg.tar.xz")
	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res := newValidator(t).Validate(context.Background(), out, "pkg")
	if res.Valid {
		t.Fatal("tampered archive validated")
	}
	if res.FailedStage != validate.StageArchiveHash {
		t.Errorf("FailedStage = %s, want %s", res.FailedStage, validate.StageArchiveHash)
	}
	if !errors.Is(res.Cause(), validate.ErrArchiveHashMismatch) {
		t.Errorf("expected ErrArchiveHashMismatch, got %v", res.Cause())
	}
}

func TestValidate_MissingPart(t *testing.T) {
	t.Parallel()

	for _, part := range artifact.Parts("pkg") {
		t.Run(part, func(t *testing.T) {
			t.Parallel()

			out := packSource(t, testutil.MinimalSource("pkg"))
			if err := os.Remove(filepath.Join(out, part)); err != nil {
				t.Fatal(err)
			}

			res := newValidator(t).Validate(context.Background(), out, "pkg")
			var missing *validate.MissingPartError
			if !errors.As(res.Cause(), &missing) || missing.Part != part {
				t.Fatalf("expected MissingPartError for %s, got %v", part, res.Cause())
			}
			if res.FailedStage != validate.StageParts {
				t.Errorf("FailedStage = %s", res.FailedStage)
			}
		})
	}
}

func TestValidate_DegenerateFolders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"nonexistent folder", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") }},
		{"empty folder", func(t *testing.T) string { return t.TempDir() }},
		{"empty archive", func(t *testing.T) string { return writeParts(t, nil) }},
		{"zero-length corrupt archive only", func(t *testing.T) string {
			dir := t.TempDir()
			testutil.MustWriteFile(t, filepath.Join(dir, "pkg.tar.xz"), "")
			return dir
		}},
		{"descriptor only", func(t *testing.T) string {
			dir := t.TempDir()
			testutil.MustWriteFile(t, filepath.Join(dir, "pkg.PackageInfo.json"), descriptorJSON("MIT", "LICENSE"))
			return dir
		}},
		{"bogus parts", func(t *testing.T) string {
			dir := t.TempDir()
			for _, part := range artifact.Parts("pkg") {
				testutil.MustWriteFile(t, filepath.Join(dir, part), "bogus")
			}
			return dir
		}},
		{"garbage archive with matching hash", func(t *testing.T) string { return writeParts(t, []byte("not xz data")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if res := newValidator(t).Validate(context.Background(), tt.setup(t), "pkg"); res.Valid {
				t.Fatal("expected invalid package")
			}
		})
	}
}

func TestValidate_ArchiveHashManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		manifest func(hash string) string
	}{
		{"two entries", func(h string) string { return h + " *pkg.tar.xz\n" + h + " *other.tar.xz\n" }},
		{"wrong key", func(h string) string { return h + " *other.tar.xz\n" }},
		{"empty", func(string) string { return "" }},
		{"malformed", func(string) string { return "deadbeef *pkg.tar.xz\n" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := packSource(t, testutil.MinimalSource("pkg"))
			data, err := os.ReadFile(filepath.Join(out, "pkg.tar.xz"))
			if err != nil {
				t.Fatal(err)
			}
			testutil.MustWriteFile(t, filepath.Join(out, "pkg.tar.xz.SHA256SUMS"), tt.manifest(sha(string(data))))

			res := newValidator(t).Validate(context.Background(), out, "pkg")
			if res.Valid || res.FailedStage != validate.StageArchiveHash {
				t.Fatalf("Valid=%v FailedStage=%s, want archive-hash failure", res.Valid, res.FailedStage)
			}
		})
	}
}

func TestCheckArchiveHash_MissingManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pkg.tar.xz")
	testutil.MustWriteFile(t, archivePath, "data")

	err := validate.CheckArchiveHash(archivePath, filepath.Join(dir, "absent.SHA256SUMS"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestValidate_ContentFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(files map[string]craftedFile)
		wantStage validate.Stage
		wantErr   error
	}{
		{
			name:      "extra content file",
			mutate:    func(f map[string]craftedFile) { f["include/extra.h"] = craftedFile{content: "extra"} },
			wantStage: validate.StageContent,
			wantErr:   validate.ErrFilesetMismatch,
		},
		{
			name:      "missing content file",
			mutate:    func(f map[string]craftedFile) { delete(f, "include/lib.h") },
			wantStage: validate.StageContent,
			wantErr:   validate.ErrFilesetMismatch,
		},
		{
			name:      "missing content hash",
			mutate:    func(f map[string]craftedFile) { delete(f, "SHA256SUMS") },
			wantStage: validate.StageContent,
			wantErr:   validate.ErrMissingPart,
		},
		{
			name:      "content hash mismatch",
			mutate:    func(f map[string]craftedFile) { f["include/lib.h"] = craftedFile{content: "tampered"} },
			wantStage: validate.StageContent,
			wantErr:   validate.ErrContentHashMismatch,
		},
		{
			name:      "read-only file",
			mutate:    func(f map[string]craftedFile) { f["include/lib.h"] = craftedFile{content: "#pragma once\n", mode: 0o444} },
			wantStage: validate.StageContent,
			wantErr:   validate.ErrReadOnlyContent,
		},
		{
			name: "missing license file",
			mutate: func(f map[string]craftedFile) {
				delete(f, "LICENSE")
				desc := f["PackageInfo.json"].content
				f["SHA256SUMS"] = craftedFile{content: sha(desc) + " *PackageInfo.json\n" + sha("#pragma once\n") + " *include/lib.h\n"}
			},
			wantStage: validate.StageLicense,
			wantErr:   license.ErrLicenseFileMissing,
		},
		{
			name: "license file outside package",
			mutate: func(f map[string]craftedFile) {
				delete(f, "LICENSE")
				desc := descriptorJSON("MIT", "../../../../../../../../etc/hostname")
				f["PackageInfo.json"] = craftedFile{content: desc}
				f["SHA256SUMS"] = craftedFile{content: sha(desc) + " *PackageInfo.json\n" + sha("#pragma once\n") + " *include/lib.h\n"}
			},
			wantStage: validate.StageLicense,
			wantErr:   license.ErrLicenseFileMissing,
		},
		{
			name: "invalid spdx license",
			mutate: func(f map[string]craftedFile) {
				desc := descriptorJSON("Bogus", "LICENSE")
				f["PackageInfo.json"] = craftedFile{content: desc}
				f["SHA256SUMS"] = craftedFile{content: sha(desc) + " *PackageInfo.json\n" +
					sha("MIT License\n") + " *LICENSE\n" + sha("#pragma once\n") + " *include/lib.h\n"}
			},
			wantStage: validate.StageLicense,
			wantErr:   license.ErrLicenseNotCompliant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			files := goodFiles()
			tt.mutate(files)
			out := craftPackage(t, files)

			res := newValidator(t).Validate(context.Background(), out, "pkg")
			if res.Valid {
				t.Fatal("expected invalid package")
			}
			if res.FailedStage != tt.wantStage {
				t.Errorf("FailedStage = %s, want %s", res.FailedStage, tt.wantStage)
			}
			if !errors.Is(res.Cause(), tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, res.Cause())
			}
		})
	}
}

func TestValidate_FilesetMismatchLists(t *testing.T) {
	t.Parallel()

	files := goodFiles()
	delete(files, "include/lib.h")
	files["stray.txt"] = craftedFile{content: "stray"}

	res := newValidator(t).Validate(context.Background(), craftPackage(t, files), "pkg")
	if !slices.Equal(res.MissingFiles, []string{"include/lib.h"}) {
		t.Errorf("MissingFiles = %v", res.MissingFiles)
	}
	if !slices.Equal(res.UnexpectedFiles, []string{"stray.txt"}) {
		t.Errorf("UnexpectedFiles = %v", res.UnexpectedFiles)
	}
}

func TestValidate_UnavailableLicenseList(t *testing.T) {
	t.Parallel()

	files := goodFiles()
	desc := descriptorJSON("NotAnSPDXId", "LICENSE")
	files["PackageInfo.json"] = craftedFile{content: desc}
	files["SHA256SUMS"] = craftedFile{content: sha(desc) + " *PackageInfo.json\n" +
		sha("MIT License\n") + " *LICENSE\n" + sha("#pragma once\n") + " *include/lib.h\n"}

	v := validate.New(validate.WithLicenseProvider(license.Unavailable()), validate.WithTempDir(t.TempDir()))
	if res := v.Validate(context.Background(), craftPackage(t, files), "pkg"); !res.Valid {
		t.Fatalf("expected identifier check to be skipped, got %v", res.Diagnostics)
	}
}

func TestValidate_RemovesExtractionFolder(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	v := validate.New(validate.WithLicenseProvider(testLicenses), validate.WithTempDir(tmp))

	files := goodFiles()
	files["include/lib.h"] = craftedFile{content: "#pragma once\n", mode: 0o444}
	v.Validate(context.Background(), craftPackage(t, files), "pkg")
	v.Validate(context.Background(), packSource(t, testutil.MinimalSource("pkg")), "pkg")

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("extraction folders left behind: %v", entries)
	}
}

func TestVerifyImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for name, f := range goodFiles() {
		testutil.MustWriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), f.content)
	}

	res := newValidator(t).VerifyImage(context.Background(), dir)
	if !res.Valid {
		t.Fatalf("expected valid image, got %v", res.Diagnostics)
	}
	if res.Package != "pkg" {
		t.Errorf("Package = %q, want pkg", res.Package)
	}

	locked := filepath.Join(dir, "include", "lib.h")
	if err := os.Chmod(locked, 0o444); err != nil {
		t.Fatal(err)
	}
	res = newValidator(t).VerifyImage(context.Background(), dir)
	if !errors.Is(res.Cause(), validate.ErrReadOnlyContent) {
		t.Fatalf("expected ErrReadOnlyContent, got %v", res.Cause())
	}
	info, err := os.Stat(locked)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o200 == 0 {
		t.Error("read-only file was not made writable")
	}
}
