// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	hashA = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
	hashB = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func TestParse_ValidManifest(t *testing.T) {
	t.Parallel()

	input := hashA + " *include/foo.h\n" +
		hashB + "  lib/libfoo.a\n" + // text-mode marker from sha256sum
		hashB + " *PackageInfo.json\r\n"

	m, err := Parse(strings.NewReader(input), "SHA256SUMS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPaths := []string{"include/foo.h", "lib/libfoo.a", "PackageInfo.json"}
	gotPaths := m.Paths()
	if strings.Join(gotPaths, ",") != strings.Join(wantPaths, ",") {
		t.Fatalf("Paths() = %v, want %v", gotPaths, wantPaths)
	}

	if h, ok := m.Get("include/foo.h"); !ok || h != hashA {
		t.Errorf("Get(include/foo.h) = %q, %v", h, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should not be found")
	}
}

func TestParse_NormalizesHashCase(t *testing.T) {
	t.Parallel()

	m, err := Parse(strings.NewReader(strings.ToUpper(hashA)+" *include/foo.h\n"), "SHA256SUMS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h, _ := m.Get("include/foo.h"); h != hashA {
		t.Errorf("Get(include/foo.h) = %q, want lowercase %q", h, hashA)
	}

	built := New()
	if err := built.Add("include/foo.h", strings.ToUpper(hashA)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if h, _ := built.Get("include/foo.h"); h != hashA {
		t.Errorf("Add stored %q, want lowercase %q", h, hashA)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	m, err := Parse(strings.NewReader(""), "empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"no separator", hashA + "\n", 1},
		{"blank line", hashA + " *a\n\n", 2},
		{"short hash", "abcdef *file\n", 1},
		{"long hash", hashA + "0 *file\n", 1},
		{"non-hex hash", strings.Repeat("z", 64) + " *file\n", 1},
		{"missing path", hashA + " *\n", 1},
		{"duplicate path", hashA + " *dup\n" + hashB + " *other\n" + hashB + " *dup\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(strings.NewReader(tt.input), "test")
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected *MalformedError, got %T", err)
			}
			if malformed.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", malformed.Line, tt.wantLine)
			}
		})
	}
}

func TestMarshalText_Format(t *testing.T) {
	t.Parallel()

	m := New()
	if err := m.Add("b/second.txt", hashB); err != nil {
		t.Fatal(err)
	}
	if err := m.Add("a/first.txt", hashA); err != nil {
		t.Fatal(err)
	}

	data, err := m.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := hashB + " *b/second.txt\n" + hashA + " *a/first.txt\n"
	if string(data) != want {
		t.Errorf("MarshalText() =\n%s\nwant\n%s", data, want)
	}

	reparsed, err := Parse(strings.NewReader(string(data)), "roundtrip")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	again, _ := reparsed.MarshalText()
	if string(again) != want {
		t.Errorf("serialization is not stable:\n%s", again)
	}
}

func TestAdd_Rejects(t *testing.T) {
	t.Parallel()

	m := New()
	if err := m.Add("x", hashA); err != nil {
		t.Fatal(err)
	}
	if err := m.Add("x", hashB); err == nil {
		t.Error("expected duplicate path error")
	}
	if err := m.Add("y", "nothex"); err == nil {
		t.Error("expected invalid hash error")
	}
	if err := m.Add("", hashA); err == nil {
		t.Error("expected empty path error")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "SHA256SUMS")
	m := New()
	if err := m.Add("file", hashA); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if h, _ := got.Get("file"); h != hashA {
		t.Errorf("Get(file) = %q, want %q", h, hashA)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "absent")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
