// SPDX-License-Identifier: MPL-2.0

package platform

import "testing"

func TestIsWindowsReservedName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bool
	}{
		{"con", true},
		{"CON", true},
		{"Con", true},
		{"prn", true},
		{"aux", true},
		{"nul", true},
		{"com1", true},
		{"COM9", true},
		{"lpt1", true},
		{"LPT9", true},
		{"con.txt", true},
		{"NUL.exe", true},
		{"nul.tar.xz", true},
		{"COM1.tar.xz.SHA256SUMS", true},
		{"myfile", false},
		{"confile", false},
		{"com10", false},
		{"lpt10", false},
		{"zlib-1.2.13-rev1-linux", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := IsWindowsReservedName(tt.input); got != tt.expected {
				t.Errorf("IsWindowsReservedName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsPortableFileName(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"openssl-1.1.1-rev2-windows": true,
		"zlib_1.2.13+ly":             true,
		"":                           false,
		".":                          false,
		"..":                         false,
		"a/b":                        false,
		`a\b`:                        false,
		"a:b":                        false,
		"what?":                      false,
		"trailing.":                  false,
		"trailing ":                  false,
		"tab\there":                  false,
		"aux":                        false,
	} {
		if got := IsPortableFileName(name); got != want {
			t.Errorf("IsPortableFileName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	for _, p := range []string{Darwin, Linux, Windows} {
		if !IsSupported(p) {
			t.Errorf("IsSupported(%q) = false", p)
		}
	}
	if IsSupported("plan9") {
		t.Error("IsSupported(plan9) = true")
	}
	if Host() == "" {
		t.Error("Host() is empty")
	}
}
