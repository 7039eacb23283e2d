// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

// Source describes a package source folder to materialize on disk.
type Source struct {
	Name        string
	License     string
	LicenseFile string
	// Files maps slash-separated relative paths to content.
	Files map[string]string
	// OmitLicenseFile skips writing the license file.
	OmitLicenseFile bool
	// Extra adds keys to PackageInfo.json.
	Extra map[string]any
}

// MinimalSource returns an MIT-licensed source with a single file.
func MinimalSource(name string) Source {
	return Source{
		Name:        name,
		License:     "MIT",
		LicenseFile: "LICENSE",
		Files:       map[string]string{"include/lib.h": "#pragma once\n"},
	}
}

// DescriptorJSON renders a PackageInfo.json document.
func DescriptorJSON(t testing.TB, name, license, licenseFile string, extra map[string]any) string {
	t.Helper()
	doc := map[string]any{
		"PackageName": name,
		"URL":         "https://example.com/" + name,
		"License":     license,
		"LicenseFile": licenseFile,
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		t.Fatalf("failed to encode descriptor: %v", err)
	}
	return string(data) + "\n"
}

// WriteSource creates s under dir and returns dir.
func WriteSource(t testing.TB, dir string, s Source) string {
	t.Helper()
	MustMkdirAll(t, dir)
	MustWriteFile(t, filepath.Join(dir, "PackageInfo.json"), DescriptorJSON(t, s.Name, s.License, s.LicenseFile, s.Extra))
	if !s.OmitLicenseFile {
		MustWriteFile(t, filepath.Join(dir, filepath.FromSlash(s.LicenseFile)), "Permission is hereby granted...\n")
	}
	for rel, content := range s.Files {
		MustWriteFile(t, filepath.Join(dir, filepath.FromSlash(rel)), content)
	}
	return dir
}
