// SPDX-License-Identifier: MPL-2.0

// Package artifact names the four files that make up a published package.
package artifact

import (
	"strings"

	"github.com/tpkg/tpkg/pkg/platform"
)

// File name suffixes of the package parts.
const (
	ArchiveExt     = ".tar.xz"
	ArchiveHashExt = ArchiveExt + ".SHA256SUMS"
	ContentHashExt = ArchiveExt + ".content.SHA256SUMS"
	DescriptorExt  = ".PackageInfo.json"

	// ContentManifestName is the synthetic manifest stored at the archive root.
	ContentManifestName = "SHA256SUMS"
)

// Names holds the file names of one package's parts.
type Names struct {
	Archive     string
	ArchiveHash string
	ContentHash string
	Descriptor  string
}

// NamesFor returns the part names for the package called name.
func NamesFor(name string) Names {
	return Names{
		Archive:     name + ArchiveExt,
		ArchiveHash: name + ArchiveHashExt,
		ContentHash: name + ContentHashExt,
		Descriptor:  name + DescriptorExt,
	}
}

// Ordered returns the part names in publish order. The descriptor comes last:
// its presence on a server marks the package as complete.
func (n Names) Ordered() []string {
	return []string{n.Archive, n.ArchiveHash, n.ContentHash, n.Descriptor}
}

// Parts is shorthand for NamesFor(name).Ordered().
func Parts(name string) []string { return NamesFor(name).Ordered() }

// NameFromArchive extracts the package name from "<name>.tar.xz".
func NameFromArchive(filename string) (string, bool) {
	return trimSuffix(filename, ArchiveExt)
}

// NameFromDescriptor extracts the package name from "<name>.PackageInfo.json".
func NameFromDescriptor(filename string) (string, bool) {
	return trimSuffix(filename, DescriptorExt)
}

// ValidName reports whether name can be used as a package base name on
// every supported platform.
func ValidName(name string) bool {
	return platform.IsPortableFileName(name)
}

func trimSuffix(s, suffix string) (string, bool) {
	name, ok := strings.CutSuffix(s, suffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
