// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// windowsReservedNames are device names Windows refuses as file names,
// whatever extension follows them.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether name cannot be created on Windows.
// Everything from the first dot on is ignored, so "nul.tar.xz" is reserved
// as well as "NUL".
func IsWindowsReservedName(name string) bool {
	base, _, _ := strings.Cut(name, ".")
	return windowsReservedNames[strings.ToUpper(strings.TrimRight(base, " "))]
}

// IsPortableFileName reports whether name is a single path element that
// every supported platform can create.
func IsPortableFileName(name string) bool {
	switch {
	case name == "", name == ".", name == "..":
		return false
	case strings.ContainsAny(name, `/\:*?"<>|`):
		return false
	case strings.HasSuffix(name, ".") || strings.HasSuffix(name, " "):
		return false
	case strings.ContainsFunc(name, func(r rune) bool { return r < 0x20 }):
		return false
	}
	return !IsWindowsReservedName(name)
}
