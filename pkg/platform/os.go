// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"runtime"
	"slices"
)

// OS name constants for runtime.GOOS comparisons. They double as the
// platform suffix of build list file names.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// Supported returns the platforms packages are built for, sorted.
func Supported() []string {
	return []string{Darwin, Linux, Windows}
}

// IsSupported reports whether name is one of Supported.
func IsSupported(name string) bool {
	return slices.Contains(Supported(), name)
}

// Host returns the platform of the running process.
func Host() string {
	return runtime.GOOS
}
