// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the tpkg command tree: packing, validating, building
// and publishing third-party dependency packages.
package cmd
