// SPDX-License-Identifier: MPL-2.0

// Package archive reads and writes the xz-compressed tar archives that carry
// package content.
//
// Writers force owner, group and other write permission onto every regular
// entry so extracted packages can always be modified and removed. The
// extractor refuses entries that would land outside the destination folder.
package archive
