// SPDX-License-Identifier: MPL-2.0

// Package platform names the host platforms packages are built for and
// holds the file naming rules that differ between them.
package platform
