// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown help
// pages that the CLI renders when a packaging, validation or publishing step
// fails in a way the user can fix.
package issue
