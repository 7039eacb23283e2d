// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Besides the filesystem helpers (MustMkdirAll, MustWriteFile, MustSymlink,
// MustExist), it builds package source folders (Source) the way the build
// pipeline expects them.
package testutil
