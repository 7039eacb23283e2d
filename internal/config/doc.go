// SPDX-License-Identifier: MPL-2.0

// Package config loads tpkg settings using Viper with CUE as the file format.
//
// Settings come from config.cue in the platform config directory
// ($XDG_CONFIG_HOME/tpkg, ~/Library/Application Support/tpkg, %APPDATA%\tpkg)
// or the current directory, validated against the embedded #Config schema.
// Environment variables understood by the older packaging scripts
// (PACKAGE_output_folder, LY_PACKAGE_SERVER_URLS, AWS_PROFILE, ...) override
// file values.
package config
