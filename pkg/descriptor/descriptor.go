// SPDX-License-Identifier: MPL-2.0

// Package descriptor loads PackageInfo.json, the metadata file every package
// carries at its root.
package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// FileName is the descriptor's name inside a package folder.
const FileName = "PackageInfo.json"

// Required descriptor keys.
const (
	FieldURL         = "URL"
	FieldPackageName = "PackageName"
	FieldLicense     = "License"
	FieldLicenseFile = "LicenseFile"
)

// ErrMissingField is the sentinel wrapped by MissingFieldError.
var ErrMissingField = errors.New("missing required descriptor field")

// RequiredFields lists the keys that must be present and non-empty.
var RequiredFields = []string{FieldURL, FieldPackageName, FieldLicense, FieldLicenseFile}

type (
	// Descriptor is the parsed content of PackageInfo.json.
	Descriptor struct {
		PackageName string
		URL         string
		License     string
		LicenseFile string
		// Extra holds every key other than the required ones.
		Extra map[string]any
	}

	// MissingFieldError names the absent or empty field.
	MissingFieldError struct {
		Source string
		Field  string
		Reason string
	}
)

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: field %q %s", e.Source, e.Field, e.Reason)
}

// Unwrap returns ErrMissingField.
func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// Read loads and validates the descriptor at path. A missing file yields an
// error satisfying errors.Is(err, fs.ErrNotExist).
func Read(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading package descriptor: %w", err)
	}
	return Parse(data, path)
}

// Parse validates descriptor JSON. source names the input in error messages.
func Parse(data []byte, source string) (*Descriptor, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	values := make(map[string]string, len(RequiredFields))
	for _, field := range RequiredFields {
		v, ok := raw[field]
		if !ok {
			return nil, &MissingFieldError{Source: source, Field: field, Reason: "is missing"}
		}
		s, ok := v.(string)
		if !ok {
			return nil, &MissingFieldError{Source: source, Field: field, Reason: "must be a string"}
		}
		if s == "" {
			return nil, &MissingFieldError{Source: source, Field: field, Reason: "is empty"}
		}
		values[field] = s
		delete(raw, field)
	}

	return &Descriptor{
		PackageName: values[FieldPackageName],
		URL:         values[FieldURL],
		License:     values[FieldLicense],
		LicenseFile: values[FieldLicenseFile],
		Extra:       raw,
	}, nil
}
