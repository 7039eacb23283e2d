// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/tpkg/tpkg/internal/buildscript"
	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/packager"
	"github.com/tpkg/tpkg/internal/validate"
)

func TestIssueFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"nil", nil, 0},
		{"descriptor", fmt.Errorf("pack: %w", packager.ErrDescriptorNotFound), issue.DescriptorNotFoundId},
		{"self check", &packager.SelfCheckError{}, issue.SelfCheckFailedId},
		{"missing part", validate.ErrMissingPart, issue.MissingPartId},
		{"archive hash", validate.ErrArchiveHashMismatch, issue.ArchiveHashMismatchId},
		{"content", validate.ErrContentHashMismatch, issue.ContentMismatchId},
		{"license", &license.NotCompliantError{License: "Nope"}, issue.LicenseNotCompliantId},
		{"script", &buildscript.ExitError{Script: "build.py", Code: 2}, issue.BuildScriptFailedId},
		{"permission", fmt.Errorf("write: %w", fs.ErrPermission), issue.PermissionDeniedId},
		{"unknown", errors.New("other"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := issueFor(tt.err); got != tt.want {
				t.Errorf("issueFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderError(&buf, failed(), false)
	if buf.Len() != 0 {
		t.Errorf("silent exit printed %q", buf.String())
	}

	err := issue.NewErrorContext().
		WithOperation("pack").
		WithResource("src").
		WithSuggestion("add a descriptor").
		Wrap(packager.ErrDescriptorNotFound).
		Build()
	renderError(&buf, err, false)
	out := buf.String()
	if !strings.Contains(out, "failed to pack: src") || !strings.Contains(out, "add a descriptor") {
		t.Errorf("missing error text:\n%s", out)
	}
	if strings.Count(out, "\n") < 5 {
		t.Errorf("missing issue help:\n%s", out)
	}
}
