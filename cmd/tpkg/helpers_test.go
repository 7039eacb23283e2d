// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tpkg/tpkg/internal/config"
	"github.com/tpkg/tpkg/internal/license"
	"github.com/tpkg/tpkg/internal/remote"
)

type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) LoadWithSource(context.Context, config.LoadOptions) (*config.Config, string, error) {
	c := *s.cfg
	return &c, "", nil
}

// harness runs the command tree against temp folders. Bucket names and
// server URLs are treated as folders under root.
type harness struct {
	t      *testing.T
	root   string
	cfg    *config.Config
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SearchPath = filepath.Join(root, "search")
	cfg.OutputFolder = filepath.Join(root, "out")
	cfg.TempDir = t.TempDir()
	return &harness{t: t, root: root, cfg: cfg}
}

func (h *harness) bucket(name string) string {
	return filepath.Join(h.root, "buckets", name)
}

func (h *harness) run(args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()

	app := NewApp(Dependencies{
		Config:   staticConfig{cfg: h.cfg},
		Licenses: license.Static("MIT", "Zlib", "Apache-2.0"),
		OpenStore: func(raw string, _ remote.Options) (remote.Store, error) {
			return remote.NewDirStore(h.bucket(strings.TrimPrefix(raw, "s3://"))), nil
		},
		Stdout: &h.stdout,
		Stderr: &h.stderr,
	})
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&h.stdout)
	root.SetErr(&h.stderr)
	return root.ExecuteContext(context.Background())
}
