// SPDX-License-Identifier: MPL-2.0

// Package buildlist loads the per-host package build lists that map package
// names to the script or folder that produces them.
//
// A build list lives next to the build scripts as
// package_build_list_host_<platform>.json (comments and trailing commas are
// allowed) or package_build_list_host_<platform>.toml:
//
//	{
//	    // package name -> "<script> <args...>"
//	    "build_from_source": {"zlib-1.2.11-rev5-linux": "zlib/build.py --platform linux"},
//	    // package name -> prepared package folder
//	    "build_from_folder": {"zlib-1.2.11-rev5-linux": "zlib/temp/zlib-linux"}
//	}
//
// Relative paths are resolved against the folder holding the list file.
package buildlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"

	"github.com/tpkg/tpkg/pkg/platform"
)

// FilePrefix is the common prefix of build list file names.
const FilePrefix = "package_build_list_host_"

// Supported file formats.
const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

var (
	// ErrListNotFound is returned when no build list exists for a platform.
	ErrListNotFound = errors.New("build list not found")
	// ErrUnknownPlatform is returned for platform names no build list can carry.
	ErrUnknownPlatform = errors.New("unknown platform")
)

type (
	// Format is a build list file encoding.
	Format string

	// Command is a build script invocation.
	Command struct {
		Script string
		Args   []string
	}

	// List is a resolved build plan.
	List struct {
		BuildFromSource map[string]Command
		BuildFromFolder map[string]string
		// Files are the list files that contributed to the plan.
		Files []string
	}

	document struct {
		BuildFromSource map[string]string `json:"build_from_source" toml:"build_from_source"`
		BuildFromFolder map[string]string `json:"build_from_folder" toml:"build_from_folder"`
	}
)

// String renders the command the way it appears in a build list.
func (c Command) String() string {
	return strings.Join(append([]string{c.Script}, c.Args...), " ")
}

// New returns an empty List.
func New() *List {
	return &List{BuildFromSource: map[string]Command{}, BuildFromFolder: map[string]string{}}
}

// FindFile locates the build list for target in folder.
func FindFile(folder, target string) (string, error) {
	if !platform.IsSupported(target) {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnknownPlatform, target, strings.Join(platform.Supported(), ", "))
	}
	for _, ext := range []Format{FormatJSON, FormatTOML} {
		path := filepath.Join(folder, FilePrefix+target+"."+string(ext))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no %s%s.{json,toml} in %s", ErrListNotFound, FilePrefix, target, folder)
}

// Load reads the build list for target from folder.
func Load(folder, target string) (*List, error) {
	path, err := FindFile(folder, target)
	if err != nil {
		return nil, err
	}
	return ReadFile(path)
}

// ReadFile reads a build list file, picking the format from its extension.
func ReadFile(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build list: %w", err)
	}

	format := FormatJSON
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = FormatTOML
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	l, err := Parse(data, format, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.Files = []string{abs}
	return l, nil
}

// Parse decodes a build list and resolves relative paths against baseDir.
func Parse(data []byte, format Format, baseDir string) (*List, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var doc document
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return nil, fmt.Errorf("parsing build list: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing build list: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported build list format %q", format)
	}

	l := New()
	for name, cmdline := range doc.BuildFromSource {
		fields := strings.Fields(cmdline)
		if len(fields) == 0 {
			return nil, fmt.Errorf("build_from_source[%s]: empty command", name)
		}
		l.BuildFromSource[name] = Command{Script: resolve(baseDir, fields[0]), Args: fields[1:]}
	}
	for name, folder := range doc.BuildFromFolder {
		if folder == "" {
			return nil, fmt.Errorf("build_from_folder[%s]: empty folder", name)
		}
		l.BuildFromFolder[name] = resolve(baseDir, folder)
	}
	return l, nil
}

// Merge combines lists. The first list to name a package wins.
func Merge(lists ...*List) *List {
	merged := New()
	for _, l := range lists {
		if l == nil {
			continue
		}
		for name, cmd := range l.BuildFromSource {
			if _, ok := merged.BuildFromSource[name]; !ok {
				merged.BuildFromSource[name] = cmd
			}
		}
		for name, folder := range l.BuildFromFolder {
			if _, ok := merged.BuildFromFolder[name]; !ok {
				merged.BuildFromFolder[name] = folder
			}
		}
		merged.Files = append(merged.Files, l.Files...)
	}
	return merged
}

// LoadAll loads and merges the build lists of every platform found in
// folder. Platforms without a list are skipped.
func LoadAll(folder string) (*List, error) {
	var lists []*List
	for _, target := range platform.Supported() {
		l, err := Load(folder, target)
		if errors.Is(err, ErrListNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return Merge(lists...), nil
}

// Names returns the sorted union of package names in both sections.
func (l *List) Names() []string {
	set := maps.Clone(l.BuildFromFolder)
	for name := range l.BuildFromSource {
		set[name] = ""
	}
	return slices.Sorted(maps.Keys(set))
}

// SourceNames returns the sorted names of packages built from source.
func (l *List) SourceNames() []string {
	return slices.Sorted(maps.Keys(l.BuildFromSource))
}

// FolderNames returns the sorted names of packages packed from a folder.
func (l *List) FolderNames() []string {
	return slices.Sorted(maps.Keys(l.BuildFromFolder))
}

// WriteTo prints the plan in a human-readable form.
func (l *List) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	sb.WriteString("Build from source:\n")
	for _, name := range l.SourceNames() {
		fmt.Fprintf(&sb, "  %s: %s\n", name, l.BuildFromSource[name])
	}
	sb.WriteString("Build from folder:\n")
	for _, name := range l.FolderNames() {
		fmt.Fprintf(&sb, "  %s: %s\n", name, l.BuildFromFolder[name])
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func resolve(baseDir, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}
