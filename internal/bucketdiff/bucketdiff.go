// SPDX-License-Identifier: MPL-2.0

// Package bucketdiff compares the package sets of two stores against the
// merged build plan and renders the differences as markdown.
package bucketdiff

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/tpkg/tpkg/internal/buildlist"
	"github.com/tpkg/tpkg/internal/remote"
	"github.com/tpkg/tpkg/pkg/artifact"
)

type (
	// Row is the presence of one package name.
	Row struct {
		Name   string
		InA    bool
		InB    bool
		InPlan bool
	}

	// Report is the comparison outcome, rows sorted by name.
	Report struct {
		A    string
		B    string
		Rows []Row
	}
)

// Compare lists the descriptors in a and b and matches them with plan.
func Compare(ctx context.Context, a, b remote.Store, plan *buildlist.List) (*Report, error) {
	inA, err := packageNames(ctx, a)
	if err != nil {
		return nil, err
	}
	inB, err := packageNames(ctx, b)
	if err != nil {
		return nil, err
	}
	inPlan := map[string]bool{}
	if plan != nil {
		for _, name := range plan.Names() {
			inPlan[name] = true
		}
	}

	all := map[string]struct{}{}
	for _, set := range []map[string]bool{inA, inB, inPlan} {
		for name := range set {
			all[name] = struct{}{}
		}
	}

	report := &Report{A: a.Location(), B: b.Location()}
	for name := range all {
		report.Rows = append(report.Rows, Row{Name: name, InA: inA[name], InB: inB[name], InPlan: inPlan[name]})
	}
	slices.SortFunc(report.Rows, func(x, y Row) int { return strings.Compare(x.Name, y.Name) })
	return report, nil
}

// OnlyInB returns planned packages present in B but not in A.
func (r *Report) OnlyInB() []Row {
	return r.filter(func(row Row) bool { return row.InPlan && row.InB && !row.InA })
}

// Deprecated returns packages stored in either bucket but absent from the plan.
func (r *Report) Deprecated() []Row {
	return r.filter(func(row Row) bool { return !row.InPlan && (row.InA || row.InB) })
}

// Missing returns planned packages stored in neither bucket.
func (r *Report) Missing() []Row {
	return r.filter(func(row Row) bool { return row.InPlan && !row.InA && !row.InB })
}

// Markdown renders the three sections as markdown tables.
func (r *Report) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Bucket comparison\n\n- **B1**: `%s`\n- **B2**: `%s`\n- **LF**: package build lists\n\n", r.A, r.B)
	writeSection(&sb, "Packages in B2 but not in B1", r.OnlyInB())
	writeSection(&sb, "Deprecated packages (not in any build list)", r.Deprecated())
	writeSection(&sb, "Missing packages (not in any bucket)", r.Missing())
	return sb.String()
}

func (r *Report) filter(keep func(Row) bool) []Row {
	var out []Row
	for _, row := range r.Rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func writeSection(sb *strings.Builder, title string, rows []Row) {
	fmt.Fprintf(sb, "## %s\n\n", title)
	if len(rows) == 0 {
		sb.WriteString("_None._\n\n")
		return
	}
	sb.WriteString("| Package | B1 | B2 | LF |\n|---|:-:|:-:|:-:|\n")
	for _, row := range rows {
		fmt.Fprintf(sb, "| %s | %s | %s | %s |\n", row.Name, mark(row.InA), mark(row.InB), mark(row.InPlan))
	}
	sb.WriteString("\n")
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return " "
}

func packageNames(ctx context.Context, store remote.Store) (map[string]bool, error) {
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, key := range keys {
		if name, ok := artifact.NameFromDescriptor(key); ok && !strings.Contains(name, "/") {
			names[name] = true
		}
	}
	return names, nil
}
