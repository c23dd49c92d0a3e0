package summary

import (
	"fmt"
	"path"
	"sort"

	"github.com/samber/lo"

	"github.com/grafana/elfdiff/pkg/classify"
)

// TreeSummary aggregates the binaries of a directory tree under one scheme.
// File keys are forward slash paths relative to the tree root.
type TreeSummary struct {
	Scheme classify.Scheme

	Totals map[string]uint64
	Files  map[string]map[string]uint64

	OverlayTotals map[string]uint64
	OverlayFiles  map[string]map[string]uint64

	LoadSizes map[string]uint64
	FileSizes map[string]uint64
}

func NewTreeSummary(scheme classify.Scheme) *TreeSummary {
	return &TreeSummary{
		Scheme:        scheme,
		Totals:        make(map[string]uint64),
		Files:         make(map[string]map[string]uint64),
		OverlayTotals: make(map[string]uint64),
		OverlayFiles:  make(map[string]map[string]uint64),
		LoadSizes:     make(map[string]uint64),
		FileSizes:     make(map[string]uint64),
	}
}

func addFile(totals map[string]uint64, files map[string]map[string]uint64, group, file string, size uint64) {
	totals[group] += size
	perFile, ok := files[group]
	if !ok {
		perFile = make(map[string]uint64)
		files[group] = perFile
	}
	perFile[file] += size
}

// Add folds the summary of the binary at relpath into t.
func (t *TreeSummary) Add(relpath string, b *BinarySummary) {
	for g, size := range b.Totals() {
		addFile(t.Totals, t.Files, g, relpath, size)
	}
	for g, size := range b.OverlayTotals() {
		addFile(t.OverlayTotals, t.OverlayFiles, g, relpath, size)
	}
	t.LoadSizes[relpath] += b.LoadSize
	t.FileSizes[relpath] += b.FileSize
}

// Merge folds other into t. Merging is commutative and associative.
func (t *TreeSummary) Merge(other *TreeSummary) error {
	if other == nil {
		return nil
	}
	if other.Scheme != t.Scheme {
		return fmt.Errorf("cannot merge %s summary into %s summary", other.Scheme, t.Scheme)
	}
	for g, perFile := range other.Files {
		for f, size := range perFile {
			addFile(t.Totals, t.Files, g, f, size)
		}
	}
	for g, perFile := range other.OverlayFiles {
		for f, size := range perFile {
			addFile(t.OverlayTotals, t.OverlayFiles, g, f, size)
		}
	}
	for f, size := range other.LoadSizes {
		t.LoadSizes[f] += size
	}
	for f, size := range other.FileSizes {
		t.FileSizes[f] += size
	}
	return nil
}

// Groups returns the group names sorted.
func (t *TreeSummary) Groups() []string {
	groups := lo.Keys(t.Totals)
	sort.Strings(groups)
	return groups
}

// FileNames returns every file that contributed to t, sorted.
func (t *TreeSummary) FileNames() []string {
	set := make(map[string]struct{}, len(t.LoadSizes))
	for f := range t.LoadSizes {
		set[f] = struct{}{}
	}
	for _, perFile := range t.Files {
		for f := range perFile {
			set[f] = struct{}{}
		}
	}
	names := lo.Keys(set)
	sort.Strings(names)
	return names
}

// Total is the sum of all group totals.
func (t *TreeSummary) Total() uint64 {
	return lo.Sum(lo.Values(t.Totals))
}

// DirTotals sums the group totals of every file per directory and all its
// ancestors. The root directory is ".".
func (t *TreeSummary) DirTotals() map[string]map[string]uint64 {
	res := make(map[string]map[string]uint64)
	for g, perFile := range t.Files {
		for f, size := range perFile {
			for dir := path.Dir(f); ; dir = path.Dir(dir) {
				totals, ok := res[dir]
				if !ok {
					totals = make(map[string]uint64)
					res[dir] = totals
				}
				totals[g] += size
				if dir == "." || dir == "/" {
					break
				}
			}
		}
	}
	return res
}
