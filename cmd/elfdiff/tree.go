package main

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/xlab/treeprint"

	"github.com/grafana/elfdiff/pkg/summary"
)

type treeParams struct {
	analysis *analysisParams
	readable bool
	files    bool
	dir      string
}

func addTreeParams(cmd commander) *treeParams {
	p := &treeParams{analysis: addAnalysisParams(cmd)}
	cmd.Flag("readable", "Print sizes in human readable units.").Default("false").BoolVar(&p.readable)
	cmd.Flag("files", "List the binaries under their directory.").Default("true").BoolVar(&p.files)
	cmd.Arg("dir", "The tree to summarize.").Required().StringVar(&p.dir)
	return p
}

func runTree(ctx context.Context, p *treeParams) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	an, err := p.analysis.resolve(c)
	if err != nil {
		return err
	}
	a, err := newAggregator(ctx, c)
	if err != nil {
		return err
	}
	stop := startProgress(a)
	rc, err := a.Run(ctx, p.dir, an.options(nil))
	stop()
	if err != nil {
		return errors.Wrapf(err, "scanning %s", p.dir)
	}

	out := output(ctx)
	f := sizeFormat{readable: p.readable}
	for _, s := range an.schemes {
		fmt.Fprintf(out, "== scheme %s ==\n", s)
		fmt.Fprint(out, dirTree(p.dir, rc.Summaries[s], f, p.files).String())
	}
	writeStats(out, "tree", rc.Stats)
	return nil
}

// groupSizes renders sizes as "GROUP=size" pairs in group order.
func groupSizes(sizes map[string]uint64, f sizeFormat) string {
	groups := lo.Keys(sizes)
	sort.Strings(groups)
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, g+"="+f.size(sizes[g]))
	}
	return strings.Join(parts, " ")
}

// dirTree lays the per directory group totals of t out as a tree rooted at
// root. With files set each binary is a leaf of its directory.
func dirTree(root string, t *summary.TreeSummary, f sizeFormat, files bool) treeprint.Tree {
	dirs := t.DirTotals()
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s [%s]", root, groupSizes(dirs["."], f)))
	nodes := map[string]treeprint.Tree{".": tree}
	var branch func(dir string) treeprint.Tree
	branch = func(dir string) treeprint.Tree {
		if n, ok := nodes[dir]; ok {
			return n
		}
		n := branch(path.Dir(dir)).AddBranch(fmt.Sprintf("%s/ [%s]", path.Base(dir), groupSizes(dirs[dir], f)))
		nodes[dir] = n
		return n
	}

	names := lo.Keys(dirs)
	sort.Strings(names)
	for _, dir := range names {
		branch(dir)
	}
	if !files {
		return tree
	}

	perFile := make(map[string]map[string]uint64)
	for group, sizes := range t.Files {
		for file, size := range sizes {
			if perFile[file] == nil {
				perFile[file] = make(map[string]uint64)
			}
			perFile[file][group] = size
		}
	}
	for _, file := range t.FileNames() {
		branch(path.Dir(file)).AddNode(fmt.Sprintf("%s [%s]", path.Base(file), groupSizes(perFile[file], f)))
	}
	return tree
}
