package main

import (
	"context"

	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/config"
	"github.com/grafana/elfdiff/pkg/diff"
	"github.com/grafana/elfdiff/pkg/elfcontext"
	"github.com/grafana/elfdiff/pkg/rows"
	"github.com/grafana/elfdiff/pkg/summary"
)

type diffParams struct {
	analysis *analysisParams
	report   *reportParams
	rows     bool
	old      string
	new      string
}

func addDiffParams(cmd commander) *diffParams {
	p := &diffParams{
		analysis: addAnalysisParams(cmd),
		report:   addReportParams(cmd),
	}
	cmd.Flag("rows", "OLD and NEW are row files written by scan (.csv or .parquet) instead of directories.").Default("false").BoolVar(&p.rows)
	cmd.Arg("old", "The old tree.").Required().StringVar(&p.old)
	cmd.Arg("new", "The new tree.").Required().StringVar(&p.new)
	return p
}

// trees holds the summaries of both sides, per scheme.
type trees struct {
	old, new           map[classify.Scheme]*summary.TreeSummary
	oldStats, newStats summary.Stats
}

func runDiff(ctx context.Context, p *diffParams) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	an, err := p.analysis.resolve(c)
	if err != nil {
		return err
	}
	rep, err := p.report.resolve(c)
	if err != nil {
		return err
	}

	var t *trees
	if p.rows {
		t, err = summarizeRows(ctx, an, p.old, p.new)
	} else {
		t, err = summarizeTrees(ctx, c, an, p.old, p.new)
	}
	if err != nil {
		return err
	}

	d := &diffReport{OldStats: t.oldStats, NewStats: t.newStats}
	for _, s := range an.schemes {
		d.Schemes = append(d.Schemes, newSchemeReport(diff.Compute(t.old[s], t.new[s]), rep))
	}
	return writeDiffReport(output(ctx), d, rep)
}

// summarizeTrees scans both trees with a shared aggregator, so that binaries
// identical on both sides are parsed once.
func summarizeTrees(ctx context.Context, c *config.Config, an *analysis, oldRoot, newRoot string) (*trees, error) {
	a, err := newAggregator(ctx, c)
	if err != nil {
		return nil, err
	}
	stop := startProgress(a)
	defer stop()

	var allow map[string]struct{}
	if an.commonFiles {
		common, err := a.CommonBinaries(ctx, oldRoot, newRoot)
		if err != nil {
			return nil, errors.Wrap(err, "listing common binaries")
		}
		level.Debug(elfcontext.Logger(ctx)).Log("msg", "common binaries", "count", len(common))
		allow = classify.NameSet(common...)
	}

	oldRC, err := a.WithLogger(elfcontext.Logger(elfcontext.WrapTree(ctx, "old"))).Run(ctx, oldRoot, an.options(allow))
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", oldRoot)
	}
	newRC, err := a.WithLogger(elfcontext.Logger(elfcontext.WrapTree(ctx, "new"))).Run(ctx, newRoot, an.options(allow))
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", newRoot)
	}
	return &trees{
		old:      oldRC.Summaries,
		new:      newRC.Summaries,
		oldStats: oldRC.Stats,
		newStats: newRC.Stats,
	}, nil
}

func readTable(path string) (*rows.Table, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if rowFormat("", path) == formatParquet {
		st, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return rows.ReadParquet(f, st.Size())
	}
	if isGzip(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return rows.ReadCSV(gz)
	}
	return rows.ReadCSV(f)
}

// summarizeRows rebuilds the summaries from the rows of two earlier scans.
func summarizeRows(ctx context.Context, an *analysis, oldPath, newPath string) (*trees, error) {
	oldTable, err := readTable(oldPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", oldPath)
	}
	newTable, err := readTable(newPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", newPath)
	}

	var allow map[string]struct{}
	if an.commonFiles {
		allow = classify.NameSet(commonNames(oldTable.FileNames(), newTable.FileNames())...)
	}
	t := &trees{
		oldStats: tableStats(oldTable, allow),
		newStats: tableStats(newTable, allow),
	}
	if t.old, err = oldTable.Summaries(an.schemes, an.rules, an.filter, allow); err != nil {
		return nil, errors.Wrapf(err, "summarizing %s", oldPath)
	}
	if t.new, err = newTable.Summaries(an.schemes, an.rules, an.filter, allow); err != nil {
		return nil, errors.Wrapf(err, "summarizing %s", newPath)
	}
	level.Debug(elfcontext.Logger(ctx)).Log("msg", "rows loaded", "old", len(oldTable.Rows), "new", len(newTable.Rows))
	return t, nil
}

func commonNames(a, b []string) []string {
	inB := classify.NameSet(b...)
	var res []string
	for _, n := range a {
		if _, ok := inB[n]; ok {
			res = append(res, n)
		}
	}
	return res
}

// tableStats counts the files of a row table. Rows only exist for binaries,
// so nothing is reported as not binary or failed.
func tableStats(t *rows.Table, allow map[string]struct{}) summary.Stats {
	var s summary.Stats
	for _, name := range t.FileNames() {
		s.Scanned++
		if allow != nil {
			if _, ok := allow[name]; !ok {
				s.Filtered++
				continue
			}
		}
		s.Classified++
	}
	return s
}
