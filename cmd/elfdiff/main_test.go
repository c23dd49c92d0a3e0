package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/config"
	"github.com/grafana/elfdiff/pkg/diff"
	"github.com/grafana/elfdiff/pkg/elfcontext"
	"github.com/grafana/elfdiff/pkg/elfio/elftest"
	"github.com/grafana/elfdiff/pkg/rows"
	"github.com/grafana/elfdiff/pkg/summary"
)

// setup points the commands at an in-memory filesystem holding an old and a
// new tree, and returns a context writing to the returned buffer.
func setup(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	prev := fsys
	fsys = fs
	t.Cleanup(func() { fsys = prev })
	cfg.config.file = ""
	cfg.concurrency = 2

	require.NoError(t, elftest.Simple(100, 200, 50).WriteFile(fs, "/old/bin/app"))
	require.NoError(t, elftest.Simple(10, 20, 5).WriteFile(fs, "/old/lib/libfoo.so"))
	require.NoError(t, elftest.Simple(1, 1, 1).WriteFile(fs, "/old/bin/legacy"))
	require.NoError(t, afero.WriteFile(fs, "/old/README", []byte("hello"), 0o644))

	require.NoError(t, elftest.Simple(150, 200, 50).WriteFile(fs, "/new/bin/app"))
	require.NoError(t, elftest.Simple(10, 20, 5).WriteFile(fs, "/new/lib/libfoo.so"))
	require.NoError(t, elftest.Simple(1, 1, 1).WriteFile(fs, "/new/bin/added"))
	require.NoError(t, afero.WriteFile(fs, "/new/README", []byte("hello"), 0o644))

	var buf bytes.Buffer
	ctx := elfcontext.WithLogger(context.Background(), log.NewNopLogger())
	ctx = elfcontext.WithRegistry(ctx, prometheus.NewRegistry())
	return withOutput(ctx, &buf), &buf
}

func jsonDiff(t *testing.T, ctx context.Context, buf *bytes.Buffer, p *diffParams) diffReport {
	t.Helper()
	buf.Reset()
	p.report.output = outputJSON
	require.NoError(t, runDiff(ctx, p))
	var d diffReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &d))
	return d
}

func group(t *testing.T, sr schemeReport, name string) diff.GroupDelta {
	t.Helper()
	for _, g := range sr.Result.Groups {
		if g.Group == name {
			return g
		}
	}
	t.Fatalf("group %s not found", name)
	return diff.GroupDelta{}
}

func TestDiffCommonFiles(t *testing.T) {
	ctx, buf := setup(t)

	d := jsonDiff(t, ctx, buf, &diffParams{
		analysis: &analysisParams{commonFiles: true},
		report:   &reportParams{},
		old:      "/old",
		new:      "/new",
	})
	require.Len(t, d.Schemes, 1)
	sr := d.Schemes[0]
	assert.Equal(t, "berkeley", sr.Scheme)
	assert.Equal(t, diff.GroupDelta{Group: classify.GroupText, Old: 110, New: 160, Delta: 50, Pct: diff.Percent(110, 160)}, group(t, sr, classify.GroupText))
	// README is still reported as not binary, bin/legacy is only in the old tree
	assert.Equal(t, summary.Stats{Scanned: 4, Classified: 2, NotBinary: 1, Filtered: 1}, d.OldStats)

	views := sr.TopFiles[classify.GroupText]
	require.Contains(t, views, "+diff")
	require.Contains(t, views, "-diff")
	assert.Equal(t, "bin/app", views["+diff"][0].Path)
}

func TestDiffAllFiles(t *testing.T) {
	ctx, buf := setup(t)

	d := jsonDiff(t, ctx, buf, &diffParams{
		analysis: &analysisParams{scheme: "gnu,sysv"},
		report:   &reportParams{sortFileBy: "TEXT:abs_diff", topNFiles: 1},
		old:      "/old",
		new:      "/new",
	})
	require.Len(t, d.Schemes, 2)
	gnu := d.Schemes[0]
	assert.Equal(t, "gnu", gnu.Scheme)
	assert.Equal(t, int64(50), group(t, gnu, classify.GroupText).Delta)
	assert.Equal(t, summary.Stats{Scanned: 4, Classified: 3, NotBinary: 1}, d.NewStats)

	require.Len(t, gnu.TopFiles, 1)
	top := gnu.TopFiles[classify.GroupText]["abs_diff"]
	require.Len(t, top, 1)
	assert.Equal(t, "bin/app", top[0].Path)

	statuses := map[string]diff.Status{}
	for _, f := range gnu.Result.Files[classify.GroupText] {
		statuses[f.Path] = f.Status
	}
	assert.Equal(t, map[string]diff.Status{
		"bin/added":     diff.StatusAdded,
		"bin/app":       diff.StatusCommon,
		"bin/legacy":    diff.StatusRemoved,
		"lib/libfoo.so": diff.StatusCommon,
	}, statuses)
}

func TestDiffConsole(t *testing.T) {
	ctx, buf := setup(t)

	require.NoError(t, runDiff(ctx, &diffParams{
		analysis: &analysisParams{commonFiles: true},
		report:   &reportParams{output: outputConsole, readable: true},
		old:      "/old",
		new:      "/new",
	}))
	out := buf.String()
	assert.Contains(t, out, "== scheme berkeley ==")
	assert.Contains(t, out, "top groups by +diff:")
	assert.Contains(t, out, "old: 4 files scanned / 2 classified / 2 skipped (not binary: 1, filtered: 1, failed: 0)")
}

func TestDiffInvalidSort(t *testing.T) {
	ctx, _ := setup(t)
	err := runDiff(ctx, &diffParams{
		analysis: &analysisParams{},
		report:   &reportParams{sortGroupBy: "+abs_diff"},
		old:      "/old",
		new:      "/new",
	})
	require.ErrorContains(t, err, "--sort-group-by")
}

func TestScanTwoThenDiffRows(t *testing.T) {
	for _, ext := range []string{".csv", ".parquet", ".csv.gz"} {
		t.Run(ext, func(t *testing.T) {
			ctx, buf := setup(t)

			require.NoError(t, runScanTwo(ctx, &scanTwoParams{
				oldDir: "/old", newDir: "/new",
				oldOut: "/out/old" + ext, newOut: "/out/new" + ext,
			}))
			assert.Contains(t, buf.String(), "old: 4 files scanned / 3 classified / 1 skipped (not binary: 1, filtered: 0, failed: 0)")
			assert.Contains(t, buf.String(), ".text")

			table, err := readTable("/out/old" + ext)
			require.NoError(t, err)
			size, err := table.FileSize("bin/app")
			require.NoError(t, err)
			assert.Positive(t, size)
			_, err = table.Lookup("bin", "missing", ".text")
			require.ErrorIs(t, err, rows.ErrNoMatchingRow)

			p := func(useRows bool, old, new string) *diffParams {
				return &diffParams{
					analysis: &analysisParams{scheme: "all", commonFiles: true},
					report:   &reportParams{},
					rows:     useRows,
					old:      old,
					new:      new,
				}
			}
			live := jsonDiff(t, ctx, buf, p(false, "/old", "/new"))
			fromRows := jsonDiff(t, ctx, buf, p(true, "/out/old"+ext, "/out/new"+ext))
			require.Len(t, fromRows.Schemes, len(live.Schemes))
			for i := range live.Schemes {
				assert.Equal(t, live.Schemes[i].Result.Groups, fromRows.Schemes[i].Result.Groups, live.Schemes[i].Scheme)
			}
			assert.Equal(t, summary.Stats{Scanned: 3, Classified: 2, Filtered: 1}, fromRows.OldStats)
		})
	}
}

func TestResolveAnalysis(t *testing.T) {
	c := config.Default()
	c.Sections.Exclude = []string{".comment"}
	off := false
	c.CommonFiles = &off

	an, err := (&analysisParams{commonFiles: true}).resolve(c)
	require.NoError(t, err)
	assert.Equal(t, []classify.Scheme{classify.Berkeley}, an.schemes)
	assert.Contains(t, an.rules.Exclude, ".comment")
	assert.False(t, an.commonFiles)

	an, err = (&analysisParams{scheme: "custom", selected: ".text, .data", overlay: "duplicate", exclude: ".bss"}).resolve(config.Default())
	require.NoError(t, err)
	assert.Equal(t, []classify.Scheme{classify.Custom}, an.schemes)
	assert.Equal(t, classify.NameSet(".text", ".data"), an.rules.Selected)
	assert.Equal(t, classify.NameSet(".bss"), an.rules.Exclude)
	assert.Equal(t, classify.OverlayDuplicate, an.rules.Overlay)

	_, err = (&analysisParams{scheme: "bsd"}).resolve(config.Default())
	require.Error(t, err)
}

func TestResolveReport(t *testing.T) {
	rep, err := (&reportParams{}).resolve(config.Default())
	require.NoError(t, err)
	assert.Equal(t, 10, rep.topN)
	require.Len(t, rep.groups.Views, 2)

	rep, err = (&reportParams{sortGroupBy: "TEXT,DATA:diff_pct", order: "asc", topNGroups: 3}).resolve(config.Default())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.topN)
	assert.Equal(t, []string{"TEXT", "DATA"}, rep.groups.Groups)
	assert.Equal(t, diff.Asc, rep.groups.Views[0].Order)
}

func TestTree(t *testing.T) {
	ctx, buf := setup(t)
	require.NoError(t, runTree(ctx, &treeParams{
		analysis: &analysisParams{scheme: "gnu"},
		files:    true,
		dir:      "/old",
	}))
	out := buf.String()
	assert.Contains(t, out, "/old [")
	assert.Contains(t, out, "bin/ [")
	assert.Contains(t, out, "libfoo.so [")
	assert.Contains(t, out, "TEXT=101")
}

func TestRules(t *testing.T) {
	ctx, buf := setup(t)
	require.NoError(t, runRules(ctx, &rulesParams{
		analysis: &analysisParams{scheme: "berkeley"},
		dir:      "/old",
	}))
	assert.Contains(t, buf.String(), ".text")
	assert.Contains(t, buf.String(), "tree: 4 files scanned")
}

func TestSegments(t *testing.T) {
	ctx, buf := setup(t)
	require.NoError(t, runSegments(ctx, &segmentsParams{
		analysis: &analysisParams{scheme: "all"},
		report:   &reportParams{output: outputJSON},
		old:      "/old",
		new:      "/new",
	}))
	var sr segmentsReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &sr))
	assert.Len(t, sr.Files, 4)
	assert.Equal(t, "TOTAL", sr.Total.Group)

	// only the ELF binaries are counted, bin/legacy and bin/added are one sided
	require.Len(t, sr.FileSizes, 3)
	assert.Equal(t, "added", sr.FileSizes[1].Group)
	assert.Positive(t, sr.FileSizes[1].New)
	assert.Zero(t, sr.FileSizes[1].Old)
	assert.Equal(t, "removed", sr.FileSizes[2].Group)
	assert.Positive(t, sr.FileSizes[2].Old)
}

func TestRowFormat(t *testing.T) {
	assert.Equal(t, formatCSV, rowFormat("", "rows.csv"))
	assert.Equal(t, formatCSV, rowFormat("", "rows.csv.gz"))
	assert.Equal(t, formatParquet, rowFormat("", "rows.PARQUET"))
	assert.Equal(t, formatParquet, rowFormat(formatParquet, "rows.csv"))
	assert.True(t, isGzip("rows.csv.gz"))

	fsys = afero.NewMemMapFs()
	t.Cleanup(func() { fsys = afero.NewOsFs() })
	require.Error(t, writeRows("/rows.parquet.gz", formatParquet, nil))
}

func TestSectionSizes(t *testing.T) {
	all := []rows.Row{
		{SectionName: rows.FileSizeSection, SectionType: "META", SectionSize: 1000},
		{SectionName: ".text", SectionSize: 10},
		{SectionName: ".data", SectionSize: 30},
		{SectionName: ".text", SectionSize: 25},
	}
	assert.Equal(t, []sectionSize{{".text", 2, 35}, {".data", 1, 30}}, sectionSizes(all))
}
