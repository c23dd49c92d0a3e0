package main

import (
	"context"
	"fmt"

	"github.com/grafana/elfdiff/pkg/diff"
	"github.com/grafana/elfdiff/pkg/summary"
)

type segmentsParams struct {
	analysis *analysisParams
	report   *reportParams
	old      string
	new      string
}

func addSegmentsParams(cmd commander) *segmentsParams {
	p := &segmentsParams{
		analysis: addAnalysisParams(cmd),
		report:   addReportParams(cmd),
	}
	cmd.Arg("old", "The old tree.").Required().StringVar(&p.old)
	cmd.Arg("new", "The new tree.").Required().StringVar(&p.new)
	return p
}

type segmentsReport struct {
	Total diff.GroupDelta             `json:"total"`
	Files []diff.FileDelta            `json:"files"`
	Top   map[string][]diff.FileDelta `json:"top"`
	// FileSizes splits the on disk size of the binaries by diff status.
	FileSizes []diff.GroupDelta `json:"file_sizes"`
	OldStats  summary.Stats     `json:"old_stats"`
	NewStats  summary.Stats     `json:"new_stats"`
}

// runSegments compares the summed PT_LOAD memory size and the file size of
// every binary. Neither depends on the scheme, so only the first one is used.
func runSegments(ctx context.Context, p *segmentsParams) error {
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
	an.schemes = an.schemes[:1]

	t, err := summarizeTrees(ctx, c, an, p.old, p.new)
	if err != nil {
		return err
	}
	r := diff.Compute(t.old[an.schemes[0]], t.new[an.schemes[0]])

	sr := segmentsReport{
		Total:     r.LoadTotals(),
		Files:     r.LoadDeltas,
		Top:       make(map[string][]diff.FileDelta, len(rep.files.Views)),
		FileSizes: r.FileSizeTotals(),
		OldStats:  t.oldStats,
		NewStats:  t.newStats,
	}
	for _, v := range rep.files.Views {
		v.Limit = rep.topFiles
		sr.Top[v.String()] = diff.Rank(r.LoadDeltas, v)
	}

	out := output(ctx)
	if rep.output == outputJSON {
		return writeJSON(out, sr)
	}
	f := sizeFormat{readable: rep.readable}
	writeGroupTable(out, f, nil, &sr.Total)
	for _, v := range rep.files.Views {
		fmt.Fprintf(out, "top binaries by %s:\n", v)
		writeFileTable(out, f, sr.Top[v.String()])
	}
	fmt.Fprintln(out, "file sizes by status:")
	writeGroupTable(out, f, sr.FileSizes, nil)
	writeStats(out, "old", t.oldStats)
	writeStats(out, "new", t.newStats)
	return nil
}
