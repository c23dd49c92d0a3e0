package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"

	"github.com/grafana/elfdiff/pkg/diff"
	"github.com/grafana/elfdiff/pkg/summary"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type sizeFormat struct {
	readable bool
}

func (f sizeFormat) size(v uint64) string {
	if f.readable {
		return humanize.IBytes(v)
	}
	return strconv.FormatUint(v, 10)
}

func (f sizeFormat) delta(v int64) string {
	var s string
	switch {
	case v > 0:
		s = "+" + f.size(uint64(v))
	case v < 0:
		s = "-" + f.size(uint64(-v))
	default:
		return "0"
	}
	if v > 0 {
		return color.RedString(s)
	}
	return color.GreenString(s)
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

func writeGroupTable(out io.Writer, f sizeFormat, groups []diff.GroupDelta, total *diff.GroupDelta) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Group", "Old", "New", "Diff", "Diff %"})
	for _, g := range groups {
		table.Append([]string{g.Group, f.size(g.Old), f.size(g.New), f.delta(g.Delta), pct(g.Pct)})
	}
	if total != nil {
		table.SetFooter([]string{total.Group, f.size(total.Old), f.size(total.New), f.delta(total.Delta), pct(total.Pct)})
	}
	table.Render()
}

func writeFileTable(out io.Writer, f sizeFormat, files []diff.FileDelta) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Dir", "File", "Status", "Old", "New", "Diff", "Diff %"})
	for _, d := range files {
		table.Append([]string{d.Dir, d.Name, string(d.Status), f.size(d.Old), f.size(d.New), f.delta(d.Delta), pct(d.Pct)})
	}
	table.Render()
}

func writeStats(out io.Writer, tree string, s summary.Stats) {
	fmt.Fprintf(out, "%s: %s\n", tree, s)
}

// rankedGroups applies every view of spec to the group deltas of r.
func rankedGroups(r *diff.Result, spec diff.SortSpec, limit int) map[string][]diff.GroupDelta {
	groups := spec.Filter(r.Groups)
	res := make(map[string][]diff.GroupDelta, len(spec.Views))
	for _, v := range spec.Views {
		v.Limit = limit
		res[v.String()] = diff.Rank(groups, v)
	}
	return res
}

// rankedFiles applies every view of spec to the file deltas of each group
// named by spec, or of every group when spec names none.
func rankedFiles(r *diff.Result, spec diff.SortSpec, limit int) map[string]map[string][]diff.FileDelta {
	names := spec.Groups
	if len(names) == 0 {
		for _, g := range r.Groups {
			names = append(names, g.Group)
		}
	}
	res := make(map[string]map[string][]diff.FileDelta, len(names))
	for _, g := range names {
		files, ok := r.Files[g]
		if !ok {
			continue
		}
		views := make(map[string][]diff.FileDelta, len(spec.Views))
		for _, v := range spec.Views {
			v.Limit = limit
			views[v.String()] = diff.Rank(files, v)
		}
		res[g] = views
	}
	return res
}

type schemeReport struct {
	Scheme     string                                 `json:"scheme"`
	Total      diff.GroupDelta                        `json:"total"`
	Result     *diff.Result                           `json:"result"`
	TopGroups  map[string][]diff.GroupDelta           `json:"top_groups"`
	TopFiles   map[string]map[string][]diff.FileDelta `json:"top_files"`
	GroupOrder []string                               `json:"-"`
}

type diffReport struct {
	Schemes  []schemeReport `json:"schemes"`
	OldStats summary.Stats  `json:"old_stats"`
	NewStats summary.Stats  `json:"new_stats"`
}

func newSchemeReport(r *diff.Result, rep *report) schemeReport {
	sr := schemeReport{
		Scheme:    r.Scheme.String(),
		Total:     r.Totals(),
		Result:    r,
		TopGroups: rankedGroups(r, rep.groups, rep.topN),
		TopFiles:  rankedFiles(r, rep.files, rep.topFiles),
	}
	for _, g := range r.Groups {
		if _, ok := sr.TopFiles[g.Group]; ok {
			sr.GroupOrder = append(sr.GroupOrder, g.Group)
		}
	}
	return sr
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func writeDiffReport(out io.Writer, d *diffReport, rep *report) error {
	if rep.output == outputJSON {
		return writeJSON(out, d)
	}
	f := sizeFormat{readable: rep.readable}
	for _, sr := range d.Schemes {
		fmt.Fprintf(out, "== scheme %s ==\n", sr.Scheme)
		writeGroupTable(out, f, sr.Result.Groups, &sr.Total)
		if len(sr.Result.Overlay) > 0 {
			fmt.Fprintln(out, "overlay:")
			writeGroupTable(out, f, sr.Result.Overlay, nil)
		}
		for _, v := range rep.groups.Views {
			fmt.Fprintf(out, "top groups by %s:\n", v)
			writeGroupTable(out, f, sr.TopGroups[v.String()], nil)
		}
		for _, g := range sr.GroupOrder {
			for _, v := range rep.files.Views {
				files := sr.TopFiles[g][v.String()]
				if len(files) == 0 {
					continue
				}
				fmt.Fprintf(out, "top files of %s by %s:\n", g, v)
				writeFileTable(out, f, files)
			}
		}
		fmt.Fprintln(out)
	}
	writeStats(out, "old", d.OldStats)
	writeStats(out, "new", d.NewStats)
	return nil
}
