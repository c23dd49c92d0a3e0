package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/grafana/elfdiff/pkg/elfcontext"
	"github.com/grafana/elfdiff/pkg/rows"
	"github.com/grafana/elfdiff/pkg/scan"
)

const (
	formatCSV     = "csv"
	formatParquet = "parquet"
)

type scanParams struct {
	dir      string
	out      string
	format   string
	readable bool
}

func addScanParams(cmd commander) *scanParams {
	p := &scanParams{}
	cmd.Flag("dir", "The tree to scan.").Required().StringVar(&p.dir)
	cmd.Flag("out", "Where to write the rows.").Required().StringVar(&p.out)
	addFormatParams(cmd, &p.format, &p.readable)
	return p
}

type scanTwoParams struct {
	oldDir, newDir string
	oldOut, newOut string
	format         string
	readable       bool
}

func addScanTwoParams(cmd commander) *scanTwoParams {
	p := &scanTwoParams{}
	cmd.Flag("old-dir", "The old tree.").Required().StringVar(&p.oldDir)
	cmd.Flag("new-dir", "The new tree.").Required().StringVar(&p.newDir)
	cmd.Flag("old-out", "Where to write the rows of the old tree.").Required().StringVar(&p.oldOut)
	cmd.Flag("new-out", "Where to write the rows of the new tree.").Required().StringVar(&p.newOut)
	addFormatParams(cmd, &p.format, &p.readable)
	return p
}

func addFormatParams(cmd commander, format *string, readable *bool) {
	cmd.Flag("format", "Row file format: csv or parquet. Guessed from the output extension when empty.").EnumVar(format, formatCSV, formatParquet)
	cmd.Flag("readable", "Print sizes in human readable units.").Default("false").BoolVar(readable)
}

// isGzip reports whether the row file at path is gzip compressed. Only csv
// rows are, parquet compresses its pages itself.
func isGzip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

func rowFormat(format, path string) string {
	if format != "" {
		return format
	}
	if isGzip(path) {
		path = path[:len(path)-len(".gz")]
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return formatParquet
	}
	return formatCSV
}

// scanner writes the rows of trees. Consecutive trees share the parse
// cache.
type scanner struct {
	agg  *scan.Aggregator
	opts scan.Options
	f    sizeFormat
}

func newScanner(ctx context.Context, readable bool) (*scanner, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, err
	}
	schemes, err := c.Schemes()
	if err != nil {
		return nil, err
	}
	a, err := newAggregator(ctx, c)
	if err != nil {
		return nil, err
	}
	return &scanner{
		agg: a,
		opts: scan.Options{
			Schemes:   schemes,
			Filter:    c.Filter(),
			KeepFiles: true,
		},
		f: sizeFormat{readable: readable},
	}, nil
}

func runScan(ctx context.Context, p *scanParams) error {
	s, err := newScanner(ctx, p.readable)
	if err != nil {
		return err
	}
	stop := startProgress(s.agg)
	defer stop()
	return s.scanTree(ctx, "tree", p.dir, p.out, rowFormat(p.format, p.out))
}

func runScanTwo(ctx context.Context, p *scanTwoParams) error {
	s, err := newScanner(ctx, p.readable)
	if err != nil {
		return err
	}
	stop := startProgress(s.agg)
	defer stop()
	if err := s.scanTree(elfcontext.WrapTree(ctx, "old"), "old", p.oldDir, p.oldOut, rowFormat(p.format, p.oldOut)); err != nil {
		return err
	}
	return s.scanTree(elfcontext.WrapTree(ctx, "new"), "new", p.newDir, p.newOut, rowFormat(p.format, p.newOut))
}

// scanTree writes the rows of every binary below root to out, then prints
// the size of each section name.
func (s *scanner) scanTree(ctx context.Context, name, root, out, format string) error {
	rc, err := s.agg.WithLogger(elfcontext.Logger(ctx)).Run(ctx, root, s.opts)
	if err != nil {
		return errors.Wrapf(err, "scanning %s", root)
	}

	var all []rows.Row
	paths := lo.Keys(rc.Files)
	sort.Strings(paths)
	for _, path := range paths {
		all = append(all, rows.FromFile(path, rc.Files[path])...)
	}
	if err := writeRows(out, format, all); err != nil {
		return errors.Wrapf(err, "writing %s", out)
	}

	w := output(ctx)
	writeSectionSizes(w, all, s.f)
	writeStats(w, name, rc.Stats)
	return nil
}

func writeRows(path, format string, all []rows.Row) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if format == formatParquet && isGzip(path) {
		return errors.New("parquet row files cannot be gzip compressed")
	}
	file, err := fsys.Create(path)
	if err != nil {
		return err
	}
	switch {
	case format == formatParquet:
		err = rows.WriteParquet(file, all)
	case isGzip(path):
		gz := gzip.NewWriter(file)
		if err = writeCSV(gz, all); err == nil {
			err = gz.Close()
		}
	default:
		err = writeCSV(file, all)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeCSV(w io.Writer, all []rows.Row) error {
	cw := rows.NewCSVWriter(w)
	if err := cw.Write(all...); err != nil {
		return err
	}
	return cw.Flush()
}

type sectionSize struct {
	name  string
	files int
	size  uint64
}

// sectionSizes sums the rows per section name, largest first.
func sectionSizes(all []rows.Row) []sectionSize {
	byName := make(map[string]*sectionSize)
	for _, r := range all {
		if r.IsMeta() {
			continue
		}
		s, ok := byName[r.SectionName]
		if !ok {
			s = &sectionSize{name: r.SectionName}
			byName[r.SectionName] = s
		}
		s.files++
		s.size += r.SectionSize
	}
	res := lo.Map(lo.Values(byName), func(s *sectionSize, _ int) sectionSize { return *s })
	sort.Slice(res, func(i, j int) bool {
		if res[i].size != res[j].size {
			return res[i].size > res[j].size
		}
		return res[i].name < res[j].name
	})
	return res
}

func writeSectionSizes(out io.Writer, all []rows.Row, f sizeFormat) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Section", "Files", "Size"})
	var total uint64
	for _, s := range sectionSizes(all) {
		table.Append([]string{s.name, strconv.Itoa(s.files), f.size(s.size)})
		total += s.size
	}
	table.SetFooter([]string{"total", "", f.size(total)})
	table.Render()
	fmt.Fprintf(out, "%d rows\n", len(all))
}
