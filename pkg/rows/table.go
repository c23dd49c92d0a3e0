package rows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/elfio"
	"github.com/grafana/elfdiff/pkg/layout"
	"github.com/grafana/elfdiff/pkg/summary"
)

// ErrNoMatchingRow is returned when a lookup key is absent from a table.
var ErrNoMatchingRow = errors.New("no matching row")

// CSVWriter writes rows with a header line.
type CSVWriter struct {
	w      *csv.Writer
	header bool
	n      int
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (w *CSVWriter) Write(rows ...Row) error {
	if !w.header {
		if err := w.w.Write(Header); err != nil {
			return err
		}
		w.header = true
	}
	for _, r := range rows {
		if err := w.w.Write(r.Record()); err != nil {
			return err
		}
		w.n++
	}
	return nil
}

// Rows is the number of rows written so far, header excluded.
func (w *CSVWriter) Rows() int { return w.n }

// Flush writes the header even when no row was written.
func (w *CSVWriter) Flush() error {
	if !w.header {
		if err := w.Write(); err != nil {
			return err
		}
	}
	w.w.Flush()
	return w.w.Error()
}

// WriteParquet writes rows as a single parquet file.
func WriteParquet(w io.Writer, rows []Row) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(rows); err != nil {
		return err
	}
	return pw.Close()
}

func ReadParquet(r io.ReaderAt, size int64) (*Table, error) {
	rows, err := parquet.Read[Row](r, size)
	if err != nil {
		return nil, err
	}
	return NewTable(rows), nil
}

type rowKey struct {
	dir, file, section string
}

// Table is an indexed set of rows, as read back from a previous scan.
type Table struct {
	Rows  []Row
	index map[rowKey]int
}

func NewTable(rows []Row) *Table {
	t := &Table{Rows: rows, index: make(map[rowKey]int, len(rows))}
	for i, r := range rows {
		k := rowKey{r.BaseRelDir, r.Filename, r.SectionName}
		if _, ok := t.index[k]; !ok {
			t.index[k] = i
		}
	}
	return t
}

// Lookup returns the first row for the section of the given file.
func (t *Table) Lookup(dir, file, section string) (Row, error) {
	i, ok := t.index[rowKey{dir, file, section}]
	if !ok {
		return Row{}, fmt.Errorf("%w: %s/%s section %s", ErrNoMatchingRow, dir, file, section)
	}
	return t.Rows[i], nil
}

// FileSize returns the size recorded by the FILESIZE row of relpath.
func (t *Table) FileSize(relpath string) (uint64, error) {
	dir, file := SplitPath(relpath)
	r, err := t.Lookup(dir, file, FileSizeSection)
	if err != nil {
		return 0, err
	}
	return r.SectionSize, nil
}

// ReadCSV parses rows written by CSVWriter. Columns are matched by name so
// that extra or reordered columns are tolerated.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range Header {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return NewTable(rows), nil
}

func parseRecord(rec []string, cols map[string]int) (Row, error) {
	var (
		err error
		get = func(name string) string { return rec[cols[name]] }
	)
	num := func(name string) uint64 {
		if err != nil || get(name) == "" {
			return 0
		}
		var v uint64
		if v, err = strconv.ParseUint(get(name), 0, 64); err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return v
	}
	boolean := func(name string) bool {
		if err != nil || get(name) == "" {
			return false
		}
		var v bool
		if v, err = strconv.ParseBool(get(name)); err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return v
	}
	r := Row{
		BaseRelDir:          get("base_rel_dir"),
		Filename:            get("filename"),
		SectionName:         get("section_name"),
		SectionType:         get("section_type"),
		SectionTypeHuman:    get("section_type_human"),
		SectionSize:         num("section_size"),
		SectionAddrHex:      get("section_addr_hex"),
		SectionOffset:       num("section_offset"),
		SectionAlign:        num("section_align"),
		SectionFlagsHex:     get("section_flags_hex"),
		SectionFlagsPerms:   get("section_flags_perms"),
		IsNoBits:            boolean("is_nobits"),
		InLoadSegment:       boolean("in_load_segment"),
		LoadSegmentRWX:      get("load_segment_rwx"),
		VARangeInSegment:    get("va_range_in_segment"),
		FileRangeInSegment:  get("file_range_in_segment"),
		AddrSpace:           get("addr_space"),
		HasPaddr:            boolean("has_paddr"),
		PaddrRangeInSegment: get("paddr_range_in_segment"),
	}
	if err != nil {
		return Row{}, err
	}
	if r.LoadSegmentIndex, err = strconv.ParseInt(get("load_segment_index"), 10, 64); err != nil {
		return Row{}, fmt.Errorf("load_segment_index: %w", err)
	}
	return r, nil
}

type fileRows struct {
	path     string
	size     uint64
	sections []elfio.Section
	mappings []layout.Mapping
}

// files groups the section rows by file, in first appearance order.
func (t *Table) files() ([]*fileRows, error) {
	var (
		order  []*fileRows
		byPath = make(map[string]*fileRows)
	)
	for _, r := range t.Rows {
		p := r.Path()
		fr, ok := byPath[p]
		if !ok {
			fr = &fileRows{path: p}
			byPath[p] = fr
			order = append(order, fr)
		}
		if r.IsMeta() {
			fr.size = r.SectionSize
			continue
		}
		s, err := r.Section()
		if err != nil {
			return nil, fmt.Errorf("%s section %s: %w", p, r.SectionName, err)
		}
		m, err := r.Mapping()
		if err != nil {
			return nil, fmt.Errorf("%s section %s: %w", p, r.SectionName, err)
		}
		fr.sections = append(fr.sections, s)
		fr.mappings = append(fr.mappings, m)
	}
	return order, nil
}

// Summaries classifies the rows under every scheme, the same way a live scan
// of the binaries would. File sizes come from the FILESIZE rows. Load
// segment sizes are not part of the rows and stay zero.
func (t *Table) Summaries(schemes []classify.Scheme, rules classify.Rules, filter summary.Filter, allow map[string]struct{}) (map[classify.Scheme]*summary.TreeSummary, error) {
	files, err := t.files()
	if err != nil {
		return nil, err
	}
	res := make(map[classify.Scheme]*summary.TreeSummary, len(schemes))
	for _, scheme := range schemes {
		c, err := classify.New(scheme, rules)
		if err != nil {
			return nil, err
		}
		tree := summary.NewTreeSummary(scheme)
		for _, f := range files {
			if allow != nil {
				if _, ok := allow[f.path]; !ok {
					continue
				}
			}
			b := summary.SummarizeMapped(f.sections, f.mappings, c, filter, nil)
			b.FileSize = f.size
			tree.Add(f.path, b)
		}
		res[scheme] = tree
	}
	return res, nil
}

// FileNames lists the files present in the table, in first appearance order.
func (t *Table) FileNames() []string {
	var (
		names []string
		seen  = make(map[string]struct{})
	)
	for _, r := range t.Rows {
		p := r.Path()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		names = append(names, p)
	}
	return names
}
