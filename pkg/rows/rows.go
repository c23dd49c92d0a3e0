package rows

import (
	"fmt"
	"path"
	"strconv"

	"github.com/grafana/elfdiff/pkg/elfio"
	"github.com/grafana/elfdiff/pkg/layout"
)

const (
	// FileSizeSection is the pseudo section carrying the size of a file.
	FileSizeSection = "FILESIZE"
	metaType        = "META"
)

// Header lists the column names in order.
var Header = []string{
	"base_rel_dir",
	"filename",
	"section_name",
	"section_type",
	"section_type_human",
	"section_size",
	"section_addr_hex",
	"section_offset",
	"section_align",
	"section_flags_hex",
	"section_flags_perms",
	"is_nobits",
	"in_load_segment",
	"load_segment_index",
	"load_segment_rwx",
	"va_range_in_segment",
	"file_range_in_segment",
	"addr_space",
	"has_paddr",
	"paddr_range_in_segment",
}

// Row describes one section of one binary and its placement.
type Row struct {
	BaseRelDir          string `parquet:"base_rel_dir"`
	Filename            string `parquet:"filename"`
	SectionName         string `parquet:"section_name"`
	SectionType         string `parquet:"section_type"`
	SectionTypeHuman    string `parquet:"section_type_human"`
	SectionSize         uint64 `parquet:"section_size"`
	SectionAddrHex      string `parquet:"section_addr_hex"`
	SectionOffset       uint64 `parquet:"section_offset"`
	SectionAlign        uint64 `parquet:"section_align"`
	SectionFlagsHex     string `parquet:"section_flags_hex"`
	SectionFlagsPerms   string `parquet:"section_flags_perms"`
	IsNoBits            bool   `parquet:"is_nobits"`
	InLoadSegment       bool   `parquet:"in_load_segment"`
	LoadSegmentIndex    int64  `parquet:"load_segment_index"`
	LoadSegmentRWX      string `parquet:"load_segment_rwx"`
	VARangeInSegment    string `parquet:"va_range_in_segment"`
	FileRangeInSegment  string `parquet:"file_range_in_segment"`
	AddrSpace           string `parquet:"addr_space"`
	HasPaddr            bool   `parquet:"has_paddr"`
	PaddrRangeInSegment string `parquet:"paddr_range_in_segment"`
}

// IsMeta reports whether r is the FILESIZE pseudo section.
func (r Row) IsMeta() bool {
	return r.SectionName == FileSizeSection && r.SectionType == metaType
}

// Path is the forward slash path of the file relative to the tree root.
func (r Row) Path() string {
	if r.BaseRelDir == "" || r.BaseRelDir == "." {
		return r.Filename
	}
	return path.Join(r.BaseRelDir, r.Filename)
}

// Record renders r in Header order.
func (r Row) Record() []string {
	return []string{
		r.BaseRelDir,
		r.Filename,
		r.SectionName,
		r.SectionType,
		r.SectionTypeHuman,
		strconv.FormatUint(r.SectionSize, 10),
		r.SectionAddrHex,
		strconv.FormatUint(r.SectionOffset, 10),
		strconv.FormatUint(r.SectionAlign, 10),
		r.SectionFlagsHex,
		r.SectionFlagsPerms,
		strconv.FormatBool(r.IsNoBits),
		strconv.FormatBool(r.InLoadSegment),
		strconv.FormatInt(r.LoadSegmentIndex, 10),
		r.LoadSegmentRWX,
		r.VARangeInSegment,
		r.FileRangeInSegment,
		r.AddrSpace,
		strconv.FormatBool(r.HasPaddr),
		r.PaddrRangeInSegment,
	}
}

// SplitPath returns the directory and file name columns of relpath.
func SplitPath(relpath string) (dir, file string) {
	dir, file = path.Split(relpath)
	if dir == "" {
		return ".", file
	}
	return path.Clean(dir), file
}

// FromFile returns the FILESIZE row followed by one row per section of f,
// in section table order.
func FromFile(relpath string, f *elfio.File) []Row {
	dir, name := SplitPath(relpath)
	rows := make([]Row, 0, len(f.Sections)+1)
	rows = append(rows, Row{
		BaseRelDir:       dir,
		Filename:         name,
		SectionName:      FileSizeSection,
		SectionType:      metaType,
		SectionTypeHuman: metaType,
		SectionSize:      uint64(f.Size),
		SectionAddrHex:   "0x0",
		SectionFlagsHex:  "0x0",
		LoadSegmentIndex: -1,
		AddrSpace:        layout.FileOnly.String(),
	})
	for i, m := range layout.MapFile(f) {
		s := f.Sections[i]
		rows = append(rows, Row{
			BaseRelDir:          dir,
			Filename:            name,
			SectionName:         s.Name,
			SectionType:         s.Type.String(),
			SectionTypeHuman:    s.Type.Human(),
			SectionSize:         s.Size,
			SectionAddrHex:      fmt.Sprintf("0x%x", s.Addr),
			SectionOffset:       s.Offset,
			SectionAlign:        s.Align,
			SectionFlagsHex:     s.Flags.Hex(),
			SectionFlagsPerms:   s.Flags.Perms(),
			IsNoBits:            s.IsNoBits(),
			InLoadSegment:       m.InLoad,
			LoadSegmentIndex:    int64(m.SegmentIndex),
			LoadSegmentRWX:      rwx(m),
			VARangeInSegment:    m.VAOverlap.String(),
			FileRangeInSegment:  m.FileOverlap.FileString(),
			AddrSpace:           m.AddrSpace.String(),
			HasPaddr:            m.HasPA,
			PaddrRangeInSegment: m.PAOverlap.String(),
		})
	}
	return rows
}

func rwx(m layout.Mapping) string {
	if !m.InLoad {
		return ""
	}
	return m.SegmentFlags.RWX()
}

// Section rebuilds the section header fields carried by r. Flags and types
// are accepted in their numeric as well as their symbolic forms.
func (r Row) Section() (elfio.Section, error) {
	typ, err := elfio.ParseSectionType(r.SectionType)
	if err != nil {
		return elfio.Section{}, err
	}
	flags, err := elfio.ParseSectionFlags(r.SectionFlagsHex)
	if err != nil {
		return elfio.Section{}, err
	}
	addr, err := parseHex(r.SectionAddrHex)
	if err != nil {
		return elfio.Section{}, fmt.Errorf("section_addr_hex: %w", err)
	}
	return elfio.Section{
		Name:   r.SectionName,
		Type:   typ,
		Size:   r.SectionSize,
		Addr:   addr,
		Offset: r.SectionOffset,
		Align:  r.SectionAlign,
		Flags:  flags,
	}, nil
}

// Mapping rebuilds the segment placement recorded in r.
func (r Row) Mapping() (layout.Mapping, error) {
	m := layout.Mapping{
		InLoad:       r.InLoadSegment,
		SegmentIndex: int(r.LoadSegmentIndex),
		HasPA:        r.HasPaddr,
	}
	var err error
	if r.LoadSegmentRWX != "" {
		if m.SegmentFlags, err = elfio.ParseSegmentFlags(r.LoadSegmentRWX); err != nil {
			return m, err
		}
	}
	if m.VAOverlap, err = layout.ParseRange(r.VARangeInSegment); err != nil {
		return m, err
	}
	if m.FileOverlap, err = layout.ParseRange(r.FileRangeInSegment); err != nil {
		return m, err
	}
	if m.PAOverlap, err = layout.ParseRange(r.PaddrRangeInSegment); err != nil {
		return m, err
	}
	if m.AddrSpace, err = layout.ParseAddressSpace(r.AddrSpace); err != nil {
		return m, err
	}
	return m, nil
}

func parseHex(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 0, 64)
}
