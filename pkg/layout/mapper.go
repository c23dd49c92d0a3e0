package layout

import (
	"fmt"

	"github.com/grafana/elfdiff/pkg/elfio"
)

// Segment is a PT_LOAD program header normalized into half-open ranges.
type Segment struct {
	// Index is the position in the program header table, not in the
	// filtered segment list.
	Index int
	VA    Range
	File  Range
	PA    Range
	HasPA bool
	Flags elfio.SegmentFlags
}

// BuildIndex keeps the PT_LOAD entries of progs, in table order.
func BuildIndex(progs []elfio.Prog) []Segment {
	segments := make([]Segment, 0, len(progs))
	for _, p := range progs {
		if p.Type != elfio.PTLoad {
			continue
		}
		s := Segment{
			Index: p.Index,
			VA:    Range{Start: p.Vaddr, End: p.Vaddr + p.Memsz},
			File:  Range{Start: p.Off, End: p.Off + p.Filesz},
			Flags: p.Flags,
		}
		if p.Paddr != 0 && p.Memsz != 0 {
			s.HasPA = true
			s.PA = Range{Start: p.Paddr, End: p.Paddr + p.Memsz}
		}
		segments = append(segments, s)
	}
	return segments
}

// AddressSpace tells where a section lives once the image is loaded.
type AddressSpace int

const (
	Unknown AddressSpace = iota
	VA
	VAPA
	FileOnly
)

func (a AddressSpace) String() string {
	switch a {
	case VA:
		return "VA"
	case VAPA:
		return "VA+PA"
	case FileOnly:
		return "FileOnly"
	default:
		return "Unknown"
	}
}

func ParseAddressSpace(s string) (AddressSpace, error) {
	switch s {
	case "VA":
		return VA, nil
	case "VA+PA":
		return VAPA, nil
	case "FileOnly":
		return FileOnly, nil
	case "Unknown", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("invalid address space %q", s)
}

// Mapping relates one section to at most one load segment.
type Mapping struct {
	InLoad       bool
	SegmentIndex int
	SegmentFlags elfio.SegmentFlags
	VAOverlap    Range
	FileOverlap  Range
	HasPA        bool
	PAOverlap    Range
	AddrSpace    AddressSpace
}

// SectionRanges returns the virtual address and file ranges of s. Zero sized
// sections get a one byte range so that they can still be placed. The file
// range of a NOBITS section is always empty.
func SectionRanges(s elfio.Section) (va, file Range) {
	size := s.Size
	if size == 0 {
		size = 1
	}
	va = Range{Start: s.Addr, End: s.Addr + size}
	if !s.IsNoBits() {
		file = Range{Start: s.Offset, End: s.Offset + size}
	}
	return va, file
}

// Map picks the first segment, in ascending table order, whose memory range
// overlaps the section. Later segments are never considered once a match is
// found, even if they would fit better.
func Map(s elfio.Section, segments []Segment) Mapping {
	m := Mapping{SegmentIndex: -1}
	va, file := SectionRanges(s)
	nobits := s.IsNoBits()

	for _, seg := range segments {
		vaOverlap, ok := va.Intersect(seg.VA)
		if !ok {
			continue
		}
		m.InLoad = true
		m.SegmentIndex = seg.Index
		m.SegmentFlags = seg.Flags
		m.VAOverlap = vaOverlap
		if !nobits {
			if fo, ok := file.Intersect(seg.File); ok {
				m.FileOverlap = fo
			}
		}
		if seg.HasPA {
			m.HasPA = true
			if pa, ok := va.Intersect(seg.PA); ok {
				m.PAOverlap = pa
			}
		}
		m.AddrSpace = VA
		if !m.PAOverlap.Empty() {
			m.AddrSpace = VAPA
		}
		return m
	}

	switch {
	case nobits:
		m.AddrSpace = VA
	case !file.Empty():
		m.AddrSpace = FileOnly
	default:
		m.AddrSpace = Unknown
	}
	return m
}

// MapFile maps every section of f, in section table order.
func MapFile(f *elfio.File) []Mapping {
	segments := BuildIndex(f.Progs)
	mappings := make([]Mapping, len(f.Sections))
	for i, s := range f.Sections {
		mappings[i] = Map(s, segments)
	}
	return mappings
}
