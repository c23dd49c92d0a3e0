package elfio

import (
	"fmt"
	"strconv"
	"strings"
)

// SectionFlags is the canonical sh_flags bitmask. Every representation found
// in input data (integers, hex strings, SHF_* names, permission letters) is
// normalized into it before any bit is tested.
type SectionFlags uint64

const (
	SHFWrite           SectionFlags = 0x1
	SHFAlloc           SectionFlags = 0x2
	SHFExecInstr       SectionFlags = 0x4
	SHFMerge           SectionFlags = 0x10
	SHFStrings         SectionFlags = 0x20
	SHFInfoLink        SectionFlags = 0x40
	SHFLinkOrder       SectionFlags = 0x80
	SHFOSNonconforming SectionFlags = 0x100
	SHFGroup           SectionFlags = 0x200
	SHFTLS             SectionFlags = 0x400
	SHFCompressed      SectionFlags = 0x800
	SHFMaskOS          SectionFlags = 0x0ff00000
	SHFExclude         SectionFlags = 0x80000000
	SHFMaskProc        SectionFlags = 0xf0000000
)

var sectionFlagNames = map[string]SectionFlags{
	"SHF_WRITE":            SHFWrite,
	"SHF_ALLOC":            SHFAlloc,
	"SHF_EXECINSTR":        SHFExecInstr,
	"SHF_MERGE":            SHFMerge,
	"SHF_STRINGS":          SHFStrings,
	"SHF_INFO_LINK":        SHFInfoLink,
	"SHF_LINK_ORDER":       SHFLinkOrder,
	"SHF_OS_NONCONFORMING": SHFOSNonconforming,
	"SHF_GROUP":            SHFGroup,
	"SHF_TLS":              SHFTLS,
	"SHF_COMPRESSED":       SHFCompressed,
	"SHF_EXCLUDE":          SHFExclude,
}

// permission letters, in the order they are rendered
var sectionFlagLetters = []struct {
	letter string
	flag   SectionFlags
}{
	{"W", SHFWrite},
	{"A", SHFAlloc},
	{"X", SHFExecInstr},
	{"T", SHFTLS},
	{"M", SHFMerge},
	{"S", SHFStrings},
	{"G", SHFGroup},
	{"C", SHFCompressed},
	{"E", SHFExclude},
}

func (f SectionFlags) Has(bits SectionFlags) bool { return f&bits == bits }

func (f SectionFlags) Write() bool    { return f&SHFWrite != 0 }
func (f SectionFlags) Alloc() bool    { return f&SHFAlloc != 0 }
func (f SectionFlags) Exec() bool     { return f&SHFExecInstr != 0 }
func (f SectionFlags) Hex() string    { return "0x" + strconv.FormatUint(uint64(f), 16) }
func (f SectionFlags) String() string { return f.Hex() }

// Perms renders the execution and data relevant bits, e.g. "W|A".
func (f SectionFlags) Perms() string {
	var parts []string
	for _, l := range sectionFlagLetters {
		if f&l.flag != 0 {
			parts = append(parts, l.letter)
		}
	}
	return strings.Join(parts, "|")
}

// ParseSectionFlags normalizes an integer or a string encoding of sh_flags.
// Strings may combine SHF_* names, permission letters, decimal and hex
// literals separated by '|'. Unknown symbolic tokens are ignored.
func ParseSectionFlags(v any) (SectionFlags, error) {
	switch t := v.(type) {
	case SectionFlags:
		return t, nil
	case string:
		bits, err := parseTokens(t, func(tok string) (uint64, bool) {
			if f, ok := sectionFlagNames[strings.ToUpper(tok)]; ok {
				return uint64(f), true
			}
			for _, l := range sectionFlagLetters {
				if tok == l.letter {
					return uint64(l.flag), true
				}
			}
			return 0, false
		})
		return SectionFlags(bits), err
	default:
		n, err := toUint64(v)
		return SectionFlags(n), err
	}
}

// SegmentFlags is the canonical p_flags bitmask.
type SegmentFlags uint32

const (
	PFX SegmentFlags = 0x1
	PFW SegmentFlags = 0x2
	PFR SegmentFlags = 0x4
)

var segmentFlagNames = map[string]SegmentFlags{
	"PF_X": PFX,
	"PF_W": PFW,
	"PF_R": PFR,
	"X":    PFX,
	"W":    PFW,
	"R":    PFR,
}

func (f SegmentFlags) Exec() bool  { return f&PFX != 0 }
func (f SegmentFlags) Write() bool { return f&PFW != 0 }
func (f SegmentFlags) Read() bool  { return f&PFR != 0 }

// RWX renders the permissions as "R|W|X", omitting missing bits.
func (f SegmentFlags) RWX() string {
	var parts []string
	if f.Read() {
		parts = append(parts, "R")
	}
	if f.Write() {
		parts = append(parts, "W")
	}
	if f.Exec() {
		parts = append(parts, "X")
	}
	return strings.Join(parts, "|")
}

func (f SegmentFlags) String() string { return f.RWX() }

// ParseSegmentFlags normalizes an integer or string (PF_R|PF_X, R|W|X, hex)
// encoding of p_flags.
func ParseSegmentFlags(v any) (SegmentFlags, error) {
	switch t := v.(type) {
	case SegmentFlags:
		return t, nil
	case string:
		bits, err := parseTokens(t, func(tok string) (uint64, bool) {
			f, ok := segmentFlagNames[strings.ToUpper(tok)]
			return uint64(f), ok
		})
		return SegmentFlags(bits), err
	default:
		n, err := toUint64(v)
		return SegmentFlags(n), err
	}
}

func parseTokens(s string, lookup func(string) (uint64, bool)) (uint64, error) {
	var bits uint64
	for _, tok := range strings.Split(s, "|") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if v, ok := lookup(tok); ok {
			bits |= v
			continue
		}
		if n, err := strconv.ParseUint(tok, 0, 64); err == nil {
			bits |= n
		}
	}
	return bits, nil
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case int:
		return uint64(n), nil
	case int32:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported flag representation %T", v)
	}
}
