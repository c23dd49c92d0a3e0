package elfio

import (
	"fmt"
	"strconv"
	"strings"
)

// SectionType is the numeric sh_type code.
type SectionType uint32

const (
	SHTNull          SectionType = 0
	SHTProgBits      SectionType = 1
	SHTSymTab        SectionType = 2
	SHTStrTab        SectionType = 3
	SHTRela          SectionType = 4
	SHTHash          SectionType = 5
	SHTDynamic       SectionType = 6
	SHTNote          SectionType = 7
	SHTNoBits        SectionType = 8
	SHTRel           SectionType = 9
	SHTShLib         SectionType = 10
	SHTDynSym        SectionType = 11
	SHTInitArray     SectionType = 14
	SHTFiniArray     SectionType = 15
	SHTPreinitArray  SectionType = 16
	SHTGroup         SectionType = 17
	SHTSymTabShndx   SectionType = 18
	SHTGNUAttributes SectionType = 0x6ffffff5
	SHTGNUHash       SectionType = 0x6ffffff6
	SHTGNULibList    SectionType = 0x6ffffff7
	SHTGNUVerDef     SectionType = 0x6ffffffd
	SHTGNUVerNeed    SectionType = 0x6ffffffe
	SHTGNUVerSym     SectionType = 0x6fffffff
)

var sectionTypeNames = map[SectionType]string{
	SHTNull:          "NULL",
	SHTProgBits:      "PROGBITS",
	SHTSymTab:        "SYMTAB",
	SHTStrTab:        "STRTAB",
	SHTRela:          "RELA",
	SHTHash:          "HASH",
	SHTDynamic:       "DYNAMIC",
	SHTNote:          "NOTE",
	SHTNoBits:        "NOBITS",
	SHTRel:           "REL",
	SHTShLib:         "SHLIB",
	SHTDynSym:        "DYNSYM",
	SHTInitArray:     "INIT_ARRAY",
	SHTFiniArray:     "FINI_ARRAY",
	SHTPreinitArray:  "PREINIT_ARRAY",
	SHTGroup:         "GROUP",
	SHTSymTabShndx:   "SYMTAB_SHNDX",
	SHTGNUAttributes: "GNU_ATTRIBUTES",
	SHTGNUHash:       "GNU_HASH",
	SHTGNULibList:    "GNU_LIBLIST",
	SHTGNUVerDef:     "GNU_VERDEF",
	SHTGNUVerNeed:    "GNU_VERNEED",
	SHTGNUVerSym:     "GNU_VERSYM",
}

var sectionTypeByName = func() map[string]SectionType {
	m := make(map[string]SectionType, len(sectionTypeNames))
	for t, name := range sectionTypeNames {
		m[name] = t
	}
	return m
}()

// Known reports whether t is in the type table.
func (t SectionType) Known() bool {
	_, ok := sectionTypeNames[t]
	return ok
}

// Human returns the type without its SHT_ prefix, or UNKNOWN(<code>).
func (t SectionType) Human() string {
	if name, ok := sectionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

func (t SectionType) String() string {
	if name, ok := sectionTypeNames[t]; ok {
		return "SHT_" + name
	}
	return t.Human()
}

// ParseSectionType normalizes an integer or a string (SHT_NOBITS, NOBITS,
// UNKNOWN(123), "8", "0x8") encoding of sh_type.
func ParseSectionType(v any) (SectionType, error) {
	if t, ok := v.(SectionType); ok {
		return t, nil
	}
	s, ok := v.(string)
	if !ok {
		n, err := toUint64(v)
		return SectionType(n), err
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if t, ok := sectionTypeByName[strings.TrimPrefix(s, "SHT_")]; ok {
		return t, nil
	}
	if inner, ok := strings.CutPrefix(s, "UNKNOWN("); ok {
		s = strings.TrimSuffix(inner, ")")
	}
	s = strings.TrimPrefix(s, "TYPE_")
	n, err := strconv.ParseUint(strings.ToLower(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid section type %q", v)
	}
	return SectionType(n), nil
}

// ProgType is the numeric p_type code. Only PT_LOAD matters to the layout
// engine, the rest is carried for completeness.
type ProgType uint32

const (
	PTNull    ProgType = 0
	PTLoad    ProgType = 1
	PTDynamic ProgType = 2
	PTInterp  ProgType = 3
	PTNote    ProgType = 4
	PTPhdr    ProgType = 6
	PTTLS     ProgType = 7
)

func (t ProgType) String() string {
	switch t {
	case PTNull:
		return "PT_NULL"
	case PTLoad:
		return "PT_LOAD"
	case PTDynamic:
		return "PT_DYNAMIC"
	case PTInterp:
		return "PT_INTERP"
	case PTNote:
		return "PT_NOTE"
	case PTPhdr:
		return "PT_PHDR"
	case PTTLS:
		return "PT_TLS"
	}
	return fmt.Sprintf("PT_0x%x", uint32(t))
}
