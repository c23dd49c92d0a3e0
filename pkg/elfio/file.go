package elfio

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// ErrNotBinary is returned when the magic bytes do not denote an ELF image.
var ErrNotBinary = errors.New("not an ELF binary")

// MalformedError is returned when the magic matched but the section or
// program header tables could not be read.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed ELF %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IsMalformed reports whether err originates from a header parse failure.
func IsMalformed(err error) bool {
	var m *MalformedError
	return errors.As(err, &m)
}

// Section is one entry of the section header table.
type Section struct {
	Index  int
	Name   string
	Type   SectionType
	Size   uint64
	Addr   uint64
	Offset uint64
	Align  uint64
	Flags  SectionFlags
}

// IsNoBits reports whether the section occupies no bytes in the file.
func (s Section) IsNoBits() bool { return s.Type == SHTNoBits }

// Prog is one entry of the program header table.
type Prog struct {
	Index  int
	Type   ProgType
	Flags  SegmentFlags
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
}

// File is a snapshot of the headers of an ELF image. It does not keep the
// underlying reader open.
type File struct {
	Path    string
	Size    int64
	Class   elf.Class
	Data    binary.ByteOrder
	Machine elf.Machine
	Type    elf.Type

	Sections []Section
	Progs    []Prog
}

// LoadSize is the sum of p_memsz over the PT_LOAD segments.
func (f *File) LoadSize() uint64 {
	var total uint64
	for _, p := range f.Progs {
		if p.Type == PTLoad {
			total += p.Memsz
		}
	}
	return total
}

// Open sniffs and parses path on fsys.
func Open(fsys afero.Fs, path string) (*File, error) {
	r, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	st, err := r.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	format, err := Sniff(r)
	if err != nil {
		return nil, fmt.Errorf("read magic %s: %w", path, err)
	}
	if format != FormatELF {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotBinary, path, format)
	}
	f, err := NewFile(r, st.Size())
	if err != nil {
		if m, ok := err.(*MalformedError); ok {
			m.Path = path
		}
		return nil, err
	}
	f.Path = path
	return f, nil
}

// NewFile parses the header tables available through r. The caller is
// expected to have sniffed the magic already.
func NewFile(r io.ReaderAt, size int64) (f *File, err error) {
	defer func() {
		if p := recover(); p != nil {
			f, err = nil, &MalformedError{Err: fmt.Errorf("parser panic: %v", p)}
		}
	}()

	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, &MalformedError{Err: err}
	}
	defer ef.Close()

	f = &File{
		Size:     size,
		Class:    ef.Class,
		Data:     ef.ByteOrder,
		Machine:  ef.Machine,
		Type:     ef.Type,
		Sections: make([]Section, 0, len(ef.Sections)),
		Progs:    make([]Prog, 0, len(ef.Progs)),
	}
	for i, s := range ef.Sections {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("null%d", i)
		}
		f.Sections = append(f.Sections, Section{
			Index: i,
			Name:  name,
			Type:  SectionType(s.Type),
			// FileSize carries the raw sh_size, Size is rewritten for
			// compressed sections.
			Size:   s.FileSize,
			Addr:   s.Addr,
			Offset: s.Offset,
			Align:  s.Addralign,
			Flags:  SectionFlags(s.Flags),
		})
	}
	for i, p := range ef.Progs {
		f.Progs = append(f.Progs, Prog{
			Index:  i,
			Type:   ProgType(p.Type),
			Flags:  SegmentFlags(p.Flags),
			Off:    p.Off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Paddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
		})
	}
	return f, nil
}
