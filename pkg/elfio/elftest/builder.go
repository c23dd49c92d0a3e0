// Package elftest builds small, valid ELF64 images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"path"

	"github.com/spf13/afero"
)

const (
	headerSize  = 64
	progSize    = 56
	sectionSize = 64
)

type Section struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Addr  uint64
	Size  uint64
	// Offset places the section content at a fixed file offset. Zero lets
	// the builder pick the next free position.
	Offset uint64
	Align  uint64
}

type Prog struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
}

type Image struct {
	Type     elf.Type
	Machine  elf.Machine
	Progs    []Prog
	Sections []Section
}

// Text, Data and BSS are the usual suspects, laid out in two PT_LOAD
// segments: R|X at 0x1000 and R|W at 0x4000.
func Simple(textSize, dataSize, bssSize uint64) Image {
	return Image{
		Progs: []Prog{
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Off: 0x1000, Vaddr: 0x1000, Filesz: 0x2000, Memsz: 0x2000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Off: 0x4000, Vaddr: 0x4000, Filesz: 0x1000, Memsz: 0x2000},
		},
		Sections: []Section{
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x1000, Offset: 0x1000, Size: textSize},
			{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x4000, Offset: 0x4000, Size: dataSize},
			{Name: ".bss", Type: elf.SHT_NOBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x5000, Offset: 0x5000, Size: bssSize},
			{Name: ".comment", Type: elf.SHT_PROGBITS, Size: 0x10},
		},
	}
}

// Bytes encodes the image as a little endian ELF64 file.
func (img Image) Bytes() []byte {
	var (
		phoff = uint64(headerSize)
		next  = phoff + uint64(len(img.Progs))*progSize
		names = []byte{0}
	)
	offsets := make([]uint64, len(img.Sections))
	nameIdx := make([]uint32, len(img.Sections))
	end := next
	for i, s := range img.Sections {
		nameIdx[i] = uint32(len(names))
		names = append(append(names, s.Name...), 0)
		switch {
		case s.Offset != 0:
			offsets[i] = s.Offset
		case s.Type == elf.SHT_NOBITS:
			offsets[i] = next
		default:
			offsets[i] = next
			next += s.Size
		}
		if s.Type != elf.SHT_NOBITS && offsets[i]+s.Size > end {
			end = offsets[i] + s.Size
		}
	}
	for _, p := range img.Progs {
		if p.Off+p.Filesz > end {
			end = p.Off + p.Filesz
		}
	}
	if next > end {
		end = next
	}
	shstrName := uint32(len(names))
	names = append(append(names, ".shstrtab"...), 0)
	shstrOff := end
	shoff := align8(shstrOff + uint64(len(names)))
	shnum := len(img.Sections) + 2

	buf := make([]byte, shoff+uint64(shnum)*sectionSize)
	typ, machine := img.Type, img.Machine
	if typ == 0 {
		typ = elf.ET_DYN
	}
	if machine == 0 {
		machine = elf.EM_X86_64
	}
	hdr := elf.Header64{
		Type:      uint16(typ),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    headerSize,
		Phentsize: progSize,
		Phnum:     uint16(len(img.Progs)),
		Shentsize: sectionSize,
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shnum - 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	put(buf, 0, &hdr)

	for i, p := range img.Progs {
		put(buf, phoff+uint64(i)*progSize, &elf.Prog64{
			Type:   uint32(p.Type),
			Flags:  uint32(p.Flags),
			Off:    p.Off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Paddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Align:  0x1000,
		})
	}

	copy(buf[shstrOff:], names)
	// index 0 stays SHT_NULL
	for i, s := range img.Sections {
		put(buf, shoff+uint64(i+1)*sectionSize, &elf.Section64{
			Name:      nameIdx[i],
			Type:      uint32(s.Type),
			Flags:     uint64(s.Flags),
			Addr:      s.Addr,
			Off:       offsets[i],
			Size:      s.Size,
			Addralign: s.Align,
		})
	}
	put(buf, shoff+uint64(shnum-1)*sectionSize, &elf.Section64{
		Name:      shstrName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       shstrOff,
		Size:      uint64(len(names)),
		Addralign: 1,
	})
	return buf
}

// Reader returns the encoded image behind an io.ReaderAt.
func (img Image) Reader() *bytes.Reader { return bytes.NewReader(img.Bytes()) }

// WriteFile writes the image to name on fsys, creating parent directories.
func (img Image) WriteFile(fsys afero.Fs, name string) error {
	if err := fsys.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fsys, name, img.Bytes(), 0o755)
}

func put(buf []byte, off uint64, v any) {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	copy(buf[off:], b.Bytes())
}

func align8(v uint64) uint64 { return (v + 7) &^ 7 }
