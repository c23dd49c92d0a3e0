package elfio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Format is the container format detected from the leading magic bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatMachO
	FormatPE
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "mach-o"
	case FormatPE:
		return "pe"
	default:
		return "unknown"
	}
}

var (
	magicELF = []byte("\x7fELF")
	magicPE  = []byte("MZ")

	magicMachO = [][]byte{
		{0xcf, 0xfa, 0xed, 0xfe}, // MH_MAGIC_64, little endian
		{0xfe, 0xed, 0xfa, 0xcf}, // MH_CIGAM_64
		{0xfe, 0xed, 0xfa, 0xce}, // MH_CIGAM
		{0xce, 0xfa, 0xed, 0xfe}, // MH_MAGIC
	}
)

// Sniff inspects the first bytes of r. Files shorter than a magic are
// reported as FormatUnknown without an error.
func Sniff(r io.ReaderAt) (Format, error) {
	var buf [4]byte
	n, err := r.ReadAt(buf[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	head := buf[:n]
	switch {
	case bytes.HasPrefix(head, magicELF):
		return FormatELF, nil
	case bytes.HasPrefix(head, magicPE):
		return FormatPE, nil
	}
	for _, m := range magicMachO {
		if bytes.Equal(head, m) {
			return FormatMachO, nil
		}
	}
	return FormatUnknown, nil
}

// SniffFile opens path on fsys and sniffs its format.
func SniffFile(fsys afero.Fs, path string) (Format, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	format, err := Sniff(f)
	if err != nil {
		return FormatUnknown, fmt.Errorf("read magic %s: %w", path, err)
	}
	return format, nil
}
