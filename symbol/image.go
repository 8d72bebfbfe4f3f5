package symbol

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrSymbolNotFound is returned when no loaded image exports the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrNoLoadSegment is returned for ELF files without a PT_LOAD program header.
	ErrNoLoadSegment = errors.New("no PT_LOAD segment")

	// ErrNotRegularFile is returned for mapped paths such as device nodes.
	ErrNotRegularFile = errors.New("not a regular file")
)

// glibc and bionic mark IFUNC resolvers with the first OS-specific type.
const sttGnuIfunc = elf.STT_LOOS

// versymHidden marks a non-default symbol version (name@VER) in .gnu.version.
const versymHidden = 0x8000

var pageSize = uint64(os.Getpagesize())

// Symbol is an exported, defined dynamic symbol of an image.
type Symbol struct {
	Name  string
	Value uint64 // st_value, relative to the image's link-time addresses
	Size  uint64
	Type  elf.SymType
	Bind  elf.SymBind
}

// Image holds the parts of an ELF shared object needed to place its
// symbols in a process.
type Image struct {
	Path      string
	Type      elf.Type
	Machine   elf.Machine
	LoadVaddr uint64 // page-aligned p_vaddr of the first PT_LOAD
	Symbols   []Symbol
}

// OpenImage reads the dynamic symbol table of the ELF file at path. The file
// is only read, never mapped. Anything but a regular file is refused before
// it is opened.
func OpenImage(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return NewImage(f, path)
}

// NewImage parses an ELF image from r.
func NewImage(r io.ReaderAt, path string) (*Image, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer ef.Close()

	img := &Image{
		Path:    path,
		Type:    ef.Type,
		Machine: ef.Machine,
	}

	loadFound := false
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		img.LoadVaddr = prog.Vaddr &^ (pageSize - 1)
		loadFound = true
		break
	}
	if !loadFound {
		return nil, fmt.Errorf("%s: %w", path, ErrNoLoadSegment)
	}

	syms, err := ef.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("%s: reading .dynsym: %w", path, err)
	}

	versym, err := readVersym(ef)
	if err != nil {
		return nil, fmt.Errorf("%s: reading .gnu.version: %w", path, err)
	}

	// DynamicSymbols drops the null entry, so syms[i] is .dynsym index i+1.
	for i, s := range syms {
		if !isExported(s) || isCompatVersion(versym, i+1, ef.ByteOrder) {
			continue
		}
		img.Symbols = append(img.Symbols, Symbol{
			Name:  s.Name,
			Value: s.Value,
			Size:  s.Size,
			Type:  elf.ST_TYPE(s.Info),
			Bind:  elf.ST_BIND(s.Info),
		})
	}

	return img, nil
}

func readVersym(ef *elf.File) ([]byte, error) {
	sec := ef.SectionByType(elf.SHT_GNU_VERSYM)
	if sec == nil {
		return nil, nil
	}
	return sec.Data()
}

// isCompatVersion reports whether .dynsym entry index is a hidden version,
// which the dynamic linker never binds by name.
func isCompatVersion(versym []byte, index int, order binary.ByteOrder) bool {
	off := index * 2
	if off+2 > len(versym) {
		return false
	}
	return order.Uint16(versym[off:])&versymHidden != 0
}

func isExported(s elf.Symbol) bool {
	if s.Section == elf.SHN_UNDEF || s.Name == "" {
		return false
	}

	switch elf.ST_BIND(s.Info) {
	case elf.STB_GLOBAL, elf.STB_WEAK:
	default:
		return false
	}

	switch elf.ST_VISIBILITY(s.Other) {
	case elf.STV_HIDDEN, elf.STV_INTERNAL:
		return false
	}

	switch elf.ST_TYPE(s.Info) {
	case elf.STT_FUNC, elf.STT_OBJECT, sttGnuIfunc:
		return true
	}
	return false
}

// Lookup finds an exported symbol by its raw name, or by its demangled
// name when demangled is set. Global definitions win over weak ones.
func (img *Image) Lookup(name string, demangled bool) (Symbol, bool) {
	var weak *Symbol
	for i := range img.Symbols {
		s := &img.Symbols[i]
		if s.Name != name && (!demangled || Demangle(s.Name) != name) {
			continue
		}
		if s.Bind == elf.STB_GLOBAL {
			return *s, true
		}
		if weak == nil {
			weak = s
		}
	}
	if weak != nil {
		return *weak, true
	}
	return Symbol{}, false
}

// Address places sym in a process where the image's first mapping starts at base.
func (img *Image) Address(sym Symbol, base uint64) uint64 {
	if img.Type == elf.ET_EXEC {
		return sym.Value
	}
	return base - img.LoadVaddr + sym.Value
}

// ImageOpener opens ELF images by path.
type ImageOpener interface {
	OpenImage(path string) (*Image, error)
}

// FileImageOpener reads images from the local filesystem.
type FileImageOpener struct{}

func (FileImageOpener) OpenImage(path string) (*Image, error) {
	return OpenImage(path)
}
