// Package elftest builds small ELF64 shared objects for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Sym describes one .dynsym entry.
type Sym struct {
	Name    string
	Value   uint64
	Size    uint64
	Type    elf.SymType
	Bind    elf.SymBind
	Hidden  bool
	Defined bool
	Compat  bool // non-default version (name@VER), hidden bit set in .gnu.version
}

// Func is a defined global function symbol.
func Func(name string, value uint64) Sym {
	return Sym{Name: name, Value: value, Size: 0x10, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Defined: true}
}

// Options control the generated file.
type Options struct {
	Type      elf.Type    // ET_DYN when zero
	Machine   elf.Machine // EM_AARCH64 when zero
	LoadVaddr uint64      // p_vaddr of the single PT_LOAD
	NoLoad    bool        // omit the program header
	Versioned bool        // emit .gnu.version
}

const (
	versymDefault = 2
	versymHidden  = 0x8000
)

// Build returns the bytes of an ELF64 little-endian file whose .dynsym
// holds syms.
func Build(opts Options, syms ...Sym) []byte {
	if opts.Type == elf.ET_NONE {
		opts.Type = elf.ET_DYN
	}
	if opts.Machine == elf.EM_NONE {
		opts.Machine = elf.EM_AARCH64
	}

	const (
		ehdrSize = 64
		phdrSize = 56
		shdrSize = 64
		symSize  = 24
	)

	phnum := uint16(1)
	if opts.NoLoad {
		phnum = 0
	}

	dynstr := []byte{0}
	nameOff := make([]uint32, len(syms))
	for i, s := range syms {
		nameOff[i] = uint32(len(dynstr))
		dynstr = append(dynstr, s.Name...)
		dynstr = append(dynstr, 0)
	}

	var dynsym bytes.Buffer
	binary.Write(&dynsym, binary.LittleEndian, elf.Sym64{})
	for i, s := range syms {
		shndx := uint16(elf.SHN_UNDEF)
		if s.Defined {
			shndx = 1
		}
		other := uint8(elf.STV_DEFAULT)
		if s.Hidden {
			other = uint8(elf.STV_HIDDEN)
		}
		binary.Write(&dynsym, binary.LittleEndian, elf.Sym64{
			Name:  nameOff[i],
			Info:  elf.ST_INFO(s.Bind, s.Type),
			Other: other,
			Shndx: shndx,
			Value: s.Value,
			Size:  s.Size,
		})
	}

	var versym bytes.Buffer
	if opts.Versioned {
		binary.Write(&versym, binary.LittleEndian, uint16(0))
		for _, s := range syms {
			v := uint16(versymDefault)
			if s.Compat {
				v |= versymHidden
			}
			binary.Write(&versym, binary.LittleEndian, v)
		}
	}

	shstrtab := []byte("\x00.dynstr\x00.dynsym\x00.shstrtab\x00.gnu.version\x00")
	const (
		nameDynstr   = 1
		nameDynsym   = 9
		nameShstrtab = 17
		nameVersym   = 27
	)

	shnum := uint16(4)
	if opts.Versioned {
		shnum = 5
	}

	dynstrOff := uint64(ehdrSize + int(phnum)*phdrSize)
	dynsymOff := align8(dynstrOff + uint64(len(dynstr)))
	versymOff := dynsymOff + uint64(dynsym.Len())
	shstrOff := versymOff + uint64(versym.Len())
	shOff := align8(shstrOff + uint64(len(shstrtab)))
	total := shOff + uint64(shnum)*shdrSize

	var out bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(opts.Type),
		Machine:   uint16(opts.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     ehdrSize,
		Shoff:     shOff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     phnum,
		Shentsize: shdrSize,
		Shnum:     shnum,
		Shstrndx:  3,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&out, binary.LittleEndian, hdr)

	if !opts.NoLoad {
		binary.Write(&out, binary.LittleEndian, elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_X),
			Off:    0,
			Vaddr:  opts.LoadVaddr,
			Paddr:  opts.LoadVaddr,
			Filesz: total,
			Memsz:  total,
			Align:  0x1000,
		})
	}

	out.Write(dynstr)
	pad(&out, dynsymOff)
	out.Write(dynsym.Bytes())
	out.Write(versym.Bytes())
	out.Write(shstrtab)
	pad(&out, shOff)

	sections := []elf.Section64{
		{},
		{Name: nameDynstr, Type: uint32(elf.SHT_STRTAB), Flags: uint64(elf.SHF_ALLOC), Addr: opts.LoadVaddr + dynstrOff, Off: dynstrOff, Size: uint64(len(dynstr)), Addralign: 1},
		{Name: nameDynsym, Type: uint32(elf.SHT_DYNSYM), Flags: uint64(elf.SHF_ALLOC), Addr: opts.LoadVaddr + dynsymOff, Off: dynsymOff, Size: uint64(dynsym.Len()), Link: 1, Info: 1, Addralign: 8, Entsize: symSize},
		{Name: nameShstrtab, Type: uint32(elf.SHT_STRTAB), Off: shstrOff, Size: uint64(len(shstrtab)), Addralign: 1},
	}
	if opts.Versioned {
		sections = append(sections, elf.Section64{Name: nameVersym, Type: uint32(elf.SHT_GNU_VERSYM), Flags: uint64(elf.SHF_ALLOC), Addr: opts.LoadVaddr + versymOff, Off: versymOff, Size: uint64(versym.Len()), Link: 2, Addralign: 2, Entsize: 2})
	}
	for _, s := range sections {
		binary.Write(&out, binary.LittleEndian, s)
	}

	return out.Bytes()
}

func align8(v uint64) uint64 {
	return (v + 7) &^ 7
}

func pad(buf *bytes.Buffer, to uint64) {
	for uint64(buf.Len()) < to {
		buf.WriteByte(0)
	}
}
