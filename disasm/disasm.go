// Package disasm decodes the first instructions at a resolved address.
package disasm

import (
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

var ErrUnsupportedMachine = errors.New("unsupported machine")

const (
	arm64InstLen  = 4
	x86MaxInstLen = 15
)

// Instruction is one decoded instruction. Undecodable bytes are kept with
// Text set to "(bad)".
type Instruction struct {
	Address uint64
	Bytes   []byte
	Text    string
}

func (i Instruction) String() string {
	return fmt.Sprintf("%016x  %-30s %s", i.Address, hex.EncodeToString(i.Bytes), i.Text)
}

// HostMachine is the ELF machine of the running binary.
func HostMachine() elf.Machine {
	switch runtime.GOARCH {
	case "arm64":
		return elf.EM_AARCH64
	case "amd64":
		return elf.EM_X86_64
	case "386":
		return elf.EM_386
	}
	return elf.EM_NONE
}

// ReadSize is the number of bytes that always covers n instructions.
func ReadSize(machine elf.Machine, n int) (int, error) {
	switch machine {
	case elf.EM_AARCH64:
		return n * arm64InstLen, nil
	case elf.EM_X86_64, elf.EM_386:
		return n * x86MaxInstLen, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedMachine, machine)
}

// Disassemble decodes up to n instructions from code, which was read at pc.
func Disassemble(machine elf.Machine, code []byte, pc uint64, n int) ([]Instruction, error) {
	switch machine {
	case elf.EM_AARCH64:
		return decodeARM64(code, pc, n), nil
	case elf.EM_X86_64:
		return decodeX86(code, pc, n, 64), nil
	case elf.EM_386:
		return decodeX86(code, pc, n, 32), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMachine, machine)
}

func decodeARM64(code []byte, pc uint64, n int) []Instruction {
	var out []Instruction
	for off := 0; off+arm64InstLen <= len(code) && len(out) < n; off += arm64InstLen {
		raw := code[off : off+arm64InstLen]
		text := "(bad)"
		if inst, err := arm64asm.Decode(raw); err == nil {
			text = arm64asm.GNUSyntax(inst)
		}
		out = append(out, Instruction{Address: pc + uint64(off), Bytes: raw, Text: text})
	}
	return out
}

func decodeX86(code []byte, pc uint64, n int, mode int) []Instruction {
	var out []Instruction
	for off := 0; off < len(code) && len(out) < n; {
		addr := pc + uint64(off)
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil || inst.Len == 0 {
			out = append(out, Instruction{Address: addr, Bytes: code[off : off+1], Text: "(bad)"})
			off++
			continue
		}
		out = append(out, Instruction{
			Address: addr,
			Bytes:   code[off : off+inst.Len],
			Text:    x86asm.GNUSyntax(inst, addr, nil),
		})
		off += inst.Len
	}
	return out
}

// Fprint writes one instruction per line.
func Fprint(w io.Writer, insts []Instruction) {
	for _, inst := range insts {
		fmt.Fprintln(w, inst.String())
	}
}
