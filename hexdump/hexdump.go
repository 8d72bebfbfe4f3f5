// Package hexdump renders memory read from a tracee as a hex dump, with
// 8-byte words that point into mapped modules annotated as module+offset.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"remsym/process/memory_map"
)

const wordSize = 8

// Annotator names the target of a pointer-sized value, if it has one.
type Annotator func(ptr uint64) (string, bool)

// Options controls the layout of a dump.
type Options struct {
	// BytesPerLine must be a multiple of 8; 16 when unset.
	BytesPerLine int

	// StartAddress is printed in the address column for the first byte.
	StartAddress uint64

	// MaxLines limits the output; 0 means no limit.
	MaxLines int

	// Annotate, when set, is consulted for every aligned 8-byte word.
	Annotate Annotator
}

// DefaultOptions returns 16 bytes per line, no annotation, starting at address 0.
func DefaultOptions() Options {
	return Options{BytesPerLine: 16}
}

// ModuleAnnotator returns an Annotator that maps pointers into file-backed
// mappings of mm to "<basename>+0x<offset from module base>".
func ModuleAnnotator(mm []memory_map.MemoryMapItem) Annotator {
	return func(ptr uint64) (string, bool) {
		path, base, ok := memory_map.FindModuleForAddress(ptr, mm)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%s+0x%x", memory_map.Basename(path), ptr-base), true
	}
}

// Dump returns the dump of data as a string.
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes one line per BytesPerLine bytes:
//
//	00007f1000001234  f3 0f 1e fa 55 48 89 e5  41 57 41 56 41 55 41 54  |....UH..AWAVAUAT|  -> libc.so+0x1234
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 || options.BytesPerLine%wordSize != 0 {
		options.BytesPerLine = 16
	}

	lines := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lines >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			return
		}

		end := min(offset+options.BytesPerLine, len(data))
		formatLine(writer, data[offset:end], options.StartAddress+uint64(offset), options)
		lines++
	}
}

func formatLine(writer io.Writer, data []byte, address uint64, options Options) {
	var line strings.Builder

	fmt.Fprintf(&line, "%016x ", address)

	for i := 0; i < options.BytesPerLine; i++ {
		if i%wordSize == 0 {
			line.WriteByte(' ')
		}
		if i < len(data) {
			fmt.Fprintf(&line, "%02x ", data[i])
		} else {
			line.WriteString("   ")
		}
	}

	line.WriteString(" |")
	for _, b := range data {
		if b >= 0x20 && b < 0x7f {
			line.WriteByte(b)
		} else {
			line.WriteByte('.')
		}
	}
	line.WriteByte('|')

	if options.Annotate != nil {
		var notes []string
		for i := 0; i+wordSize <= len(data); i += wordSize {
			if note, ok := options.Annotate(binary.LittleEndian.Uint64(data[i:])); ok {
				notes = append(notes, note)
			}
		}
		if len(notes) > 0 {
			line.WriteString("  -> ")
			line.WriteString(strings.Join(notes, ", "))
		}
	}

	fmt.Fprintln(writer, line.String())
}
