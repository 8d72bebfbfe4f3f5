package memory_map

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// MaxLineLength is the longest maps line that is parsed. Longer lines are
// truncated by the reader and skipped.
const MaxLineLength = 512

// The kernel appends this to the path of a mapped file that was unlinked.
const deletedSuffix = " (deleted)"

// ParseMemoryMap parses lines of the form
//
//	<start>-<end> <perms> <offset> <dev> <inode> [path]
//
// and returns the regions in file order. Malformed and over-long lines are
// skipped.
func ParseMemoryMap(r io.Reader) ([]MemoryMapItem, error) {
	reader := bufio.NewReaderSize(r, MaxLineLength)

	var memoryMap []MemoryMapItem
	for {
		line, truncated, err := readLine(reader)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		if !truncated && line != "" {
			if item, ok := ParseMemoryMapLine(line); ok {
				memoryMap = append(memoryMap, item)
			}
		}

		if errors.Is(err, io.EOF) {
			return memoryMap, nil
		}
	}
}

// readLine reads one line. If the line does not fit in the reader's buffer
// the remainder is drained and truncated is set.
func readLine(reader *bufio.Reader) (line string, truncated bool, err error) {
	chunk, isPrefix, err := reader.ReadLine()
	if err != nil {
		return "", false, err
	}
	line = string(chunk)

	for isPrefix {
		truncated = true
		_, isPrefix, err = reader.ReadLine()
		if err != nil {
			return line, truncated, err
		}
	}

	return line, truncated, nil
}

// ParseMemoryMapLine parses a single maps line.
func ParseMemoryMapLine(line string) (MemoryMapItem, bool) {
	var fields [5]string
	rest := line
	for i := range fields {
		rest = strings.TrimLeft(rest, " \t")
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		fields[i] = rest[:end]
		rest = rest[end:]
	}

	// Parse address range (e.g., "00400000-0040b000")
	startStr, endStr, found := strings.Cut(fields[0], "-")
	if !found {
		return MemoryMapItem{}, false
	}

	startAddr, err := strconv.ParseUint(startStr, 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	endAddr, err := strconv.ParseUint(endStr, 16, 64)
	if err != nil || endAddr < startAddr {
		return MemoryMapItem{}, false
	}

	perms := fields[1]
	if len(perms) < 4 {
		return MemoryMapItem{}, false
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	if fields[3] == "" {
		return MemoryMapItem{}, false
	}

	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	path := strings.TrimSpace(rest)
	deleted := false
	if trimmed, ok := strings.CutSuffix(path, deletedSuffix); ok {
		path, deleted = trimmed, true
	}

	return MemoryMapItem{
		Address: startAddr,
		Size:    uint(endAddr - startAddr),
		Perms:   perms,
		Offset:  offset,
		Dev:     fields[3],
		Inode:   inode,
		Path:    path,
		Deleted: deleted,
	}, true
}
