package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

// String formats the address the way resolution results are printed.
func (pma ProcessMemoryAddress) String() string {
	return fmt.Sprintf("0x%x", uint64(pma))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint
