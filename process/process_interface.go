package process

import (
	"remsym/process/memory_map"
)

// Process is the read-only view of a traced process
type Process interface {
	// GetPID returns the process ID
	GetPID() ProcessID

	// GetMemoryMap reads the current memory map of the process
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// Close releases the process
	Close() error
}
