package memory_map

import (
	"fmt"
	"sort"
	"strings"
)

// SelfPID selects the calling process in ReadMemoryMap.
const SelfPID = 0

// MemoryMapItem represents one line of a process's memory map
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 // Offset into the backing file
	Dev     string // Device major:minor
	Inode   uint64 // Inode of the backing file, 0 for anonymous regions
	Path    string // Backing file path, pseudo name ("[stack]") or empty
	Deleted bool   // The backing file was unlinked after being mapped
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

// End returns the first address past the region.
func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return isReadablePerms(mmItem.Perms)
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return isWritablePerms(mmItem.Perms)
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return isExecutablePerms(mmItem.Perms)
}

// IsFileBacked reports whether the region maps a file on disk.
func (mmItem MemoryMapItem) IsFileBacked() bool {
	return strings.HasPrefix(mmItem.Path, "/")
}

// Basename returns the final path component of the backing path.
func (mmItem MemoryMapItem) Basename() string {
	return Basename(mmItem.Path)
}

// MemoryMap defines the interface for operations related to a process's memory map
type MemoryMap interface {
	// ReadMemoryMap reads and parses the memory map for a process
	ReadMemoryMap(pid int) ([]MemoryMapItem, error)

	// FindModuleBase returns the base of the first mapping of module, or false if it is not mapped
	FindModuleBase(pid int, module string, mode MatchMode) (uint64, bool)
}

func isReadablePerms(perms string) bool {
	return len(perms) > 0 && perms[0] == 'r'
}

func isWritablePerms(perms string) bool {
	return len(perms) > 1 && perms[1] == 'w'
}

func isExecutablePerms(perms string) bool {
	return len(perms) > 2 && perms[2] == 'x'
}

// Helper functions for working with memory maps

// IsValidAddressSorted returns the region containing addr in a memory map
// sorted by address, or nil if addr is unmapped
func IsValidAddressSorted(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// GetMemoryRegionForAddress returns the memory region containing an address
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	for i := range memoryMap {
		if addr >= memoryMap[i].Address && addr < memoryMap[i].End() {
			return &memoryMap[i]
		}
	}
	return nil
}

// FindModuleForAddress returns the file-backed module containing addr and
// the module's base, i.e. the first mapping of the same path. memoryMap must
// be sorted by address, as ReadMemoryMap returns it.
func FindModuleForAddress(addr uint64, memoryMap []MemoryMapItem) (path string, base uint64, ok bool) {
	region := IsValidAddressSorted(addr, memoryMap)
	if region == nil || !region.IsFileBacked() {
		return "", 0, false
	}
	for _, item := range memoryMap {
		if item.Path == region.Path {
			return item.Path, item.Address, true
		}
	}
	return "", 0, false
}
