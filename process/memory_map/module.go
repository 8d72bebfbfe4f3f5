package memory_map

import (
	"fmt"
	"strings"
)

// MatchMode selects how a module name is compared against a mapping's path.
type MatchMode int

const (
	// MatchBasename compares the final path component of the mapping
	// against the final path component of the query, exactly.
	MatchBasename MatchMode = iota

	// MatchSubstring is the legacy loose mode: the query only has to occur
	// somewhere in the mapping's path. "lib.so" matches "otherlib.so".
	MatchSubstring
)

func (m MatchMode) String() string {
	switch m {
	case MatchBasename:
		return "basename"
	case MatchSubstring:
		return "substring"
	default:
		return fmt.Sprintf("MatchMode(%d)", int(m))
	}
}

// Basename returns the component after the last '/'. Paths without a
// separator (pseudo regions like "[vdso]") are returned unchanged.
func Basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Matches reports whether the mapping belongs to module under mode.
func (mmItem MemoryMapItem) Matches(module string, mode MatchMode) bool {
	if module == "" || mmItem.Path == "" {
		return false
	}

	switch mode {
	case MatchSubstring:
		return strings.Contains(mmItem.Path, module)
	default:
		return mmItem.Basename() == Basename(module)
	}
}

// FindModule returns the first mapping, in file order, that matches module.
func FindModule(memoryMap []MemoryMapItem, module string, mode MatchMode) (MemoryMapItem, bool) {
	for _, item := range memoryMap {
		if item.Matches(module, mode) {
			return item, true
		}
	}
	return MemoryMapItem{}, false
}

// FindModuleBase returns the start address of the first mapping of module.
// A module that is not mapped yields ok == false; 0 is a valid base.
func FindModuleBase(memoryMap []MemoryMapItem, module string, mode MatchMode) (base uint64, ok bool) {
	item, ok := FindModule(memoryMap, module, mode)
	if !ok {
		return 0, false
	}
	return item.Address, true
}

// ModulePaths returns the distinct file-backed paths in order of first appearance.
func ModulePaths(memoryMap []MemoryMapItem) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, item := range memoryMap {
		if !item.IsFileBacked() {
			continue
		}
		if _, ok := seen[item.Path]; ok {
			continue
		}
		seen[item.Path] = struct{}{}
		paths = append(paths, item.Path)
	}
	return paths
}
