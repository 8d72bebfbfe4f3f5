//go:build linux

package memory_map

import (
	"fmt"
	"os"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// LinuxMemoryMap implements MemoryMap for Linux
type LinuxMemoryMap struct {
	log *logger.Logger
}

// NewLinuxMemoryMap creates a new LinuxMemoryMap instance
func NewLinuxMemoryMap() *LinuxMemoryMap {
	return &LinuxMemoryMap{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "memory-map")),
	}
}

func mapsPath(pid int) string {
	if pid == SelfPID {
		return "/proc/self/maps"
	}
	return fmt.Sprintf("/proc/%d/maps", pid)
}

// ReadMemoryMap reads and parses the memory map for a process from /proc/[pid]/maps.
// The mappings are read fresh on every call.
func (l *LinuxMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	file, err := os.Open(mapsPath(pid))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	memoryMap, err := ParseMemoryMap(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", mapsPath(pid), err)
	}

	return memoryMap, nil
}

// ReadSelfMemoryMap reads the memory map of the calling process
func (l *LinuxMemoryMap) ReadSelfMemoryMap() ([]MemoryMapItem, error) {
	return l.ReadMemoryMap(SelfPID)
}

// FindModuleBase reads the map of pid and returns the base of module.
// An unreadable map is reported as not found.
func (l *LinuxMemoryMap) FindModuleBase(pid int, module string, mode MatchMode) (uint64, bool) {
	memoryMap, err := l.ReadMemoryMap(pid)
	if err != nil {
		l.log.Debugln("Cannot read", mapsPath(pid), err)
		return 0, false
	}

	return FindModuleBase(memoryMap, module, mode)
}

var _ MemoryMap = (*LinuxMemoryMap)(nil)
