//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"remsym/process"
)

// LinuxProcessFinder looks processes up in procfs
type LinuxProcessFinder struct {
	procRoot string
}

// NewProcessFinder creates a new LinuxProcessFinder
func NewProcessFinder() *LinuxProcessFinder {
	return &LinuxProcessFinder{procRoot: "/proc"}
}

// FindProcessByPID finds a process by its PID
func (f *LinuxProcessFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	procPath := filepath.Join(f.procRoot, strconv.Itoa(int(pid)))

	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("process with PID %d does not exist: %w", pid, process.ErrProcessNotFound)
	}

	return f.getProcessInfo(pid)
}

// FindProcessByName returns every process, other than the caller, whose comm
// or executable basename equals name (pidof semantics, case-sensitive).
func (f *LinuxProcessFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("empty process name")
	}

	entries, err := os.ReadDir(f.procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.procRoot, err)
	}

	selfPID := os.Getpid()
	var results []process.ProcessInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 || pid == selfPID {
			continue
		}

		info, err := f.getProcessInfo(process.ProcessID(pid))
		if err != nil {
			// Process may have terminated while we were reading
			continue
		}

		if info.Name == name || (info.Exe != "" && filepath.Base(info.Exe) == name) {
			results = append(results, *info)
		}
	}

	return results, nil
}

// FindPIDByName returns the lowest PID whose comm or executable basename is name.
func (f *LinuxProcessFinder) FindPIDByName(name string) (process.ProcessID, error) {
	processes, err := f.FindProcessByName(name)
	if err != nil {
		return 0, err
	}

	if len(processes) == 0 {
		return 0, fmt.Errorf("no process named '%s': %w", name, process.ErrProcessNotFound)
	}

	lowest := processes[0].PID
	for _, p := range processes[1:] {
		if p.PID < lowest {
			lowest = p.PID
		}
	}
	return lowest, nil
}

// ParsePID accepts either a decimal PID or a process name.
func (f *LinuxProcessFinder) ParsePID(arg string) (process.ProcessID, error) {
	if pid, err := strconv.Atoi(arg); err == nil {
		return process.ProcessID(pid), nil
	}
	return f.FindPIDByName(arg)
}

// getProcessInfo reads comm, exe and status of pid
func (f *LinuxProcessFinder) getProcessInfo(pid process.ProcessID) (*process.ProcessInfo, error) {
	procPath := filepath.Join(f.procRoot, strconv.Itoa(int(pid)))

	nameBytes, err := os.ReadFile(filepath.Join(procPath, "comm"))
	if err != nil {
		return nil, fmt.Errorf("failed to read process name: %w", err)
	}

	// May fail for kernel threads, zombies or other users' processes
	exe, _ := os.Readlink(filepath.Join(procPath, "exe"))

	info := &process.ProcessInfo{
		PID:  pid,
		Name: strings.TrimSpace(string(nameBytes)),
		Exe:  exe,
	}

	statusBytes, err := os.ReadFile(filepath.Join(procPath, "status"))
	if err != nil {
		return info, nil
	}
	parseStatus(string(statusBytes), info)

	return info, nil
}

func parseStatus(status string, info *process.ProcessInfo) {
	for _, line := range strings.Split(status, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) != "State" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) > 0 {
			info.State = process.ProcessState(value[0:1]) // First character is the state code
		}
	}
}
