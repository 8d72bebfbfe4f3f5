package process

import "strconv"

// ProcessID represents a unique identifier for a process
type ProcessID int

func (pid ProcessID) String() string {
	return strconv.Itoa(int(pid))
}

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID   ProcessID    // Process ID
	Name  string       // Process name from /proc/[pid]/comm
	Exe   string       // Path to the executable
	State ProcessState // Process state (R, S, D, Z, etc.)
}
