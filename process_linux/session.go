//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"remsym/process"
	"remsym/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

var (
	// ErrAttach is returned when the target cannot be traced: no such PID,
	// insufficient privilege, or the process exited while attaching.
	ErrAttach = errors.New("attach failed")

	// ErrDetach is returned when the tracing relationship could not be released cleanly.
	ErrDetach = errors.New("detach failed")
)

// SessionState is the tracing state of a Session.
type SessionState int

const (
	Detached SessionState = iota
	Attached
)

func (s SessionState) String() string {
	switch s {
	case Attached:
		return "attached"
	default:
		return "detached"
	}
}

// Session owns the ptrace relationship with one process. Every ptrace
// request is issued from a single locked OS thread, as the kernel requires.
type Session struct {
	pid     process.ProcessID
	state   SessionState
	stopSig unix.Signal
	maps    *memory_map.LinuxMemoryMap
	log     *logger.Logger
	mu      sync.Mutex

	reqs chan func()
	done chan struct{}
}

// Attach stops pid under ptrace and returns once the stop has been observed.
func Attach(pid process.ProcessID) (*Session, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("%w: invalid pid %d", ErrAttach, pid)
	}

	info, err := NewProcessFinder().FindProcessByPID(pid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttach, err)
	}
	if !info.State.IsTraceable() {
		return nil, fmt.Errorf("%w: process %d is in state %s", ErrAttach, pid, info.State)
	}

	s := &Session{
		pid:  pid,
		maps: memory_map.NewLinuxMemoryMap(),
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("session-%d", pid))),
		reqs: make(chan func()),
		done: make(chan struct{}),
	}
	go s.tracer()

	var stopSig unix.Signal
	s.exec(func() {
		stopSig, err = ptraceAttach(int(pid))
	})
	if err != nil {
		s.stopTracer()
		return nil, fmt.Errorf("%w: pid %d: %w", ErrAttach, pid, err)
	}

	s.mu.Lock()
	s.state = Attached
	s.stopSig = stopSig
	s.mu.Unlock()

	s.log.Infoln("Attached to", info.Name, "stopped by", stopSig)

	return s, nil
}

// tracer runs ptrace requests on one OS thread. The thread is not unlocked:
// it exits with the goroutine.
func (s *Session) tracer() {
	runtime.LockOSThread()
	defer close(s.done)

	for fn := range s.reqs {
		fn()
	}
}

func (s *Session) exec(fn func()) {
	finished := make(chan struct{})
	s.reqs <- func() {
		defer close(finished)
		fn()
	}
	<-finished
}

func (s *Session) stopTracer() {
	close(s.reqs)
	<-s.done
}

func ptraceAttach(pid int) (unix.Signal, error) {
	if err := unix.PtraceAttach(pid); err != nil {
		return 0, err
	}

	for {
		var status unix.WaitStatus
		wpid, err := unix.Wait4(pid, &status, unix.WALL|unix.WUNTRACED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("wait4: %w", err)
		}
		if wpid != pid {
			continue
		}

		switch {
		case status.Exited():
			return 0, fmt.Errorf("process exited with status %d while attaching", status.ExitStatus())
		case status.Signaled():
			return 0, fmt.Errorf("process killed by %s while attaching", status.Signal())
		case status.Stopped():
			return status.StopSignal(), nil
		}
	}
}

// GetPID returns the process ID
func (s *Session) GetPID() process.ProcessID {
	return s.pid
}

// State returns the current tracing state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Detach releases the tracee. A stop signal other than the attach SIGSTOP is
// handed back to the process. The session is Detached afterwards even if
// the kernel reports an error; detaching twice is a no-op.
func (s *Session) Detach() error {
	s.mu.Lock()
	if s.state == Detached {
		s.mu.Unlock()
		return nil
	}
	s.state = Detached
	sig := s.stopSig
	s.mu.Unlock()

	if sig == unix.SIGSTOP {
		sig = 0
	}

	var err error
	s.exec(func() {
		err = ptraceDetach(int(s.pid), sig)
	})
	s.stopTracer()

	if err != nil {
		s.log.Warn("Detach failed: ", err)
		return fmt.Errorf("%w: pid %d: %w", ErrDetach, s.pid, err)
	}

	s.log.Infoln("Detached")
	return nil
}

// Close detaches from the process
func (s *Session) Close() error {
	return s.Detach()
}

func ptraceDetach(pid int, sig unix.Signal) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_DETACH, uintptr(pid), 0, uintptr(sig), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// GetMemoryMap reads the tracee's memory map; it is never cached.
func (s *Session) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	if s.State() != Attached {
		return nil, process.ErrProcessNotOpen
	}
	return s.maps.ReadMemoryMap(int(s.pid))
}

var _ process.Process = (*Session)(nil)
