//go:build linux

package process_linux

import (
	"context"
	"time"

	"remsym/process"
	"remsym/process/memory_map"
)

const (
	// DefaultModuleWaitInterval is the delay between two reads of the target's map.
	DefaultModuleWaitInterval = 100 * time.Millisecond

	// DefaultModuleWaitTimeout bounds a wait when the caller supplies no deadline.
	DefaultModuleWaitTimeout = 30 * time.Second
)

// ModuleWait polls a process's memory map until a module shows up.
type ModuleWait struct {
	done chan struct{}
	base uint64
	err  error
}

// WaitForModule starts polling pid's map every interval until module is
// mapped or ctx ends. Without a deadline on ctx, DefaultModuleWaitTimeout applies.
func WaitForModule(ctx context.Context, pid process.ProcessID, module string, mode memory_map.MatchMode, interval time.Duration) *ModuleWait {
	if interval <= 0 {
		interval = DefaultModuleWaitInterval
	}

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, DefaultModuleWaitTimeout)
	}

	w := &ModuleWait{done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer cancel()
		w.base, w.err = pollModule(ctx, memory_map.NewLinuxMemoryMap(), int(pid), module, mode, interval)
	}()

	return w
}

func pollModule(ctx context.Context, mm memory_map.MemoryMap, pid int, module string, mode memory_map.MatchMode, interval time.Duration) (uint64, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if base, ok := mm.FindModuleBase(pid, module, mode); ok {
			return base, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Done is closed when the wait has finished.
func (w *ModuleWait) Done() <-chan struct{} {
	return w.done
}

// Result blocks until the wait has finished and returns the module base.
func (w *ModuleWait) Result() (uint64, error) {
	<-w.done
	return w.base, w.err
}
