//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"remsym/process"
	"remsym/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(
	pid process.ProcessID,
	remoteAddr process.ProcessMemoryAddress,
	bytesToRead process.ProcessMemorySize,
) ([]byte, error) {
	localBuf := make([]byte, bytesToRead)

	// Create iovec for local buffer
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(bytesToRead),
	}

	// Create iovec for remote buffer
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  int(bytesToRead),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return nil, fmt.Errorf("process_vm_readv failed: %s (errno: %d)", errno.Error(), errno)
	}

	if int(n) != int(bytesToRead) {
		return localBuf[:n], fmt.Errorf("partial read: %d of %d bytes", n, bytesToRead)
	}

	return localBuf, nil
}

// ptrace_peekdata reads word by word with PTRACE_PEEKDATA. It must run on the tracer thread.
func ptrace_peekdata(pid process.ProcessID, remoteAddr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	buf := make([]byte, size)
	n, err := unix.PtracePeekData(int(pid), uintptr(remoteAddr), buf)
	if err != nil {
		return nil, fmt.Errorf("PTRACE_PEEKDATA at %s: %w", remoteAddr, err)
	}
	if n != len(buf) {
		return buf[:n], fmt.Errorf("partial read: %d of %d bytes", n, size)
	}
	return buf, nil
}

// ReadMemory reads memory from the tracee. The whole range must lie in one
// readable mapping. process_vm_readv is tried first; kernels or sandboxes that
// refuse it fall back to PTRACE_PEEKDATA.
func (s *Session) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if s.State() != Attached {
		return nil, process.ErrProcessNotOpen
	}
	if size == 0 {
		return []byte{}, nil
	}

	mm, err := s.GetMemoryMap()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	region := memory_map.GetMemoryRegionForAddress(uint64(addr), mm)
	if region == nil || !region.IsReadable() || uint64(addr)+uint64(size) > region.End() {
		return nil, process.ErrAddressNotMapped
	}

	data, err := process_vm_readv(s.pid, addr, size)
	if err == nil {
		return data, nil
	}
	s.log.Debugln("process_vm_readv failed, falling back to PTRACE_PEEKDATA:", err)

	s.exec(func() {
		data, err = ptrace_peekdata(s.pid, addr, size)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read process memory: %w", err)
	}

	return data, nil
}
