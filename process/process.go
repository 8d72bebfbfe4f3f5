// Package process provides the types shared by the process inspection packages
package process

import "errors"

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an attached process is attempted
	// before the process has been attached or after it has been detached.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrProcessNotFound is returned when no process matches a PID or name.
	ErrProcessNotFound = errors.New("process not found")
)
