//go:build linux && cgo

package main

// Symbol targets are looked up in images mapped into this process, so libc
// and the dynamic linker have to be here.

// #cgo LDFLAGS: -ldl
import "C"
