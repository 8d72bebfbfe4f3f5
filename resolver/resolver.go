// Package resolver projects symbols of the calling process into the address
// space of another process that has the same build of a module mapped.
//
// The projection assumes that the module's layout is identical in both
// processes. If the target runs a different build, the resolver returns a
// wrong address, not an error; it has no way to notice.
package resolver

import (
	"debug/elf"
	"errors"
	"fmt"

	"remsym/process"
	"remsym/process/memory_map"
	"remsym/symbol"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("not found")

// Step identifies the resolution step that failed.
type Step string

const (
	StepRemoteModule Step = "remote-module"
	StepLocalModule  Step = "local-module"
	StepSymbol       Step = "symbol"
)

// NotFoundError reports a (module, symbol) pair that could not be resolved.
type NotFoundError struct {
	Target Target
	Step   Step
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in %s (%s)", e.Target.Name(), e.Target.Module, e.Step)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// MapReader reads the memory map of a process; pid memory_map.SelfPID
// selects the caller.
type MapReader interface {
	ReadMemoryMap(pid int) ([]memory_map.MemoryMapItem, error)
}

// SymbolLocator resolves a symbol in the calling process.
type SymbolLocator interface {
	Lookup(name string) (symbol.Address, error)
}

// Result is a resolved target.
type Result struct {
	Target      Target
	RemoteBase  uint64
	LocalBase   uint64 // zero for offset targets
	LocalSymbol uint64 // zero for offset targets
	Offset      uint64
	Image       string      // image the local symbol was read from
	Machine     elf.Machine // EM_NONE for offset targets
	Address     process.ProcessMemoryAddress
}

// Project maps a local symbol address into the remote process:
// remoteBase + (localSymbol - localBase), wrapping like unsigned C arithmetic.
func Project(remoteBase, localBase, localSymbol uint64) uint64 {
	return remoteBase + Offset(localSymbol, localBase)
}

// Offset returns the symbol's offset from its module base.
func Offset(localSymbol, localBase uint64) uint64 {
	return localSymbol - localBase
}

// Resolver combines the caller's and the target's memory maps with a local
// symbol lookup. It keeps no state between calls.
type Resolver struct {
	maps    MapReader
	symbols SymbolLocator
	mode    memory_map.MatchMode
	log     *logger.Logger
}

// New creates a Resolver that identifies modules using mode.
func New(maps MapReader, symbols SymbolLocator, mode memory_map.MatchMode) *Resolver {
	return &Resolver{
		maps:    maps,
		symbols: symbols,
		mode:    mode,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "resolver")),
	}
}

// Resolve returns the address of symbol in module as mapped by pid.
func (r *Resolver) Resolve(pid process.ProcessID, module, symbolName string) (Result, error) {
	return r.ResolveTarget(pid, SymbolTarget(module, symbolName))
}

// ResolveTarget resolves one target. Offset targets only need the remote base.
func (r *Resolver) ResolveTarget(pid process.ProcessID, target Target) (Result, error) {
	if err := target.Validate(); err != nil {
		return Result{}, err
	}

	remoteBase, err := r.moduleBase(int(pid), target.Module)
	if err != nil {
		return Result{}, &NotFoundError{Target: target, Step: StepRemoteModule, Err: err}
	}

	if target.Offset != nil {
		return Result{
			Target:     target,
			RemoteBase: remoteBase,
			Offset:     *target.Offset,
			Address:    process.ProcessMemoryAddress(remoteBase + *target.Offset),
		}, nil
	}

	localBase, err := r.moduleBase(memory_map.SelfPID, target.Module)
	if err != nil {
		return Result{}, &NotFoundError{Target: target, Step: StepLocalModule, Err: err}
	}

	local, err := r.symbols.Lookup(target.Symbol)
	if err != nil {
		return Result{}, &NotFoundError{Target: target, Step: StepSymbol, Err: err}
	}

	result := Result{
		Target:      target,
		RemoteBase:  remoteBase,
		LocalBase:   localBase,
		LocalSymbol: local.Value,
		Offset:      Offset(local.Value, localBase),
		Image:       local.Image,
		Machine:     local.Machine,
		Address:     process.ProcessMemoryAddress(Project(remoteBase, localBase, local.Value)),
	}

	if memory_map.Basename(local.Image) != memory_map.Basename(target.Module) {
		r.log.Debugln("Symbol", target.Symbol, "was found in", local.Image, "not in", target.Module)
	}

	return result, nil
}

// ResolveAll resolves every target in order. errs[i] is nil when results[i] is valid.
func (r *Resolver) ResolveAll(pid process.ProcessID, targets []Target) (results []Result, errs []error) {
	results = make([]Result, len(targets))
	errs = make([]error, len(targets))
	for i, target := range targets {
		results[i], errs[i] = r.ResolveTarget(pid, target)
	}
	return results, errs
}

// moduleBase reads a fresh map; an unreadable map counts as an absent module.
func (r *Resolver) moduleBase(pid int, module string) (uint64, error) {
	memoryMap, err := r.maps.ReadMemoryMap(pid)
	if err != nil {
		r.log.Debugln("Cannot read memory map of", pidName(pid), err)
		return 0, err
	}

	base, ok := memory_map.FindModuleBase(memoryMap, module, r.mode)
	if !ok {
		return 0, fmt.Errorf("%s is not mapped in %s", module, pidName(pid))
	}
	return base, nil
}

func pidName(pid int) string {
	if pid == memory_map.SelfPID {
		return "self"
	}
	return fmt.Sprintf("process %d", pid)
}
