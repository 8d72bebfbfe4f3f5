package symbol

import (
	"debug/elf"
	"fmt"
	"strings"

	"remsym/fallback"
	"remsym/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// DefaultCandidates are searched after the process-wide lookup, in order.
// The first four are the Android C runtime and dynamic linker; the rest
// cover glibc systems.
var DefaultCandidates = []string{
	"/system/lib64/libc.so",
	"/apex/com.android.runtime/lib64/bionic/libc.so",
	"/system/bin/linker64",
	"/apex/com.android.runtime/bin/linker64",
	"/lib/x86_64-linux-gnu/libc.so.6",
	"/lib/aarch64-linux-gnu/libc.so.6",
	"/lib64/ld-linux-x86-64.so.2",
	"/lib/ld-linux-aarch64.so.1",
}

// MapSource reads the memory map of the calling process.
type MapSource interface {
	ReadSelfMemoryMap() ([]memory_map.MemoryMapItem, error)
}

// Address is a symbol placed in the calling process.
type Address struct {
	Value   uint64 // absolute address in the calling process
	Image   string // path the symbol was read from
	Base    uint64 // base of the image in the calling process
	Machine elf.Machine
	Symbol  Symbol
}

// Locator resolves symbols in the calling process's own address space from
// images that are already mapped. It never loads a module.
type Locator struct {
	maps       MapSource
	images     ImageOpener
	candidates []string
	demangled  bool
	log        *logger.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithImageOpener replaces the filesystem ELF reader.
func WithImageOpener(opener ImageOpener) Option {
	return func(l *Locator) {
		l.images = opener
	}
}

// WithCandidates replaces DefaultCandidates.
func WithCandidates(candidates []string) Option {
	return func(l *Locator) {
		l.candidates = append([]string(nil), candidates...)
	}
}

// WithDemangledNames also matches symbols by their demangled name.
func WithDemangledNames(enabled bool) Option {
	return func(l *Locator) {
		l.demangled = enabled
	}
}

// NewLocator creates a Locator reading the caller's map from maps.
func NewLocator(maps MapSource, options ...Option) *Locator {
	l := &Locator{
		maps:       maps,
		images:     FileImageOpener{},
		candidates: DefaultCandidates,
		log:        logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "symbol-locator")),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Lookup resolves name to an address in the calling process.
//
// The process-wide pass searches every mapped image except the dynamic
// linker, in approximate load order (see loadOrder). The fallback pass
// walks the candidate paths; a candidate is only considered if an image
// with the same basename is already mapped, and its symbols are placed at
// that image's base.
func (l *Locator) Lookup(name string) (Address, error) {
	memoryMap, err := l.maps.ReadSelfMemoryMap()
	if err != nil {
		l.log.Debugln("Cannot read own memory map:", err)
		return Address{}, fmt.Errorf("%s: %w", name, ErrSymbolNotFound)
	}

	var global []string
	for _, path := range memory_map.ModulePaths(memoryMap) {
		if !isDynamicLinker(path) {
			global = append(global, path)
		}
	}

	addr, _, ok := fallback.FirstMatch(loadOrder(global), func(path string) (Address, bool) {
		base, _ := firstMappingOf(memoryMap, path)
		return l.lookupIn(path, base, name)
	})
	if ok {
		return addr, nil
	}

	addr, _, ok = fallback.FirstMatch(l.candidates, func(candidate string) (Address, bool) {
		base, mapped := memory_map.FindModuleBase(memoryMap, candidate, memory_map.MatchBasename)
		if !mapped {
			return Address{}, false
		}
		return l.lookupIn(candidate, base, name)
	})
	if ok {
		return addr, nil
	}

	return Address{}, fmt.Errorf("%s: %w", name, ErrSymbolNotFound)
}

func (l *Locator) lookupIn(path string, base uint64, name string) (Address, bool) {
	img, err := l.images.OpenImage(path)
	if err != nil {
		l.log.Debugln("Skipping image", path, err)
		return Address{}, false
	}

	sym, ok := img.Lookup(name, l.demangled)
	if !ok {
		return Address{}, false
	}

	return Address{
		Value:   img.Address(sym, base),
		Image:   path,
		Base:    base,
		Machine: img.Machine,
		Symbol:  sym,
	}, true
}

// loadOrder approximates the dlsym(RTLD_DEFAULT) search order from map
// order: the executable (lowest mapping) first, then the libraries from the
// highest address down, as the loader maps each library below the last.
func loadOrder(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	ordered := make([]string, 0, len(paths))
	ordered = append(ordered, paths[0])
	for i := len(paths) - 1; i > 0; i-- {
		ordered = append(ordered, paths[i])
	}
	return ordered
}

func firstMappingOf(memoryMap []memory_map.MemoryMapItem, path string) (uint64, bool) {
	for _, item := range memoryMap {
		if item.Path == path {
			return item.Address, true
		}
	}
	return 0, false
}

// isDynamicLinker reports whether path names the program interpreter,
// whose symbols are not part of the global lookup scope.
func isDynamicLinker(path string) bool {
	name := memory_map.Basename(path)
	return strings.HasPrefix(name, "linker") || strings.HasPrefix(name, "ld-linux") || strings.HasPrefix(name, "ld-musl")
}
