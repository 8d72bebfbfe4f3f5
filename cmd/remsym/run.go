//go:build linux

package main

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"time"

	"remsym/config"
	"remsym/disasm"
	"remsym/hexdump"
	"remsym/process"
	"remsym/process/memory_map"
	"remsym/process_linux"
	"remsym/resolver"
	"remsym/symbol"

	flag "github.com/spf13/pflag"
)

const usageLine = "usage: remsym [flags] <pid|process-name> <module_path_or_hint>"

var defaultSymbols = []string{"dlopen", "dlsym", "mmap"}

type options struct {
	symbols     []string
	targetsFile string
	loose       bool
	wait        time.Duration
	dump        int
	disasm      int
	demangle    bool
	verbose     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	var opts options

	fs := flag.NewFlagSet("remsym", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}

	fs.StringArrayVarP(&opts.symbols, "symbol", "s", nil, "Symbol to resolve in every module (repeatable)")
	fs.StringVarP(&opts.targetsFile, "targets", "t", "", "YAML targets file")
	fs.BoolVar(&opts.loose, "loose", false, "Match modules by substring of the mapped path")
	fs.DurationVar(&opts.wait, "wait", 0, "Wait up to this long for the module to be mapped")
	fs.IntVar(&opts.dump, "dump", 0, "Hex dump this many bytes at each resolved address")
	fs.IntVar(&opts.disasm, "disasm", 0, "Disassemble this many instructions at each resolved address")
	fs.BoolVar(&opts.demangle, "demangle", false, "Also match symbols by their demangled name")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Print bases and offsets for resolved targets")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &opts, fs.Args(), nil
}

// buildTargets returns the targets to resolve and the locator candidates.
// Without a targets file or --symbol, the module hint, libc.so and linker64
// are each searched for dlopen, dlsym and mmap.
func buildTargets(opts *options, module string) ([]resolver.Target, []string, error) {
	candidates := symbol.DefaultCandidates

	if opts.targetsFile != "" {
		cfg, err := config.Load(opts.targetsFile)
		if err != nil {
			return nil, nil, err
		}
		if len(cfg.Candidates) > 0 {
			candidates = cfg.Candidates
		}
		return cfg.Targets, candidates, nil
	}

	if len(opts.symbols) > 0 {
		return resolver.CrossTargets([]string{module}, opts.symbols), candidates, nil
	}

	return resolver.CrossTargets([]string{module, "libc.so", "linker64"}, defaultSymbols), candidates, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, rest, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 1
	}
	if len(rest) != 2 {
		fmt.Fprintln(stderr, usageLine)
		return 1
	}

	pid, err := process_linux.NewProcessFinder().ParsePID(rest[0])
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	module := rest[1]

	targets, candidates, err := buildTargets(opts, module)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	mode := memory_map.MatchBasename
	if opts.loose {
		mode = memory_map.MatchSubstring
	}

	if opts.wait > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), opts.wait)
		_, err := process_linux.WaitForModule(ctx, pid, module, mode, process_linux.DefaultModuleWaitInterval).Result()
		cancel()
		if err != nil {
			fmt.Fprintf(stderr, "%s not mapped in %d after %s\n", module, pid, opts.wait)
		}
	}

	session, err := process_linux.Attach(pid)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	maps := memory_map.NewLinuxMemoryMap()
	locator := symbol.NewLocator(maps,
		symbol.WithCandidates(candidates),
		symbol.WithDemangledNames(opts.demangle),
	)
	r := resolver.New(maps, locator, mode)

	for _, target := range targets {
		result, err := r.ResolveTarget(pid, target)
		if err != nil {
			fmt.Fprintf(stdout, "%s not found in %s\n", target.Name(), target.Module)
			if opts.verbose {
				fmt.Fprintf(stdout, "  %v\n", err)
			}
			continue
		}
		printResult(stdout, result, opts)
		inspect(stdout, session, result.Address, result.Machine, opts)
	}

	if err := session.Detach(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func printResult(w io.Writer, result resolver.Result, opts *options) {
	fmt.Fprintf(w, "Found %s in %s -> remote address: %s\n", result.Target.Name(), result.Target.Module, result.Address)
	if !opts.verbose {
		return
	}
	fmt.Fprintf(w, "  remote base 0x%x offset 0x%x", result.RemoteBase, result.Offset)
	if result.Image != "" {
		fmt.Fprintf(w, " (local base 0x%x in %s)", result.LocalBase, result.Image)
	}
	fmt.Fprintln(w)
}

// inspect prints the requested dump and disassembly at addr. The read is
// clamped to the end of the mapping containing addr. Code is decoded for
// machine, or for the host when the image's machine is unknown.
func inspect(w io.Writer, p process.Process, addr process.ProcessMemoryAddress, machine elf.Machine, opts *options) {
	if opts.dump <= 0 && opts.disasm <= 0 {
		return
	}

	mm, err := p.GetMemoryMap()
	if err != nil {
		fmt.Fprintf(w, "  cannot read memory map: %v\n", err)
		return
	}
	region := memory_map.GetMemoryRegionForAddress(uint64(addr), mm)
	if region == nil {
		fmt.Fprintf(w, "  %s is not mapped\n", addr)
		return
	}
	available := region.End() - uint64(addr)

	read := func(n int) ([]byte, bool) {
		size := min(uint64(n), available)
		data, err := p.ReadMemory(addr, process.ProcessMemorySize(size))
		if err != nil {
			fmt.Fprintf(w, "  cannot read %d bytes at %s: %v\n", size, addr, err)
			return nil, false
		}
		return data, true
	}

	if opts.dump > 0 {
		if data, ok := read(opts.dump); ok {
			options := hexdump.DefaultOptions()
			options.StartAddress = uint64(addr)
			options.Annotate = hexdump.ModuleAnnotator(mm)
			hexdump.DumpToWriter(w, data, options)
		}
	}

	if opts.disasm > 0 {
		if machine == elf.EM_NONE {
			machine = disasm.HostMachine()
		}
		size, err := disasm.ReadSize(machine, opts.disasm)
		if err != nil {
			fmt.Fprintf(w, "  %v\n", err)
			return
		}
		if data, ok := read(size); ok {
			insts, err := disasm.Disassemble(machine, data, uint64(addr), opts.disasm)
			if err != nil {
				fmt.Fprintf(w, "  %v\n", err)
				return
			}
			disasm.Fprint(w, insts)
		}
	}
}
