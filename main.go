package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lookbusy1344/arm-emulator/config"
	"github.com/lookbusy1344/arm-emulator/loader"
	"github.com/lookbusy1344/arm-emulator/stdlib"
	"github.com/lookbusy1344/arm-emulator/vm"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"     // Version number (set by git tag at build time)
	Commit  = "unknown" // Git commit hash
	Date    = "unknown" // Build date
)

func main() {
	// Command-line flags
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		maxCycles   = flag.Uint64("max-cycles", 1000000, "Maximum CPU cycles before halt")
		stackSize   = flag.Uint("stack-size", vm.StackSegmentSize, "Stack size in bytes")
		entryPoint  = flag.String("entry", "", "Override entry point address (hex or decimal); defaults to the ELF header's entry point")
		verboseMode = flag.Bool("verbose", false, "Verbose output")
		fsRoot      = flag.String("fsroot", "", "Restrict file operations to this directory (default: current directory)")
		noStdlib    = flag.Bool("no-stdlib-hooks", false, "Do not install the stdlib hook pack over unresolved dynamic imports")

		// Tracing and statistics flags
		enableTrace    = flag.Bool("trace", false, "Enable execution trace")
		traceFile      = flag.String("trace-file", "", "Trace output file (default: trace.log in log dir)")
		traceFilter    = flag.String("trace-filter", "", "Filter trace by registers (comma-separated, e.g., R0,R1,PC)")
		enableMemTrace = flag.Bool("mem-trace", false, "Enable memory access trace")
		memTraceFile   = flag.String("mem-trace-file", "", "Memory trace output file (default: memtrace.log)")
		enableStats    = flag.Bool("stats", false, "Enable performance statistics")
		statsFile      = flag.String("stats-file", "", "Statistics output file (default: stats.json)")
		statsFormat    = flag.String("stats-format", "json", "Statistics format (json, csv, html)")

		// Additional diagnostic modes (Phase 11)
		enableCoverage      = flag.Bool("coverage", false, "Enable code coverage tracking")
		coverageFile        = flag.String("coverage-file", "", "Coverage output file (default: coverage.txt)")
		coverageFormat      = flag.String("coverage-format", "text", "Coverage format (text, json)")
		enableStackTrace    = flag.Bool("stack-trace", false, "Enable stack operation tracing")
		stackTraceFile      = flag.String("stack-trace-file", "", "Stack trace output file (default: stack_trace.txt)")
		stackTraceFormat    = flag.String("stack-trace-format", "text", "Stack trace format (text, json)")
		stackGuard          = flag.Bool("stack-guard", false, "Halt execution if stack overflows into heap segment")
		enableFlagTrace     = flag.Bool("flag-trace", false, "Enable CPSR flag change tracing")
		flagTraceFile       = flag.String("flag-trace-file", "", "Flag trace output file (default: flag_trace.txt)")
		flagTraceFormat     = flag.String("flag-trace-format", "text", "Flag trace format (text, json)")
		enableRegisterTrace = flag.Bool("register-trace", false, "Enable register access pattern tracing")
		registerTraceFile   = flag.String("register-trace-file", "", "Register trace output file (default: register_trace.txt)")
		registerTraceFormat = flag.String("register-trace-format", "text", "Register trace format (text, json)")

		// Symbol dump options
		dumpSymbols = flag.Bool("dump-symbols", false, "Dump symbol table and exit")
		symbolsFile = flag.String("symbols-file", "", "Symbol dump output file (default: stdout)")
	)

	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("ARMv5 Emulator %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		if Date != "unknown" {
			fmt.Printf("Built: %s\n", Date)
		}
		os.Exit(0)
	}

	// Show help
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// Require an ELF binary for emulator mode
	if flag.NArg() == 0 {
		printHelp()
		os.Exit(0)
	}

	elfFile := flag.Arg(0)
	if _, err := os.Stat(elfFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found: %s\n", elfFile)
		os.Exit(1)
	}

	if *verboseMode {
		fmt.Printf("Loading ELF binary: %s\n", elfFile)
	}

	// Create VM instance
	machine := vm.NewVM()
	machine.CycleLimit = *maxCycles
	machine.Hooks = vm.NewHookTable()

	// Configure filesystem root for sandboxing
	filesystemRoot := *fsRoot
	if filesystemRoot == "" {
		// Default to current working directory
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting current directory: %v\n", err)
			os.Exit(1)
		}
		filesystemRoot = cwd
	}
	// Convert to absolute path
	absRoot, err := filepath.Abs(filesystemRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving filesystem root path: %v\n", err)
		os.Exit(1)
	}
	machine.FilesystemRoot = absRoot

	if *verboseMode {
		fmt.Printf("Filesystem root: %s\n", absRoot)
	}

	// Initialize stack
	// Validate stack size to prevent integer overflow
	const maxStackSize = vm.StackSegmentSize // SetSP rejects an SP above the fixed-size stack segment
	if *stackSize > maxStackSize {
		fmt.Fprintf(os.Stderr, "Error: stack size %d exceeds maximum allowed %d\n", *stackSize, maxStackSize)
		os.Exit(1)
	}
	stackTop := uint32(vm.StackSegmentStart + *stackSize) // #nosec G115 -- Safe: validated maxStackSize ensures no overflow
	machine.InitializeStack(stackTop)

	// Load the ELF binary: maps PT_LOAD segments, resolves PT_DYNAMIC's
	// imported symbols, and reports the ELF header's entry point.
	result, err := loader.LoadELF(machine, elfFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ELF binary: %v\n", err)
		os.Exit(1)
	}

	// An explicit -entry overrides the ELF header's own entry point.
	if *entryPoint != "" {
		var entryAddr uint32
		if _, err := fmt.Sscanf(*entryPoint, "0x%x", &entryAddr); err != nil {
			if _, err := fmt.Sscanf(*entryPoint, "%d", &entryAddr); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid entry point: %s\n", *entryPoint)
				os.Exit(1)
			}
		}
		machine.EntryPoint = entryAddr
		machine.CPU.PC = entryAddr
		machine.CPU.NextPC = entryAddr
		result.EntryPoint = entryAddr
	}

	// Bind unresolved dynamic imports to the stdlib hook pack, unless the
	// caller asked to leave their original instruction words unpatched.
	if !*noStdlib && len(result.UndefinedImport) > 0 {
		imports := make(map[string]uint32, len(result.UndefinedImport))
		for _, sym := range result.UndefinedImport {
			imports[sym.Name] = sym.Value
		}
		pack := stdlib.NewPack()
		if err := pack.Register(machine, imports); err != nil {
			fmt.Fprintf(os.Stderr, "Error registering stdlib hooks: %v\n", err)
			os.Exit(1)
		}
		if *verboseMode {
			fmt.Printf("Stdlib hooks installed over %d imported symbol(s)\n", len(imports))
		}
	}

	symbols := result.DebugSymbols

	if *verboseMode {
		fmt.Printf("Entry point: 0x%08X\n", result.EntryPoint)
		fmt.Printf("Stack: 0x%08X - 0x%08X (%d bytes)\n",
			vm.StackSegmentStart, stackTop, *stackSize)
		fmt.Printf("Debug symbols: %d\n", len(symbols))
		fmt.Printf("Unresolved imports: %d\n", len(result.UndefinedImport))
	}

	// Handle symbol dump if requested
	if *dumpSymbols {
		if err := dumpSymbolTable(symbols, result.UndefinedImport, *symbolsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error dumping symbols: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Setup tracing and statistics (Phase 10)
	if *enableTrace {
		// Determine trace file path
		tracePath := *traceFile
		if tracePath == "" {
			tracePath = filepath.Join(config.GetLogPath(), "trace.log")
		}

		traceWriter, err := os.Create(tracePath) // #nosec G304 -- user-specified trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := traceWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close trace file: %v\n", err)
			}
		}()

		machine.ExecutionTrace = vm.NewExecutionTrace(traceWriter)
		machine.ExecutionTrace.LoadSymbols(symbols)
		machine.ExecutionTrace.Start()

		// Apply filter if specified
		if *traceFilter != "" {
			regs := strings.Split(*traceFilter, ",")
			machine.ExecutionTrace.SetFilterRegisters(regs)
		}

		if *verboseMode {
			fmt.Printf("Execution trace enabled: %s\n", tracePath)
		}
	}

	if *enableMemTrace {
		// Determine memory trace file path
		memTracePath := *memTraceFile
		if memTracePath == "" {
			memTracePath = filepath.Join(config.GetLogPath(), "memtrace.log")
		}

		memTraceWriter, err := os.Create(memTracePath) // #nosec G304 -- user-specified memory trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory trace file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := memTraceWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close memory trace file: %v\n", err)
			}
		}()

		machine.MemoryTrace = vm.NewMemoryTrace(memTraceWriter)
		machine.MemoryTrace.LoadSymbols(symbols)
		machine.MemoryTrace.Start()

		if *verboseMode {
			fmt.Printf("Memory trace enabled: %s\n", memTracePath)
		}
	}

	if *enableStats {
		machine.Statistics = vm.NewPerformanceStatistics()
		machine.Statistics.Start()

		if *verboseMode {
			fmt.Println("Performance statistics enabled")
		}
	}

	// Setup additional diagnostic modes (Phase 11)
	if *enableCoverage {
		// Determine coverage file path
		covPath := *coverageFile
		if covPath == "" {
			ext := "txt"
			if *coverageFormat == "json" {
				ext = "json"
			}
			covPath = filepath.Join(config.GetLogPath(), "coverage."+ext)
		}

		covWriter, err := os.Create(covPath) // #nosec G304 -- user-specified coverage output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating coverage file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := covWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close coverage file: %v\n", err)
			}
		}()

		machine.CodeCoverage = vm.NewCodeCoverage(covWriter)
		// No fixed code range: an ELF binary's PT_LOAD segments can land
		// anywhere, so coverage tracks every executed address.
		machine.CodeCoverage.LoadSymbols(symbols)
		machine.CodeCoverage.Start()

		if *verboseMode {
			fmt.Printf("Code coverage enabled: %s\n", covPath)
		}
	}

	// Stack guard requires stack trace (even without output file)
	if *enableStackTrace || *stackGuard {
		var stWriter *os.File
		var stPath string

		if *enableStackTrace {
			// Determine stack trace file path
			stPath = *stackTraceFile
			if stPath == "" {
				ext := "txt"
				if *stackTraceFormat == "json" {
					ext = "json"
				}
				stPath = filepath.Join(config.GetLogPath(), "stack_trace."+ext)
			}

			var err error
			stWriter, err = os.Create(stPath) // #nosec G304 -- user-specified stack trace output path
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating stack trace file: %v\n", err)
				os.Exit(1)
			}
			defer func() {
				if err := stWriter.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close stack trace file: %v\n", err)
				}
			}()
		}

		machine.StackTrace = vm.NewStackTrace(stWriter, stackTop, vm.StackSegmentStart)
		machine.StackTrace.LoadSymbols(symbols)
		machine.StackTrace.Start(stackTop)

		// Enable halt on overflow if stack guard is enabled
		if *stackGuard {
			machine.StackTrace.HaltOnOverflow = true
			if *verboseMode {
				fmt.Println("Stack guard enabled: execution will halt if SP enters heap segment")
			}
		}

		if *verboseMode && *enableStackTrace {
			fmt.Printf("Stack trace enabled: %s\n", stPath)
		}
	}

	if *enableFlagTrace {
		// Determine flag trace file path
		ftPath := *flagTraceFile
		if ftPath == "" {
			ext := "txt"
			if *flagTraceFormat == "json" {
				ext = "json"
			}
			ftPath = filepath.Join(config.GetLogPath(), "flag_trace."+ext)
		}

		ftWriter, err := os.Create(ftPath) // #nosec G304 -- user-specified flag trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating flag trace file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := ftWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close flag trace file: %v\n", err)
			}
		}()

		machine.FlagTrace = vm.NewFlagTrace(ftWriter)
		machine.FlagTrace.LoadSymbols(symbols)
		machine.FlagTrace.Start(machine.CPU.CPSR)

		if *verboseMode {
			fmt.Printf("Flag trace enabled: %s\n", ftPath)
		}
	}

	if *enableRegisterTrace {
		// Determine register trace file path
		rtPath := *registerTraceFile
		if rtPath == "" {
			ext := "txt"
			if *registerTraceFormat == "json" {
				ext = "json"
			}
			rtPath = filepath.Join(config.GetLogPath(), "register_trace."+ext)
		}

		rtWriter, err := os.Create(rtPath) // #nosec G304 -- user-specified register trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating register trace file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := rtWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close register trace file: %v\n", err)
			}
		}()

		machine.RegisterTrace = vm.NewRegisterTrace(rtWriter)
		machine.RegisterTrace.LoadSymbols(symbols)
		machine.RegisterTrace.Start()

		if *verboseMode {
			fmt.Printf("Register trace enabled: %s\n", rtPath)
		}
	}

	// Direct execution: run to completion, the emulator's only mode now
	// that the interactive debugger surface has been retired.
	if *verboseMode {
		fmt.Println("\nStarting execution...")
		fmt.Println("----------------------------------------")
	}

	machine.State = vm.StateRunning
	for machine.State == vm.StateRunning {
		if err := machine.Step(); err != nil {
			if machine.State == vm.StateHalted {
				// Normal exit
				break
			}
			fmt.Fprintf(os.Stderr, "\nRuntime error at PC=0x%08X: %v\n", machine.CPU.PC, err)
			os.Exit(1)
		}
	}

	if *verboseMode {
		fmt.Println("\n----------------------------------------")
		fmt.Println("Execution complete")
		fmt.Printf("Exit code: %d\n", machine.ExitCode)
		fmt.Printf("CPU cycles: %d\n", machine.CPU.Cycles)
		fmt.Printf("Instructions executed: %d\n", len(machine.InstructionLog))
	}

	// Flush traces and export statistics (Phase 10)
	if machine.ExecutionTrace != nil {
		if err := machine.ExecutionTrace.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "Error flushing execution trace: %v\n", err)
		}
		if *verboseMode {
			fmt.Printf("Execution trace written (%d entries)\n", len(machine.ExecutionTrace.GetEntries()))
		}
	}

		if machine.MemoryTrace != nil {
		if err := machine.MemoryTrace.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "Error flushing memory trace: %v\n", err)
		}
		if *verboseMode {
			fmt.Printf("Memory trace written (%d entries)\n", len(machine.MemoryTrace.GetEntries()))
		}
	}

	if machine.Statistics != nil {
		// Determine stats file path
		statPath := *statsFile
		if statPath == "" {
			ext := "json"
			if *statsFormat == "csv" {
				ext = "csv"
			} else if *statsFormat == "html" {
				ext = "html"
			}
			statPath = filepath.Join(config.GetLogPath(), "stats."+ext)
		}

		statsWriter, err := os.Create(statPath) // #nosec G304 -- user-specified stats output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating statistics file: %v\n", err)
		} else {
			defer func() {
				if err := statsWriter.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close statistics file: %v\n", err)
				}
			}()

			switch *statsFormat {
			case "json":
				err = machine.Statistics.ExportJSON(statsWriter)
			case "csv":
				err = machine.Statistics.ExportCSV(statsWriter)
			case "html":
				err = machine.Statistics.ExportHTML(statsWriter)
			default:
				err = machine.Statistics.ExportJSON(statsWriter)
			}

			if err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting statistics: %v\n", err)
			} else if *verboseMode {
				fmt.Printf("Statistics exported: %s\n", statPath)
			}
		}

		// Also print summary if verbose
		if *verboseMode {
			fmt.Println()
			fmt.Println(machine.Statistics.String())
		}
	}

	// Flush additional diagnostic modes (Phase 11)
	if machine.CodeCoverage != nil {
		switch *coverageFormat {
		case "json":
			err := machine.CodeCoverage.ExportJSON(machine.CodeCoverage.Writer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting coverage: %v\n", err)
			}
		default:
			err := machine.CodeCoverage.Flush()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing coverage: %v\n", err)
			}
		}
		if *verboseMode {
			fmt.Println()
			fmt.Println(machine.CodeCoverage.String())
		}
	}

	if machine.StackTrace != nil {
		switch *stackTraceFormat {
		case "json":
			err := machine.StackTrace.ExportJSON(machine.StackTrace.Writer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting stack trace: %v\n", err)
			}
		default:
			err := machine.StackTrace.Flush()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing stack trace: %v\n", err)
			}
		}
		if *verboseMode {
			fmt.Println()
			fmt.Println(machine.StackTrace.String())
		}
	}

	if machine.FlagTrace != nil {
		switch *flagTraceFormat {
		case "json":
			err := machine.FlagTrace.ExportJSON(machine.FlagTrace.Writer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting flag trace: %v\n", err)
			}
		default:
			err := machine.FlagTrace.Flush()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing flag trace: %v\n", err)
			}
		}
		if *verboseMode {
			fmt.Println()
			fmt.Println(machine.FlagTrace.String())
		}
	}

	if machine.RegisterTrace != nil {
		switch *registerTraceFormat {
		case "json":
			err := machine.RegisterTrace.ExportJSON(machine.RegisterTrace.Writer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting register trace: %v\n", err)
			}
		default:
			err := machine.RegisterTrace.Flush()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing register trace: %v\n", err)
			}
		}
		if *verboseMode {
			fmt.Println()
			fmt.Println(machine.RegisterTrace.String())
		}
	}

	os.Exit(int(machine.ExitCode))
}

func printHelp() {
	fmt.Printf(`ARMv5 Emulator %s

Usage: arm-emulator [options] <elf-file>

Options:
  -help              Show this help message
  -version           Show version information
  -max-cycles N      Set maximum CPU cycles (default: 1000000)
  -stack-size N      Set stack size in bytes (default: %d)
  -entry ADDR        Override entry point address (default: ELF header's entry point)
  -verbose           Enable verbose output
  -fsroot DIR        Restrict file operations to directory (default: current directory)
  -no-stdlib-hooks   Do not bind unresolved dynamic imports to the stdlib hook pack

Symbol Options:
  -dump-symbols      Dump symbol table and exit
  -symbols-file FILE Symbol dump output file (default: stdout)

Tracing & Performance Options:
  -trace             Enable execution trace
  -trace-file FILE   Trace output file (default: trace.log in log dir)
  -trace-filter REGS Filter trace by registers (e.g., R0,R1,PC)
  -mem-trace         Enable memory access trace
  -mem-trace-file F  Memory trace file (default: memtrace.log)
  -stats             Enable performance statistics
  -stats-file FILE   Statistics output file (default: stats.json)
  -stats-format FMT  Statistics format: json, csv, html (default: json)

Diagnostic Modes:
  -coverage          Enable code coverage tracking
  -coverage-file F   Coverage output file (default: coverage.txt)
  -coverage-format   Coverage format: text, json (default: text)
  -stack-trace       Enable stack operation tracing
  -stack-trace-file  Stack trace file (default: stack_trace.txt)
  -stack-trace-format Stack trace format: text, json (default: text)
  -stack-guard       Halt execution if stack overflows into heap segment
  -flag-trace        Enable CPSR flag change tracing
  -flag-trace-file   Flag trace file (default: flag_trace.txt)
  -flag-trace-format Flag trace format: text, json (default: text)
  -register-trace    Enable register access pattern tracing
  -register-trace-file Register trace file (default: register_trace.txt)
  -register-trace-format Register trace format: text, json (default: text)

Examples:
  # Run an ELF binary directly
  arm-emulator hello.elf

  # Run with custom settings
  arm-emulator -max-cycles 5000000 -entry 0x10000 program.elf

  # Run with execution trace
  arm-emulator -trace -trace-filter "R0,R1,PC" factorial.elf

  # Run with performance statistics
  arm-emulator -stats -stats-format html program.elf

  # Run with all monitoring enabled
  arm-emulator -trace -mem-trace -stats -verbose program.elf

  # Run with code coverage
  arm-emulator -coverage -verbose program.elf

  # Run with stack trace to debug stack issues
  arm-emulator -stack-trace program.elf

  # Run with flag trace to debug conditional logic
  arm-emulator -flag-trace program.elf

  # Run with register trace to analyze register usage patterns
  arm-emulator -register-trace program.elf

  # Combine multiple diagnostic modes
  arm-emulator -coverage -stack-trace -flag-trace -register-trace program.elf

  # Dump symbol table
  arm-emulator -dump-symbols program.elf
  arm-emulator -dump-symbols -symbols-file symbols.txt program.elf

  # Restrict file operations to a specific directory
  arm-emulator -fsroot /tmp/sandbox program.elf
  arm-emulator -fsroot ./test_data program.elf
`, Version, vm.StackSegmentSize)
}

// dumpSymbolTable outputs the ELF's debug symbols and unresolved dynamic
// imports in a readable format.
func dumpSymbolTable(symbols map[string]uint32, undefined []loader.Symbol, filename string) error {
	var writer *os.File
	var err error

	if filename == "" {
		writer = os.Stdout
	} else {
		writer, err = os.Create(filename) // #nosec G304 -- user-specified symbol output path
		if err != nil {
			return fmt.Errorf("failed to create symbol file: %w", err)
		}
		defer func() {
			if cerr := writer.Close(); cerr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close symbol file: %v\n", cerr)
			}
		}()
	}

	if len(symbols) == 0 && len(undefined) == 0 {
		_, _ = fmt.Fprintln(writer, "No symbols defined")
		return nil
	}

	_, _ = fmt.Fprintln(writer, "Debug Symbol Table")
	_, _ = fmt.Fprintln(writer, "==================")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "%-40s %s\n", "Name", "Address")
	_, _ = fmt.Fprintln(writer, "--------------------------------------------------------------------------------")

	type entry struct {
		name  string
		value uint32
	}
	entries := make([]entry, 0, len(symbols))
	for name, value := range symbols {
		entries = append(entries, entry{name, value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value < entries[j].value })

	for _, e := range entries {
		_, _ = fmt.Fprintf(writer, "%-40s 0x%08X\n", e.name, e.value)
	}

	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "Total debug symbols: %d\n", len(symbols))

	if len(undefined) > 0 {
		_, _ = fmt.Fprintln(writer)
		_, _ = fmt.Fprintln(writer, "Unresolved Dynamic Imports")
		_, _ = fmt.Fprintln(writer, "===========================")
		_, _ = fmt.Fprintln(writer)
		for _, sym := range undefined {
			_, _ = fmt.Fprintf(writer, "%-40s 0x%08X\n", sym.Name, sym.Value)
		}
		_, _ = fmt.Fprintf(writer, "\nTotal unresolved imports: %d\n", len(undefined))
	}

	return nil
}
