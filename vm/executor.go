package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ExecutionMode represents the execution mode of the VM
type ExecutionMode int

const (
	ModeRun      ExecutionMode = iota // Run until halt or breakpoint
	ModeStep                          // Execute single instruction
	ModeStepOver                      // Execute until next instruction at same call level
	ModeStepInto                      // Execute single instruction, following branches
)

// ExecutionState represents the current state of execution
type ExecutionState int

const (
	StateRunning ExecutionState = iota
	StateHalted
	StateBreakpoint
	StateError
)

// Instruction represents a decoded ARM instruction
type Instruction struct {
	Address   uint32
	Opcode    uint32
	Type      InstructionType
	Condition ConditionCode
	SetFlags  bool // S bit
	// Operands will be added as we implement instructions
}

// InstructionType represents the type of instruction
type InstructionType int

const (
	InstUnknown InstructionType = iota
	InstDataProcessing
	InstMultiply
	InstLongMultiply
	InstSwap
	InstDoubleTransfer
	InstBitfieldExtract
	InstExtend
	InstLoadStore
	InstLoadStoreMultiple
	InstBranch
	InstBranchExchange
	InstSWI
	InstPSRTransfer
)

// VM represents the complete virtual machine
type VM struct {
	CPU    *CPU
	Memory *Memory
	State  ExecutionState
	Mode   ExecutionMode

	// Execution limits and statistics
	MaxCycles      uint64
	CycleLimit     uint64
	InstructionLog []uint32 // History of executed instruction addresses

	// Error handling
	LastError error

	// Runtime environment
	EntryPoint       uint32
	StackTop         uint32 // Initial stack pointer value for reset
	ProgramArguments []string
	ExitCode         int32

	// FilesystemRoot sandboxes guest file syscalls (open/stat and similar)
	// to this host directory; empty means no filesystem access is allowed.
	FilesystemRoot string

	// I/O redirection (for TUI and testing)
	OutputWriter io.Writer // Writer for program output (defaults to os.Stdout)

	// Tracing and statistics (Phase 10)
	ExecutionTrace *ExecutionTrace
	MemoryTrace    *MemoryTrace
	Statistics     *PerformanceStatistics

	// Additional diagnostic modes (Phase 11)
	CodeCoverage  *CodeCoverage
	StackTrace    *StackTrace
	FlagTrace     *FlagTrace
	RegisterTrace *RegisterTrace

	// File descriptor table (simple)
	files []*os.File
	fdMu  sync.Mutex

	// Per-instance stdin reader to avoid race conditions when multiple VMs
	// run concurrently. Previously this was a global variable shared across
	// all VM instances, causing data corruption during parallel execution.
	stdinReader *bufio.Reader

	// Last memory write address for GUI highlighting
	LastMemoryWrite uint32
	HasMemoryWrite  bool

	// Hooks is the SWI-immediate hook table used to dispatch trapped
	// instructions (imported symbols, the stdlib pack). Nil in bare CPU
	// tests that never install any hooks.
	Hooks *HookTable

	// Watchpoints holds any installed watchpoints; nil unless a caller
	// installs a WatchpointSet.
	Watchpoints *WatchpointSet
}

// NewVM creates a new virtual machine instance
func NewVM() *VM {
	return &VM{
		CPU:              NewCPU(),
		Memory:           NewMemory(),
		State:            StateHalted,
		Mode:             ModeRun,
		MaxCycles:        DefaultMaxCycles, // Default 1M instruction limit
		CycleLimit:       0,
		InstructionLog:   make([]uint32, 0, DefaultLogCapacity),
		EntryPoint:       CodeSegmentStart,
		ProgramArguments: make([]string, 0),
		ExitCode:         0,
		OutputWriter:     os.Stdout,                            // Default to stdout
		files:            make([]*os.File, DefaultFDTableSize), // Will be lazily initialized to stdin/stdout/stderr
		stdinReader:      bufio.NewReader(os.Stdin),            // Per-instance stdin reader
	}
}

// Reset resets the VM to initial state
func (vm *VM) Reset() {
	vm.CPU.Reset()
	vm.Memory.Reset()
	vm.State = StateHalted
	vm.InstructionLog = vm.InstructionLog[:0]
	vm.LastError = nil
}

// ResetRegisters resets only CPU registers and state, preserving memory contents
// This is useful for debugger operations that need to restart execution without
// losing the loaded program
func (vm *VM) ResetRegisters() {
	vm.CPU.Reset()
	// Restore PC to entry point after reset
	vm.CPU.PC = vm.EntryPoint
	// Restore stack pointer to initial value
	if vm.StackTop != 0 {
		vm.CPU.SetSP(vm.StackTop)
	}
	vm.State = StateHalted
	vm.InstructionLog = vm.InstructionLog[:0]
	vm.LastError = nil
}

// LoadProgram loads program bytes into code memory. This is a bootstrap
// write: the code segment is deliberately read/execute-only at runtime, so
// loading bypasses that permission check the same way the ELF loader's
// initial segment population does.
func (vm *VM) LoadProgram(data []byte, startAddress uint32) error {
	if err := vm.Memory.LoadBytesUnsafe(startAddress, data); err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}

	vm.CPU.PC = startAddress
	vm.State = StateHalted
	return nil
}

// SetEntryPoint sets the program counter to the entry point
func (vm *VM) SetEntryPoint(address uint32) {
	vm.CPU.PC = address
}

// InitializeStack initializes the stack pointer
func (vm *VM) InitializeStack(stackTop uint32) {
	vm.StackTop = stackTop
	vm.CPU.SetSP(stackTop)
}

// Step executes a single instruction. Following the original source's
// arm32_cpu_run convention, fetch latches NextPC into PC and advances NextPC
// by one word BEFORE the instruction runs; branch-family executors then
// overwrite NextPC directly so the following Step lands on the new target
// rather than the address the latch would otherwise have produced.
func (vm *VM) Step() error {
	if vm.State == StateError {
		return fmt.Errorf("VM is in error state: %w", vm.LastError)
	}

	// Check cycle limit
	if vm.CycleLimit > 0 && vm.CPU.Cycles >= vm.CycleLimit {
		vm.State = StateError
		vm.LastError = fmt.Errorf("cycle limit exceeded (%d cycles)", vm.CycleLimit)
		return vm.LastError
	}

	// Check execute permission for current PC
	if err := vm.Memory.CheckExecutePermission(vm.CPU.PC); err != nil {
		vm.State = StateError
		vm.LastError = err
		return err
	}

	// Log instruction address
	vm.InstructionLog = append(vm.InstructionLog, vm.CPU.PC)

	// Fetch instruction: latch NextPC into PC, advance NextPC past it.
	instruction, err := vm.Fetch()
	if err != nil {
		vm.State = StateError
		vm.LastError = fmt.Errorf("fetch failed at PC=0x%08X: %w", vm.CPU.PC, err)
		return vm.LastError
	}
	vm.CPU.PC = vm.CPU.NextPC
	vm.CPU.NextPC += 4

	// Decode instruction
	decoded, err := vm.Decode(instruction)
	if err != nil {
		vm.State = StateError
		vm.LastError = fmt.Errorf("decode failed at PC=0x%08X: %w", vm.CPU.PC, err)
		return vm.LastError
	}
	decoded.Address = vm.CPU.PC

	var preFired []*Watchpoint
	if vm.Watchpoints != nil {
		preFired = vm.Watchpoints.TestPre(vm, decoded.Opcode)
	}

	// Check condition code
	if !vm.CPU.CPSR.EvaluateCondition(decoded.Condition) {
		vm.CPU.IncrementCycles(1)
		if vm.Watchpoints != nil {
			vm.Watchpoints.TestPost(vm, decoded.Opcode)
		}
		if len(preFired) > 0 {
			vm.State = StateBreakpoint
		}
		return nil
	}

	// Snapshot registers before execution for register trace
	var regsBefore [16]uint32
	if vm.RegisterTrace != nil && vm.RegisterTrace.Enabled {
		copy(regsBefore[:15], vm.CPU.R[:])
		regsBefore[15] = vm.CPU.PC
	}

	// Execute instruction
	if err := vm.Execute(decoded); err != nil {
		vm.handleExecuteError(decoded, err)
		return err
	}

	vm.CPU.IncrementCycles(1)

	currentPC := decoded.Address

	if vm.CodeCoverage != nil {
		vm.CodeCoverage.RecordExecution(currentPC, vm.CPU.Cycles)
	}

	if vm.FlagTrace != nil {
		instName := fmt.Sprintf("0x%08X", decoded.Opcode)
		vm.FlagTrace.RecordFlags(vm.CPU.Cycles, currentPC, instName, vm.CPU.CPSR)
	}

	if vm.RegisterTrace != nil && vm.RegisterTrace.Enabled {
		for i := 0; i < 15; i++ {
			if vm.CPU.R[i] != regsBefore[i] {
				vm.RegisterTrace.RecordWrite(vm.CPU.Cycles, currentPC, getRegisterName(i), regsBefore[i], vm.CPU.R[i])
			}
		}
		if vm.CPU.PC != regsBefore[15] {
			vm.RegisterTrace.RecordWrite(vm.CPU.Cycles, currentPC, "PC", regsBefore[15], vm.CPU.PC)
		}
	}

	var postFired []*Watchpoint
	if vm.Watchpoints != nil {
		postFired = vm.Watchpoints.TestPost(vm, decoded.Opcode)
	}
	if len(preFired) > 0 || len(postFired) > 0 {
		vm.State = StateBreakpoint
	}

	return nil
}

// handleExecuteError folds an executor error into VM state. ExceptionError
// values carry their own disposition (Exit halts cleanly; SoftwareInterrupt
// without an installed hook is surfaced as a trap rather than corrupting
// state); anything else is a genuine execution fault.
func (vm *VM) handleExecuteError(decoded *Instruction, err error) {
	if vm.State == StateHalted || vm.State == StateBreakpoint {
		// A hook (e.g. an exit syscall) already set a terminal state.
		return
	}

	var exc *ExceptionError
	if ok := asExceptionError(err, &exc); ok && exc.Exception == ExceptionExit {
		vm.State = StateHalted
		return
	}

	vm.State = StateError
	vm.LastError = fmt.Errorf("execute failed at PC=0x%08X: %w", decoded.Address, err)
}

// asExceptionError reports whether err wraps an *ExceptionError anywhere in
// its chain, writing it into *target when so.
func asExceptionError(err error, target **ExceptionError) bool {
	return errors.As(err, target)
}

// Fetch fetches the instruction at the address the next PC latch will use.
func (vm *VM) Fetch() (uint32, error) {
	instruction, err := vm.Memory.ReadWord(vm.CPU.NextPC)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch instruction: %w", err)
	}
	return instruction, nil
}

// Decode decodes a raw instruction word
func (vm *VM) Decode(opcode uint32) (*Instruction, error) {
	inst := &Instruction{
		Address:   vm.CPU.PC,
		Opcode:    opcode,
		Condition: ConditionCode((opcode >> 28) & 0xF),
		SetFlags:  (opcode & (1 << 20)) != 0, // S bit
	}

	// Determine instruction type based on bits 27-26
	bits2726 := (opcode >> 26) & 0x3

	switch bits2726 {
	case 0: // 00 - data processing, multiply, BX/BLX, swap, halfword/double transfer
		switch {
		case (opcode&0x0FFFFFF0) == 0x012FFF10 || (opcode&0x0FFFFFF0) == 0x012FFF30:
			// BX: bits[27:4]=0x12FFF1; BLX(register): bits[27:4]=0x12FFF3
			inst.Type = InstBranchExchange

		case (opcode & 0x0FB00FF0) == 0x01000090:
			// SWP/SWPB: bits[27:23]=00010, [21:20]=00, [7:4]=1001 (bit 22 is the
			// B flag and deliberately left unmasked so both forms match)
			inst.Type = InstSwap

		case (opcode & 0x0F8000F0) == 0x00800090:
			// Long multiply: UMULL/UMLAL/SMULL/SMLAL, bits[27:23]=00001, [7:4]=1001
			inst.Type = InstLongMultiply

		case (opcode & 0x0FC000F0) == 0x00000090:
			// MUL/MLA: bits[27:22]=000000, [7:4]=1001
			inst.Type = InstMultiply

		case (opcode & 0x0FBF0FFF) == 0x010F0000:
			// MRS: cccc 00010 x 00 1111 dddd 0000 0000 0000
			inst.Type = InstPSRTransfer

		case (opcode & 0x0FB000F0) == 0x01200000:
			// MSR (register): cccc 00010 x 10 xxxx 1111 0000 0000 mmmm
			inst.Type = InstPSRTransfer

		case (opcode & 0x0FB00000) == 0x03200000:
			// MSR (immediate): cccc 00110 x 10 xxxx 1111 rrrr iiii iiii
			inst.Type = InstPSRTransfer

		default:
			bit25 := (opcode >> 25) & 1
			bit7 := (opcode >> 7) & 1
			bit4 := (opcode >> 4) & 1
			bits65 := (opcode >> 5) & 0x3
			lBit := (opcode >> 20) & 1

			switch {
			case bit25 == 0 && bit7 == 1 && bit4 == 1 && lBit == 0 && (bits65 == 2 || bits65 == 3):
				// LDRD (SH=10) / STRD (SH=11), both only defined with L=0
				inst.Type = InstDoubleTransfer
			case bit25 == 0 && bit7 == 1 && bit4 == 1:
				// Halfword/signed transfer: LDRH, STRH, LDRSB, LDRSH
				inst.Type = InstLoadStore
			default:
				inst.Type = InstDataProcessing
			}
		}

	case 1: // 01 - load/store immediate or register offset, or media instructions
		bit25 := (opcode >> 25) & 1
		bit4 := (opcode >> 4) & 1

		switch {
		case bit25 == 1 && bit4 == 1 && (opcode&0x0FE00070) == 0x07A00050:
			// SBFX: bits[27:21]=0111101, [6:4]=101
			inst.Type = InstBitfieldExtract
		case bit25 == 1 && bit4 == 1 && (opcode&0x0FE00070) == 0x07E00050:
			// UBFX: bits[27:21]=0111111, [6:4]=101
			inst.Type = InstBitfieldExtract
		case bit25 == 1 && bit4 == 1 && (opcode&0x0F8000F0) == 0x06800070:
			// UXTB/UXTH/SXTB/SXTH/...B16 and their accumulating forms
			inst.Type = InstExtend
		default:
			inst.Type = InstLoadStore
		}

	case 2: // 10 - branch or load/store multiple
		if (opcode & 0x02000000) != 0 {
			// B/BL
			inst.Type = InstBranch
		} else {
			// LDM/STM
			inst.Type = InstLoadStoreMultiple
		}

	case 3: // 11 - coprocessor or SWI
		if (opcode & 0x0F000000) == 0x0F000000 {
			inst.Type = InstSWI
		} else {
			return nil, fmt.Errorf("coprocessor instructions not supported")
		}
	}

	return inst, nil
}

// Execute executes a decoded instruction
func (vm *VM) Execute(inst *Instruction) error {
	switch inst.Type {
	case InstDataProcessing:
		return ExecuteDataProcessing(vm, inst)
	case InstMultiply:
		return ExecuteMultiply(vm, inst)
	case InstLongMultiply:
		return ExecuteLongMultiply(vm, inst)
	case InstSwap:
		return ExecuteSwap(vm, inst)
	case InstDoubleTransfer:
		return ExecuteDoubleTransfer(vm, inst)
	case InstBitfieldExtract:
		return ExecuteBitfieldExtract(vm, inst)
	case InstExtend:
		return ExecuteExtend(vm, inst)
	case InstLoadStore:
		return ExecuteLoadStore(vm, inst)
	case InstLoadStoreMultiple:
		return ExecuteLoadStoreMultiple(vm, inst)
	case InstBranch:
		return ExecuteBranch(vm, inst)
	case InstBranchExchange:
		return ExecuteBranchExchange(vm, inst)
	case InstSWI:
		return ExecuteSoftwareInterrupt(vm, inst)
	case InstPSRTransfer:
		return ExecutePSRTransfer(vm, inst)
	default:
		return fmt.Errorf("unknown instruction type at 0x%08X: opcode=0x%08X", inst.Address, inst.Opcode)
	}
}

// Instruction implementations are in separate files:
// - data_processing.go
// - multiply.go
// - swap.go
// - doubletrans.go
// - bitfield.go
// - inst_memory.go
// - memory_multi.go
// - branch.go
// - hooks.go
// - psr.go

// Run executes instructions until halt, error, or breakpoint
func (vm *VM) Run() error {
	vm.State = StateRunning

	for vm.State == StateRunning {
		if err := vm.Step(); err != nil {
			return err
		}

		// Check for halt conditions
		// This is a placeholder - will be enhanced with proper halt detection
		if vm.CPU.Cycles > vm.MaxCycles {
			vm.State = StateHalted
			return fmt.Errorf("maximum cycles exceeded")
		}
	}

	return nil
}

// GetState returns the current execution state
func (vm *VM) GetState() ExecutionState {
	return vm.State
}

// SetState sets the execution state
func (vm *VM) SetState(state ExecutionState) {
	vm.State = state
}

// GetInstructionHistory returns the history of executed instruction addresses
func (vm *VM) GetInstructionHistory() []uint32 {
	return vm.InstructionLog
}

// DumpState returns a string representation of the VM state for debugging
func (vm *VM) DumpState() string {
	return fmt.Sprintf(
		"PC=0x%08X SP=0x%08X LR=0x%08X CPSR=[%s%s%s%s] Cycles=%d State=%v",
		vm.CPU.PC,
		vm.CPU.GetSP(),
		vm.CPU.GetLR(),
		map[bool]string{true: "N", false: "-"}[vm.CPU.CPSR.N],
		map[bool]string{true: "Z", false: "-"}[vm.CPU.CPSR.Z],
		map[bool]string{true: "C", false: "-"}[vm.CPU.CPSR.C],
		map[bool]string{true: "V", false: "-"}[vm.CPU.CPSR.V],
		vm.CPU.Cycles,
		vm.State,
	)
}

// Bootstrap initializes the VM runtime environment
func (vm *VM) Bootstrap(args []string) error {
	// Store program arguments
	vm.ProgramArguments = args

	// Initialize stack pointer to top of stack
	stackTop := uint32(StackSegmentStart + StackSegmentSize)
	vm.InitializeStack(stackTop)

	// Set link register to a halt address (so returning from main halts)
	vm.CPU.SetLR(0xFFFFFFFF)

	// Set program counter to entry point
	vm.CPU.PC = vm.EntryPoint

	// Initialize state
	vm.State = StateHalted
	vm.ExitCode = 0

	return nil
}

// FindEntryPoint searches for common entry point labels in symbol table
// Common entry points: _start, main, __start
func (vm *VM) FindEntryPoint(symbols map[string]uint32) (uint32, error) {
	// Try common entry point names in order of preference
	entryPoints := []string{"_start", "main", "__start", "start"}

	for _, name := range entryPoints {
		if addr, exists := symbols[name]; exists {
			vm.EntryPoint = addr
			return addr, nil
		}
	}

	// If no entry point found, default to code segment start
	vm.EntryPoint = CodeSegmentStart
	return CodeSegmentStart, fmt.Errorf("no entry point found, using default 0x%08X", CodeSegmentStart)
}

// SetProgramArguments sets command-line arguments for the program
func (vm *VM) SetProgramArguments(args []string) {
	vm.ProgramArguments = args
}

// GetExitCode returns the program exit code
func (vm *VM) GetExitCode() int32 {
	return vm.ExitCode
}
