package vm

import "fmt"

// CPU represents the ARM processor state
type CPU struct {
	// General purpose registers R0-R14
	R [15]uint32

	// Program Counter (R15), visible to the currently executing instruction
	PC uint32

	// NextPC is the latched address of the instruction that follows the one
	// being executed. Fetch copies NextPC into PC and advances NextPC by 4
	// before the instruction runs; branch-family executors overwrite NextPC
	// directly so that the following fetch lands on the branch target rather
	// than the address the latch would otherwise have produced.
	NextPC uint32

	// Current Program Status Register
	CPSR CPSR

	// SPSR holds the CPSR snapshot taken on exception entry, restored by
	// SaveCPSR/RestoreCPSR and by LDM's force-user-mode ('^') variant when it
	// loads PC.
	SPSR CPSR

	// Cycle counter for statistics
	Cycles uint64
}

// CPSR represents the Current Program Status Register with condition flags
type CPSR struct {
	N bool // Negative flag (bit 31 of result)
	Z bool // Zero flag (result == 0)
	C bool // Carry flag (unsigned overflow for arithmetic, last bit shifted out for shifts)
	V bool // Overflow flag (signed overflow)
}

// ToUint32 converts CPSR flags to a 32-bit value
// ARM CPSR format: NZCV flags are in bits 31-28
func (c *CPSR) ToUint32() uint32 {
	var result uint32
	if c.N {
		result |= 1 << 31 // N flag in bit 31
	}
	if c.Z {
		result |= 1 << 30 // Z flag in bit 30
	}
	if c.C {
		result |= 1 << 29 // C flag in bit 29
	}
	if c.V {
		result |= 1 << 28 // V flag in bit 28
	}
	// Bits 27-0 are reserved/unused in basic ARM2 CPSR
	return result
}

// FromUint32 sets CPSR flags from a 32-bit value
// ARM CPSR format: NZCV flags are in bits 31-28
func (c *CPSR) FromUint32(value uint32) {
	c.N = (value & (1 << 31)) != 0 // N flag in bit 31
	c.Z = (value & (1 << 30)) != 0 // Z flag in bit 30
	c.C = (value & (1 << 29)) != 0 // C flag in bit 29
	c.V = (value & (1 << 28)) != 0 // V flag in bit 28
	// Bits 27-0 are ignored (reserved/unused in basic ARM2)
}

// Register aliases for convenience
const (
	R0  = 0
	R1  = 1
	R2  = 2
	R3  = 3
	R4  = 4
	R5  = 5
	R6  = 6
	R7  = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	SP  = 13 // Stack Pointer
	LR  = 14 // Link Register
	// PC is stored separately as a field
)

// NewCPU creates and initializes a new CPU instance
func NewCPU() *CPU {
	return &CPU{
		R:      [15]uint32{},
		PC:     0,
		NextPC: 0,
		CPSR:   CPSR{},
		SPSR:   CPSR{},
		Cycles: 0,
	}
}

// Reset resets the CPU to initial state
func (c *CPU) Reset() {
	for i := range c.R {
		c.R[i] = 0
	}
	c.PC = 0
	c.NextPC = 0
	c.CPSR = CPSR{}
	c.SPSR = CPSR{}
	c.Cycles = 0
}

// SaveCPSR copies the current CPSR into SPSR, modelling exception entry
// where the processor banks the pre-exception status register.
func (c *CPU) SaveCPSR() {
	c.SPSR = c.CPSR
}

// RestoreCPSR copies SPSR back into CPSR, modelling exception return (and
// LDM's force-user-mode '^' variant when it loads PC).
func (c *CPU) RestoreCPSR() {
	c.CPSR = c.SPSR
}

// GetSP returns the stack pointer value
func (c *CPU) GetSP() uint32 {
	return c.R[SP]
}

// SetSP sets the stack pointer value, rejecting addresses outside the stack
// segment. The upper bound is inclusive: SP may point one past the last
// valid word, the conventional empty-stack position.
func (c *CPU) SetSP(value uint32) error {
	if err := checkStackBounds(value); err != nil {
		return err
	}
	c.R[SP] = value
	return nil
}

// SetSPWithTrace sets the stack pointer value, validates it against the
// stack segment, and records the move for stack tracing.
func (c *CPU) SetSPWithTrace(vm *VM, value uint32, pc uint32) error {
	if err := checkStackBounds(value); err != nil {
		return err
	}

	oldSP := c.R[SP]
	c.R[SP] = value

	// Record stack trace if enabled
	if vm.StackTrace != nil {
		vm.StackTrace.RecordSPMove(vm.CPU.Cycles, pc, oldSP, value)
	}
	return nil
}

func checkStackBounds(value uint32) error {
	stackEnd := uint32(StackSegmentStart + StackSegmentSize)
	if value < StackSegmentStart {
		return fmt.Errorf("stack underflow: SP 0x%08X below stack segment start 0x%08X", value, uint32(StackSegmentStart))
	}
	if value > stackEnd {
		return fmt.Errorf("stack overflow: SP 0x%08X above stack segment end 0x%08X", value, stackEnd)
	}
	return nil
}

// GetLR returns the link register value
func (c *CPU) GetLR() uint32 {
	return c.R[LR]
}

// SetLR sets the link register value
func (c *CPU) SetLR(value uint32) {
	c.R[LR] = value
}

// GetRegister returns the value of a register (R0-R14 or PC)
// When reading R15 (PC), returns PC+8 to simulate ARM pipeline effect
func (c *CPU) GetRegister(reg int) uint32 {
	if reg == 15 {
		return c.PC + 8
	}
	if reg < 0 || reg > 14 {
		return 0
	}
	return c.R[reg]
}

// SetRegister sets the value of a register (R0-R14 or PC)
func (c *CPU) SetRegister(reg int, value uint32) {
	if reg == 15 {
		c.PC = value
	} else if reg >= 0 && reg <= 14 {
		c.R[reg] = value
	}
}

// getRegisterName returns the trace-facing name for a register index:
// the conventional aliases for SP/LR/PC, "R<n>" otherwise.
func getRegisterName(reg int) string {
	switch reg {
	case SP:
		return "SP"
	case LR:
		return "LR"
	case 15:
		return "PC"
	default:
		return fmt.Sprintf("R%d", reg)
	}
}

// GetRegisterWithTrace reads a register like GetRegister, additionally
// recording the read in vm.RegisterTrace when tracing is enabled.
func (c *CPU) GetRegisterWithTrace(vm *VM, reg int, pc uint32) uint32 {
	value := c.GetRegister(reg)
	if vm.RegisterTrace != nil && vm.RegisterTrace.Enabled {
		vm.RegisterTrace.RecordRead(c.Cycles, pc, getRegisterName(reg), value)
	}
	return value
}

// SetRegisterWithTrace sets a register like SetRegister, additionally
// recording the write in vm.RegisterTrace when tracing is enabled.
func (c *CPU) SetRegisterWithTrace(vm *VM, reg int, value uint32, pc uint32) {
	oldValue := c.GetRegister(reg)
	c.SetRegister(reg, value)
	if vm.RegisterTrace != nil && vm.RegisterTrace.Enabled {
		vm.RegisterTrace.RecordWrite(c.Cycles, pc, getRegisterName(reg), oldValue, value)
	}
}

// IncrementPC increments the program counter by 4 (one instruction)
func (c *CPU) IncrementPC() {
	c.PC += 4
}

// Branch sets the program counter and the latched next-instruction address
// to addr. Setting both, rather than PC alone, is what makes the target
// stick across the next fetch (fetch always does PC = NextPC first).
func (c *CPU) Branch(address uint32) {
	c.PC = address
	c.NextPC = address
}

// BranchWithLink saves the return address in LR and branches
func (c *CPU) BranchWithLink(address uint32) {
	c.SetLR(c.PC + 4) // Save return address
	c.Branch(address)
}

// Jump is an alias for Branch used by hook dispatch and CallProc, where the
// caller is redirecting control flow rather than executing a branch
// instruction.
func (c *CPU) Jump(address uint32) {
	c.Branch(address)
}

// IncrementCycles increments the cycle counter
func (c *CPU) IncrementCycles(cycles uint64) {
	c.Cycles += cycles
}
