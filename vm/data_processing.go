package vm

import (
	"fmt"
)

// Data processing operation codes
const (
	OpAND = 0x0 // AND - Bitwise AND
	OpEOR = 0x1 // EOR - Bitwise Exclusive OR
	OpSUB = 0x2 // SUB - Subtract
	OpRSB = 0x3 // RSB - Reverse Subtract
	OpADD = 0x4 // ADD - Add
	OpADC = 0x5 // ADC - Add with Carry
	OpSBC = 0x6 // SBC - Subtract with Carry
	OpRSC = 0x7 // RSC - Reverse Subtract with Carry
	OpTST = 0x8 // TST - Test (AND without storing result)
	OpTEQ = 0x9 // TEQ - Test Equivalence (EOR without storing result)
	OpCMP = 0xA // CMP - Compare (SUB without storing result)
	OpCMN = 0xB // CMN - Compare Negative (ADD without storing result)
	OpORR = 0xC // ORR - Bitwise OR
	OpMOV = 0xD // MOV - Move
	OpBIC = 0xE // BIC - Bit Clear
	OpMVN = 0xF // MVN - Move Not
)

// isLogical reports whether opcode updates N/Z/C only (not V) when S=1.
func isLogicalOp(opcode uint32) bool {
	switch opcode {
	case OpAND, OpEOR, OpTST, OpTEQ, OpORR, OpMOV, OpBIC, OpMVN:
		return true
	default:
		return false
	}
}

// ExecuteDataProcessing executes a data processing instruction
func ExecuteDataProcessing(vm *VM, inst *Instruction) error {
	opcode := (inst.Opcode >> 21) & 0xF
	immediate := (inst.Opcode >> 25) & 0x1
	setFlags := inst.SetFlags

	// TST/TEQ/CMP/CMN with S=0 is not a comparison at all. TST with S=0
	// and an immediate operand is MOVW: Rd = (Rn field << 12) | imm12.
	// MRS/MSR are routed to the PSR-transfer executor by the decoder; every
	// other encoding in this space raises Undefined.
	if !setFlags && opcode == OpTST && immediate == 1 {
		rd := int((inst.Opcode >> 12) & 0xF)
		vm.CPU.SetRegister(rd, (((inst.Opcode>>16)&0xF)<<12)|(inst.Opcode&0xFFF))
		return nil
	}
	if !setFlags && (opcode == OpTST || opcode == OpTEQ || opcode == OpCMP || opcode == OpCMN) {
		return raise(vm, ExceptionUndefined, "TST/TEQ/CMP/CMN with S=0 is not a data-processing encoding")
	}

	rd := int((inst.Opcode >> 12) & 0xF) // Destination register
	rn := int((inst.Opcode >> 16) & 0xF) // First operand register

	// Get first operand
	op1 := vm.CPU.GetRegister(rn)

	// Get second operand (either immediate or register with shift)
	var op2 uint32
	var shiftCarry bool

	if immediate == 1 {
		// Immediate value with rotation
		imm := inst.Opcode & 0xFF
		rotation := ((inst.Opcode >> 8) & 0xF) * 2
		op2 = (imm >> rotation) | (imm << (32 - rotation))

		// Carry from rotation
		if rotation == 0 {
			shiftCarry = vm.CPU.CPSR.C
		} else {
			shiftCarry = (op2 & 0x80000000) != 0
		}
	} else {
		// Register with optional shift
		rm := int(inst.Opcode & 0xF)
		op2Value := vm.CPU.GetRegister(rm)

		shiftType := ShiftType((inst.Opcode >> 5) & 0x3)
		shiftByReg := (inst.Opcode >> 4) & 0x1

		var shiftAmount int
		if shiftByReg == 1 {
			// Shift amount in register
			rs := int((inst.Opcode >> 8) & 0xF)
			shiftAmount = int(vm.CPU.GetRegister(rs) & 0xFF)
		} else {
			// Shift amount in instruction
			shiftAmount = int((inst.Opcode >> 7) & 0x1F)
		}

		// In ARM, ROR #0 means RRX (rotate right extended through carry)
		if shiftType == ShiftROR && shiftAmount == 0 && shiftByReg == 0 {
			shiftType = ShiftRRX
		}

		shiftCarry = CalculateShiftCarry(op2Value, shiftAmount, shiftType, vm.CPU.CPSR.C)
		op2 = PerformShift(op2Value, shiftAmount, shiftType, vm.CPU.CPSR.C)
	}

	// Execute operation
	var result uint32
	var carry, overflow bool
	writeResult := true
	updateFlags := setFlags

	switch opcode {
	case OpAND:
		result = op1 & op2
		carry = shiftCarry

	case OpEOR:
		result = op1 ^ op2
		carry = shiftCarry

	case OpSUB:
		result = op1 - op2
		carry = CalculateSubCarry(op1, op2, false)
		overflow = CalculateSubOverflow(op1, op2, false)

	case OpRSB:
		result = op2 - op1
		carry = CalculateSubCarry(op2, op1, false)
		overflow = CalculateSubOverflow(op2, op1, false)

	case OpADD:
		result = op1 + op2
		carry = CalculateAddCarry(op1, op2, false)
		overflow = CalculateAddOverflow(op1, op2, false)

	case OpADC:
		carryIn := vm.CPU.CPSR.C
		carryInVal := uint32(0)
		if carryIn {
			carryInVal = 1
		}
		result = op1 + op2 + carryInVal
		carry = CalculateAddCarry(op1, op2, carryIn)
		overflow = CalculateAddOverflow(op1, op2, carryIn)

	case OpSBC:
		borrowIn := !vm.CPU.CPSR.C
		carryInVal := uint32(1)
		if borrowIn {
			carryInVal = 0
		}
		result = op1 - op2 - (1 - carryInVal)
		carry = CalculateSubCarry(op1, op2, borrowIn)
		overflow = CalculateSubOverflow(op1, op2, borrowIn)

	case OpRSC:
		borrowIn := !vm.CPU.CPSR.C
		carryInVal := uint32(1)
		if borrowIn {
			carryInVal = 0
		}
		result = op2 - op1 - (1 - carryInVal)
		carry = CalculateSubCarry(op2, op1, borrowIn)
		overflow = CalculateSubOverflow(op2, op1, borrowIn)

	case OpTST:
		result = op1 & op2
		carry = shiftCarry
		writeResult = false
		updateFlags = true // TST always sets flags

	case OpTEQ:
		result = op1 ^ op2
		carry = shiftCarry
		writeResult = false
		updateFlags = true // TEQ always sets flags

	case OpCMP:
		result = op1 - op2
		carry = CalculateSubCarry(op1, op2, false)
		overflow = CalculateSubOverflow(op1, op2, false)
		writeResult = false
		updateFlags = true // CMP always sets flags

	case OpCMN:
		result = op1 + op2
		carry = CalculateAddCarry(op1, op2, false)
		overflow = CalculateAddOverflow(op1, op2, false)
		writeResult = false
		updateFlags = true // CMN always sets flags

	case OpORR:
		result = op1 | op2
		carry = shiftCarry

	case OpMOV:
		result = op2
		carry = shiftCarry

	case OpBIC:
		result = op1 & ^op2
		carry = shiftCarry

	case OpMVN:
		result = ^op2
		carry = shiftCarry

	default:
		return fmt.Errorf("unknown data processing opcode: 0x%X", opcode)
	}

	// Write result to destination register
	if writeResult {
		vm.CPU.SetRegister(rd, result)
		if rd == 15 {
			// Writing PC directly (not via a branch executor) still has to
			// update the latched next-fetch address, or the following
			// fetch would clobber it right back.
			vm.CPU.NextPC = result
		}
	}

	// Update flags if requested
	if updateFlags {
		// Logical operations update N, Z, C (not V)
		// Arithmetic operations update all flags
		if isLogicalOp(opcode) {
			vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
		} else {
			vm.CPU.CPSR.UpdateFlagsNZCV(result, carry, overflow)
		}
	}

	return nil
}
