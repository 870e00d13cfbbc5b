package vm

import "fmt"

// ExecuteBitfieldExtract executes SBFX/UBFX: extract a `width`-bit field
// starting at `lsb` out of Rm, sign- or zero-extending it into Rd.
func ExecuteBitfieldExtract(vm *VM, inst *Instruction) error {
	signed := (inst.Opcode>>22)&Mask1Bit == 0 // 0111101x=SBFX, 0111111x=UBFX
	widthMinus1 := (inst.Opcode >> 16) & Mask5Bit
	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	lsb := (inst.Opcode >> 7) & Mask5Bit
	rn := int(inst.Opcode & Mask4Bit)

	width := widthMinus1 + 1
	if lsb+width > 32 {
		return fmt.Errorf("bitfield extract: lsb(%d)+width(%d) exceeds 32 bits", lsb, width)
	}

	value := vm.CPU.GetRegister(rn)
	field := (value >> lsb) & (Mask32Bit >> (32 - width))

	if signed && field&(1<<(width-1)) != 0 {
		field |= Mask32Bit << width
	}

	vm.CPU.SetRegister(rd, field)
	return nil
}

// extendKind identifies which UXT*/SXT* variant an instruction word encodes.
type extendKind int

const (
	extendB   extendKind = iota // 8 -> 32
	extendH                     // 16 -> 32
	extendB16                   // two packed 8 -> 16 halves (UXTB16/SXTB16)
)

// ExecuteExtend executes the UXTB/UXTH/SXTB/SXTH family and their
// accumulating ...AB/...AH/...AB16 counterparts. The rotate field selects
// which byte of Rm is rotated into position before (sign-)extension, per
// the standard ARM "ROR then extend" definition.
func ExecuteExtend(vm *VM, inst *Instruction) error {
	signed := (inst.Opcode>>22)&Mask1Bit == 0 // 0110101x family=signed, 0110111x=unsigned... see below
	kindBits := (inst.Opcode >> 20) & Mask3Bit
	rn := int((inst.Opcode >> RnShift) & Mask4Bit)
	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	rotate := (inst.Opcode >> 10) & Mask2Bit
	rm := int(inst.Opcode & Mask4Bit)

	accumulate := rn != 15

	var kind extendKind
	switch kindBits & 0x3 {
	case 0:
		kind = extendB16
	case 2:
		kind = extendB
	case 3:
		kind = extendH
	default:
		return fmt.Errorf("extend: unrecognized UXT/SXT variant (opcode 0x%08X)", inst.Opcode)
	}

	rotated := PerformShift(vm.CPU.GetRegister(rm), int(rotate)*8, ShiftROR, vm.CPU.CPSR.C)

	var result uint32
	switch kind {
	case extendB:
		b := rotated & 0xFF
		if signed {
			result = uint32(int32(int8(b)))
		} else {
			result = b
		}
	case extendH:
		h := rotated & 0xFFFF
		if signed {
			result = uint32(int32(int16(h)))
		} else {
			result = h
		}
	case extendB16:
		// Packs two independently extended bytes back into a halfword pair;
		// the accumulating forms add Rn's two halfwords lane by lane.
		lo := rotated & 0xFF
		hi := (rotated >> 16) & 0xFF
		if signed {
			lo = uint32(uint16(int16(int8(lo))))
			hi = uint32(uint16(int16(int8(hi))))
		}
		if accumulate {
			base := vm.CPU.GetRegister(rn)
			lo = (lo + base) & 0xFFFF
			hi = (hi + base>>16) & 0xFFFF
		}
		result = lo | hi<<16
	}

	if accumulate && kind != extendB16 {
		result += vm.CPU.GetRegister(rn)
	}

	vm.CPU.SetRegister(rd, result)
	return nil
}
