package vm

import "fmt"

// ExecuteDoubleTransfer executes LDRD/STRD, which move a pair of adjacent
// registers (Rd, Rd+1) to or from two consecutive words in memory. Rd must
// be even; an odd Rd raises Undefined here. The decode table routes
// bits[7:4]==1101 (LDRD) and ==1111 (STRD) to this executor.
func ExecuteDoubleTransfer(vm *VM, inst *Instruction) error {
	isLoad := (inst.Opcode>>4)&Mask4Bit == 0xD
	preIndexed := (inst.Opcode >> PBitShift) & Mask1Bit
	addOffset := (inst.Opcode >> UBitShift) & Mask1Bit
	writeBack := (inst.Opcode >> WBitShift) & Mask1Bit
	immediate := (inst.Opcode >> BBitShift) & Mask1Bit // bit 22: 1=immediate offset

	rn := int((inst.Opcode >> RnShift) & Mask4Bit)
	rd := int((inst.Opcode >> RdShift) & Mask4Bit)

	if rd%2 != 0 {
		return raise(vm, ExceptionUndefined, "LDRD/STRD require an even-numbered Rd")
	}
	if rd == 14 || rn == 15 {
		return fmt.Errorf("double transfer: Rd+1 would overlap PC, or Rn is PC")
	}

	var offset uint32
	if immediate == 1 {
		offsetHigh := (inst.Opcode >> HalfwordHighShift) & HalfwordOffsetHighMask
		offsetLow := inst.Opcode & HalfwordOffsetLowMask
		offset = (offsetHigh << HalfwordLowShift) | offsetLow
	} else {
		rm := int(inst.Opcode & Mask4Bit)
		offset = vm.CPU.GetRegister(rm)
	}

	baseAddr := vm.CPU.GetRegister(rn)
	var effectiveAddr uint32
	if addOffset == 1 {
		effectiveAddr = baseAddr + offset
	} else {
		effectiveAddr = baseAddr - offset
	}

	accessAddr := baseAddr
	if preIndexed == 1 {
		accessAddr = effectiveAddr
	}

	if isLoad {
		lo, err := vm.Memory.ReadWord(accessAddr)
		if err != nil {
			return fmt.Errorf("LDRD failed at 0x%08X: %w", accessAddr, err)
		}
		hi, err := vm.Memory.ReadWord(accessAddr + 4)
		if err != nil {
			return fmt.Errorf("LDRD failed at 0x%08X: %w", accessAddr+4, err)
		}
		vm.CPU.SetRegister(rd, lo)
		vm.CPU.SetRegister(rd+1, hi)
	} else {
		lo := vm.CPU.GetRegister(rd)
		hi := vm.CPU.GetRegister(rd + 1)
		if err := vm.Memory.WriteWord(accessAddr, lo); err != nil {
			return fmt.Errorf("STRD failed at 0x%08X: %w", accessAddr, err)
		}
		if err := vm.Memory.WriteWord(accessAddr+4, hi); err != nil {
			return fmt.Errorf("STRD failed at 0x%08X: %w", accessAddr+4, err)
		}
		vm.LastMemoryWrite = accessAddr
		vm.HasMemoryWrite = true
	}

	if (preIndexed == 1 && writeBack == 1) || preIndexed == 0 {
		vm.CPU.SetRegister(rn, effectiveAddr)
	}

	return nil
}
