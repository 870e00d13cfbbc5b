package vm

import "fmt"

// ExecuteSwap executes SWP/SWPB: an indivisible load-then-store exchange of
// a register with a memory location. This emulator has no other threads of
// execution contending for the segment map, so the implementation is a
// plain load followed by a store rather than a true atomic bus cycle.
func ExecuteSwap(vm *VM, inst *Instruction) error {
	byteSwap := (inst.Opcode>>BBitShift)&Mask1Bit == 1
	rn := int((inst.Opcode >> RnShift) & Mask4Bit)
	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	rm := int(inst.Opcode & Mask4Bit)

	if rn == 15 || rd == 15 || rm == 15 {
		return fmt.Errorf("swap: R15 (PC) cannot be used as Rn, Rd or Rm")
	}

	addr := vm.CPU.GetRegister(rn)
	newValue := vm.CPU.GetRegister(rm)

	if byteSwap {
		old, err := vm.Memory.ReadByte(addr)
		if err != nil {
			return fmt.Errorf("swap byte load failed at 0x%08X: %w", addr, err)
		}
		//nolint:gosec // G115: intentional truncation for SWPB
		if err := vm.Memory.WriteByte(addr, uint8(newValue&ByteValueMask)); err != nil {
			return fmt.Errorf("swap byte store failed at 0x%08X: %w", addr, err)
		}
		vm.CPU.SetRegister(rd, uint32(old))
		return nil
	}

	old, err := vm.Memory.ReadWord(addr)
	if err != nil {
		return fmt.Errorf("swap word load failed at 0x%08X: %w", addr, err)
	}
	if err := vm.Memory.WriteWord(addr, newValue); err != nil {
		return fmt.Errorf("swap word store failed at 0x%08X: %w", addr, err)
	}
	vm.CPU.SetRegister(rd, old)
	return nil
}
