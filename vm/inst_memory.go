package vm

import (
	"fmt"
	"math"
)

// ExecuteLoadStore executes load/store instructions (LDR, STR, LDRB, STRB,
// LDRH, STRH, LDRSB, LDRSH). Post-indexed addressing with the W bit set
// selects the user-mode-forced LDRT/STRT/LDRBT/STRBT variants, which this
// single-mode emulator cannot honor and raises as a data abort rather than
// silently treating as a normal writeback.
func ExecuteLoadStore(v *VM, inst *Instruction) error {
	vm := v
	load := (inst.Opcode >> LBitShift) & Mask1Bit         // L bit: 1=load, 0=store
	byteTransfer := (inst.Opcode >> BBitShift) & Mask1Bit // B bit: 1=byte, 0=word
	writeBack := (inst.Opcode >> WBitShift) & Mask1Bit    // W bit: write address back to base
	preIndexed := (inst.Opcode >> PBitShift) & Mask1Bit   // P bit: 1=pre-indexed, 0=post-indexed
	addOffset := (inst.Opcode >> UBitShift) & Mask1Bit    // U bit: 1=add offset, 0=subtract

	rd := int((inst.Opcode >> RdShift) & Mask4Bit) // Data register
	rn := int((inst.Opcode >> RnShift) & Mask4Bit) // Base register

	baseAddr := vm.CPU.GetRegister(rn)

	// Check for halfword transfer (ARM2a extension) first
	// LDRH/STRH/LDRSB/LDRSH: bits[27:25]=000, bit7=1, bit4=1
	// LDR/STR:               bits[27:26]=01
	bits27_25 := (inst.Opcode >> Bits27_25Shift) & Mask3Bit
	bit7 := (inst.Opcode >> Bit7Pos) & Mask1Bit
	bit4 := (inst.Opcode >> Bit4Pos) & Mask1Bit
	isHalfword := bits27_25 == 0 && bit7 == 1 && bit4 == 1

	var halfwordKind uint32 // bits [6:5] of the halfword encoding: 01=H, 10=SB, 11=SH
	var offset uint32
	if isHalfword {
		halfwordKind = (inst.Opcode >> 5) & Mask2Bit
		immediate := (inst.Opcode >> BBitShift) & Mask1Bit

		if immediate == 1 {
			// Immediate offset: split into high[11:8] and low[3:0]
			offsetHigh := (inst.Opcode >> HalfwordHighShift) & HalfwordOffsetHighMask
			offsetLow := inst.Opcode & HalfwordOffsetLowMask
			offset = (offsetHigh << HalfwordLowShift) | offsetLow
		} else {
			rm := int(inst.Opcode & Mask4Bit)
			offset = vm.CPU.GetRegister(rm)
		}
	} else {
		immediate := ((inst.Opcode >> IBitShift) & Mask1Bit) == 0

		if immediate {
			offset = inst.Opcode & Offset12BitMask
		} else {
			rm := int(inst.Opcode & Mask4Bit)
			offsetReg := vm.CPU.GetRegister(rm)

			shiftType := ShiftType((inst.Opcode >> ShiftTypePos) & Mask2Bit)
			shiftAmount := int((inst.Opcode >> ShiftAmountPos) & Mask5Bit)

			offset = PerformShift(offsetReg, shiftAmount, shiftType, vm.CPU.CPSR.C)
		}
	}

	var effectiveAddr uint32
	if addOffset == 1 {
		if offset > 0 && baseAddr > math.MaxUint32-offset {
			return fmt.Errorf("address overflow: base 0x%08X + offset 0x%08X wraps around", baseAddr, offset)
		}
		effectiveAddr = baseAddr + offset
	} else {
		if offset > baseAddr {
			return fmt.Errorf("address underflow: base 0x%08X - offset 0x%08X wraps around", baseAddr, offset)
		}
		effectiveAddr = baseAddr - offset
	}

	forcedUserMode := preIndexed == 0 && writeBack == 1
	if forcedUserMode {
		return raise(vm, ExceptionDataAbort, "LDRT/STRT (forced user-mode transfer) is not supported")
	}

	var accessAddr uint32
	if preIndexed == 1 {
		accessAddr = effectiveAddr
	} else {
		accessAddr = baseAddr
	}

	if load == 1 {
		var value uint32
		var err error
		var sizeStr string
		var signExtend bool

		switch {
		case isHalfword && halfwordKind == 0x2: // LDRSB
			b, e := vm.Memory.ReadByte(accessAddr)
			value, err, sizeStr, signExtend = uint32(b), e, "SBYTE", true
		case isHalfword && halfwordKind == 0x3: // LDRSH
			h, e := vm.Memory.ReadHalfword(accessAddr)
			value, err, sizeStr, signExtend = uint32(h), e, "SHALF", true
		case isHalfword: // LDRH
			h, e := vm.Memory.ReadHalfword(accessAddr)
			value, err, sizeStr = uint32(h), e, "HALF"
		case byteTransfer == 1: // LDRB
			b, e := vm.Memory.ReadByte(accessAddr)
			value, err, sizeStr = uint32(b), e, "BYTE"
		default: // LDR
			value, err = vm.Memory.ReadWord(accessAddr)
			sizeStr = "WORD"
		}

		if err != nil {
			return fmt.Errorf("load failed at 0x%08X: %w", accessAddr, err)
		}

		if signExtend {
			if sizeStr == "SBYTE" {
				value = uint32(int32(int8(value)))
			} else {
				value = uint32(int32(int16(value)))
			}
		}

		if vm.MemoryTrace != nil {
			vm.MemoryTrace.RecordRead(vm.CPU.Cycles, vm.CPU.PC, accessAddr, value, sizeStr)
		}

		if rd == SP {
			if err := vm.CPU.SetSPWithTrace(vm, value, vm.CPU.PC); err != nil {
				vm.State = StateError
				vm.LastError = err
				return err
			}
		} else {
			vm.CPU.SetRegister(rd, value)
			if rd == PCRegister {
				vm.CPU.NextPC = value
			}
		}
	} else {
		value := vm.CPU.GetRegister(rd)
		var err error
		var sizeStr string

		switch {
		case isHalfword:
			//nolint:gosec // G115: intentional truncation for STRH
			err = vm.Memory.WriteHalfword(accessAddr, uint16(value&HalfwordValueMask))
			sizeStr = "HALF"
		case byteTransfer == 1:
			//nolint:gosec // G115: intentional truncation for STRB
			err = vm.Memory.WriteByte(accessAddr, uint8(value&ByteValueMask))
			sizeStr = "BYTE"
		default:
			err = vm.Memory.WriteWord(accessAddr, value)
			sizeStr = "WORD"
		}

		if err != nil {
			return fmt.Errorf("store failed at 0x%08X: %w", accessAddr, err)
		}

		vm.LastMemoryWrite = accessAddr
		vm.HasMemoryWrite = true

		if vm.MemoryTrace != nil {
			vm.MemoryTrace.RecordWrite(vm.CPU.Cycles, vm.CPU.PC, accessAddr, value, sizeStr)
		}
	}

	if (preIndexed == 1 && writeBack == 1) || preIndexed == 0 {
		if rn != PCRegister {
			vm.CPU.SetRegister(rn, effectiveAddr)
		}
	}

	return nil
}
