package vm

import "fmt"

const (
	// HookBase is the first SWI immediate reserved for hook dispatch. Guest
	// code never issues these directly; they are installed over imported
	// symbols by OverrideSymbol, which patches the instruction word at the
	// symbol's address into `SWI HookBase+slot`.
	HookBase = 0x00C00000

	// VDSOAddress is the return address CallProc loads into LR. Nothing is
	// mapped there by default; CallProc stops as soon as PC reaches this
	// address, before any word there is fetched.
	VDSOAddress = 0xE0000000

	// VDSOSentinelWord is the return-sentinel word associated with
	// VDSOAddress. It encodes SWI 0xFFFFFF, which decodes like any other
	// SWI; CallProc never reads it, since it stops on the address alone.
	VDSOSentinelWord = 0xEFFFFFFF
)

// HookFunc is a hook-table callback. Arguments arrive in R0-R3 (read via
// cpu.GetRegister); the return value is written to R0 by the dispatcher
// after the call, matching a normal ARM procedure-call return-value
// convention.
type HookFunc func(cpu *CPU, mem *Memory, name string, userData any) (int32, error)

// hookEntry is one installed override: the callback plus enough state to
// restore the instruction word OverrideSymbol patched over.
type hookEntry struct {
	name     string
	fn       HookFunc
	userData any
	addr     uint32
	prevWord uint32
}

// HookTable owns every installed hook and the SWI-immediate slot each one
// occupies, mirroring the override list the ELF loader's dynamic-symbol
// fixup builds one entry per imported symbol into.
type HookTable struct {
	entries []*hookEntry // indexed by slot
	byName  map[string]int
}

// NewHookTable creates an empty hook table.
func NewHookTable() *HookTable {
	return &HookTable{byName: make(map[string]int)}
}

// OverrideSymbol installs fn as the hook for the symbol named `name`, whose
// instruction word currently lives at `addr`. The original word is saved so
// RestoreSymbol can undo the patch later. Re-overriding an existing symbol
// updates its callback in place rather than consuming a new slot, matching
// arm32_cpu_override_symbol's update-in-place behavior.
func (h *HookTable) OverrideSymbol(mem *Memory, addr uint32, name string, fn HookFunc, userData any) error {
	if slot, ok := h.byName[name]; ok {
		h.entries[slot].fn = fn
		h.entries[slot].userData = userData
		return nil
	}

	prev, err := mem.ReadWord(addr)
	if err != nil {
		return fmt.Errorf("override symbol %q: cannot read instruction at 0x%08X: %w", name, addr, err)
	}

	slot := len(h.entries)
	h.entries = append(h.entries, &hookEntry{
		name: name, fn: fn, userData: userData, addr: addr, prevWord: prev,
	})
	h.byName[name] = slot

	swi := uint32(0xEF000000) | ((HookBase + uint32(slot)) & 0x00FFFFFF)
	if err := mem.WriteWord(addr, swi); err != nil {
		h.entries = h.entries[:slot]
		delete(h.byName, name)
		return fmt.Errorf("override symbol %q: cannot patch instruction at 0x%08X: %w", name, addr, err)
	}
	return nil
}

// RestoreSymbol writes the pre-override instruction word back, undoing
// OverrideSymbol. The slot itself is left allocated (not renumbered), same
// as arm32_cpu_restore_symbol, since any other entries referencing it by
// slot number would otherwise go stale.
func (h *HookTable) RestoreSymbol(mem *Memory, name string) error {
	slot, ok := h.byName[name]
	if !ok {
		return fmt.Errorf("restore symbol %q: no such hook installed", name)
	}
	entry := h.entries[slot]
	if err := mem.WriteWord(entry.addr, entry.prevWord); err != nil {
		return fmt.Errorf("restore symbol %q: %w", name, err)
	}
	return nil
}

// Dispatch resolves a SWI immediate raised by the fetch/execute loop. An
// immediate outside [HookBase, HookBase+len(entries)) matches no installed
// hook and is returned as an ExceptionSoftwareInterrupt; one inside the
// range but pointing at a removed slot is Undefined.
func (h *HookTable) Dispatch(vm *VM, immediate uint32) error {
	if immediate < HookBase || immediate-HookBase >= uint32(len(h.entries)) {
		return raise(vm, ExceptionSoftwareInterrupt, fmt.Sprintf("immediate 0x%06X", immediate))
	}

	entry := h.entries[immediate-HookBase]
	if entry == nil {
		return raise(vm, ExceptionUndefined, "SWI targets a removed hook slot")
	}

	result, err := entry.fn(vm.CPU, vm.Memory, entry.name, entry.userData)
	if err != nil {
		return fmt.Errorf("hook %q failed: %w", entry.name, err)
	}
	//nolint:gosec // G115: hooks legitimately return negative error codes via R0
	vm.CPU.SetRegister(R0, uint32(result))
	return nil
}

// ExecuteSoftwareInterrupt is the InstSWI executor wired into Execute. It
// extracts the 24-bit SWI immediate: immediates from HookBase up go through
// the VM's hook table when one is installed, and every other immediate is
// handled by ExecuteSWI's raw syscall-number dispatch.
func ExecuteSoftwareInterrupt(vm *VM, inst *Instruction) error {
	immediate := inst.Opcode & 0x00FFFFFF
	if vm.Hooks != nil && immediate >= HookBase {
		return vm.Hooks.Dispatch(vm, immediate)
	}
	return ExecuteSWI(vm, inst)
}

// CallProc invokes the procedure at addr as a host-initiated call: it
// points LR at VDSOAddress, jumps to addr, and steps the CPU until PC
// reaches VDSOAddress (i.e. the procedure returned), then yields R0. Used by hook callbacks that need to call back into guest code (e.g. a
// hook implementing qsort's comparator-driven sort).
func (vm *VM) CallProc(addr uint32, maxSteps uint64) (uint32, error) {
	savedLR := vm.CPU.GetLR()
	savedPC, savedNextPC := vm.CPU.PC, vm.CPU.NextPC
	defer func() {
		vm.CPU.SetLR(savedLR)
	}()

	vm.CPU.SetLR(VDSOAddress)
	vm.CPU.Branch(addr)

	var steps uint64
	for {
		if vm.CPU.PC == VDSOAddress {
			break
		}
		if maxSteps > 0 && steps >= maxSteps {
			return 0, fmt.Errorf("callproc: exceeded %d steps without returning", maxSteps)
		}
		if err := vm.Step(); err != nil {
			return 0, fmt.Errorf("callproc: %w", err)
		}
		steps++
	}

	result := vm.CPU.GetRegister(R0)
	vm.CPU.PC, vm.CPU.NextPC = savedPC, savedNextPC
	return result, nil
}
