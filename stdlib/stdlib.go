// Package stdlib provides an illustrative libc-equivalent hook pack: guest
// programs compiled against glibc reference symbols like memcpy, malloc and
// exit that this emulator never loads a real libc for, so Register installs
// a host-side implementation behind each one via vm.HookTable.OverrideSymbol.
package stdlib

import (
	"fmt"
	"io"
	"os"

	"github.com/lookbusy1344/arm-emulator/vm"
)

// Pack owns the host-side state a hook implementation needs: an output
// writer for write(1, ...)/write(2, ...), and the bump-pointer heap malloc
// carves out of.
type Pack struct {
	Stdout io.Writer
	Stderr io.Writer

	heapNext uint32 // next free address malloc will hand out
	heapEnd  uint32 // one past the end of the heap segment
	live     map[uint32]uint32 // address -> size, for free() validation
}

// NewPack creates a hook pack backed by os.Stdout/os.Stderr for I/O and the
// VM's heap segment for allocation.
func NewPack() *Pack {
	return &Pack{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		heapNext: vm.HeapSegmentStart,
		heapEnd:  vm.HeapSegmentStart + vm.HeapSegmentSize,
		live:     make(map[uint32]uint32),
	}
}

// Register installs every hook this pack provides over machine's hook
// table, for each entry in imports whose name the pack recognizes. Imports
// with no matching hook are left unpatched: their original instruction
// words stay in place.
func (p *Pack) Register(machine *vm.VM, imports map[string]uint32) error {
	if machine.Hooks == nil {
		machine.Hooks = vm.NewHookTable()
	}

	handlers := map[string]vm.HookFunc{
		"exit":    p.hookExit,
		"_exit":   p.hookExit,
		"malloc":  p.hookMalloc,
		"free":    p.hookFree,
		"memcpy":  p.hookMemcpy,
		"memmove": p.hookMemcpy, // hookMemcpy copies from the top down when the ranges overlap with dst above src
		"memset":  p.hookMemset,
		"strncmp": p.hookStrncmp,
		"write":   p.hookWrite,
		"read":    p.hookRead,
		"close":   p.hookClose,
	}

	for name, addr := range imports {
		fn, ok := handlers[name]
		if !ok {
			continue
		}
		if err := machine.Hooks.OverrideSymbol(machine.Memory, addr, name, fn, nil); err != nil {
			return fmt.Errorf("stdlib: registering %q: %w", name, err)
		}
	}
	return nil
}

func (p *Pack) hookExit(cpu *vm.CPU, _ *vm.Memory, _ string, _ any) (int32, error) {
	code := int32(cpu.GetRegister(0))
	return code, &vm.ExceptionError{Exception: vm.ExceptionExit, Address: cpu.PC, Detail: fmt.Sprintf("exit(%d)", code)}
}

func (p *Pack) hookMalloc(cpu *vm.CPU, mem *vm.Memory, _ string, _ any) (int32, error) {
	size := cpu.GetRegister(0)
	if size == 0 {
		size = 1
	}
	aligned := (size + 7) &^ 7

	if p.heapNext+aligned > p.heapEnd || p.heapNext+aligned < p.heapNext {
		return 0, nil // malloc failure returns NULL, not a host error
	}

	addr := p.heapNext
	p.heapNext += aligned
	p.live[addr] = aligned

	//nolint:gosec // G115: addr is bounded by the heap segment, well within int32 range
	return int32(addr), nil
}

func (p *Pack) hookFree(cpu *vm.CPU, _ *vm.Memory, _ string, _ any) (int32, error) {
	addr := cpu.GetRegister(0)
	if addr == 0 {
		return 0, nil
	}
	if _, ok := p.live[addr]; !ok {
		return 0, fmt.Errorf("free: unmapped address 0x%08X", addr)
	}
	delete(p.live, addr)
	return 0, nil
}

func (p *Pack) hookMemcpy(cpu *vm.CPU, mem *vm.Memory, _ string, _ any) (int32, error) {
	dst, src, n := cpu.GetRegister(0), cpu.GetRegister(1), cpu.GetRegister(2)
	backward := dst > src && dst-src < n
	for k := uint32(0); k < n; k++ {
		i := k
		if backward {
			i = n - 1 - k
		}
		b, err := mem.ReadByte(src + i)
		if err != nil {
			return 0, err
		}
		if err := mem.WriteByte(dst+i, b); err != nil {
			return 0, err
		}
	}
	//nolint:gosec // G115: dst is a guest pointer already validated by ReadByte/WriteByte above
	return int32(dst), nil
}

func (p *Pack) hookMemset(cpu *vm.CPU, mem *vm.Memory, _ string, _ any) (int32, error) {
	dst, value, n := cpu.GetRegister(0), cpu.GetRegister(1), cpu.GetRegister(2)
	for i := uint32(0); i < n; i++ {
		if err := mem.WriteByte(dst+i, byte(value)); err != nil {
			return 0, err
		}
	}
	//nolint:gosec // G115: see hookMemcpy
	return int32(dst), nil
}

func (p *Pack) hookStrncmp(cpu *vm.CPU, mem *vm.Memory, _ string, _ any) (int32, error) {
	a, b, n := cpu.GetRegister(0), cpu.GetRegister(1), cpu.GetRegister(2)
	for i := uint32(0); i < n; i++ {
		ca, err := mem.ReadByte(a + i)
		if err != nil {
			return 0, err
		}
		cb, err := mem.ReadByte(b + i)
		if err != nil {
			return 0, err
		}
		if ca != cb {
			return int32(ca) - int32(cb), nil
		}
		if ca == 0 {
			break
		}
	}
	return 0, nil
}

func (p *Pack) hookWrite(cpu *vm.CPU, mem *vm.Memory, _ string, _ any) (int32, error) {
	fd, addr, size := cpu.GetRegister(0), cpu.GetRegister(1), cpu.GetRegister(2)

	buf := make([]byte, size)
	for i := uint32(0); i < size; i++ {
		b, err := mem.ReadByte(addr + i)
		if err != nil {
			return -1, nil //nolint:nilerr // guest-visible errno path, not a host fault
		}
		buf[i] = b
	}

	var w io.Writer
	switch fd {
	case 1:
		w = p.Stdout
	case 2:
		w = p.Stderr
	default:
		return -1, nil
	}

	n, err := w.Write(buf)
	if err != nil {
		return -1, nil //nolint:nilerr
	}
	//nolint:gosec // G115: n is bounded by size, itself a guest-supplied uint32 write length
	return int32(n), nil
}

func (p *Pack) hookRead(cpu *vm.CPU, mem *vm.Memory, _ string, _ any) (int32, error) {
	fd, addr, size := cpu.GetRegister(0), cpu.GetRegister(1), cpu.GetRegister(2)
	if fd != 0 {
		return -1, nil
	}

	buf := make([]byte, size)
	n, err := os.Stdin.Read(buf)
	if err != nil && err != io.EOF {
		return -1, nil //nolint:nilerr
	}
	for i := 0; i < n; i++ {
		if err := mem.WriteByte(addr+uint32(i), buf[i]); err != nil {
			return -1, nil //nolint:nilerr
		}
	}
	//nolint:gosec // G115: n is bounded by the size of buf, itself bounded by the guest-supplied size
	return int32(n), nil
}

func (p *Pack) hookClose(cpu *vm.CPU, _ *vm.Memory, _ string, _ any) (int32, error) {
	return 0, nil
}
