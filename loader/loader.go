// Package loader parses an ARM ELF32 executable and maps it into a vm.VM:
// PT_LOAD segments become memory segments, PT_DYNAMIC's DT_HASH/DT_GNU_HASH
// entries size the dynamic symbol table, undefined dynamic symbols become
// hook slots a caller can bind with vm.HookTable.OverrideSymbol, and the
// SHT_SYMTAB/SHT_STRTAB pair (if present) becomes a debug symbol table that
// the CLI uses for its symbol dump and traces.
package loader

import (
	"encoding/binary"
	"fmt"
	"os"

	elf "github.com/yalue/elf_reader"

	"github.com/lookbusy1344/arm-emulator/vm"
)

// Standard ELF32 program-header types and flags this loader cares about.
// elf_reader exposes the section/program header table; the ARM-specific
// semantics built on top of it (permission mapping, dynamic symbol
// resolution) are this package's job.
const (
	ptLoad    = 1
	ptDynamic = 2

	pfExecute = 0x1
	pfWrite   = 0x2
	pfRead    = 0x4

	dtHash    = 4
	dtStrtab  = 5
	dtSymtab  = 6
	dtStrsz   = 10
	dtGNUHash = 0x6ffffef5

	shtSymtab = 2
	shtStrtab = 3

	elf32SymSize = 16 // Elf32_Sym: name,value,size(4 each) + info,other(1 each) + shndx(2)
	elf32DynSize = 8  // Elf32_Dyn: d_tag, d_un (both 4 bytes on ELF32)
)

// Symbol is one entry resolved out of a symbol table (dynamic or debug).
type Symbol struct {
	Name    string
	Value   uint32
	Defined bool // false for SHN_UNDEF dynamic imports awaiting a hook
}

// LoadResult describes what LoadELF found, for the CLI to act on.
type LoadResult struct {
	EntryPoint      uint32
	UndefinedImport []Symbol          // dynamic symbols with no definition: hook candidates
	DebugSymbols    map[string]uint32 // SHT_SYMTAB names, for the CLI's symbol dump and traces
}

// LoadELF reads the ELF32 executable at path, maps its loadable segments
// into machine.Memory, and returns the symbol information needed to wire up
// hooks and debug lookups. It does not itself install any hooks; the caller
// decides policy for unresolved imports (bind to the stdlib pack, or leave
// their original instruction words unpatched).
func LoadELF(machine *vm.VM, path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	file, err := elf.ParseELFFile(data)
	if err != nil {
		return nil, fmt.Errorf("loader: not a valid ELF file: %w", err)
	}
	if file.Is64Bit() {
		return nil, fmt.Errorf("loader: 64-bit ELF not supported, this is an ARMv5 (32-bit) emulator")
	}

	phCount := file.GetProgramHeaderCount()
	var dynPhys []byte
	var dynVirt uint32

	for i := uint16(0); i < phCount; i++ {
		ph, err := file.GetProgramHeader(i)
		if err != nil {
			return nil, fmt.Errorf("loader: program header %d: %w", i, err)
		}

		switch uint32(ph.GetType()) {
		case ptLoad:
			if err := mapLoadSegment(machine, data, ph, i); err != nil {
				return nil, err
			}
		case ptDynamic:
			off, size := ph.GetOffset(), ph.GetFileSize()
			if off+size > uint64(len(data)) {
				return nil, fmt.Errorf("loader: PT_DYNAMIC extends past end of file")
			}
			dynPhys = data[off : off+size]
			dynVirt = uint32(ph.GetVirtualAddress())
		}
	}

	entry, err := file.GetEntryPoint()
	if err != nil {
		return nil, fmt.Errorf("loader: cannot determine entry point: %w", err)
	}
	machine.EntryPoint = uint32(entry)
	machine.CPU.PC = uint32(entry)
	machine.CPU.NextPC = uint32(entry)

	result := &LoadResult{EntryPoint: uint32(entry), DebugSymbols: make(map[string]uint32)}

	if dynPhys != nil {
		undefined, err := resolveDynamicSymbols(machine, dynPhys, dynVirt)
		if err != nil {
			return nil, fmt.Errorf("loader: dynamic symbol resolution: %w", err)
		}
		result.UndefinedImport = undefined
	}

	loadDebugSymbols(file, data, result.DebugSymbols)

	return result, nil
}

// mapLoadSegment maps one PT_LOAD program header into machine.Memory,
// zero-filling the gap between file size and memory size (BSS).
func mapLoadSegment(machine *vm.VM, data []byte, ph elf.ELFProgramHeader, index uint16) error {
	memSize := uint32(ph.GetMemorySize())
	if memSize == 0 {
		return nil
	}
	fileSize := uint32(ph.GetFileSize())
	vaddr := uint32(ph.GetVirtualAddress())
	offset := ph.GetOffset()

	if offset+uint64(fileSize) > uint64(len(data)) {
		return fmt.Errorf("loader: PT_LOAD segment %d extends past end of file", index)
	}

	var perm vm.MemoryPermission
	flags := ph.GetFlags()
	if flags&pfRead != 0 {
		perm |= vm.PermRead
	}
	if flags&pfWrite != 0 {
		perm |= vm.PermWrite
	}
	if flags&pfExecute != 0 {
		perm |= vm.PermExecute
	}

	name := fmt.Sprintf("elf-load-%d", index)
	if err := machine.Memory.AddSegment(name, vaddr, memSize, perm); err != nil {
		return fmt.Errorf("loader: mapping PT_LOAD segment %d at 0x%08X: %w", index, vaddr, err)
	}

	content := data[offset : offset+uint64(fileSize)]
	if err := machine.Memory.LoadBytesUnsafe(vaddr, content); err != nil {
		return fmt.Errorf("loader: writing PT_LOAD segment %d contents: %w", index, err)
	}

	return nil
}

// resolveDynamicSymbols walks a PT_DYNAMIC table looking for DT_SYMTAB,
// DT_STRTAB and a hash section to size the symbol table (DT_HASH's
// nchain field, or DT_GNU_HASH's bucket-derived maximum, mirroring
// arm32_elf_dynamic_init). Every symbol with SHN_UNDEF (shndx==0) becomes a
// hook candidate for the caller to bind.
func resolveDynamicSymbols(machine *vm.VM, dyn []byte, dynVirt uint32) ([]Symbol, error) {
	var symtabVirt, strtabVirt, hashVirt, gnuHashVirt uint32
	var strtabSize uint32
	haveHash, haveGNUHash := false, false

	count := len(dyn) / elf32DynSize
	for i := 0; i < count; i++ {
		entry := dyn[i*elf32DynSize:]
		tag := binary.LittleEndian.Uint32(entry[0:4])
		val := binary.LittleEndian.Uint32(entry[4:8])

		switch tag {
		case dtSymtab:
			symtabVirt = val
		case dtStrtab:
			strtabVirt = val
		case dtStrsz:
			strtabSize = val
		case dtHash:
			hashVirt = val
			haveHash = true
		case dtGNUHash:
			gnuHashVirt = val
			haveGNUHash = true
		}
	}

	if symtabVirt == 0 || strtabVirt == 0 {
		// No dynamic symbols to resolve (statically linked, or a minimal
		// dynamic section with no imports).
		return nil, nil
	}

	symtabSize, err := symbolTableSize(machine, hashVirt, haveHash, gnuHashVirt, haveGNUHash)
	if err != nil {
		return nil, err
	}
	if symtabSize == 0 {
		return nil, nil
	}

	var undefined []Symbol
	for i := uint32(0); i < symtabSize; i++ {
		symAddr := symtabVirt + i*elf32SymSize
		raw := make([]byte, elf32SymSize)
		if err := readFully(machine, symAddr, raw); err != nil {
			continue
		}

		nameOff := binary.LittleEndian.Uint32(raw[0:4])
		value := binary.LittleEndian.Uint32(raw[4:8])
		shndx := binary.LittleEndian.Uint16(raw[14:16])

		if strtabSize != 0 && nameOff >= strtabSize {
			continue
		}
		name, err := readCString(machine, strtabVirt+nameOff)
		if err != nil || name == "" {
			continue
		}

		if shndx == 0 { // SHN_UNDEF
			undefined = append(undefined, Symbol{Name: name, Value: value, Defined: false})
		}
	}

	return undefined, nil
}

// symbolTableSize derives the dynamic symbol count from whichever hash
// section is present, matching DT_HASH's `nchain` field or DT_GNU_HASH's
// bucket-array maximum-plus-one.
func symbolTableSize(machine *vm.VM, hashVirt uint32, haveHash bool, gnuHashVirt uint32, haveGNUHash bool) (uint32, error) {
	if haveHash {
		nchain, err := machine.Memory.ReadWord(hashVirt + 4)
		if err != nil {
			return 0, fmt.Errorf("reading DT_HASH nchain: %w", err)
		}
		return nchain, nil
	}

	if haveGNUHash {
		nbuckets, err := machine.Memory.ReadWord(gnuHashVirt)
		if err != nil {
			return 0, fmt.Errorf("reading DT_GNU_HASH nbuckets: %w", err)
		}
		symOffset, err := machine.Memory.ReadWord(gnuHashVirt + 4)
		if err != nil {
			return 0, fmt.Errorf("reading DT_GNU_HASH symoffset: %w", err)
		}
		bloomSize, err := machine.Memory.ReadWord(gnuHashVirt + 8)
		if err != nil {
			return 0, fmt.Errorf("reading DT_GNU_HASH bloom size: %w", err)
		}

		bucketsBase := gnuHashVirt + 16 + bloomSize*4 // bloom words are 4 bytes each on ARM32
		var max uint32
		for b := uint32(0); b < nbuckets; b++ {
			v, err := machine.Memory.ReadWord(bucketsBase + b*4)
			if err != nil {
				return 0, fmt.Errorf("reading DT_GNU_HASH bucket %d: %w", b, err)
			}
			if v > max {
				max = v
			}
		}
		if max == 0 {
			return symOffset, nil
		}
		return max + 1, nil
	}

	return 0, fmt.Errorf("dynamic symbol table present but neither DT_HASH nor DT_GNU_HASH found")
}

func readFully(machine *vm.VM, addr uint32, dst []byte) error {
	for i := 0; i < len(dst); i += 4 {
		w, err := machine.Memory.ReadWord(addr + uint32(i))
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst[i:], w)
	}
	return nil
}

func readCString(machine *vm.VM, addr uint32) (string, error) {
	var buf []byte
	for i := uint32(0); i < 256; i++ {
		b, err := machine.Memory.ReadByte(addr + i)
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

// loadDebugSymbols scans the section table for an SHT_SYMTAB paired with
// its SHT_STRTAB, mirroring arm32_elf_init_debug_symbols. Missing debug
// info (a stripped binary) is not an error: the map is simply left empty.
func loadDebugSymbols(file elf.ELFFile, data []byte, out map[string]uint32) {
	secCount := file.GetSectionCount()
	for i := uint16(0); i < secCount; i++ {
		sh, err := file.GetSectionHeader(i)
		if err != nil || uint32(sh.GetType()) != shtSymtab {
			continue
		}
		link := sh.GetLink()
		if link >= uint32(secCount) {
			continue
		}
		strSh, err := file.GetSectionHeader(uint16(link))
		if err != nil || uint32(strSh.GetType()) != shtStrtab {
			continue
		}

		symOff, symSize := sh.GetOffset(), sh.GetSize()
		strOff, strSize := strSh.GetOffset(), strSh.GetSize()
		if symOff+symSize > uint64(len(data)) || strOff+strSize > uint64(len(data)) {
			continue
		}

		symData := data[symOff : symOff+symSize]
		strData := data[strOff : strOff+strSize]
		count := len(symData) / elf32SymSize

		for s := 0; s < count; s++ {
			raw := symData[s*elf32SymSize:]
			nameOff := binary.LittleEndian.Uint32(raw[0:4])
			value := binary.LittleEndian.Uint32(raw[4:8])
			if nameOff >= uint32(len(strData)) {
				continue
			}
			end := nameOff
			for end < uint32(len(strData)) && strData[end] != 0 {
				end++
			}
			name := string(strData[nameOff:end])
			if name != "" {
				out[name] = value
			}
		}
		return
	}
}
