package binfmt

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
)

// Segment is one loadable region of a guest program.
//
// Data holds the file-backed bytes of the segment. MemSize may exceed
// len(Data); the remainder is zero-initialized memory (e.g. .bss).
type Segment struct {
	VAddr   uint32
	Data    []byte
	MemSize uint32
}

// Program is the loadable form of a guest ELF binary: its entry point and
// loadable segments, independent of the host that produced it.
type Program struct {
	Entry    uint32
	Segments []Segment
}

// LoadProgram parses an ELF binary into a Program.
//
// The binary must be a 32-bit little-endian RISC-V executable, and every
// loadable segment must fit below maxMem. Anything else is a load error:
// it indicates a toolchain or target mismatch, not a transient condition.
func LoadProgram(data []byte, maxMem uint32) (*Program, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF: %w", err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("unsupported ELF class %v, expected ELFCLASS32", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("unsupported ELF byte order %v, expected little-endian", f.Data)
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("unsupported ELF machine %v, expected RISC-V", f.Machine)
	}
	if f.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("unsupported ELF type %v, expected executable", f.Type)
	}

	entry := uint32(f.Entry)
	if entry >= maxMem {
		return nil, fmt.Errorf("entry point 0x%08x is outside guest memory (max 0x%08x)", entry, maxMem)
	}

	prog := &Program{Entry: entry}

	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if p.Memsz == 0 {
			continue
		}

		vaddr := uint32(p.Vaddr)
		memSize := uint32(p.Memsz)
		if p.Filesz > p.Memsz {
			return nil, fmt.Errorf("segment %d: file size %d exceeds memory size %d", i, p.Filesz, p.Memsz)
		}
		end := uint64(vaddr) + uint64(memSize)
		if end > uint64(maxMem) {
			return nil, fmt.Errorf("segment %d: [0x%08x, 0x%08x) is outside guest memory (max 0x%08x)", i, vaddr, end, maxMem)
		}

		segData := make([]byte, p.Filesz)
		if _, err := io.ReadFull(p.Open(), segData); err != nil {
			return nil, fmt.Errorf("segment %d: failed to read %d bytes: %w", i, p.Filesz, err)
		}

		prog.Segments = append(prog.Segments, Segment{
			VAddr:   vaddr,
			Data:    segData,
			MemSize: memSize,
		})
	}

	if len(prog.Segments) == 0 {
		return nil, fmt.Errorf("no loadable segments found")
	}

	return prog, nil
}
