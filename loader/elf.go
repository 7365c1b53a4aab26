// Package loader provides guest ELF inspection for the profiler: loadable
// segment extraction for hosts that map guest memory, and symbol resolution
// so a checkpoint function can be named instead of spelled as raw addresses.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents the loadable image of a guest ELF binary.
type Program struct {
	// EntryPoint is the virtual address where execution begins.
	EntryPoint uint64
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
}

// Symbol is a named address range in a guest binary, typically a function.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// Load parses a 64-bit ELF binary and returns its loadable image. The
// profiler is ISA-agnostic, so no machine-type restriction applies.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}

	prog := &Program{
		EntryPoint: f.Entry,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	return prog, nil
}

// FindSymbol resolves a symbol name in a 64-bit ELF binary to its address
// and size. It is used to derive the checkpoint region from a function
// name. A binary without a symbol table, or a name that does not appear in
// it, is an error.
func FindSymbol(path, name string) (Symbol, error) {
	f, err := elf.Open(path)
	if err != nil {
		return Symbol{}, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return Symbol{}, fmt.Errorf("not a 64-bit ELF file")
	}

	syms, err := f.Symbols()
	if err != nil {
		return Symbol{}, fmt.Errorf("failed to read symbol table: %w", err)
	}

	for _, sym := range syms {
		if sym.Name == name {
			return Symbol{
				Name: sym.Name,
				Addr: sym.Value,
				Size: sym.Size,
			}, nil
		}
	}

	return Symbol{}, fmt.Errorf("symbol %q not found", name)
}
