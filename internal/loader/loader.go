/*
 * yams - Boot image loader
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package loader reads a guest binary into physical memory before the
// first CPU tick: an ELF32 MIPS image via debug/elf (the same package
// the pack's other MIPS emulator uses for its loader), or, if the file
// isn't an ELF, a flat image loaded at a caller-supplied base address.
package loader

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/yams-go/yams/internal/memory"
)

// Result reports where execution should begin after loading.
type Result struct {
	EntryPoint uint32
}

// LoadFile loads path into mem, auto-detecting ELF32 vs. a flat image.
// flatBase is where a non-ELF file is placed and becomes the entry point.
func LoadFile(path string, mem *memory.Memory, flatBase uint32) (Result, error) {
	f, err := elf.Open(path)
	if err == nil {
		defer f.Close()
		return loadELF(f, mem)
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return Result{}, fmt.Errorf("loader: %s: %w", path, rerr)
	}
	return loadFlat(data, mem, flatBase)
}

func loadELF(f *elf.File, mem *memory.Memory) (Result, error) {
	if f.Class != elf.ELFCLASS32 {
		return Result{}, fmt.Errorf("loader: only 32-bit ELF images are supported")
	}
	if f.Machine != elf.EM_MIPS {
		return Result{}, fmt.Errorf("loader: expected EM_MIPS, got %s", f.Machine)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(prog, mem); err != nil {
			return Result{}, err
		}
	}
	return Result{EntryPoint: uint32(f.Entry)}, nil
}

func loadSegment(prog *elf.Prog, mem *memory.Memory) error {
	end := uint64(prog.Vaddr) + prog.Memsz
	if end > uint64(mem.Size()) {
		return fmt.Errorf("loader: segment at %#08x size %d does not fit in %d bytes of memory",
			prog.Vaddr, prog.Memsz, mem.Size())
	}

	data := make([]byte, prog.Filesz)
	if _, err := prog.ReadAt(data, 0); err != nil {
		return fmt.Errorf("loader: reading segment at %#08x: %w", prog.Vaddr, err)
	}

	dst := mem.Slice(uint32(prog.Vaddr), int(prog.Memsz))
	copy(dst, data)
	for i := len(data); i < len(dst); i++ {
		dst[i] = 0 // .bss: zero-fill the part beyond the file image
	}
	return nil
}

func loadFlat(data []byte, mem *memory.Memory, base uint32) (Result, error) {
	end := uint64(base) + uint64(len(data))
	if end > uint64(mem.Size()) {
		return Result{}, fmt.Errorf("loader: flat image of %d bytes at %#08x does not fit in %d bytes of memory",
			len(data), base, mem.Size())
	}
	copy(mem.Slice(base, len(data)), data)
	return Result{EntryPoint: base}, nil
}
