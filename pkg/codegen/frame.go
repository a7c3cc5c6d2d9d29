package codegen

import (
	"github.com/zykkk01/pku-compile-principles/pkg/ir"
)

// frameInfo is the stack layout of one function. Offsets are relative to the
// post-prologue sp and sit above the scratch area reserved for outgoing call
// arguments beyond the eighth.
type frameInfo struct {
	size          int
	raSaved       bool
	stackParamMax int
	offsets       map[*ir.Value]int
}

// planFrame assigns every non-unit-typed instruction a distinct 4-byte-aligned
// spill slot; allocations reserve their full pointee size. The total is padded
// to a 16-byte multiple.
func planFrame(fn *ir.Function, stackAlign int) *frameInfo {
	f := &frameInfo{offsets: make(map[*ir.Value]int)}

	for _, bb := range fn.Blocks {
		for _, instr := range bb.Instrs {
			if instr.Kind == ir.Call {
				f.raSaved = true
				if n := len(instr.Args) - 8; n > f.stackParamMax {
					f.stackParamMax = n
				}
			}
		}
	}

	reserved := 0
	base := f.stackParamMax * 4
	for _, bb := range fn.Blocks {
		for _, instr := range bb.Instrs {
			switch {
			case instr.Kind == ir.Alloc:
				f.offsets[instr] = base + reserved
				reserved += instr.Type.Base.Size()
			case instr.Type.Kind != ir.Unit:
				f.offsets[instr] = base + reserved
				reserved += 4
			}
		}
	}

	total := base + reserved
	if f.raSaved {
		total += 4
	}
	if rem := total % stackAlign; rem != 0 {
		total += stackAlign - rem
	}
	// Even a leaf function that spills nothing adjusts sp, so the frame stays
	// a positive multiple of the alignment.
	if total == 0 {
		total = stackAlign
	}
	f.size = total
	return f
}
