package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/zykkk01/pku-compile-principles/pkg/config"
	"github.com/zykkk01/pku-compile-principles/pkg/ir"
)

// riscvBackend emits RV32 assembly from the IR graph. Every temporary lives in
// its spill slot; t0-t2 are the only scratch registers and no callee-saved
// registers are touched.
type riscvBackend struct {
	out   *strings.Builder
	prog  *ir.Program
	fn    *ir.Function
	frame *frameInfo
	cfg   *config.Config
}

func NewRISCVBackend() Backend { return &riscvBackend{} }

func (b *riscvBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	b.out = &sb
	b.prog = prog
	b.cfg = cfg

	if len(prog.Globals) > 0 {
		b.line("  .data")
		for _, g := range prog.Globals {
			b.genGlobal(g)
		}
	}
	for _, fn := range prog.Funcs {
		b.genFunc(fn)
	}
	return bytes.NewBufferString(sb.String()), nil
}

func (b *riscvBackend) line(format string, args ...interface{}) {
	fmt.Fprintf(b.out, format, args...)
	b.out.WriteString("\n")
}

func (b *riscvBackend) genGlobal(g *ir.Value) {
	b.line("  .globl %s", g.Name)
	b.line("%s:", g.Name)
	switch g.Init.Kind {
	case ir.ZeroInit:
		b.line("  .zero %d", g.Type.Base.Size())
	case ir.Aggregate:
		for _, elem := range g.Init.Elems {
			b.line("  .word %d", elem.Int)
		}
	case ir.Integer:
		b.line("  .word %d", g.Init.Int)
	default:
		panic("riscv: unexpected global initializer")
	}
}

// blockLabel mangles basic-block names with the function name; block names
// like endif_0 repeat across functions.
func (b *riscvBackend) blockLabel(block string) string {
	return b.fn.Name + "_" + block
}

func (b *riscvBackend) epilogueLabel() string {
	return b.fn.Name + "_epilogue"
}

func (b *riscvBackend) genFunc(fn *ir.Function) {
	b.fn = fn
	b.frame = planFrame(fn, b.cfg.StackAlignment)

	b.line("  .text")
	b.line("  .globl %s", fn.Name)
	b.line("%s:", fn.Name)
	b.genPrologue()

	for i, bb := range fn.Blocks {
		if i > 0 {
			b.line("%s:", b.blockLabel(bb.Name))
		}
		for _, instr := range bb.Instrs {
			b.genInstr(instr)
		}
	}

	b.line("%s:", b.epilogueLabel())
	b.genEpilogue()
	b.line("")
}

func (b *riscvBackend) genPrologue() {
	size := b.frame.size
	if -size >= -2048 {
		b.line("  addi sp, sp, %d", -size)
	} else {
		b.line("  li t0, %d", -size)
		b.line("  add sp, sp, t0")
	}
	if b.frame.raSaved {
		b.spAccess("sw", "ra", size-4, "t0")
	}
}

func (b *riscvBackend) genEpilogue() {
	size := b.frame.size
	if b.frame.raSaved {
		b.spAccess("lw", "ra", size-4, "t0")
	}
	if size <= 2047 {
		b.line("  addi sp, sp, %d", size)
	} else {
		b.line("  li t0, %d", size)
		b.line("  add sp, sp, t0")
	}
	b.line("  ret")
}

// spAccess emits an sp-relative load or store, materializing the offset when
// it does not fit the 12-bit immediate of the I-type encoding. tmp must not be
// the data register of a store.
func (b *riscvBackend) spAccess(op, reg string, offset int, tmp string) {
	if offset >= -2048 && offset <= 2047 {
		b.line("  %s %s, %d(sp)", op, reg, offset)
		return
	}
	b.line("  li %s, %d", tmp, offset)
	b.line("  add %s, sp, %s", tmp, tmp)
	b.line("  %s %s, 0(%s)", op, reg, tmp)
}

// loadValue materializes an IR operand into reg.
func (b *riscvBackend) loadValue(v *ir.Value, reg string) {
	switch v.Kind {
	case ir.Integer:
		b.line("  li %s, %d", reg, v.Int)
	case ir.FuncArg:
		if v.ArgIndex < 8 {
			b.line("  mv %s, a%d", reg, v.ArgIndex)
		} else {
			// Incoming stack arguments live just above our frame.
			b.spAccess("lw", reg, b.frame.size+(v.ArgIndex-8)*4, reg)
		}
	case ir.Alloc:
		// The allocation is the address of its slot.
		b.loadSlotAddr(v, reg)
	case ir.GlobalAlloc:
		b.line("  la %s, %s", reg, v.Name)
	default:
		off, ok := b.frame.offsets[v]
		if !ok {
			panic(fmt.Sprintf("riscv: value %q has no spill slot", v.Name))
		}
		b.spAccess("lw", reg, off, reg)
	}
}

// loadSlotAddr puts the address of an allocation's storage into reg.
func (b *riscvBackend) loadSlotAddr(v *ir.Value, reg string) {
	off := b.frame.offsets[v]
	if off >= -2048 && off <= 2047 {
		b.line("  addi %s, sp, %d", reg, off)
		return
	}
	b.line("  li %s, %d", reg, off)
	b.line("  add %s, sp, %s", reg, reg)
}

// saveValue spills reg into the instruction's slot. tmp is used for large
// offsets and must differ from reg.
func (b *riscvBackend) saveValue(v *ir.Value, reg, tmp string) {
	off, ok := b.frame.offsets[v]
	if !ok {
		panic(fmt.Sprintf("riscv: value %q has no spill slot", v.Name))
	}
	b.spAccess("sw", reg, off, tmp)
}

func (b *riscvBackend) genInstr(instr *ir.Value) {
	switch instr.Kind {
	case ir.Alloc, ir.Integer, ir.ZeroInit, ir.Aggregate, ir.FuncArg:
		// No code; these exist as operands only.

	case ir.Return:
		if instr.Val != nil {
			b.loadValue(instr.Val, "a0")
		}
		b.line("  j %s", b.epilogueLabel())

	case ir.Binary:
		b.loadValue(instr.Lhs, "t0")
		b.loadValue(instr.Rhs, "t1")
		b.genBinaryOp(instr.Op)
		b.saveValue(instr, "t0", "t1")

	case ir.Load:
		switch instr.Ptr.Kind {
		case ir.Alloc:
			b.spAccess("lw", "t0", b.frame.offsets[instr.Ptr], "t0")
		case ir.GlobalAlloc:
			b.line("  la t0, %s", instr.Ptr.Name)
			b.line("  lw t0, 0(t0)")
		default:
			b.loadValue(instr.Ptr, "t0")
			b.line("  lw t0, 0(t0)")
		}
		b.saveValue(instr, "t0", "t1")

	case ir.Store:
		b.loadValue(instr.Val, "t0")
		switch instr.Ptr.Kind {
		case ir.Alloc:
			b.spAccess("sw", "t0", b.frame.offsets[instr.Ptr], "t1")
		case ir.GlobalAlloc:
			b.line("  la t1, %s", instr.Ptr.Name)
			b.line("  sw t0, 0(t1)")
		default:
			b.loadValue(instr.Ptr, "t1")
			b.line("  sw t0, 0(t1)")
		}

	case ir.Branch:
		b.loadValue(instr.Cond, "t0")
		b.line("  bnez t0, %s", b.blockLabel(instr.True))
		b.line("  j %s", b.blockLabel(instr.False))

	case ir.Jump:
		b.line("  j %s", b.blockLabel(instr.Target))

	case ir.Call:
		for i, arg := range instr.Args {
			if i < 8 {
				b.loadValue(arg, fmt.Sprintf("a%d", i))
			} else {
				b.loadValue(arg, "t0")
				b.line("  sw t0, %d(sp)", (i-8)*4)
			}
		}
		b.line("  call %s", instr.Callee)
		if instr.Type.Kind != ir.Unit {
			b.saveValue(instr, "a0", "t0")
		}

	case ir.GetElemPtr, ir.GetPtr:
		switch instr.Ptr.Kind {
		case ir.GlobalAlloc:
			b.line("  la t0, %s", instr.Ptr.Name)
		case ir.Alloc:
			b.loadSlotAddr(instr.Ptr, "t0")
		default:
			b.loadValue(instr.Ptr, "t0")
		}
		b.loadValue(instr.Index, "t1")
		b.line("  li t2, 4")
		b.line("  mul t1, t1, t2")
		b.line("  add t0, t0, t1")
		b.saveValue(instr, "t0", "t1")

	default:
		panic("riscv: unhandled instruction kind")
	}
}

// genBinaryOp combines t0 and t1 into t0. Comparisons without a native
// instruction expand to the canonical two-instruction sequences; logical and
// booleanises both operands before the bitwise op.
func (b *riscvBackend) genBinaryOp(op ir.BinOp) {
	switch op {
	case ir.OpAdd:
		b.line("  add t0, t0, t1")
	case ir.OpSub:
		b.line("  sub t0, t0, t1")
	case ir.OpMul:
		b.line("  mul t0, t0, t1")
	case ir.OpDiv:
		b.line("  div t0, t0, t1")
	case ir.OpMod:
		b.line("  rem t0, t0, t1")
	case ir.OpLt:
		b.line("  slt t0, t0, t1")
	case ir.OpGt:
		b.line("  sgt t0, t0, t1")
	case ir.OpLe:
		b.line("  sgt t0, t0, t1")
		b.line("  seqz t0, t0")
	case ir.OpGe:
		b.line("  slt t0, t0, t1")
		b.line("  seqz t0, t0")
	case ir.OpEq:
		b.line("  xor t0, t0, t1")
		b.line("  seqz t0, t0")
	case ir.OpNe:
		b.line("  xor t0, t0, t1")
		b.line("  snez t0, t0")
	case ir.OpAnd:
		b.line("  snez t0, t0")
		b.line("  snez t1, t1")
		b.line("  and t0, t0, t1")
	case ir.OpOr:
		b.line("  or t0, t0, t1")
		b.line("  snez t0, t0")
	default:
		panic("riscv: unhandled binary operator")
	}
}
