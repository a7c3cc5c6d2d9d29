// Package codegen lowers the AST to textual Koopa IR and, in a second stage,
// translates the parsed IR graph to RISC-V assembly.
package codegen

import (
	"fmt"
	"strings"

	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/config"
	"github.com/zykkk01/pku-compile-principles/pkg/symbols"
	"github.com/zykkk01/pku-compile-principles/pkg/util"
)

// Context is the lowering state: the output buffer, the symbol table and the
// per-function bookkeeping. All counters live here so the compiler stays
// re-entrant when used as a library.
type Context struct {
	out     strings.Builder
	syms    *symbols.Table
	cfg     *config.Config
	retVoid bool // return type of the function being lowered
}

func NewContext(cfg *config.Config) *Context {
	return &Context{syms: symbols.NewTable(), cfg: cfg}
}

// runtimeDecls is the fixed library of external I/O and timing procedures,
// pre-declared at the top of every emitted program.
var runtimeDecls = []struct {
	name    string
	decl    string
	retVoid bool
}{
	{"getint", "decl @getint(): i32", false},
	{"getch", "decl @getch(): i32", false},
	{"getarray", "decl @getarray(*i32): i32", false},
	{"putint", "decl @putint(i32)", true},
	{"putch", "decl @putch(i32)", true},
	{"putarray", "decl @putarray(i32, *i32)", true},
	{"starttime", "decl @starttime()", true},
	{"stoptime", "decl @stoptime()", true},
}

// GenerateKoopa lowers a compilation unit to Koopa IR text.
func (ctx *Context) GenerateKoopa(root *ast.Node) string {
	ctx.declareRuntime()
	for _, item := range root.Data.(ast.BlockNode).Stmts {
		switch item.Type {
		case ast.Decl:
			ctx.genDecl(item)
		case ast.FuncDef:
			ctx.genFuncDef(item)
		default:
			panic("codegen: unexpected top-level node")
		}
	}
	return ctx.out.String()
}

func (ctx *Context) declareRuntime() {
	for _, rt := range runtimeDecls {
		ctx.emitLine(rt.decl)
		ctx.syms.Add(&symbols.Symbol{Ident: rt.name, Kind: symbols.KindFunc, RetVoid: rt.retVoid})
	}
	ctx.emitLine("")
}

func (ctx *Context) emitLine(s string) {
	ctx.out.WriteString(s)
	ctx.out.WriteString("\n")
}

func (ctx *Context) emit(format string, args ...interface{}) {
	ctx.out.WriteString("  ")
	fmt.Fprintf(&ctx.out, format, args...)
	ctx.out.WriteString("\n")
}

func (ctx *Context) emitLabel(name string) {
	ctx.emitLine("%" + name + ":")
}

// --- Functions ---

func (ctx *Context) genFuncDef(node *ast.Node) {
	d := node.Data.(ast.FuncDefNode)

	ctx.syms.ResetCounters()
	sym := &symbols.Symbol{Ident: d.Name, Kind: symbols.KindFunc, RetVoid: d.RetVoid}
	if !ctx.syms.Add(sym) {
		util.Error(node.Tok, "redeclaration of '%s'", d.Name)
	}
	ctx.retVoid = d.RetVoid

	var header strings.Builder
	fmt.Fprintf(&header, "fun @%s(", d.Name)
	for i, p := range d.Params {
		pd := p.Data.(ast.ParamNode)
		if i > 0 {
			header.WriteString(", ")
		}
		if pd.IsArray {
			fmt.Fprintf(&header, "%%%s: *i32", pd.Name)
		} else {
			fmt.Fprintf(&header, "%%%s: i32", pd.Name)
		}
	}
	header.WriteString(")")
	if !d.RetVoid {
		header.WriteString(": i32")
	}
	header.WriteString(" {")
	ctx.emitLine(header.String())
	ctx.emitLabel("entry")

	ctx.syms.EnterScope()
	for _, p := range d.Params {
		pd := p.Data.(ast.ParamNode)
		psym := &symbols.Symbol{Ident: pd.Name, Kind: symbols.KindVar}
		if pd.IsArray {
			dims := []int{symbols.DimUnspec}
			for _, dim := range pd.Dims {
				dims = append(dims, ctx.evalDim(dim))
			}
			psym.Type = symbols.VarType{Dims: dims}
		}
		if !ctx.syms.Add(psym) {
			util.Error(p.Tok, "redeclaration of parameter '%s'", pd.Name)
		}

		// Promote the incoming argument to a stack slot so later reads and
		// writes go through memory like any other local.
		if pd.IsArray {
			ctx.emit("@%s = alloc *i32", psym.Name)
		} else {
			ctx.emit("@%s = alloc i32", psym.Name)
		}
		ctx.emit("store %%%s, @%s", pd.Name, psym.Name)
	}

	terminated := ctx.genStmt(d.Body)
	if !terminated {
		if d.RetVoid {
			ctx.emit("ret")
		} else {
			ctx.emit("ret 0")
		}
	}
	if err := ctx.syms.ExitScope(); err != nil {
		panic(err)
	}
	ctx.emitLine("}")
	ctx.emitLine("")
}

// --- Statements ---

// genStmt lowers one statement and reports whether every control-flow path
// through it ends in return, break or continue.
func (ctx *Context) genStmt(node *ast.Node) bool {
	if node == nil {
		return false
	}
	switch node.Type {
	case ast.Block:
		d := node.Data.(ast.BlockNode)
		if !d.IsSynthetic {
			ctx.syms.EnterScope()
		}
		terminated := false
		for _, stmt := range d.Stmts {
			if terminated {
				util.Warn(ctx.cfg, config.WarnUnreachableCode, stmt.Tok, "unreachable code")
				break
			}
			terminated = ctx.genStmt(stmt)
		}
		if !d.IsSynthetic {
			if err := ctx.syms.ExitScope(); err != nil {
				panic(err)
			}
		}
		return terminated

	case ast.Decl:
		ctx.genDecl(node)
		return false

	case ast.Assign:
		ctx.genAssign(node)
		return false

	case ast.If:
		return ctx.genIf(node)

	case ast.While:
		ctx.genWhile(node)
		// The successor may be reachable through break, so a while statement
		// never terminates on its own.
		return false

	case ast.Break:
		label, ok := ctx.syms.CurrentBreak()
		if !ok {
			util.Error(node.Tok, "'break' outside of a loop")
		}
		ctx.emit("jump %%%s", label)
		return true

	case ast.Continue:
		label, ok := ctx.syms.CurrentContinue()
		if !ok {
			util.Error(node.Tok, "'continue' outside of a loop")
		}
		ctx.emit("jump %%%s", label)
		return true

	case ast.Return:
		d := node.Data.(ast.ReturnNode)
		if d.Expr != nil {
			if ctx.retVoid {
				util.Error(node.Tok, "returning a value from a void function")
			}
			v := ctx.genExpr(d.Expr)
			ctx.emit("ret %s", v)
		} else {
			ctx.emit("ret")
		}
		return true

	default:
		// Expression statement; the value is discarded, so a void call is
		// fine here.
		if node.Type == ast.Call {
			ctx.genCall(node)
		} else {
			ctx.genExpr(node)
		}
		return false
	}
}

func (ctx *Context) genAssign(node *ast.Node) {
	d := node.Data.(ast.AssignNode)
	rhs := ctx.genExpr(d.Value)

	lv := d.Target.Data.(ast.LValNode)
	sym := ctx.syms.Lookup(lv.Name)
	if sym == nil {
		util.Error(d.Target.Tok, "undefined identifier '%s'", lv.Name)
	}
	if sym.Kind == symbols.KindFunc {
		util.Error(d.Target.Tok, "cannot assign to function '%s'", lv.Name)
	}
	if sym.Storage == symbols.StorageConst {
		util.Error(d.Target.Tok, "cannot assign to constant '%s'", lv.Name)
	}

	if sym.Type.IsScalar() {
		if len(lv.Indices) != 0 {
			util.Error(d.Target.Tok, "'%s' is not an array", lv.Name)
		}
		ctx.emit("store %s, @%s", rhs, sym.Name)
		return
	}
	if len(lv.Indices) != len(sym.Type.Dims) {
		util.Error(d.Target.Tok, "wrong number of indices for '%s'", lv.Name)
	}
	ptr := ctx.genArrayPtr(sym, lv.Indices)
	ctx.emit("store %s, %s", rhs, ptr)
}

func (ctx *Context) genIf(node *ast.Node) bool {
	d := node.Data.(ast.IfNode)
	cond := ctx.genExpr(d.Cond)
	id := ctx.syms.NewLabelID()
	thenL := fmt.Sprintf("then_%d", id)
	elseL := fmt.Sprintf("else_%d", id)
	endL := fmt.Sprintf("endif_%d", id)

	if d.Else != nil {
		ctx.emit("br %s, %%%s, %%%s", cond, thenL, elseL)
	} else {
		ctx.emit("br %s, %%%s, %%%s", cond, thenL, endL)
	}

	ctx.emitLabel(thenL)
	thenTerm := ctx.genStmt(d.Then)
	if !thenTerm {
		ctx.emit("jump %%%s", endL)
	}

	elseTerm := false
	if d.Else != nil {
		ctx.emitLabel(elseL)
		elseTerm = ctx.genStmt(d.Else)
		if !elseTerm {
			ctx.emit("jump %%%s", endL)
		}
	}

	// When both arms terminate the merge point is unreachable; omit it.
	if !(thenTerm && elseTerm) {
		ctx.emitLabel(endL)
	}
	return thenTerm && elseTerm
}

func (ctx *Context) genWhile(node *ast.Node) {
	d := node.Data.(ast.WhileNode)
	id := ctx.syms.NewLabelID()
	entryL := fmt.Sprintf("while_entry_%d", id)
	bodyL := fmt.Sprintf("while_body_%d", id)
	endL := fmt.Sprintf("while_end_%d", id)

	ctx.emit("jump %%%s", entryL)
	ctx.emitLabel(entryL)
	cond := ctx.genExpr(d.Cond)
	ctx.emit("br %s, %%%s, %%%s", cond, bodyL, endL)

	ctx.emitLabel(bodyL)
	ctx.syms.EnterLoop(entryL, endL)
	bodyTerm := ctx.genStmt(d.Body)
	if err := ctx.syms.ExitLoop(); err != nil {
		panic(err)
	}
	if !bodyTerm {
		ctx.emit("jump %%%s", entryL)
	}
	ctx.emitLabel(endL)
}

// --- Declarations ---

func (ctx *Context) genDecl(node *ast.Node) {
	d := node.Data.(ast.DeclNode)
	for _, def := range d.Defs {
		ctx.genVarDef(def)
	}
}

func (ctx *Context) genVarDef(node *ast.Node) {
	d := node.Data.(ast.VarDefNode)

	dims := make([]int, len(d.Dims))
	for i, dim := range d.Dims {
		dims[i] = ctx.evalDim(dim)
	}

	sym := &symbols.Symbol{Ident: d.Name, Kind: symbols.KindVar, Type: symbols.VarType{Dims: dims}}
	if d.IsConst {
		sym.Storage = symbols.StorageConst
	}

	if len(dims) == 0 && d.IsConst {
		// Constant scalars fold away entirely: no storage, no IR.
		sym.ConstVal = ctx.evalConstOrError(d.Init)
		if !ctx.syms.Add(sym) {
			util.Error(node.Tok, "redeclaration of '%s'", d.Name)
		}
		return
	}

	if !ctx.syms.Add(sym) {
		util.Error(node.Tok, "redeclaration of '%s'", d.Name)
	}

	if ctx.syms.IsGlobal() {
		ctx.genGlobalVarDef(node, d, sym, dims)
	} else {
		ctx.genLocalVarDef(node, d, sym, dims)
	}
}

func (ctx *Context) genGlobalVarDef(node *ast.Node, d ast.VarDefNode, sym *symbols.Symbol, dims []int) {
	if len(dims) == 0 {
		if d.Init == nil {
			ctx.emitLine(fmt.Sprintf("global @%s = alloc i32, zeroinit", sym.Name))
		} else {
			ctx.emitLine(fmt.Sprintf("global @%s = alloc i32, %d", sym.Name, ctx.evalConstOrError(d.Init)))
		}
		return
	}

	total := sym.Type.Total()
	if d.Init == nil {
		ctx.emitLine(fmt.Sprintf("global @%s = alloc [i32, %d], zeroinit", sym.Name, total))
		return
	}
	flat := ctx.flattenInit(node.Tok, dims, d.Init)
	vals := make([]string, total)
	for i, item := range flat {
		if item == nil {
			vals[i] = "0"
		} else {
			vals[i] = fmt.Sprintf("%d", ctx.evalConstOrError(item))
		}
	}
	ctx.emitLine(fmt.Sprintf("global @%s = alloc [i32, %d], {%s}", sym.Name, total, strings.Join(vals, ", ")))
}

func (ctx *Context) genLocalVarDef(node *ast.Node, d ast.VarDefNode, sym *symbols.Symbol, dims []int) {
	if len(dims) == 0 {
		ctx.emit("@%s = alloc i32", sym.Name)
		if d.Init != nil {
			if d.Init.Type == ast.InitList {
				util.Error(d.Init.Tok, "scalar '%s' cannot take a brace initializer", d.Name)
			}
			v := ctx.genExpr(d.Init)
			ctx.emit("store %s, @%s", v, sym.Name)
		}
		return
	}

	total := sym.Type.Total()
	ctx.emit("@%s = alloc [i32, %d]", sym.Name, total)
	if d.Init == nil {
		return
	}
	flat := ctx.flattenInit(node.Tok, dims, d.Init)
	for i, item := range flat {
		val := "0"
		if item != nil {
			if d.IsConst {
				// Elements of a constant array must fold, even though the
				// array itself still gets runtime storage.
				val = fmt.Sprintf("%d", ctx.evalConstOrError(item))
			} else {
				val = ctx.genExpr(item)
			}
		}
		ptr := ctx.syms.NewTemp()
		ctx.emit("%s = getelemptr @%s, %d", ptr, sym.Name, i)
		ctx.emit("store %s, %s", val, ptr)
	}
}

// evalDim evaluates an array-dimension expression, which must be a positive
// compile-time constant.
func (ctx *Context) evalDim(node *ast.Node) int {
	v := ctx.evalConstOrError(node)
	if v <= 0 {
		util.Error(node.Tok, "array dimension must be positive")
	}
	return int(v)
}
