package codegen

import (
	"fmt"
	"strconv"

	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/symbols"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
	"github.com/zykkk01/pku-compile-principles/pkg/util"
)

var binOpNames = map[token.Type]string{
	token.Plus: "add", token.Minus: "sub", token.Star: "mul",
	token.Slash: "div", token.Rem: "mod",
	token.Lt: "lt", token.Gt: "gt", token.Lte: "le", token.Gte: "ge",
	token.EqEq: "eq", token.Neq: "ne",
}

// genExpr lowers an expression and returns its IR operand. Expressions that
// reduce to a compile-time constant produce a literal and emit nothing.
func (ctx *Context) genExpr(node *ast.Node) string {
	if v, ok := ctx.evalConst(node); ok {
		return strconv.FormatInt(int64(v), 10)
	}

	switch node.Type {
	case ast.LVal:
		return ctx.genLValLoad(node)

	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		operand := ctx.genExpr(d.Expr)
		t := ctx.syms.NewTemp()
		switch d.Op {
		case token.Plus:
			ctx.emit("%s = add 0, %s", t, operand)
		case token.Minus:
			ctx.emit("%s = sub 0, %s", t, operand)
		case token.Not:
			ctx.emit("%s = eq 0, %s", t, operand)
		default:
			panic("codegen: unexpected unary operator")
		}
		return t

	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		if d.Op == token.AndAnd || d.Op == token.OrOr {
			return ctx.genShortCircuit(d.Op, d.Left, d.Right)
		}
		lhs := ctx.genExpr(d.Left)
		rhs := ctx.genExpr(d.Right)
		op, ok := binOpNames[d.Op]
		if !ok {
			panic("codegen: unexpected binary operator")
		}
		t := ctx.syms.NewTemp()
		ctx.emit("%s = %s %s, %s", t, op, lhs, rhs)
		return t

	case ast.Call:
		v := ctx.genCall(node)
		if v == "" {
			d := node.Data.(ast.CallNode)
			util.Error(node.Tok, "void function '%s' used as a value", d.Name)
		}
		return v
	}
	panic("codegen: unexpected expression node")
}

// genShortCircuit lowers `a && b` / `a || b` through a stack slot, so the
// result stays live across the control-flow merge without phi nodes.
func (ctx *Context) genShortCircuit(op token.Type, left, right *ast.Node) string {
	id := ctx.syms.NewLabelID()
	var rhsL, endL string
	if op == token.AndAnd {
		rhsL = fmt.Sprintf("land_rhs_%d", id)
		endL = fmt.Sprintf("land_end_%d", id)
	} else {
		rhsL = fmt.Sprintf("lor_rhs_%d", id)
		endL = fmt.Sprintf("lor_end_%d", id)
	}

	slot := ctx.syms.NewTemp()
	ctx.emit("%s = alloc i32", slot)

	lhs := ctx.genExpr(left)
	lhsBool := ctx.syms.NewTemp()
	ctx.emit("%s = ne 0, %s", lhsBool, lhs)
	ctx.emit("store %s, %s", lhsBool, slot)
	if op == token.AndAnd {
		// Only a true left side makes the right side relevant.
		ctx.emit("br %s, %%%s, %%%s", lhsBool, rhsL, endL)
	} else {
		ctx.emit("br %s, %%%s, %%%s", lhsBool, endL, rhsL)
	}

	ctx.emitLabel(rhsL)
	rhs := ctx.genExpr(right)
	rhsBool := ctx.syms.NewTemp()
	ctx.emit("%s = ne 0, %s", rhsBool, rhs)
	ctx.emit("store %s, %s", rhsBool, slot)
	ctx.emit("jump %%%s", endL)

	ctx.emitLabel(endL)
	res := ctx.syms.NewTemp()
	ctx.emit("%s = load %s", res, slot)
	return res
}

func (ctx *Context) genCall(node *ast.Node) string {
	d := node.Data.(ast.CallNode)
	sym := ctx.syms.Lookup(d.Name)
	if sym == nil {
		util.Error(node.Tok, "undefined identifier '%s'", d.Name)
	}
	if sym.Kind != symbols.KindFunc {
		util.Error(node.Tok, "'%s' is not a function", d.Name)
	}

	args := make([]string, len(d.Args))
	for i, arg := range d.Args {
		args[i] = ctx.genExpr(arg)
	}
	argList := ""
	for i, a := range args {
		if i > 0 {
			argList += ", "
		}
		argList += a
	}

	if sym.RetVoid {
		ctx.emit("call @%s(%s)", sym.Name, argList)
		return ""
	}
	t := ctx.syms.NewTemp()
	ctx.emit("%s = call @%s(%s)", t, sym.Name, argList)
	return t
}

// genLValLoad lowers an LVal in rvalue position. Fully indexed arrays load the
// element; partially indexed or bare arrays yield a pointer, which is how
// subarrays are passed to functions.
func (ctx *Context) genLValLoad(node *ast.Node) string {
	d := node.Data.(ast.LValNode)
	sym := ctx.syms.Lookup(d.Name)
	if sym == nil {
		util.Error(node.Tok, "undefined identifier '%s'", d.Name)
	}
	if sym.Kind == symbols.KindFunc {
		util.Error(node.Tok, "function '%s' used as a value", d.Name)
	}

	if sym.Type.IsScalar() {
		if len(d.Indices) != 0 {
			util.Error(node.Tok, "'%s' is not an array", d.Name)
		}
		// Constant scalars were already folded by evalConst.
		t := ctx.syms.NewTemp()
		ctx.emit("%s = load @%s", t, sym.Name)
		return t
	}

	if len(d.Indices) > len(sym.Type.Dims) {
		util.Error(node.Tok, "too many indices for '%s'", d.Name)
	}
	ptr := ctx.genArrayPtr(sym, d.Indices)
	if len(d.Indices) == len(sym.Type.Dims) {
		t := ctx.syms.NewTemp()
		ctx.emit("%s = load %s", t, ptr)
		return t
	}
	return ptr
}

// genArrayPtr computes the flat row-major offset for the given indices and
// returns the element pointer. Arrays allocated here are addressed with
// getelemptr; array parameters hold a pointer that is loaded first and then
// advanced with getptr.
func (ctx *Context) genArrayPtr(sym *symbols.Symbol, indices []*ast.Node) string {
	dims := sym.Type.Dims
	isParam := sym.Type.IsParamArray()

	if len(indices) == 0 {
		if isParam {
			p := ctx.syms.NewTemp()
			ctx.emit("%s = load @%s", p, sym.Name)
			t := ctx.syms.NewTemp()
			ctx.emit("%s = getptr %s, 0", t, p)
			return t
		}
		t := ctx.syms.NewTemp()
		ctx.emit("%s = getelemptr @%s, 0", t, sym.Name)
		return t
	}

	off := ctx.genExpr(indices[0])
	for j := 1; j < len(indices); j++ {
		off = ctx.genArith("mul", off, strconv.Itoa(dims[j]))
		off = ctx.genArith("add", off, ctx.genExpr(indices[j]))
	}
	tail := 1
	for j := len(indices); j < len(dims); j++ {
		tail *= dims[j]
	}
	if tail != 1 {
		off = ctx.genArith("mul", off, strconv.Itoa(tail))
	}

	if isParam {
		p := ctx.syms.NewTemp()
		ctx.emit("%s = load @%s", p, sym.Name)
		t := ctx.syms.NewTemp()
		ctx.emit("%s = getptr %s, %s", t, p, off)
		return t
	}
	t := ctx.syms.NewTemp()
	ctx.emit("%s = getelemptr @%s, %s", t, sym.Name, off)
	return t
}

// genArith emits one arithmetic instruction for the index computation, folding
// it away when both operands are literals.
func (ctx *Context) genArith(op, lhs, rhs string) string {
	l, lerr := strconv.ParseInt(lhs, 10, 64)
	r, rerr := strconv.ParseInt(rhs, 10, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case "add":
			return strconv.FormatInt(int64(int32(l)+int32(r)), 10)
		case "mul":
			return strconv.FormatInt(int64(int32(l)*int32(r)), 10)
		}
	}
	t := ctx.syms.NewTemp()
	ctx.emit("%s = %s %s, %s", t, op, lhs, rhs)
	return t
}
