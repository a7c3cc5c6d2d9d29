package codegen

import (
	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/symbols"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
	"github.com/zykkk01/pku-compile-principles/pkg/util"
)

// evalConst is the scope-aware constant evaluator: a pure fold over the
// expression tree that resolves references to constant scalars through the
// symbol table. It fails on anything touching runtime state: variables, array
// elements and calls. Both sides of && and || are evaluated, since a constant
// result has no side effects to skip.
func (ctx *Context) evalConst(node *ast.Node) (int32, bool) {
	if node == nil {
		return 0, false
	}
	switch node.Type {
	case ast.Number:
		return node.Data.(ast.NumberNode).Value, true

	case ast.LVal:
		d := node.Data.(ast.LValNode)
		if len(d.Indices) != 0 {
			return 0, false
		}
		sym := ctx.syms.Lookup(d.Name)
		if sym == nil || sym.Kind != symbols.KindVar {
			return 0, false
		}
		if sym.Storage != symbols.StorageConst || !sym.Type.IsScalar() {
			return 0, false
		}
		return sym.ConstVal, true

	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		v, ok := ctx.evalConst(d.Expr)
		if !ok {
			return 0, false
		}
		switch d.Op {
		case token.Plus:
			return v, true
		case token.Minus:
			return -v, true
		case token.Not:
			if v == 0 {
				return 1, true
			}
			return 0, true
		}
		return 0, false

	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		l, ok := ctx.evalConst(d.Left)
		if !ok {
			return 0, false
		}
		r, ok := ctx.evalConst(d.Right)
		if !ok {
			return 0, false
		}
		return ctx.foldConstBinary(node.Tok, d.Op, l, r)
	}
	return 0, false
}

func (ctx *Context) foldConstBinary(tok token.Token, op token.Type, l, r int32) (int32, bool) {
	b := func(v bool) int32 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case token.Plus:
		return l + r, true
	case token.Minus:
		return l - r, true
	case token.Star:
		return l * r, true
	case token.Slash:
		if r == 0 {
			util.Error(tok, "division by zero in constant expression")
		}
		return l / r, true
	case token.Rem:
		if r == 0 {
			util.Error(tok, "modulo by zero in constant expression")
		}
		return l % r, true
	case token.Lt:
		return b(l < r), true
	case token.Gt:
		return b(l > r), true
	case token.Lte:
		return b(l <= r), true
	case token.Gte:
		return b(l >= r), true
	case token.EqEq:
		return b(l == r), true
	case token.Neq:
		return b(l != r), true
	case token.AndAnd:
		return b(l != 0 && r != 0), true
	case token.OrOr:
		return b(l != 0 || r != 0), true
	}
	return 0, false
}

// evalConstOrError evaluates an expression that the language requires to be a
// compile-time constant: const initializers, array dimensions and global
// initializers.
func (ctx *Context) evalConstOrError(node *ast.Node) int32 {
	if node == nil {
		util.Error(token.Token{}, "missing constant expression")
	}
	if node.Type == ast.InitList {
		util.Error(node.Tok, "expected a constant expression, found an initializer list")
	}
	v, ok := ctx.evalConst(node)
	if !ok {
		util.Error(node.Tok, "expression is not a compile-time constant")
	}
	return v
}
