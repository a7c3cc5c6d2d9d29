package ast

import (
	"github.com/zykkk01/pku-compile-principles/pkg/token"
	"github.com/zykkk01/pku-compile-principles/pkg/util"
)

// FoldConstants performs compile-time constant evaluation on the AST. It is a
// pure literal fold: identifiers are left alone (the lowering stage resolves
// constant symbols against the symbol table). Arithmetic is two's-complement
// 32-bit with C semantics; division and modulo truncate toward zero.
func FoldConstants(node *Node) *Node {
	if node == nil {
		return nil
	}

	switch d := node.Data.(type) {
	case LValNode:
		for i, idx := range d.Indices {
			d.Indices[i] = FoldConstants(idx)
		}
		node.Data = d
	case UnaryOpNode:
		d.Expr = FoldConstants(d.Expr)
		node.Data = d
	case BinaryOpNode:
		d.Left = FoldConstants(d.Left)
		d.Right = FoldConstants(d.Right)
		node.Data = d
	case CallNode:
		for i, arg := range d.Args {
			d.Args[i] = FoldConstants(arg)
		}
		node.Data = d
	case InitListNode:
		for i, item := range d.Items {
			d.Items[i] = FoldConstants(item)
		}
		node.Data = d
	case AssignNode:
		d.Value = FoldConstants(d.Value)
		node.Data = d
	case BlockNode:
		for i, stmt := range d.Stmts {
			d.Stmts[i] = FoldConstants(stmt)
		}
		node.Data = d
	case IfNode:
		d.Cond = FoldConstants(d.Cond)
		d.Then = FoldConstants(d.Then)
		d.Else = FoldConstants(d.Else)
		node.Data = d
	case WhileNode:
		d.Cond = FoldConstants(d.Cond)
		d.Body = FoldConstants(d.Body)
		node.Data = d
	case ReturnNode:
		d.Expr = FoldConstants(d.Expr)
		node.Data = d
	case VarDefNode:
		for i, dim := range d.Dims {
			d.Dims[i] = FoldConstants(dim)
		}
		d.Init = FoldConstants(d.Init)
		node.Data = d
	case DeclNode:
		for i, def := range d.Defs {
			d.Defs[i] = FoldConstants(def)
		}
		node.Data = d
	case ParamNode:
		for i, dim := range d.Dims {
			d.Dims[i] = FoldConstants(dim)
		}
		node.Data = d
	case FuncDefNode:
		d.Body = FoldConstants(d.Body)
		node.Data = d
	}

	switch node.Type {
	case BinaryOp:
		d := node.Data.(BinaryOpNode)
		if d.Left.Type == Number && d.Right.Type == Number {
			l := d.Left.Data.(NumberNode).Value
			r := d.Right.Data.(NumberNode).Value
			if v, ok := foldBinary(node.Tok, d.Op, l, r); ok {
				return NewNumber(node.Tok, v)
			}
		}
	case UnaryOp:
		d := node.Data.(UnaryOpNode)
		if d.Expr.Type == Number {
			v := d.Expr.Data.(NumberNode).Value
			switch d.Op {
			case token.Plus:
				return NewNumber(node.Tok, v)
			case token.Minus:
				return NewNumber(node.Tok, -v)
			case token.Not:
				return NewNumber(node.Tok, boolToInt(v == 0))
			}
		}
	}

	return node
}

func foldBinary(tok token.Token, op token.Type, l, r int32) (int32, bool) {
	switch op {
	case token.Plus:
		return l + r, true
	case token.Minus:
		return l - r, true
	case token.Star:
		return l * r, true
	case token.Slash:
		if r == 0 {
			util.Error(tok, "compile-time division by zero")
		}
		return l / r, true
	case token.Rem:
		if r == 0 {
			util.Error(tok, "compile-time modulo by zero")
		}
		return l % r, true
	case token.Lt:
		return boolToInt(l < r), true
	case token.Gt:
		return boolToInt(l > r), true
	case token.Lte:
		return boolToInt(l <= r), true
	case token.Gte:
		return boolToInt(l >= r), true
	case token.EqEq:
		return boolToInt(l == r), true
	case token.Neq:
		return boolToInt(l != r), true
	case token.AndAnd:
		return boolToInt(l != 0 && r != 0), true
	case token.OrOr:
		return boolToInt(l != 0 || r != 0), true
	}
	return 0, false
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
