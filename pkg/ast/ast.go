// Package ast defines the types used to represent the Abstract Syntax Tree.
package ast

import (
	"github.com/zykkk01/pku-compile-principles/pkg/token"
)

// NodeType defines the kind of a node in the AST.
type NodeType int

const (
	// Expressions
	Number NodeType = iota
	LVal
	UnaryOp
	BinaryOp
	Call
	InitList

	// Statements
	Assign
	Block
	If
	While
	Break
	Continue
	Return

	// Declarations
	Decl
	VarDef
	FuncDef
	Param
)

// Node represents a node in the Abstract Syntax Tree. Every variant stores its
// payload in Data; visitors dispatch on Type.
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}
}

// --- Node Data Structs ---

type NumberNode struct{ Value int32 }

// LValNode is a named storage location: a scalar variable, or an array with
// zero or more index expressions.
type LValNode struct {
	Name    string
	Indices []*Node
}

type UnaryOpNode struct {
	Op   token.Type
	Expr *Node
}

type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}

type CallNode struct {
	Name string
	Args []*Node
}

// InitListNode is a brace-enclosed initializer; items are expressions or
// nested InitList nodes.
type InitListNode struct{ Items []*Node }

type AssignNode struct{ Target, Value *Node }

type BlockNode struct {
	Stmts []*Node
	// IsSynthetic marks blocks invented by the parser (the compilation unit,
	// empty statements) that must not open a scope.
	IsSynthetic bool
}

type IfNode struct{ Cond, Then, Else *Node }

type WhileNode struct{ Cond, Body *Node }

type BreakNode struct{}

type ContinueNode struct{}

type ReturnNode struct{ Expr *Node }

// VarDefNode is a single definition inside a declaration: an identifier, its
// dimension expressions (empty for scalars) and an optional initializer.
type VarDefNode struct {
	Name    string
	Dims    []*Node
	Init    *Node
	IsConst bool
}

type DeclNode struct {
	IsConst bool
	Defs    []*Node
}

// ParamNode is a function parameter. IsArray marks the elided leading
// dimension; Dims holds the remaining dimension expressions.
type ParamNode struct {
	Name    string
	IsArray bool
	Dims    []*Node
}

type FuncDefNode struct {
	Name    string
	RetVoid bool
	Params  []*Node
	Body    *Node
}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewNumber(tok token.Token, value int32) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewLVal(tok token.Token, name string, indices []*Node) *Node {
	return newNode(tok, LVal, LValNode{Name: name, Indices: indices})
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right})
}
func NewCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, Call, CallNode{Name: name, Args: args})
}
func NewInitList(tok token.Token, items []*Node) *Node {
	return newNode(tok, InitList, InitListNode{Items: items})
}
func NewAssign(tok token.Token, target, value *Node) *Node {
	return newNode(tok, Assign, AssignNode{Target: target, Value: value})
}
func NewBlock(tok token.Token, stmts []*Node, isSynthetic bool) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts, IsSynthetic: isSynthetic})
}
func NewIf(tok token.Token, cond, then, els *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, Then: then, Else: els})
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body})
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, BreakNode{})
}
func NewContinue(tok token.Token) *Node {
	return newNode(tok, Continue, ContinueNode{})
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr})
}
func NewVarDef(tok token.Token, name string, dims []*Node, init *Node, isConst bool) *Node {
	return newNode(tok, VarDef, VarDefNode{Name: name, Dims: dims, Init: init, IsConst: isConst})
}
func NewDecl(tok token.Token, isConst bool, defs []*Node) *Node {
	return newNode(tok, Decl, DeclNode{IsConst: isConst, Defs: defs})
}
func NewParam(tok token.Token, name string, isArray bool, dims []*Node) *Node {
	return newNode(tok, Param, ParamNode{Name: name, IsArray: isArray, Dims: dims})
}
func NewFuncDef(tok token.Token, name string, retVoid bool, params []*Node, body *Node) *Node {
	return newNode(tok, FuncDef, FuncDefNode{Name: name, RetVoid: retVoid, Params: params, Body: body})
}
