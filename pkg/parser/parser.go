// Package parser builds the AST from a token stream with recursive descent;
// binary expressions use precedence climbing, so the grammar's forwarding
// chain (MulExp ... LOrExp) collapses into a single BinaryOp variant.
package parser

import (
	"strconv"

	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
	"github.com/zykkk01/pku-compile-principles/pkg/util"
)

// Parser holds the state for the parsing process.
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
}

// NewParser creates and initializes a new Parser from a token stream.
func NewParser(tokens []token.Token) *Parser {
	p := &Parser{tokens: tokens}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) {
	if p.check(tokType) {
		p.advance()
		return
	}
	util.Error(p.current, message)
}

// --- Expression Parsing ---

func binaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 5
	case token.Plus, token.Minus:
		return 4
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 3
	case token.EqEq, token.Neq:
		return 2
	case token.AndAnd:
		return 1
	case token.OrOr:
		return 0
	default:
		return -1
	}
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	if p.match(token.Number) {
		val, _ := strconv.ParseInt(p.previous.Value, 10, 64)
		return ast.NewNumber(tok, int32(val))
	}
	if p.match(token.Ident) {
		name := p.previous.Value
		if p.match(token.LParen) {
			var args []*ast.Node
			if !p.check(token.RParen) {
				for {
					args = append(args, p.parseExpr())
					if !p.match(token.Comma) {
						break
					}
				}
			}
			p.expect(token.RParen, "expected ')' after function arguments")
			return ast.NewCall(tok, name, args)
		}
		return ast.NewLVal(tok, name, p.parseIndices())
	}
	if p.match(token.LParen) {
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')' after expression")
		return expr
	}
	util.Error(tok, "expected an expression")
	return nil
}

func (p *Parser) parseIndices() []*ast.Node {
	var indices []*ast.Node
	for p.match(token.LBracket) {
		indices = append(indices, p.parseExpr())
		p.expect(token.RBracket, "expected ']' after array index")
	}
	return indices
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	if p.match(token.Plus) || p.match(token.Minus) || p.match(token.Not) {
		op := p.previous.Type
		return ast.NewUnaryOp(tok, op, p.parseUnaryExpr())
	}
	return p.parsePrimaryExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := binaryOpPrecedence(op)
		if prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinaryOp(opTok, op, left, right)
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node {
	return p.parseBinaryExpr(0)
}

// --- Statement and Declaration Parsing ---

func (p *Parser) parseBlockStmt() *ast.Node {
	tok := p.current
	p.expect(token.LBrace, "expected '{' to start a block")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		stmts = append(stmts, p.parseBlockItem())
	}
	p.expect(token.RBrace, "expected '}' after block")
	return ast.NewBlock(tok, stmts, false)
}

func (p *Parser) parseBlockItem() *ast.Node {
	if p.check(token.Const) || p.check(token.Int) && p.peek().Type == token.Ident {
		// A type keyword inside a block always starts a declaration; function
		// definitions only appear at the top level.
		return p.parseDecl()
	}
	return p.parseStmt()
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.If):
		p.expect(token.LParen, "expected '(' after 'if'")
		cond := p.parseExpr()
		p.expect(token.RParen, "expected ')' after if condition")
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseStmt()
		}
		return ast.NewIf(tok, cond, thenBody, elseBody)
	case p.match(token.While):
		p.expect(token.LParen, "expected '(' after 'while'")
		cond := p.parseExpr()
		p.expect(token.RParen, "expected ')' after while condition")
		body := p.parseStmt()
		return ast.NewWhile(tok, cond, body)
	case p.check(token.LBrace):
		return p.parseBlockStmt()
	case p.match(token.Break):
		p.expect(token.Semi, "expected ';' after 'break'")
		return ast.NewBreak(tok)
	case p.match(token.Continue):
		p.expect(token.Semi, "expected ';' after 'continue'")
		return ast.NewContinue(tok)
	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after return statement")
		return ast.NewReturn(tok, expr)
	case p.match(token.Semi):
		return ast.NewBlock(tok, nil, true)
	default:
		expr := p.parseExpr()
		if expr.Type == ast.LVal && p.check(token.Eq) {
			eqTok := p.current
			p.advance()
			value := p.parseExpr()
			p.expect(token.Semi, "expected ';' after assignment")
			return ast.NewAssign(eqTok, expr, value)
		}
		p.expect(token.Semi, "expected ';' after expression statement")
		return expr
	}
}

// parseDecl parses `const int ...;` or `int ...;` declaration lists.
func (p *Parser) parseDecl() *ast.Node {
	declTok := p.current
	isConst := p.match(token.Const)
	p.expect(token.Int, "expected 'int' in declaration")

	var defs []*ast.Node
	for {
		p.expect(token.Ident, "expected identifier in declaration")
		defs = append(defs, p.parseVarDef(p.previous, isConst))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.Semi, "expected ';' after declaration")
	return ast.NewDecl(declTok, isConst, defs)
}

func (p *Parser) parseVarDef(nameTok token.Token, isConst bool) *ast.Node {
	var dims []*ast.Node
	for p.match(token.LBracket) {
		dims = append(dims, p.parseExpr())
		p.expect(token.RBracket, "expected ']' after array dimension")
	}
	var init *ast.Node
	if p.match(token.Eq) {
		init = p.parseInitVal()
	} else if isConst {
		util.Error(nameTok, "constant '%s' requires an initializer", nameTok.Value)
	}
	return ast.NewVarDef(nameTok, nameTok.Value, dims, init, isConst)
}

func (p *Parser) parseInitVal() *ast.Node {
	tok := p.current
	if p.match(token.LBrace) {
		var items []*ast.Node
		if !p.check(token.RBrace) {
			for {
				items = append(items, p.parseInitVal())
				if !p.match(token.Comma) {
					break
				}
			}
		}
		p.expect(token.RBrace, "expected '}' after initializer list")
		return ast.NewInitList(tok, items)
	}
	return p.parseExpr()
}

// --- Top-Level Parsing ---

func (p *Parser) parseFuncDef(retVoid bool, nameTok token.Token) *ast.Node {
	p.expect(token.LParen, "expected '(' after function name")
	var params []*ast.Node
	if !p.check(token.RParen) {
		for {
			params = append(params, p.parseParam())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")
	body := p.parseBlockStmt()
	return ast.NewFuncDef(nameTok, nameTok.Value, retVoid, params, body)
}

func (p *Parser) parseParam() *ast.Node {
	p.expect(token.Int, "expected 'int' in parameter declaration")
	p.expect(token.Ident, "expected parameter name")
	nameTok := p.previous
	isArray := false
	var dims []*ast.Node
	if p.match(token.LBracket) {
		isArray = true
		p.expect(token.RBracket, "expected ']' for array parameter")
		for p.match(token.LBracket) {
			dims = append(dims, p.parseExpr())
			p.expect(token.RBracket, "expected ']' after array dimension")
		}
	}
	return ast.NewParam(nameTok, nameTok.Value, isArray, dims)
}

// Parse consumes the token stream and returns the compilation unit: a
// synthetic block whose items are global declarations and function definitions
// in source order.
func (p *Parser) Parse() *ast.Node {
	tok := p.current
	var items []*ast.Node
	for !p.check(token.EOF) {
		switch {
		case p.check(token.Const):
			items = append(items, p.parseDecl())
		case p.match(token.Void):
			p.expect(token.Ident, "expected function name after 'void'")
			items = append(items, p.parseFuncDef(true, p.previous))
		case p.match(token.Int):
			p.expect(token.Ident, "expected identifier after 'int'")
			nameTok := p.previous
			if p.check(token.LParen) {
				items = append(items, p.parseFuncDef(false, nameTok))
				continue
			}
			// Global variable declaration list; the 'int' is already consumed.
			var defs []*ast.Node
			defs = append(defs, p.parseVarDef(nameTok, false))
			for p.match(token.Comma) {
				p.expect(token.Ident, "expected identifier in declaration")
				defs = append(defs, p.parseVarDef(p.previous, false))
			}
			p.expect(token.Semi, "expected ';' after declaration")
			items = append(items, ast.NewDecl(nameTok, false, defs))
		default:
			util.Error(p.current, "expected a top-level definition (function or declaration)")
		}
	}
	return ast.NewBlock(tok, items, true)
}
