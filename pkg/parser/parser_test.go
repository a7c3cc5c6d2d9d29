package parser

import (
	"testing"

	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/config"
	"github.com/zykkk01/pku-compile-principles/pkg/lexer"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
)

func parseSource(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks := lexer.Tokenize([]rune(src), 0, config.NewConfig())
	return NewParser(toks).Parse()
}

func items(t *testing.T, root *ast.Node) []*ast.Node {
	t.Helper()
	if root.Type != ast.Block {
		t.Fatalf("compilation unit is not a block: %v", root.Type)
	}
	return root.Data.(ast.BlockNode).Stmts
}

func TestParseFuncDef(t *testing.T) {
	root := parseSource(t, "int main() { return 0; }")
	its := items(t, root)
	if len(its) != 1 || its[0].Type != ast.FuncDef {
		t.Fatalf("expected one function definition, got %+v", its)
	}
	d := its[0].Data.(ast.FuncDefNode)
	if d.Name != "main" || d.RetVoid || len(d.Params) != 0 {
		t.Fatalf("unexpected function header: %+v", d)
	}
	stmts := d.Body.Data.(ast.BlockNode).Stmts
	if len(stmts) != 1 || stmts[0].Type != ast.Return {
		t.Fatalf("unexpected body: %+v", stmts)
	}
}

func TestParseParams(t *testing.T) {
	root := parseSource(t, "void f(int a, int b[], int c[][3]) {}")
	d := items(t, root)[0].Data.(ast.FuncDefNode)
	if !d.RetVoid {
		t.Fatal("f should return void")
	}
	if len(d.Params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(d.Params))
	}
	pa := d.Params[0].Data.(ast.ParamNode)
	pb := d.Params[1].Data.(ast.ParamNode)
	pc := d.Params[2].Data.(ast.ParamNode)
	if pa.IsArray || pa.Name != "a" {
		t.Fatalf("param a parsed wrong: %+v", pa)
	}
	if !pb.IsArray || len(pb.Dims) != 0 {
		t.Fatalf("param b parsed wrong: %+v", pb)
	}
	if !pc.IsArray || len(pc.Dims) != 1 {
		t.Fatalf("param c parsed wrong: %+v", pc)
	}
}

func TestPrecedence(t *testing.T) {
	// a + b * c must parse as a + (b * c).
	root := parseSource(t, "int main() { return a + b * c; }")
	body := items(t, root)[0].Data.(ast.FuncDefNode).Body
	expr := body.Data.(ast.BlockNode).Stmts[0].Data.(ast.ReturnNode).Expr
	d := expr.Data.(ast.BinaryOpNode)
	if d.Op != token.Plus {
		t.Fatalf("top operator = %v, want +", d.Op)
	}
	if d.Right.Type != ast.BinaryOp || d.Right.Data.(ast.BinaryOpNode).Op != token.Star {
		t.Fatalf("right operand should be the multiplication, got %+v", d.Right)
	}

	// Relational binds tighter than equality, equality tighter than &&,
	// && tighter than ||.
	root = parseSource(t, "int main() { return a < b == c && d || e; }")
	expr = items(t, root)[0].Data.(ast.FuncDefNode).Body.Data.(ast.BlockNode).Stmts[0].Data.(ast.ReturnNode).Expr
	if expr.Data.(ast.BinaryOpNode).Op != token.OrOr {
		t.Fatalf("top operator should be ||, got %v", expr.Data.(ast.BinaryOpNode).Op)
	}
	land := expr.Data.(ast.BinaryOpNode).Left
	if land.Data.(ast.BinaryOpNode).Op != token.AndAnd {
		t.Fatalf("next operator should be &&, got %v", land.Data.(ast.BinaryOpNode).Op)
	}
}

func TestUnaryChain(t *testing.T) {
	root := parseSource(t, "int main() { return !-+x; }")
	expr := items(t, root)[0].Data.(ast.FuncDefNode).Body.Data.(ast.BlockNode).Stmts[0].Data.(ast.ReturnNode).Expr
	ops := []token.Type{}
	for expr.Type == ast.UnaryOp {
		d := expr.Data.(ast.UnaryOpNode)
		ops = append(ops, d.Op)
		expr = d.Expr
	}
	if len(ops) != 3 || ops[0] != token.Not || ops[1] != token.Minus || ops[2] != token.Plus {
		t.Fatalf("unary chain parsed wrong: %v", ops)
	}
	if expr.Type != ast.LVal {
		t.Fatalf("innermost expression should be the lvalue, got %v", expr.Type)
	}
}

func TestParseDeclarations(t *testing.T) {
	root := parseSource(t, "const int N = 4, M = N + 1;\nint a[N][2] = {{1}, {2, 3}}, b;")
	its := items(t, root)
	if len(its) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(its))
	}

	cd := its[0].Data.(ast.DeclNode)
	if !cd.IsConst || len(cd.Defs) != 2 {
		t.Fatalf("const decl parsed wrong: %+v", cd)
	}

	vd := its[1].Data.(ast.DeclNode)
	if vd.IsConst || len(vd.Defs) != 2 {
		t.Fatalf("var decl parsed wrong: %+v", vd)
	}
	adef := vd.Defs[0].Data.(ast.VarDefNode)
	if adef.Name != "a" || len(adef.Dims) != 2 || adef.Init == nil {
		t.Fatalf("array def parsed wrong: %+v", adef)
	}
	if adef.Init.Type != ast.InitList {
		t.Fatalf("array initializer should be a list, got %v", adef.Init.Type)
	}
	inner := adef.Init.Data.(ast.InitListNode).Items
	if len(inner) != 2 || inner[0].Type != ast.InitList || inner[1].Type != ast.InitList {
		t.Fatalf("nested initializer parsed wrong: %+v", inner)
	}
	bdef := vd.Defs[1].Data.(ast.VarDefNode)
	if bdef.Name != "b" || bdef.Init != nil || len(bdef.Dims) != 0 {
		t.Fatalf("scalar def parsed wrong: %+v", bdef)
	}
}

func TestParseControlFlow(t *testing.T) {
	src := `
int main() {
	int i = 0;
	while (i < 10) {
		if (i == 5) break;
		else i = i + 1;
		continue;
	}
	;
	return i;
}`
	root := parseSource(t, src)
	body := items(t, root)[0].Data.(ast.FuncDefNode).Body.Data.(ast.BlockNode).Stmts
	if body[0].Type != ast.Decl {
		t.Fatalf("first item should be the declaration, got %v", body[0].Type)
	}
	if body[1].Type != ast.While {
		t.Fatalf("second item should be the loop, got %v", body[1].Type)
	}
	w := body[1].Data.(ast.WhileNode)
	loopBody := w.Body.Data.(ast.BlockNode).Stmts
	if loopBody[0].Type != ast.If {
		t.Fatalf("loop body should start with if, got %v", loopBody[0].Type)
	}
	iff := loopBody[0].Data.(ast.IfNode)
	if iff.Then.Type != ast.Break || iff.Else == nil {
		t.Fatalf("if arms parsed wrong: %+v", iff)
	}
	if loopBody[1].Type != ast.Continue {
		t.Fatalf("expected continue, got %v", loopBody[1].Type)
	}
	// The bare semicolon becomes a synthetic empty block.
	if body[2].Type != ast.Block || !body[2].Data.(ast.BlockNode).IsSynthetic {
		t.Fatalf("empty statement parsed wrong: %+v", body[2])
	}
}

func TestParseCallsAndIndexing(t *testing.T) {
	root := parseSource(t, "int main() { return f(a[1][i], 2) + g(); }")
	expr := items(t, root)[0].Data.(ast.FuncDefNode).Body.Data.(ast.BlockNode).Stmts[0].Data.(ast.ReturnNode).Expr
	d := expr.Data.(ast.BinaryOpNode)
	call := d.Left.Data.(ast.CallNode)
	if call.Name != "f" || len(call.Args) != 2 {
		t.Fatalf("call to f parsed wrong: %+v", call)
	}
	arg := call.Args[0].Data.(ast.LValNode)
	if arg.Name != "a" || len(arg.Indices) != 2 {
		t.Fatalf("indexed argument parsed wrong: %+v", arg)
	}
	g := d.Right.Data.(ast.CallNode)
	if g.Name != "g" || len(g.Args) != 0 {
		t.Fatalf("call to g parsed wrong: %+v", g)
	}
}

func TestAssignmentVersusExpressionStatement(t *testing.T) {
	root := parseSource(t, "int main() { a[0] = 1; f(); }")
	body := items(t, root)[0].Data.(ast.FuncDefNode).Body.Data.(ast.BlockNode).Stmts
	if body[0].Type != ast.Assign {
		t.Fatalf("first statement should be an assignment, got %v", body[0].Type)
	}
	if body[1].Type != ast.Call {
		t.Fatalf("second statement should be a call, got %v", body[1].Type)
	}
}
