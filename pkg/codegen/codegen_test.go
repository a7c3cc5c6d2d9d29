package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/config"
	"github.com/zykkk01/pku-compile-principles/pkg/ir"
	"github.com/zykkk01/pku-compile-principles/pkg/lexer"
	"github.com/zykkk01/pku-compile-principles/pkg/parser"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
)

func lower(t *testing.T, src string) string {
	t.Helper()
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnUnreachableCode, false)
	toks := lexer.Tokenize([]rune(src), 0, cfg)
	root := parser.NewParser(toks).Parse()
	root = ast.FoldConstants(root)
	return NewContext(cfg).GenerateKoopa(root)
}

// lowerAndParse round-trips the emitted text through the IR parser so tests
// can assert on the graph instead of on spelling.
func lowerAndParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	text := lower(t, src)
	prog, err := ir.ParseProgram(text)
	if err != nil {
		t.Fatalf("emitted IR does not parse: %v\n%s", err, text)
	}
	if err := prog.Validate(); err != nil {
		t.Fatalf("emitted IR is malformed: %v\n%s", err, text)
	}
	return prog
}

// funcBody returns the emitted text of one function, header through closing
// brace.
func funcBody(t *testing.T, text, name string) string {
	t.Helper()
	marker := "fun @" + name + "("
	start := strings.Index(text, marker)
	if start < 0 {
		t.Fatalf("function %s not found in:\n%s", name, text)
	}
	end := strings.Index(text[start:], "\n}")
	return text[start : start+end+2]
}

const preamble = `decl @getint(): i32
decl @getch(): i32
decl @getarray(*i32): i32
decl @putint(i32)
decl @putch(i32)
decl @putarray(i32, *i32)
decl @starttime()
decl @stoptime()
`

func TestLowerReturnZero(t *testing.T) {
	got := lower(t, "int main() { return 0; }")
	want := preamble + `
fun @main(): i32 {
%entry:
  ret 0
}

`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("IR mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerLocalsAndArithmetic(t *testing.T) {
	got := lower(t, "int main() { int a = 1; int b = 2; return a + b * 3; }")
	want := `fun @main(): i32 {
%entry:
  @a_1 = alloc i32
  store 1, @a_1
  @b_1 = alloc i32
  store 2, @b_1
  %0 = load @a_1
  %1 = load @b_1
  %2 = mul %1, 3
  %3 = add %0, %2
  ret %3
}`
	if diff := cmp.Diff(want, funcBody(t, got, "main")); diff != "" {
		t.Errorf("IR mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultReturnSynthesis(t *testing.T) {
	prog := lowerAndParse(t, `
void f() { putint(1); }
int g() { getint(); }
int h() { return 7; }
`)
	f := prog.FindFunc("f")
	last := f.Blocks[len(f.Blocks)-1].Instrs
	ret := last[len(last)-1]
	if ret.Kind != ir.Return || ret.Val != nil {
		t.Fatalf("void function should end in a bare ret, got %+v", ret)
	}

	g := prog.FindFunc("g")
	last = g.Blocks[len(g.Blocks)-1].Instrs
	ret = last[len(last)-1]
	if ret.Kind != ir.Return || ret.Val == nil || ret.Val.Int != 0 {
		t.Fatalf("int function should get a default ret 0, got %+v", ret)
	}

	h := prog.FindFunc("h")
	for _, bb := range h.Blocks {
		for _, instr := range bb.Instrs {
			if instr.Kind == ir.Return && instr.Val != nil && instr.Val.Int == 0 {
				t.Fatal("terminated function must not grow a default return")
			}
		}
	}
}

func TestTerminationAnalysis(t *testing.T) {
	// Both if arms return: the merge block is suppressed and no default
	// return is added.
	text := lower(t, "int sign(int x) { if (x < 0) return 0 - 1; else return 1; }")
	body := funcBody(t, text, "sign")
	if strings.Contains(body, "endif") {
		t.Fatalf("merge block should be suppressed when both arms terminate:\n%s", body)
	}
	if strings.Contains(body, "ret 0\n") {
		t.Fatalf("terminated function must not get a default return:\n%s", body)
	}

	// A while loop never terminates by itself: the default return stays.
	text = lower(t, "int f() { while (1) { } }")
	body = funcBody(t, text, "f")
	if !strings.Contains(body, "ret 0") {
		t.Fatalf("loop successor needs the default return:\n%s", body)
	}
}

func TestConstantFoldingIsPure(t *testing.T) {
	// Everything below reduces at compile time; the function body must be a
	// single literal return with no loads, calls or arithmetic.
	text := lower(t, `
const int N = 4;
const int M = N * 2 + 1;
int main() { return M > N && !(N == 0); }
`)
	body := funcBody(t, text, "main")
	want := `fun @main(): i32 {
%entry:
  ret 1
}`
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("constant expression left residue (-want +got):\n%s", diff)
	}
}

func TestUniqueNames(t *testing.T) {
	prog := lowerAndParse(t, `
int x = 1;
int x_1 = 2;
int f(int x) { int y = x; { int x = y; y = x; } return y; }
int main() { int x = 3; return f(x); }
`)
	seen := make(map[string]bool)
	for _, g := range prog.Globals {
		if seen[g.Name] {
			t.Fatalf("global name %q emitted twice", g.Name)
		}
		seen[g.Name] = true
	}
	for _, fn := range prog.Funcs {
		for _, bb := range fn.Blocks {
			for _, instr := range bb.Instrs {
				if instr.Kind == ir.Alloc && seen[instr.Name] {
					t.Fatalf("local allocation %q collides with a global", instr.Name)
				}
			}
		}
	}
}

func TestShortCircuitLowering(t *testing.T) {
	text := lower(t, `
int side(int x) { putint(x); return x; }
int main(int cond) { return cond && side(1); }
`)
	body := funcBody(t, text, "main")

	// The right-hand side call must sit strictly after the conditional branch
	// and before the merge label, so the skipped path never executes it.
	brPos := strings.Index(body, "br ")
	rhsLabel := strings.Index(body, "%land_rhs_0:")
	callPos := strings.Index(body, "call @side")
	endLabel := strings.Index(body, "%land_end_0:")
	if brPos < 0 || rhsLabel < 0 || callPos < 0 || endLabel < 0 {
		t.Fatalf("missing short-circuit structure:\n%s", body)
	}
	if !(brPos < rhsLabel && rhsLabel < callPos && callPos < endLabel) {
		t.Fatalf("side effect is not confined to the shortcut block:\n%s", body)
	}
	// The result travels through a memory slot, not a phi.
	if !strings.Contains(body, "= alloc i32") {
		t.Fatalf("short-circuit result should use a stack slot:\n%s", body)
	}
}

func TestShortCircuitOrBranchesReversed(t *testing.T) {
	body := funcBody(t, lower(t, "int main(int c) { return c || 5; }"), "main")
	if !strings.Contains(body, ", %lor_end_0, %lor_rhs_0") {
		t.Fatalf("|| must branch to the end block when the left side is true:\n%s", body)
	}
}

func TestArrayLayout(t *testing.T) {
	// a[i][j][k] resolves to ((i*d2 + j)*d3 + k) elements from the base;
	// with constant indices the offset collapses to one literal.
	body := funcBody(t, lower(t, `
int main() {
	int a[2][3][4];
	return a[1][2][3];
}`), "main")
	// (1*3+2)*4+3 = 23
	if !strings.Contains(body, "getelemptr @a_1, 23") {
		t.Fatalf("constant indices should collapse to offset 23:\n%s", body)
	}
	if !strings.Contains(body, "alloc [i32, 24]") {
		t.Fatalf("array allocation should flatten to 24 elements:\n%s", body)
	}

	// With runtime indices the stride chain appears explicitly.
	body = funcBody(t, lower(t, `
int main(int i, int j) {
	int a[2][3];
	return a[i][j];
}`), "main")
	if !strings.Contains(body, "mul") || !strings.Contains(body, "add") {
		t.Fatalf("runtime indexing should emit the stride arithmetic:\n%s", body)
	}
}

func TestPartialIndexingYieldsPointer(t *testing.T) {
	text := lower(t, `
int sum(int v[], int n) { return v[0]; }
int main() {
	int a[2][3];
	return sum(a[1], 3);
}`)
	body := funcBody(t, text, "main")
	// a[1] with dims [2][3] is the subarray at offset 3; it is passed as a
	// pointer, not loaded.
	if !strings.Contains(body, "getelemptr @a_1, 3") {
		t.Fatalf("partial index should compute the subarray base:\n%s", body)
	}
	sum := funcBody(t, text, "sum")
	// Inside sum the parameter is a pointer: loaded, then advanced via getptr.
	if !strings.Contains(sum, "alloc *i32") || !strings.Contains(sum, "getptr") {
		t.Fatalf("array parameter should be pointer-typed and use getptr:\n%s", sum)
	}
}

func TestWholeArrayParameterGetsGetptrZero(t *testing.T) {
	// Passing an array parameter through unindexed normalizes with getptr 0.
	body := funcBody(t, lower(t, `
int take(int p[]) { return getarray(p); }
`), "take")
	if !strings.Contains(body, "getptr") || !strings.Contains(body, ", 0") {
		t.Fatalf("whole-pointer use of an array parameter should emit getptr 0:\n%s", body)
	}
}

func TestGlobalEmission(t *testing.T) {
	text := lower(t, `
const int N = 4;
int g;
int h = 10;
int a[N] = {1, 2, 3, 4};
int z[N];
int main() { return a[2] + g; }
`)
	for _, want := range []string{
		"global @g = alloc i32, zeroinit",
		"global @h = alloc i32, 10",
		"global @a = alloc [i32, 4], {1, 2, 3, 4}",
		"global @z = alloc [i32, 4], zeroinit",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	// The constant N is folded away entirely.
	if strings.Contains(text, "@N") {
		t.Errorf("constant scalar must not reach the IR:\n%s", text)
	}
}

func TestLocalArrayInitialization(t *testing.T) {
	body := funcBody(t, lower(t, `
int main() {
	int a[2][3] = {{1, 2, 3}, {4, 5, 6}};
	return a[1][1];
}`), "main")
	for _, want := range []string{
		"@a_1 = alloc [i32, 6]",
		"getelemptr @a_1, 0",
		"store 1, %0",
		"getelemptr @a_1, 5",
		"store 6, %5",
		"getelemptr @a_1, 4",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestWhileLowering(t *testing.T) {
	body := funcBody(t, lower(t, `
int main() {
	int i = 0;
	int s = 0;
	while (i < 10) { s = s + i; i = i + 1; }
	return s;
}`), "main")
	for _, want := range []string{
		"jump %while_entry_0",
		"%while_entry_0:",
		"br %", // condition branch
		"%while_body_0:",
		"%while_end_0:",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestBreakContinueTargets(t *testing.T) {
	body := funcBody(t, lower(t, `
int main() {
	while (1) {
		while (2) { break; }
		continue;
	}
	return 0;
}`), "main")
	if !strings.Contains(body, "jump %while_end_1") {
		t.Fatalf("break should target the inner loop end:\n%s", body)
	}
	if !strings.Contains(body, "jump %while_entry_0") {
		t.Fatalf("continue should target the outer loop entry:\n%s", body)
	}
}

func TestParameterPromotion(t *testing.T) {
	body := funcBody(t, lower(t, "int f(int n) { return n; }"), "f")
	want := `fun @f(%n: i32): i32 {
%entry:
  @n_1 = alloc i32
  store %n, @n_1
  %0 = load @n_1
  ret %0
}`
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("parameter promotion mismatch (-want +got):\n%s", diff)
	}
}

func TestCallLowering(t *testing.T) {
	body := funcBody(t, lower(t, `
int f(int a, int b) { return a - b; }
int main() { putint(f(3, 4)); return 0; }
`), "main")
	if !strings.Contains(body, "%0 = call @f(3, 4)") {
		t.Fatalf("call with result mismatch:\n%s", body)
	}
	if !strings.Contains(body, "call @putint(%0)") {
		t.Fatalf("void call mismatch:\n%s", body)
	}
}

func TestFlattenInit(t *testing.T) {
	ctx := NewContext(config.NewConfig())
	n := func(v int32) *ast.Node { return ast.NewNumber(token.Token{}, v) }
	list := func(items ...*ast.Node) *ast.Node { return ast.NewInitList(token.Token{}, items) }

	values := func(flat []*ast.Node) []int32 {
		out := make([]int32, len(flat))
		for i, item := range flat {
			if item != nil {
				out[i] = item.Data.(ast.NumberNode).Value
			}
		}
		return out
	}

	tests := []struct {
		name string
		dims []int
		init *ast.Node
		want []int32
	}{
		{"exact", []int{4}, list(n(1), n(2), n(3), n(4)), []int32{1, 2, 3, 4}},
		{"trailing zeros", []int{4}, list(n(1)), []int32{1, 0, 0, 0}},
		{"empty braces", []int{2, 2}, list(list(), list(n(1))), []int32{0, 0, 1, 0}},
		{"nested exact", []int{2, 3}, list(list(n(1), n(2), n(3)), list(n(4), n(5), n(6))), []int32{1, 2, 3, 4, 5, 6}},
		{"partial rows", []int{2, 3}, list(list(n(1)), list(n(4), n(5))), []int32{1, 0, 0, 4, 5, 0}},
		{"flat spill", []int{2, 2}, list(n(1), n(2), n(3)), []int32{1, 2, 3, 0}},
		{"brace after scalars", []int{2, 2}, list(n(1), n(2), list(n(3))), []int32{1, 2, 3, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat := ctx.flattenInit(token.Token{}, tt.dims, tt.init)
			if diff := cmp.Diff(tt.want, values(flat)); diff != "" {
				t.Errorf("flatten mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvalConst(t *testing.T) {
	ctx := NewContext(config.NewConfig())
	n := func(v int32) *ast.Node { return ast.NewNumber(token.Token{}, v) }

	if v, ok := ctx.evalConst(ast.NewBinaryOp(token.Token{}, token.Plus, n(2), n(3))); !ok || v != 5 {
		t.Fatalf("2+3 should evaluate to 5, got %d %v", v, ok)
	}
	// A call is never constant.
	call := ast.NewCall(token.Token{}, "getint", nil)
	if _, ok := ctx.evalConst(call); ok {
		t.Fatal("calls must not be constant")
	}
	// An unbound identifier is not constant.
	if _, ok := ctx.evalConst(ast.NewLVal(token.Token{}, "x", nil)); ok {
		t.Fatal("unbound identifiers must not be constant")
	}
}
