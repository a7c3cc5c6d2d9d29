package token

type Type int

const (
	EOF Type = iota
	Ident
	Number

	// Keywords
	Int
	Void
	Const
	If
	Else
	While
	Break
	Continue
	Return

	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma

	// Operators
	Eq
	Plus
	Minus
	Star
	Slash
	Rem
	Lt
	Gt
	Lte
	Gte
	EqEq
	Neq
	AndAnd
	OrOr
	Not
)

var KeywordMap = map[string]Type{
	"int":      Int,
	"void":     Void,
	"const":    Const,
	"if":       If,
	"else":     Else,
	"while":    While,
	"break":    Break,
	"continue": Continue,
	"return":   Return,
}

var opStrings = map[Type]string{
	Eq: "=", Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%",
	Lt: "<", Gt: ">", Lte: "<=", Gte: ">=", EqEq: "==", Neq: "!=",
	AndAnd: "&&", OrOr: "||", Not: "!",
}

// OpString returns the source spelling of an operator token, for diagnostics.
func OpString(t Type) string {
	if s, ok := opStrings[t]; ok {
		return s
	}
	for kw, kt := range KeywordMap {
		if kt == t {
			return kw
		}
	}
	return "?"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
