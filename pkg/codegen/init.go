package codegen

import (
	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
	"github.com/zykkk01/pku-compile-principles/pkg/util"
)

// flattenInit turns a nested brace initializer into a flat element sequence of
// length d1*d2*...*dk. Nil entries are implicit zeros.
//
// A braced sub-initializer aligns to the largest sub-array whose opening brace
// has not been consumed: the write cursor must sit on a multiple of that
// level's stride when the brace opens, and the sub-initializer accounts for
// exactly one stride's worth of elements, zero-padded at the end.
func (ctx *Context) flattenInit(tok token.Token, dims []int, init *ast.Node) []*ast.Node {
	if init.Type != ast.InitList {
		util.Error(init.Tok, "array initializer must be brace-enclosed")
	}

	strides := make([]int, len(dims)+1)
	strides[len(dims)] = 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = strides[i+1] * dims[i]
	}

	flat := make([]*ast.Node, strides[0])
	cursor := 0

	var fill func(level int, list *ast.Node)
	fill = func(level int, list *ast.Node) {
		stride := strides[level]
		if cursor%stride != 0 {
			util.Error(list.Tok, "initializer braces are misaligned with the array dimensions")
		}
		end := cursor + stride
		for _, item := range list.Data.(ast.InitListNode).Items {
			if cursor >= end {
				util.Error(item.Tok, "too many elements in array initializer")
			}
			if item.Type == ast.InitList {
				if level+1 > len(dims)-1 {
					util.Error(item.Tok, "braces nested deeper than the array dimensions")
				}
				// The nested list aligns to the shallowest level below this
				// one whose stride divides the cursor position, i.e. the
				// largest sub-array that starts at the cursor.
				next := level + 1
				for next < len(dims)-1 && cursor%strides[next] != 0 {
					next++
				}
				fill(next, item)
			} else {
				flat[cursor] = item
				cursor++
			}
		}
		// Missing trailing positions are zeros.
		cursor = end
	}

	fill(0, init)
	return flat
}
