// Package util holds the source-file registry and the diagnostic printers
// shared by every compiler stage.
package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/zykkk01/pku-compile-principles/pkg/config"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich error messages.
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// findFileAndLine converts a token to a file-specific location.
func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "unknown", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the position.
func printErrorLine(stream *os.File, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(stream, "  %s\n", string(content[lineStart:lineEnd]))

	if tok.Column < 1 {
		return
	}
	fmt.Fprintf(stream, "  %s\033[32m^", strings.Repeat(" ", tok.Column-1))
	if tok.Len > 1 {
		fmt.Fprint(stream, strings.Repeat("~", tok.Len-1))
	}
	fmt.Fprintln(stream, "\033[0m")
}

// Error prints a formatted error message and exits the program. The compiler
// aborts on the first error; there is no partial output.
func Error(tok token.Token, format string, args ...interface{}) {
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(os.Stderr, "%s:%d:%d: \033[31merror:\033[0m ", filename, line, col)
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	printErrorLine(os.Stderr, tok)
	os.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled.
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(os.Stderr, "%s:%d:%d: \033[33mwarning:\033[0m ", filename, line, col)
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintf(os.Stderr, " [-W%s]\n", cfg.Warnings[wt].Name)
	printErrorLine(os.Stderr, tok)
}
