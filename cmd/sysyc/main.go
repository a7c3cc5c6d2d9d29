package main

import (
	"os"

	"github.com/zykkk01/pku-compile-principles/pkg/ast"
	"github.com/zykkk01/pku-compile-principles/pkg/cli"
	"github.com/zykkk01/pku-compile-principles/pkg/codegen"
	"github.com/zykkk01/pku-compile-principles/pkg/config"
	"github.com/zykkk01/pku-compile-principles/pkg/lexer"
	"github.com/zykkk01/pku-compile-principles/pkg/parser"
	"github.com/zykkk01/pku-compile-principles/pkg/token"
	"github.com/zykkk01/pku-compile-principles/pkg/util"
)

func main() {
	app := cli.NewApp("sysyc")
	app.Synopsis = "<-koopa|-riscv> <input.sy> -o <output>"
	app.Description = "A compiler for the SysY language. Emits Koopa IR or RISC-V 32 assembly."
	app.Authors = []string{"zykkk01"}
	app.Repository = "<https://github.com/zykkk01/pku-compile-principles>"

	var (
		outFile  string
		koopa    bool
		riscv    bool
		pedantic bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.Bool(&koopa, "koopa", "", false, "Emit Koopa IR and stop.")
	fs.Bool(&riscv, "riscv", "", false, "Emit RISC-V 32 assembly.")
	fs.Bool(&pedantic, "pedantic", "", false, "Issue all warnings demanded by strict SysY.")

	cfg := config.NewConfig()
	warningFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if pedantic {
			cfg.SetWarning(config.WarnPedantic, true)
		}
		for i, entry := range warningFlags {
			if entry.Enabled != nil && *entry.Enabled {
				cfg.SetWarning(config.Warning(i), true)
			}
			if entry.Disabled != nil && *entry.Disabled {
				cfg.SetWarning(config.Warning(i), false)
			}
		}

		if koopa == riscv {
			util.Error(token.Token{}, "exactly one of -koopa or -riscv must be given")
		}
		if len(inputFiles) != 1 {
			util.Error(token.Token{}, "expected exactly one input file")
		}
		if outFile == "" {
			util.Error(token.Token{}, "no output file specified (-o <file>)")
		}

		koopaText := compileToKoopa(inputFiles[0], cfg)
		if koopa {
			return writeOutput(outFile, koopaText)
		}

		asm, err := codegen.EmitRISCV(koopaText, cfg)
		if err != nil {
			util.Error(token.Token{}, "assembly generation failed: %v", err)
		}
		return writeOutput(outFile, asm)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// compileToKoopa runs the front half of the pipeline: lex, parse, fold, lower.
func compileToKoopa(path string, cfg *config.Config) string {
	content, err := os.ReadFile(path)
	if err != nil {
		util.Error(token.Token{FileIndex: -1}, "could not read file '%s': %v", path, err)
	}
	runeContent := []rune(string(content))
	util.SetSourceFiles([]util.SourceFileRecord{{Name: path, Content: runeContent}})

	tokens := lexer.Tokenize(runeContent, 0, cfg)
	root := parser.NewParser(tokens).Parse()
	root = ast.FoldConstants(root)

	ctx := codegen.NewContext(cfg)
	return ctx.GenerateKoopa(root)
}

func writeOutput(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		util.Error(token.Token{FileIndex: -1}, "could not write '%s': %v", path, err)
	}
	return nil
}
