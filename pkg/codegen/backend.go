package codegen

import (
	"bytes"
	"fmt"

	"github.com/zykkk01/pku-compile-principles/pkg/config"
	"github.com/zykkk01/pku-compile-principles/pkg/ir"
)

// Backend turns a parsed IR program into target text.
type Backend interface {
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// EmitRISCV runs the back half of the pipeline: parse the Koopa IR text into a
// graph and hand it to the RISC-V backend.
func EmitRISCV(koopaText string, cfg *config.Config) (string, error) {
	prog, err := ir.ParseProgram(koopaText)
	if err != nil {
		return "", fmt.Errorf("IR parse: %w", err)
	}
	buf, err := NewRISCVBackend().Generate(prog, cfg)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
