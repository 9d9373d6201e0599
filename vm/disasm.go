package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Entry: %s\n", p.Entry))
	sb.WriteString(fmt.Sprintf("; Instructions: %d\n\n", len(p.Instructions)))

	disassembleInto(&sb, p.Instructions, 0)
	return sb.String()
}

func disassembleInto(sb *strings.Builder, instrs []Instruction, depth int) {
	indent := strings.Repeat("    ", depth)
	for i, in := range instrs {
		line := fmt.Sprintf("%s%04d  %s", indent, i, in)
		if in.Line > 0 {
			sb.WriteString(fmt.Sprintf("%-60s ; line %d\n", line, in.Line))
		} else {
			sb.WriteString(line + "\n")
		}

		switch in.Op {
		case OpDeclare:
			if in.Value.Kind == OperandLiteral && in.Value.Literal.Kind == KindClosure {
				c := in.Value.Literal.Closure
				if c != nil && !c.IsNative() {
					sb.WriteString(fmt.Sprintf("%s      ; closure %s, %d params\n", indent, c.Owner, c.Params))
					disassembleInto(sb, c.Body, depth+1)
				}
			}
		case OpBranch:
			if in.Branch == nil {
				continue
			}
			sb.WriteString(fmt.Sprintf("%s      ; then\n", indent))
			disassembleInto(sb, in.Branch.Main.Body, depth+1)
			for _, arm := range in.Branch.ElseIfs {
				sb.WriteString(fmt.Sprintf("%s      ; else if %s\n", indent, arm.Cond))
				disassembleInto(sb, arm.Body, depth+1)
			}
			if in.Branch.HasFallback {
				sb.WriteString(fmt.Sprintf("%s      ; else\n", indent))
				disassembleInto(sb, in.Branch.Fallback, depth+1)
			}
		}
	}
}
