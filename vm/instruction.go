package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Opcode identifies an instruction.
type Opcode uint8

const (
	OpDeclare Opcode = iota + 1 // Declare(id, mutable, value)
	OpAssign                    // Assign(id, value)
	OpRelease                   // Release(id)
	OpInvoke                    // Invoke(id, args)
	OpReturn                    // Return(value)
	OpBranch                    // Branch(cond, body, else-ifs, fallback)
)

var opcodeNames = map[Opcode]string{
	OpDeclare: "DECLARE",
	OpAssign:  "ASSIGN",
	OpRelease: "RELEASE",
	OpInvoke:  "INVOKE",
	OpReturn:  "RETURN",
	OpBranch:  "BRANCH",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// Instruction is one step of a flat instruction sequence. Only the fields
// relevant to Op are set. Instructions never refer to source names, only
// to resolved storage ids.
type Instruction struct {
	Op      Opcode    `cbor:"1,keyasint"`
	Slot    string    `cbor:"2,keyasint,omitempty"`
	Mutable bool      `cbor:"3,keyasint,omitempty"`
	Value   Operand   `cbor:"4,keyasint,omitempty"` // Declare, Assign, Return
	Args    []Operand `cbor:"5,keyasint,omitempty"` // Invoke
	Branch  *Branch   `cbor:"6,keyasint,omitempty"`
	Line    int       `cbor:"7,keyasint,omitempty"` // source line, 0 if unknown
}

// Arm is a condition and the instructions run when it holds.
type Arm struct {
	Cond Operand       `cbor:"1,keyasint"`
	Body []Instruction `cbor:"2,keyasint,omitempty"`
}

// Branch bundles every arm of a conditional. Arms are tried in order:
// Main, then each ElseIf, then Fallback if present.
type Branch struct {
	Main        Arm           `cbor:"1,keyasint"`
	ElseIfs     []Arm         `cbor:"2,keyasint,omitempty"`
	Fallback    []Instruction `cbor:"3,keyasint,omitempty"`
	HasFallback bool          `cbor:"4,keyasint,omitempty"`
}

// Declare creates (or overwrites) a slot.
func Declare(id string, mutable bool, value Operand) Instruction {
	return Instruction{Op: OpDeclare, Slot: id, Mutable: mutable, Value: value}
}

// Assign updates a mutable slot.
func Assign(id string, value Operand) Instruction {
	return Instruction{Op: OpAssign, Slot: id, Value: value}
}

// Release removes a slot.
func Release(id string) Instruction {
	return Instruction{Op: OpRelease, Slot: id}
}

// Invoke calls the closure stored under id.
func Invoke(id string, args []Operand) Instruction {
	return Instruction{Op: OpInvoke, Slot: id, Args: args}
}

// Return ends the current sequence with value.
func Return(value Operand) Instruction {
	return Instruction{Op: OpReturn, Value: value}
}

// BranchOn builds a conditional instruction.
func BranchOn(main Arm, elseIfs []Arm, fallback []Instruction, hasFallback bool) Instruction {
	return Instruction{Op: OpBranch, Branch: &Branch{
		Main:        main,
		ElseIfs:     elseIfs,
		Fallback:    fallback,
		HasFallback: hasFallback,
	}}
}

// At returns a copy of the instruction tagged with a source line.
func (in Instruction) At(line int) Instruction {
	in.Line = line
	return in
}

func (in Instruction) String() string {
	switch in.Op {
	case OpDeclare:
		kw := "let"
		if in.Mutable {
			kw = "var"
		}
		return fmt.Sprintf("%s %s %s = %s", in.Op, kw, in.Slot, in.Value)
	case OpAssign:
		return fmt.Sprintf("%s %s = %s", in.Op, in.Slot, in.Value)
	case OpRelease:
		return fmt.Sprintf("%s %s", in.Op, in.Slot)
	case OpInvoke:
		args := make([]string, len(in.Args))
		for i, a := range in.Args {
			args[i] = a.String()
		}
		return fmt.Sprintf("%s %s(%s)", in.Op, in.Slot, strings.Join(args, ", "))
	case OpReturn:
		return fmt.Sprintf("%s %s", in.Op, in.Value)
	case OpBranch:
		if in.Branch == nil {
			return in.Op.String()
		}
		return fmt.Sprintf("%s if %s (%d else-if, fallback=%t)",
			in.Op, in.Branch.Main.Cond, len(in.Branch.ElseIfs), in.Branch.HasFallback)
	}
	return in.Op.String()
}

// Program is the output of the compiler: a flat instruction sequence whose
// last instruction invokes Entry with no arguments.
type Program struct {
	Instructions []Instruction `cbor:"1,keyasint"`
	Entry        string        `cbor:"2,keyasint"`
}
