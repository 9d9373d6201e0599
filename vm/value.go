package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: runtime normal form
// ---------------------------------------------------------------------------

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindClosure
)

var kindNames = map[Kind]string{
	KindInvalid: "Invalid",
	KindString:  "String",
	KindInt:     "Int32",
	KindFloat:   "Float32",
	KindBool:    "Boolean",
	KindClosure: "Closure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsScalar reports whether values of this kind support equality.
func (k Kind) IsScalar() bool {
	return k == KindString || k == KindInt || k == KindFloat || k == KindBool
}

// Value is a fully forced runtime value. Memory entries only ever hold
// Values; unevaluated expressions are Operands.
type Value struct {
	Kind    Kind     `cbor:"1,keyasint"`
	Str     string   `cbor:"2,keyasint,omitempty"`
	Int     int32    `cbor:"3,keyasint,omitempty"`
	Float   float32  `cbor:"4,keyasint,omitempty"`
	Bool    bool     `cbor:"5,keyasint,omitempty"`
	Closure *Closure `cbor:"6,keyasint,omitempty"`
}

// Constructors

func StringValue(s string) Value    { return Value{Kind: KindString, Str: s} }
func IntValue(n int32) Value        { return Value{Kind: KindInt, Int: n} }
func FloatValue(f float32) Value    { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func ClosureValue(c *Closure) Value { return Value{Kind: KindClosure, Closure: c} }

// Equal compares two scalars of the same kind. Any other combination is a
// type mismatch rather than a silent false.
func (v Value) Equal(other Value) (bool, error) {
	if !v.Kind.IsScalar() {
		return false, typeMismatch("equals", "scalar", v.Kind.String())
	}
	if v.Kind != other.Kind {
		return false, typeMismatch("equals", v.Kind.String(), other.Kind.String())
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str, nil
	case KindInt:
		return v.Int == other.Int, nil
	case KindFloat:
		return v.Float == other.Float, nil
	default:
		return v.Bool == other.Bool, nil
	}
}

// String returns the textual form used by print and the memory dump.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case KindFloat:
		return strconv.FormatFloat(float64(v.Float), 'f', -1, 32)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindClosure:
		return v.Closure.String()
	}
	return "<invalid>"
}

// ---------------------------------------------------------------------------
// Closure
// ---------------------------------------------------------------------------

// Closure is a callable value. Native closures dispatch into the built-in
// table; all others execute Body.
type Closure struct {
	Owner  string        `cbor:"1,keyasint"`           // storage id the function was declared under
	Params int           `cbor:"2,keyasint"`           // parameter count
	Native Builtin       `cbor:"3,keyasint,omitempty"` // non-zero for built-ins
	Body   []Instruction `cbor:"4,keyasint,omitempty"`
}

// IsNative reports whether the closure is a built-in.
func (c *Closure) IsNative() bool {
	return c.Native != BuiltinNone
}

func (c *Closure) String() string {
	if c == nil {
		return "Closure (nil)"
	}
	if c.IsNative() {
		return fmt.Sprintf("Closure (native %s)", c.Native)
	}
	return fmt.Sprintf("Closure (%d instructions)", len(c.Body))
}

// ParamSlot returns the storage id of the closure's i-th parameter.
// Parameter ids derive from the declaring function's id, so every
// activation of a function names its parameters the same way.
func ParamSlot(owner string, index int) string {
	return owner + "-" + strconv.Itoa(index)
}

// ---------------------------------------------------------------------------
// Operand: compiled, not yet evaluated expression
// ---------------------------------------------------------------------------

// OperandKind identifies what an Operand refers to.
type OperandKind uint8

const (
	OperandLiteral OperandKind = iota + 1 // already in normal form
	OperandSlot                           // read of a storage slot
	OperandCall                           // deferred function call
)

// Operand is what the compiler produces in expression position. The engine
// turns it into a Value with Force at every read site.
type Operand struct {
	Kind    OperandKind  `cbor:"1,keyasint"`
	Literal Value        `cbor:"2,keyasint,omitempty"`
	Slot    string       `cbor:"3,keyasint,omitempty"`
	Call    *Instruction `cbor:"4,keyasint,omitempty"` // always an OpInvoke
}

// Lit wraps a value that needs no forcing.
func Lit(v Value) Operand {
	return Operand{Kind: OperandLiteral, Literal: v}
}

// SlotRef refers to the current value stored under id.
func SlotRef(id string) Operand {
	return Operand{Kind: OperandSlot, Slot: id}
}

// Deferred wraps a call that runs only when the operand is forced.
func Deferred(id string, args []Operand) Operand {
	inv := Invoke(id, args)
	return Operand{Kind: OperandCall, Call: &inv}
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandLiteral:
		if o.Literal.Kind == KindString {
			return strconv.Quote(o.Literal.Str)
		}
		return o.Literal.String()
	case OperandSlot:
		return "$" + o.Slot
	case OperandCall:
		if o.Call == nil {
			return "call(<nil>)"
		}
		return "call " + o.Call.String()
	}
	return "<invalid operand>"
}
