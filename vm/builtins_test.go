package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func callBuiltin(t *testing.T, e *Engine, b Builtin, args ...Value) (Value, bool, error) {
	t.Helper()
	return e.Call(b.Closure(), args)
}

func TestBuiltinIDs(t *testing.T) {
	want := []string{
		"msq_std::print()",
		"msq_std::add()",
		"msq_std::equals()",
		"msq_std::smaller()",
		"msq_std::date()",
		"msq_std::input()",
	}
	for i, b := range Builtins() {
		if b.ID() != want[i] {
			t.Errorf("%s.ID() = %q, want %q", b, b.ID(), want[i])
		}
	}
}

func TestBuiltinPrint(t *testing.T) {
	tests := []struct {
		args []Value
		want string
	}{
		{nil, "\n"},
		{[]Value{StringValue("hi")}, "hi\n"},
		{[]Value{StringValue("n="), IntValue(3), StringValue(" "), FloatValue(1.5), BoolValue(false)}, "n=3 1.5false\n"},
	}

	for _, tc := range tests {
		var out bytes.Buffer
		_, ok, err := callBuiltin(t, NewEngine(WithStdout(&out)), BuiltinPrint, tc.args...)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("print returned a value")
		}
		if out.String() != tc.want {
			t.Errorf("print(%v) wrote %q, want %q", tc.args, out.String(), tc.want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestBuiltinPrintIOFailure(t *testing.T) {
	_, _, err := callBuiltin(t, NewEngine(WithStdout(failingWriter{})), BuiltinPrint, StringValue("x"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("error = %v, want i/o failure", err)
	}
}

func TestBuiltinAdd(t *testing.T) {
	e := NewEngine()

	v, ok, err := callBuiltin(t, e, BuiltinAdd, IntValue(1), IntValue(2), IntValue(3))
	if err != nil || !ok || v.Kind != KindInt || v.Int != 6 {
		t.Errorf("add(1,2,3) = %s, %v, %v", v, ok, err)
	}

	v, _, err = callBuiltin(t, e, BuiltinAdd, FloatValue(1.5), FloatValue(2.25))
	if err != nil || v.Kind != KindFloat || v.Float != 3.75 {
		t.Errorf("add(1.5,2.25) = %s, %v", v, err)
	}

	v, _, err = callBuiltin(t, e, BuiltinAdd, IntValue(5))
	if err != nil || v.Int != 5 {
		t.Errorf("add(5) = %s, %v", v, err)
	}

	v, _, _ = callBuiltin(t, e, BuiltinAdd, IntValue(2147483647), IntValue(1))
	if v.Int != -2147483648 {
		t.Errorf("add overflow = %s, want wraparound", v)
	}
}

func TestBuiltinAddErrors(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		args []Value
		want error
	}{
		{nil, ErrArityMismatch},
		{[]Value{IntValue(1), FloatValue(1)}, ErrTypeMismatch},
		{[]Value{FloatValue(1), IntValue(1)}, ErrTypeMismatch},
		{[]Value{StringValue("a"), StringValue("b")}, ErrTypeMismatch},
		{[]Value{BoolValue(true)}, ErrTypeMismatch},
	}
	for _, tc := range tests {
		_, _, err := callBuiltin(t, e, BuiltinAdd, tc.args...)
		if !errors.Is(err, tc.want) {
			t.Errorf("add(%v) error = %v, want %v", tc.args, err, tc.want)
		}
	}
}

func TestBuiltinEquals(t *testing.T) {
	e := NewEngine()
	v, ok, err := callBuiltin(t, e, BuiltinEquals, StringValue("a"), StringValue("a"))
	if err != nil || !ok || !v.Bool {
		t.Errorf("equals(a, a) = %s, %v", v, err)
	}

	if _, _, err := callBuiltin(t, e, BuiltinEquals, IntValue(1)); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("equals(1) error = %v", err)
	}
	if _, _, err := callBuiltin(t, e, BuiltinEquals, IntValue(1), FloatValue(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("equals(1, 1.0) error = %v", err)
	}
}

func TestBuiltinSmaller(t *testing.T) {
	e := NewEngine()
	tests := []struct {
		a, b Value
		want bool
	}{
		{IntValue(1), IntValue(2), true},
		{IntValue(2), IntValue(2), false},
		{FloatValue(1.5), FloatValue(2.5), true},
		// The integer is widened, not the float truncated.
		{IntValue(1), FloatValue(1.5), true},
		{FloatValue(1.5), IntValue(1), false},
		{FloatValue(0.5), IntValue(1), true},
	}
	for _, tc := range tests {
		v, ok, err := callBuiltin(t, e, BuiltinSmaller, tc.a, tc.b)
		if err != nil || !ok {
			t.Fatalf("smaller(%s, %s): %v", tc.a, tc.b, err)
		}
		if v.Bool != tc.want {
			t.Errorf("smaller(%s, %s) = %v, want %v", tc.a, tc.b, v.Bool, tc.want)
		}
	}

	if _, _, err := callBuiltin(t, e, BuiltinSmaller, StringValue("a"), IntValue(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("smaller(a, 1) error = %v", err)
	}
	if _, _, err := callBuiltin(t, e, BuiltinSmaller, IntValue(1)); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("smaller(1) error = %v", err)
	}
}

func TestBuiltinDateTruncates(t *testing.T) {
	ms := int64(1<<32 + 5)
	e := NewEngine(WithClock(func() time.Time { return time.UnixMilli(ms) }))
	v, _, err := callBuiltin(t, e, BuiltinDate)
	if err != nil {
		t.Fatal(err)
	}
	if v.Int != 5 {
		t.Errorf("date() = %d, want 5", v.Int)
	}
}

func TestBuiltinInput(t *testing.T) {
	e := NewEngine(WithStdin(strings.NewReader("first\nsecond")))

	v, ok, err := callBuiltin(t, e, BuiltinInput)
	if err != nil || !ok || v.Str != "first\n" {
		t.Errorf("input() = %q, %v", v.Str, err)
	}
	v, _, _ = callBuiltin(t, e, BuiltinInput)
	if v.Str != "second" {
		t.Errorf("input() at EOF = %q, want %q", v.Str, "second")
	}
	v, _, _ = callBuiltin(t, e, BuiltinInput)
	if v.Str != "" {
		t.Errorf("input() after EOF = %q, want empty", v.Str)
	}
}
