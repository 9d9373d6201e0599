package vm

import (
	"bytes"
	"strings"
	"testing"
)

func TestDumpSortedRows(t *testing.T) {
	s := NewStore()
	s.Declare("b_2", true, IntValue(2))
	s.Declare("a_1", false, StringValue("x"))

	rows := DumpStore(s)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ID != "a_1" || rows[0].Mutable || rows[0].Value != "x" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].ID != "b_2" || !rows[1].Mutable || rows[1].Value != "2" {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}

func TestWriteDump(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDump(&buf, []DumpRow{
		{ID: "x", Mutable: true, Value: "1"},
		{ID: "y", Mutable: false, Value: "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	want := "| x" + strings.Repeat(" ", 39) + "| Mutable     | 1"
	if lines[1] != want {
		t.Errorf("line = %q\nwant   %q", lines[1], want)
	}
	if !strings.Contains(lines[2], "| Not Mutable | hi") {
		t.Errorf("line = %q", lines[2])
	}
}

func TestDisassemble(t *testing.T) {
	prog := &Program{
		Entry: "main",
		Instructions: []Instruction{
			fn("main", 0,
				BranchOn(
					Arm{Cond: Lit(BoolValue(true)), Body: []Instruction{Return(Lit(IntValue(1)))}},
					[]Arm{{Cond: SlotRef("flag"), Body: []Instruction{Return(Lit(IntValue(2)))}}},
					[]Instruction{Return(Lit(IntValue(3)))},
					true,
				).At(2),
			).At(1),
			Invoke("main", nil),
		},
	}

	out := prog.DisassembleWithName("demo")
	for _, want := range []string{
		"; === demo ===",
		"; Entry: main",
		"; Instructions: 2",
		"DECLARE let main = Closure (1 instructions)",
		"; line 1",
		"; closure main, 0 params",
		"BRANCH if true",
		"; else if $flag",
		"; else",
		"RETURN 3",
		"INVOKE main()",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
