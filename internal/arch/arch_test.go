package arch

import (
	"errors"
	"strings"
	"testing"

	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

func TestPredicate(t *testing.T) {
	tests := []struct {
		name  string
		p     Predicate
		arity int
		args  []int64
		want  bool
		str   string
	}{
		{name: "binary", p: NewPredicate(RelLT), arity: 2, args: []int64{1, 2}, want: true, str: "x0 < x1"},
		{name: "bound rhs", p: NewPredicate(RelLT).Bind(1, 3), arity: 1, args: []int64{3}, want: false, str: "x0 < 0x3"},
		{name: "bound lhs", p: NewPredicate(RelGE).Bind(0, 3), arity: 1, args: []int64{3}, want: true, str: "0x3 >= x1"},
		{name: "fully bound", p: NewPredicate(RelEQ).Bind(0, 5).Bind(1, 5), arity: 0, want: true, str: "0x5 == 0x5"},
		{name: "constant", p: NewPredicate(RelFalse), arity: 0, want: false, str: "false"},
		{name: "wrong arity", p: NewPredicate(RelNE), arity: 2, args: []int64{1}, want: false, str: "x0 != x1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Arity(); got != tt.arity {
				t.Errorf("Arity() = %d, want %d", got, tt.arity)
			}
			if got := tt.p.Eval(tt.args...); got != tt.want {
				t.Errorf("Eval(%v) = %v, want %v", tt.args, got, tt.want)
			}
			if got := tt.p.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestRelationNegate(t *testing.T) {
	for r := RelFalse; r <= RelNE; r++ {
		n := r.Negate()
		if n.Negate() != r {
			t.Errorf("%v.Negate().Negate() = %v", r, n.Negate())
		}
		if r.Constant() {
			continue
		}
		for x := int64(-2); x <= 2; x++ {
			if r.holds(x, 0) == n.holds(x, 0) {
				t.Errorf("%v and %v agree on (%d, 0)", r, n, x)
			}
		}
	}
}

func TestParseRelation(t *testing.T) {
	for _, s := range []string{"lt", "<", " LT "} {
		if r, err := ParseRelation(s); err != nil || r != RelLT {
			t.Errorf("ParseRelation(%q) = %v, %v", s, r, err)
		}
	}
	if _, err := ParseRelation("~"); err == nil {
		t.Error("expected error")
	}
}

func TestDummy(t *testing.T) {
	d := NewDummy().WithCost("mul", 4).WithTakenCost("bnz", 3)

	tests := []struct {
		text  string
		taken bool
		want  int
	}{
		{"nop", false, 1},
		{"mul X", false, 4},
		{"bnz $1", false, 1},
		{"bnz $1", true, 3},
		{"anything goes", false, 1},
	}
	for _, tt := range tests {
		got, err := d.Ticks(ins(tt.text), tt.taken)
		if err != nil || got != tt.want {
			t.Errorf("Ticks(%q, %v) = %d, %v, want %d", tt.text, tt.taken, got, err, tt.want)
		}
	}

	dst, src, ok := d.MoveOperands(ins("mov X, R"))
	if !ok || dst != "R" || src != "X" {
		t.Errorf("MoveOperands() = %q, %q, %v", dst, src, ok)
	}

	for op, want := range map[string]int64{"#5": 5, "#0x1f": 31, "#-2": -2} {
		if got, ok := d.ParseImmediate(op); !ok || got != want {
			t.Errorf("ParseImmediate(%q) = %d, %v", op, got, ok)
		}
	}

	p, err := d.TranslateCondition(ins("cmp R, #5"), ins("bnz $1"), true)
	if err != nil {
		t.Fatalf("TranslateCondition() error = %v", err)
	}
	if p.Eval(5) || !p.Eval(4) {
		t.Errorf("bnz taken = %s, want x0 != 5", p)
	}
}

func TestCatalogSTM8(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if c.Count() == 0 {
		t.Fatal("catalog is empty")
	}
	a, ok := c.Get("stm8")
	if !ok {
		t.Fatal("stm8 not in catalog")
	}

	tests := []struct {
		text  string
		taken bool
		want  int
	}{
		{"ld A, $10", false, 1},
		{"ld A, [$1234.w]", false, 4},
		{"LDW X, [$10.w]", false, 5},
		{"cp A, #$03", false, 1},
		{"jrult $8010", true, 2},
		{"jrult $8010", false, 1},
		{"jra $8010", false, 2},
		{"jp $8010", true, 1},
		{"call $9000", false, 4},
		{"ret", false, 4},
	}
	for _, tt := range tests {
		got, err := a.Ticks(ins(tt.text), tt.taken)
		if err != nil || got != tt.want {
			t.Errorf("Ticks(%q, %v) = %d, %v, want %d", tt.text, tt.taken, got, err, tt.want)
		}
	}

	p, err := a.TranslateCondition(ins("cp A, #$03"), ins("jrult $8010"), false)
	if err != nil {
		t.Fatalf("TranslateCondition() error = %v", err)
	}
	if p.Eval(2) || !p.Eval(3) {
		t.Errorf("jrult not taken = %s, want x0 >= 3", p)
	}

	if _, err := a.Ticks(ins("halt"), false); err == nil {
		t.Error("expected unknown instruction error")
	}
	if got := a.SuccessMnemonics(); len(got) != 1 || got[0] != "rcf" {
		t.Errorf("SuccessMnemonics() = %v", got)
	}
}

func TestParseSpecErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "missing name", yaml: "costs: {nop: 1}", field: "name"},
		{name: "bad relation", yaml: "name: x\nconditions:\n  - {branch: b, compare: c, taken: about}", field: "conditions[0].taken"},
		{name: "no capture group", yaml: "name: x\nimmediates:\n  - {pattern: '^#', base: 16}", field: "immediates[0].pattern"},
		{name: "bad move order", yaml: "name: x\nmove_order: sideways", field: "move_order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tt.yaml))
			var specErr *SpecError
			if !errors.As(err, &specErr) {
				t.Fatalf("ParseSpec() error = %v, want *SpecError", err)
			}
			if specErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", specErr.Field, tt.field)
			}
		})
	}
}

func TestTableSourceFirstMoves(t *testing.T) {
	a, err := ParseSpec([]byte("name: srcfirst\nmove_order: src_dst\nmnemonics:\n  move: [MOV]\n"))
	if err != nil {
		t.Fatalf("ParseSpec() error = %v", err)
	}
	dst, src, ok := a.MoveOperands(program.NewInstruction("mov", []string{"r1", "r2"}, 0, 2))
	if !ok || dst != "r2" || src != "r1" {
		t.Errorf("MoveOperands() = %q, %q, %v", dst, src, ok)
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"78k0", "RSAS78K0", "dummy", "stm8"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q) error = %v", name, err)
		}
	}

	_, err := Lookup("z80")
	if err == nil || !strings.Contains(err.Error(), "78k0") {
		t.Errorf("Lookup(unknown) error = %v, want list of names", err)
	}

	custom, err := ParseSpec([]byte("name: custom-test\ncosts: {nop: 1}\n"))
	if err != nil {
		t.Fatalf("ParseSpec() error = %v", err)
	}
	if err := Register(custom); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if a, err := Lookup("custom-test"); err != nil || a.Name() != "custom-test" {
		t.Errorf("Lookup(custom-test) = %v, %v", a, err)
	}
	if err := Register(NewDummy()); err == nil {
		t.Error("Register() should refuse to shadow a built-in")
	}

	found := false
	for _, n := range Names() {
		if n == "custom-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("Names() = %v, missing custom-test", Names())
	}
}
