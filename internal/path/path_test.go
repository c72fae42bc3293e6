package path

import (
	"errors"
	"sort"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// mk builds a block of 2-byte instructions starting at addr. "call 0x200"
// becomes a call to the function at 0x200.
func mk(a arch.Architecture, addr uint64, texts ...string) *program.BasicBlock {
	var instrs []*program.Instruction
	for _, text := range texts {
		ins, err := program.ParseInstruction(text, addr, 2)
		if err != nil {
			panic(err)
		}
		ins.Kind = a.Classify(ins)
		if ins.Kind == program.KindCall && len(ins.Operands) == 1 {
			if callee, err := strconv.ParseUint(ins.Operands[0], 0, 64); err == nil {
				ins.WithCallee(callee)
			}
		}
		instrs = append(instrs, ins)
		addr += 2
	}
	return program.MustBlock(instrs...)
}

func build(a arch.Architecture, entry uint64, blocks []*program.BasicBlock, edges [][2]uint64) *cfg.Graph {
	g := cfg.NewGraph(a, entry)
	for _, b := range blocks {
		g.AddBlock(b)
	}
	for _, e := range edges {
		if err := g.AddEdgeAddr(e[0], e[1]); err != nil {
			panic(err)
		}
	}
	return g
}

// diamond: 0x100 branches to 0x104 (fall-through) or 0x120 (taken); both
// reach the return block at 0x130.
func diamond(a arch.Architecture) *cfg.Graph {
	return build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "cmp A, #3", "bz $0x120"),
		mk(a, 0x104, "nop", "jmp $0x130"),
		mk(a, 0x120, "nop"),
		mk(a, 0x130, "ret"),
	}, [][2]uint64{{0x100, 0x104}, {0x100, 0x120}, {0x104, 0x130}, {0x120, 0x130}})
}

func keys(paths []*ExecutionPath) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p.Key())
	}
	sort.Strings(out)
	return out
}

func TestEnumerateDiamond(t *testing.T) {
	a := arch.NewDummy()
	g := diamond(a)

	res, err := Enumerate(g, Query{}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"100,104,130", "100,120,130"}, keys(res.Paths)); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if len(res.Loops) != 0 {
		t.Errorf("unexpected loops: %d", len(res.Loops))
	}

	wantOutcomes := map[string][]program.Outcome{
		"100,104,130": {program.OutcomeNotTaken, program.OutcomeTaken, program.OutcomeUnknown},
		"100,120,130": {program.OutcomeTaken, program.OutcomeNotTaken, program.OutcomeUnknown},
	}
	for _, p := range res.Paths {
		if diff := cmp.Diff(wantOutcomes[p.Key()], p.Outcomes); diff != "" {
			t.Errorf("%s outcomes mismatch (-want +got):\n%s", p.Key(), diff)
		}
	}
}

func TestEnumeratePathsAreWalks(t *testing.T) {
	a := arch.NewDummy()
	// two diamonds in sequence with a loop back from the second to the first
	g := build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "bz $0x110"),
		mk(a, 0x102, "nop"),
		mk(a, 0x110, "bnz $0x120"),
		mk(a, 0x112, "bc $0x100"),
		mk(a, 0x114, "ret"),
		mk(a, 0x120, "ret"),
	}, [][2]uint64{
		{0x100, 0x102}, {0x100, 0x110}, {0x102, 0x110},
		{0x110, 0x112}, {0x110, 0x120},
		{0x112, 0x114}, {0x112, 0x100},
	})

	for _, q := range []Query{{}, {To: Addr(0x114)}, {From: Addr(0x110), To: Addr(0x120)}, {From: Addr(0x102)}} {
		res, err := Enumerate(g, q, DefaultBudget())
		if err != nil {
			t.Fatalf("Enumerate(%+v) error = %v", q, err)
		}
		if len(res.Paths) == 0 {
			t.Fatalf("Enumerate(%+v) returned no paths", q)
		}
		for _, p := range res.Paths {
			if p.Start() != res.Start {
				t.Errorf("%s does not begin at the start block", p.Key())
			}
			last := p.Blocks[len(p.Blocks)-1]
			if !g.IsTerminal(last) && (q.To == nil || !last.Contains(*q.To)) {
				t.Errorf("%s does not end at a target", p.Key())
			}
			for n := 1; n < len(p.Blocks); n++ {
				found := false
				for _, s := range g.Successors(p.Blocks[n-1]) {
					if s == p.Blocks[n] {
						found = true
					}
				}
				if !found {
					t.Errorf("%s: 0x%x is not a successor of 0x%x", p.Key(), p.Blocks[n].Start(), p.Blocks[n-1].Start())
				}
			}
		}
	}

	res, err := Enumerate(g, Query{To: Addr(0x114)}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(res.Loops) != 2 {
		t.Fatalf("Loops = %d, want 2", len(res.Loops))
	}
	var loopKeys []string
	for _, l := range res.Loops {
		loopKeys = append(loopKeys, l.Key())
		if got := l.Outcomes[len(l.Outcomes)-1]; got != program.OutcomeTaken {
			t.Errorf("loop %s back edge outcome = %v, want taken", l.Key(), got)
		}
	}
	sort.Strings(loopKeys)
	if diff := cmp.Diff([]string{"100,102,110,112", "100,110,112"}, loopKeys); diff != "" {
		t.Errorf("loops mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateIdempotent(t *testing.T) {
	a := arch.NewDummy()
	g := diamond(a)

	first, err := Enumerate(g, Query{}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	second, err := Enumerate(g, Query{}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if diff := cmp.Diff(keys(first.Paths), keys(second.Paths)); diff != "" {
		t.Errorf("second query differs (-first +second):\n%s", diff)
	}
	for n := range first.Paths {
		if diff := cmp.Diff(first.Paths[n].Outcomes, second.Paths[n].Outcomes); diff != "" {
			t.Errorf("outcomes differ (-first +second):\n%s", diff)
		}
	}
}

func TestEnumerateLookupErrors(t *testing.T) {
	g := diamond(arch.NewDummy())

	var addrErr *cfg.AddressError
	if _, err := Enumerate(g, Query{From: Addr(0x999)}, DefaultBudget()); !errors.As(err, &addrErr) {
		t.Errorf("From outside graph: error = %v", err)
	}
	if _, err := Enumerate(g, Query{To: Addr(0x999)}, DefaultBudget()); !errors.As(err, &addrErr) {
		t.Errorf("To outside graph: error = %v", err)
	}

	res, err := Enumerate(g, Query{From: Addr(0x120), To: Addr(0x104)}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(res.Paths) != 0 {
		t.Errorf("unreachable target returned %d paths", len(res.Paths))
	}
}

func TestEnumerateAddressZero(t *testing.T) {
	a := arch.NewDummy()
	g := build(a, 0x0, []*program.BasicBlock{
		mk(a, 0x0, "cmp A, #3", "bz $0x8"),
		mk(a, 0x4, "nop", "jmp $0x8"),
		mk(a, 0x8, "ret"),
	}, [][2]uint64{{0x0, 0x4}, {0x0, 0x8}, {0x4, 0x8}})

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{name: "defaults", q: Query{}, want: []string{"0,4,8", "0,8"}},
		{name: "from zero", q: Query{From: Addr(0x0)}, want: []string{"0,4,8", "0,8"}},
		{name: "to zero", q: Query{To: Addr(0x0)}, want: []string{"0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Enumerate(g, tt.q, DefaultBudget())
			if err != nil {
				t.Fatalf("Enumerate() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, keys(res.Paths)); diff != "" {
				t.Errorf("paths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnumerateExcludeTarget(t *testing.T) {
	g := diamond(arch.NewDummy())

	res, err := Enumerate(g, Query{ExcludeTarget: true}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"100,104", "100,120"}, keys(res.Paths)); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	for _, p := range res.Paths {
		if len(p.Outcomes) != len(p.Blocks) {
			t.Errorf("%s: %d outcomes for %d blocks", p.Key(), len(p.Outcomes), len(p.Blocks))
		}
	}
}

func TestEnumerateBudget(t *testing.T) {
	g := diamond(arch.NewDummy())

	tests := []struct {
		name   string
		budget Budget
		limit  string
	}{
		{name: "paths", budget: Budget{MaxPaths: 1}, limit: "max_paths"},
		{name: "depth", budget: Budget{MaxDepth: 2}, limit: "max_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Enumerate(g, Query{}, tt.budget)
			var budgetErr *BudgetError
			if !errors.As(err, &budgetErr) {
				t.Fatalf("Enumerate() error = %v, want *BudgetError", err)
			}
			if budgetErr.Limit != tt.limit {
				t.Errorf("Limit = %q, want %q", budgetErr.Limit, tt.limit)
			}
		})
	}
}

func TestTicksStraightLine(t *testing.T) {
	a := arch.NewDummy().WithCost("mul", 4).WithCost("ld", 2)
	g := build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "ld A, X", "mul X"),
		mk(a, 0x104, "nop", "jmp $0x110"),
		mk(a, 0x110, "ld B, A", "ret"),
	}, [][2]uint64{{0x100, 0x104}, {0x104, 0x110}})

	res, err := Enumerate(g, Query{}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("paths = %d, want 1", len(res.Paths))
	}
	p := res.Paths[0]

	want := 0
	for _, b := range p.Blocks {
		for _, ins := range b.Instructions {
			c, err := a.Ticks(ins, false)
			if err != nil {
				t.Fatal(err)
			}
			want += c
		}
	}

	got, err := p.Ticks(a, nil)
	if err != nil {
		t.Fatalf("Ticks() error = %v", err)
	}
	if !got.IsExact() || got.Min != want {
		t.Errorf("Ticks() = %v, want exactly %d", got, want)
	}
}

func TestTicksUnknownOutcome(t *testing.T) {
	a := arch.NewDummy().WithTakenCost("bz", 3)
	g := diamond(a)

	res, err := Enumerate(g, Query{To: Addr(0x100)}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	got, err := res.Paths[0].Ticks(a, nil)
	if err != nil {
		t.Fatalf("Ticks() error = %v", err)
	}
	if diff := cmp.Diff(Bounds{Min: 2, Max: 4}, got); diff != "" {
		t.Errorf("Ticks() mismatch (-want +got):\n%s", diff)
	}
}

// A path ending in a conditional branch leaves its direction open, so a
// loop-free, call-free path is exact only when the architecture charges both
// directions the same.
func TestTicksOpenBranchRange(t *testing.T) {
	a, err := arch.Lookup("stm8")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	g := build(a, 0x8000, []*program.BasicBlock{
		mk(a, 0x8000, "cp A, #$03", "jrc $8010"),
		mk(a, 0x8004, "scf", "ret"),
		mk(a, 0x8010, "rcf", "ret"),
	}, [][2]uint64{{0x8000, 0x8004}, {0x8000, 0x8010}})

	tests := []struct {
		name  string
		to    uint64
		want  Bounds
		exact bool
	}{
		{name: "open branch", to: 0x8000, want: Bounds{Min: 2, Max: 3}},
		{name: "taken", to: 0x8010, want: Bounds{Min: 8, Max: 8}, exact: true},
		{name: "not taken", to: 0x8004, want: Bounds{Min: 7, Max: 7}, exact: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Enumerate(g, Query{To: Addr(tt.to)}, DefaultBudget())
			if err != nil {
				t.Fatalf("Enumerate() error = %v", err)
			}
			if len(res.Paths) != 1 {
				t.Fatalf("got %d paths, want 1", len(res.Paths))
			}
			got, err := res.Paths[0].Ticks(a, nil)
			if err != nil {
				t.Fatalf("Ticks() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Ticks() mismatch (-want +got):\n%s", diff)
			}
			if got.IsExact() != tt.exact {
				t.Errorf("IsExact() = %v, want %v", got.IsExact(), tt.exact)
			}
		})
	}
}

func TestLoopRepetitions(t *testing.T) {
	a := arch.NewDummy().WithCost("bnz", 2)
	g := build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "nop"),
		mk(a, 0x110, "dec B", "cmp B, #0", "bnz $0x110"),
		mk(a, 0x116, "ret"),
	}, [][2]uint64{{0x100, 0x110}, {0x110, 0x110}, {0x110, 0x116}})

	res, err := Enumerate(g, Query{LoopRepetitions: map[uint64]int{0x110: 5}}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(res.Loops) != 1 || len(res.Paths) != 1 {
		t.Fatalf("loops = %d, paths = %d, want 1 and 1", len(res.Loops), len(res.Paths))
	}

	l := res.Loops[0]
	if l.Repetitions != 5 || l.Head().Start() != 0x110 || len(l.Blocks) != 1 {
		t.Fatalf("unexpected loop %s x%d", l.Key(), l.Repetitions)
	}
	lt, err := l.Ticks(a, nil)
	if err != nil {
		t.Fatalf("Loop.Ticks() error = %v", err)
	}
	if diff := cmp.Diff(Exact(20), lt); diff != "" {
		t.Errorf("Loop.Ticks() mismatch (-want +got):\n%s", diff)
	}

	p := res.Paths[0]
	if len(p.Loops) != 1 {
		t.Fatalf("loop not attached to path %s", p)
	}
	without := &ExecutionPath{Function: p.Function, Blocks: p.Blocks, Outcomes: p.Outcomes}
	base, err := without.Ticks(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Ticks(a, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(base.Add(Exact(20)), got); diff != "" {
		t.Errorf("path ticks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Exact(26), got); diff != "" {
		t.Errorf("path ticks mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopAttachedOnlyToPathsThroughHead(t *testing.T) {
	a := arch.NewDummy()
	g := build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "bz $0x120"),
		mk(a, 0x102, "bnz $0x102"),
		mk(a, 0x104, "ret"),
		mk(a, 0x120, "ret"),
	}, [][2]uint64{{0x100, 0x102}, {0x100, 0x120}, {0x102, 0x102}, {0x102, 0x104}})

	res, err := Enumerate(g, Query{}, DefaultBudget())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	for _, p := range res.Paths {
		want := 0
		if p.Contains(0x102) {
			want = 1
		}
		if len(p.Loops) != want {
			t.Errorf("%s has %d loops, want %d", p.Key(), len(p.Loops), want)
		}
	}
}

func TestBounds(t *testing.T) {
	b := Bounds{Min: 2, Max: 5}
	if got := b.Add(Exact(3)); got != (Bounds{Min: 5, Max: 8}) {
		t.Errorf("Add() = %v", got)
	}
	if got := b.Merge(Bounds{Min: 1, Max: 4}); got != (Bounds{Min: 1, Max: 5}) {
		t.Errorf("Merge() = %v", got)
	}
	if got := b.Scale(3); got != (Bounds{Min: 6, Max: 15}) {
		t.Errorf("Scale() = %v", got)
	}
	if b.String() != "2..5" || Exact(7).String() != "7" {
		t.Errorf("String() = %q, %q", b.String(), Exact(7).String())
	}
}
