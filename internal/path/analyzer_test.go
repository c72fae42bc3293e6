package path

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// checker is called from main. It succeeds through 0x204 (not-taken bz) and
// fails through 0x210 (taken bz).
func checker(a arch.Architecture) *cfg.Graph {
	return build(a, 0x200, []*program.BasicBlock{
		mk(a, 0x200, "cmp A, #1", "bz $0x210"),
		mk(a, 0x204, "nop", "ok", "ret"),
		mk(a, 0x210, "fail", "ret"),
	}, [][2]uint64{{0x200, 0x204}, {0x200, 0x210}})
}

func analyzer(graphs ...*cfg.Graph) *Analyzer {
	db := cfg.NewDatabase()
	for _, g := range graphs {
		db.Add(g)
	}
	return NewAnalyzer(db, Config{})
}

func TestClockBoundsWithCall(t *testing.T) {
	a := arch.NewDummy().WithTakenCost("bz", 3)
	main := build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "call 0x200", "ret"),
	}, nil)
	an := analyzer(main, checker(a))

	callee, err := an.ClockBounds(0x200)
	if err != nil {
		t.Fatalf("ClockBounds(callee) error = %v", err)
	}
	// 0x204 route: cmp 1 + bz 1 + nop 1 + ok 1 + ret 1; 0x210 route: cmp 1 + bz 3 + fail 1 + ret 1
	if diff := cmp.Diff(Bounds{Min: 5, Max: 6}, callee); diff != "" {
		t.Errorf("callee bounds mismatch (-want +got):\n%s", diff)
	}

	got, err := an.ClockBounds(0x100)
	if err != nil {
		t.Fatalf("ClockBounds(main) error = %v", err)
	}
	if diff := cmp.Diff(Bounds{Min: 7, Max: 8}, got); diff != "" {
		t.Errorf("main bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestClockBoundsErrors(t *testing.T) {
	a := arch.NewDummy()

	t.Run("self recursion", func(t *testing.T) {
		g := build(a, 0x100, []*program.BasicBlock{mk(a, 0x100, "call 0x100", "ret")}, nil)
		_, err := analyzer(g).ClockBounds(0x100)
		var recErr *RecursionError
		if !errors.As(err, &recErr) {
			t.Fatalf("error = %v, want *RecursionError", err)
		}
		if diff := cmp.Diff([]uint64{0x100}, recErr.Cycle); diff != "" {
			t.Errorf("cycle mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("mutual recursion", func(t *testing.T) {
		f := build(a, 0x100, []*program.BasicBlock{mk(a, 0x100, "call 0x200", "ret")}, nil)
		g := build(a, 0x200, []*program.BasicBlock{mk(a, 0x200, "call 0x100", "ret")}, nil)
		_, err := analyzer(f, g).ClockBounds(0x100)
		var recErr *RecursionError
		if !errors.As(err, &recErr) {
			t.Fatalf("error = %v, want *RecursionError", err)
		}
		if diff := cmp.Diff([]uint64{0x100, 0x200}, recErr.Cycle); diff != "" {
			t.Errorf("cycle mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("call without callee", func(t *testing.T) {
		g := build(a, 0x100, []*program.BasicBlock{mk(a, 0x100, "call [HL]", "ret")}, nil)
		_, err := analyzer(g).ClockBounds(0x100)
		var callErr *cfg.UnresolvedCallError
		if !errors.As(err, &callErr) {
			t.Fatalf("error = %v, want *cfg.UnresolvedCallError", err)
		}
		if callErr.HasCallee || callErr.Address != 0x100 {
			t.Errorf("unexpected error fields: %+v", callErr)
		}
	})

	t.Run("callee missing", func(t *testing.T) {
		g := build(a, 0x100, []*program.BasicBlock{mk(a, 0x100, "call 0x300", "ret")}, nil)
		_, err := analyzer(g).ClockBounds(0x100)
		var callErr *cfg.UnresolvedCallError
		if !errors.As(err, &callErr) {
			t.Fatalf("error = %v, want *cfg.UnresolvedCallError", err)
		}
		var nf *cfg.NotFoundError
		if !errors.As(err, &nf) || nf.Entry != 0x300 {
			t.Errorf("error does not wrap the lookup failure: %v", err)
		}
	})

	t.Run("no terminal", func(t *testing.T) {
		g := build(a, 0x100, []*program.BasicBlock{
			mk(a, 0x100, "nop"),
			mk(a, 0x102, "jmp $0x100"),
		}, [][2]uint64{{0x100, 0x102}, {0x102, 0x100}})
		_, err := analyzer(g).ClockBounds(0x100)
		var noPath *NoPathError
		if !errors.As(err, &noPath) {
			t.Fatalf("error = %v, want *NoPathError", err)
		}
	})

	t.Run("call depth", func(t *testing.T) {
		f := build(a, 0x100, []*program.BasicBlock{mk(a, 0x100, "call 0x200", "ret")}, nil)
		g := build(a, 0x200, []*program.BasicBlock{mk(a, 0x200, "call 0x300", "ret")}, nil)
		h := build(a, 0x300, []*program.BasicBlock{mk(a, 0x300, "ret")}, nil)
		db := cfg.NewDatabase()
		db.Add(f)
		db.Add(g)
		db.Add(h)
		an := NewAnalyzer(db, Config{Budget: Budget{MaxCallDepth: 2}})
		_, err := an.ClockBounds(0x100)
		var budgetErr *BudgetError
		if !errors.As(err, &budgetErr) || budgetErr.Limit != "max_call_depth" {
			t.Fatalf("error = %v, want max_call_depth *BudgetError", err)
		}
	})
}

func TestExpandSplicesSuccessPaths(t *testing.T) {
	a := arch.NewDummy().WithTakenCost("bz", 3)
	main := build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "call 0x200", "ret"),
	}, nil)
	an := analyzer(main, checker(a))

	res, err := an.Paths(0x100, Query{})
	if err != nil {
		t.Fatalf("Paths() error = %v", err)
	}
	exp, err := an.Expand(res.Paths[0])
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(exp) != 1 {
		t.Fatalf("Expand() = %d paths, want 1", len(exp))
	}

	var got []string
	for _, ins := range exp[0].Instructions() {
		got = append(got, ins.Text())
	}
	want := []string{"call 0x200", "cmp A, #1", "bz $0x210", "nop", "ok", "ret", "ret"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("expansion mismatch (-want +got):\n%s", diff)
	}
	if o := exp[0].Steps[2].Outcome; o != program.OutcomeNotTaken {
		t.Errorf("bz outcome = %v, want not-taken", o)
	}

	ticks, err := exp[0].Ticks(a)
	if err != nil {
		t.Fatalf("Ticks() error = %v", err)
	}
	if diff := cmp.Diff(Exact(7), ticks); diff != "" {
		t.Errorf("Ticks() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandCrossProduct(t *testing.T) {
	a := arch.NewDummy()
	// neither terminal of the callee is marked, so both count
	callee := build(a, 0x200, []*program.BasicBlock{
		mk(a, 0x200, "bz $0x210"),
		mk(a, 0x202, "ret"),
		mk(a, 0x210, "nop", "ret"),
	}, [][2]uint64{{0x200, 0x202}, {0x200, 0x210}})
	main := build(a, 0x100, []*program.BasicBlock{
		mk(a, 0x100, "call 0x200", "call 0x200", "ret"),
	}, nil)
	an := analyzer(main, callee)

	res, err := an.Paths(0x100, Query{})
	if err != nil {
		t.Fatalf("Paths() error = %v", err)
	}
	exp, err := an.Expand(res.Paths[0])
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(exp) != 4 {
		t.Fatalf("Expand() = %d paths, want 4", len(exp))
	}

	lengths := map[int]int{}
	for _, ip := range exp {
		lengths[ip.Len()]++
	}
	// call + {2,3} + call + {2,3} + ret
	if diff := cmp.Diff(map[int]int{7: 1, 8: 2, 9: 1}, lengths); diff != "" {
		t.Errorf("expansion lengths mismatch (-want +got):\n%s", diff)
	}

	// expansions must not share backing arrays
	exp[0].Steps[0].Outcome = program.OutcomeTaken
	for _, ip := range exp[1:] {
		if ip.Steps[0].Outcome == program.OutcomeTaken {
			t.Fatal("expansions alias each other")
		}
	}

	limited := NewAnalyzer(an.Database(), Config{Budget: Budget{MaxExpansions: 3}})
	_, err = limited.Expand(res.Paths[0])
	var budgetErr *BudgetError
	if !errors.As(err, &budgetErr) || budgetErr.Limit != "max_expansions" {
		t.Errorf("error = %v, want max_expansions *BudgetError", err)
	}
}

func TestExpandRecursion(t *testing.T) {
	a := arch.NewDummy()
	g := build(a, 0x100, []*program.BasicBlock{mk(a, 0x100, "call 0x100", "ret")}, nil)
	an := analyzer(g)

	res, err := an.Paths(0x100, Query{})
	if err != nil {
		t.Fatalf("Paths() error = %v", err)
	}
	_, err = an.Expand(res.Paths[0])
	var recErr *RecursionError
	if !errors.As(err, &recErr) {
		t.Fatalf("Expand() error = %v, want *RecursionError", err)
	}
}

func TestAnalyzerDefaultBudget(t *testing.T) {
	an := NewAnalyzer(cfg.NewDatabase(), Config{})
	if diff := cmp.Diff(DefaultBudget(), an.Budget()); diff != "" {
		t.Errorf("Budget() mismatch (-want +got):\n%s", diff)
	}
	if _, err := an.ClockBounds(0x100); err == nil {
		t.Error("ClockBounds() on empty database returned no error")
	}
}
