package arch

import (
	"strconv"
	"strings"

	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// DummyName is the registry name of the test architecture.
const DummyName = "dummy"

// Dummy is a minimal architecture for tests and synthetic graphs. Every
// instruction costs DefaultCost unless Costs (or TakenCosts, for branches
// that are taken) says otherwise, so it never reports unknown instructions.
//
// Moves read source first: "mov X, R" copies X into R.
type Dummy struct {
	Costs       map[string]int
	TakenCosts  map[string]int
	DefaultCost int
	Success     []string
	Error       []string

	kinds kinds
	conds ConditionTable
}

var _ Architecture = (*Dummy)(nil)

// NewDummy returns a Dummy with unit costs. Branches are bc, bnc, bz and bnz
// (after cmp), jmp and br; calls are call; returns are ret. Terminal blocks
// containing "ok" count as success and those containing "fail" as error.
func NewDummy() *Dummy {
	d := &Dummy{
		Costs:       map[string]int{},
		TakenCosts:  map[string]int{},
		DefaultCost: 1,
		Success:     []string{"ok"},
		Error:       []string{"fail"},
		kinds:       kinds{},
		conds:       ConditionTable{},
	}
	d.kinds.add(program.KindCondJump, "bc", "bnc", "bz", "bnz")
	d.kinds.add(program.KindUncondJump, "jmp", "br")
	d.kinds.add(program.KindCall, "call")
	d.kinds.add(program.KindReturn, "ret")

	d.conds.Set("bc", "cmp", RelLT)
	d.conds.Set("bnc", "cmp", RelGE)
	d.conds.Set("bz", "cmp", RelEQ)
	d.conds.Set("bnz", "cmp", RelNE)
	return d
}

// WithCost sets the cost of mnemonic and returns d.
func (d *Dummy) WithCost(mnemonic string, cost int) *Dummy {
	d.Costs[mnemonic] = cost
	return d
}

// WithTakenCost sets the cost of mnemonic when it is a taken branch.
func (d *Dummy) WithTakenCost(mnemonic string, cost int) *Dummy {
	d.TakenCosts[mnemonic] = cost
	return d
}

func (d *Dummy) Name() string { return DummyName }

func (d *Dummy) Classify(ins *program.Instruction) program.Kind {
	return d.kinds.classify(ins)
}

func (d *Dummy) Ticks(ins *program.Instruction, taken bool) (int, error) {
	if isBranch(d, ins) {
		return d.BranchCost(ins, taken)
	}
	return d.cost(ins.Mnemonic), nil
}

func (d *Dummy) BranchCost(ins *program.Instruction, taken bool) (int, error) {
	if taken {
		if c, ok := d.TakenCosts[ins.Mnemonic]; ok {
			return c, nil
		}
	}
	return d.cost(ins.Mnemonic), nil
}

func (d *Dummy) cost(mnemonic string) int {
	if c, ok := d.Costs[mnemonic]; ok {
		return c
	}
	return d.DefaultCost
}

func (d *Dummy) TranslateCondition(cmp, branch *program.Instruction, taken bool) (Predicate, error) {
	return d.conds.translate(d, cmp, branch, taken)
}

func (d *Dummy) IsConstraint(mnemonic string) bool { return mnemonic == "cmp" }

func (d *Dummy) IsMove(mnemonic string) bool { return mnemonic == "mov" }

func (d *Dummy) MoveOperands(ins *program.Instruction) (string, string, bool) {
	if !d.IsMove(ins.Mnemonic) || len(ins.Operands) < 2 {
		return "", "", false
	}
	return ins.Operands[1], ins.Operands[0], true
}

// ParseImmediate accepts "#5", "#-5" and "#0x1f".
func (d *Dummy) ParseImmediate(operand string) (int64, bool) {
	operand = strings.TrimSpace(operand)
	if !strings.HasPrefix(operand, "#") {
		return 0, false
	}
	v, err := strconv.ParseInt(operand[1:], 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (d *Dummy) SuccessMnemonics() []string { return d.Success }

func (d *Dummy) ErrorMnemonics() []string { return d.Error }
