package arch

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// RSAS78K0Name is the registry name of the Renesas 78K0 model.
const RSAS78K0Name = "78k0"

var (
	rsasImmediate = regexp.MustCompile(`^#([0-9a-fA-F]+)h$`)
	rsasConst     = regexp.MustCompile(`^#.*h`)
)

// rsasCost computes the cost of an instruction whose timing depends on its
// operand form.
type rsasCost func(ins *program.Instruction) (int, error)

// RSAS78K0 models the Renesas 78K0 instruction set. Cycle counts are
// simplified: costs that depend on whether an operand lives in internal RAM
// or on the peripheral bus are collapsed to the common case.
type RSAS78K0 struct {
	fixed    map[string]int
	variable map[string]rsasCost
	kinds    kinds
	conds    ConditionTable

	constraint mnemonicSet
	moves      mnemonicSet
}

var _ Architecture = (*RSAS78K0)(nil)

// NewRSAS78K0 returns the 78K0 model.
func NewRSAS78K0() *RSAS78K0 {
	r := &RSAS78K0{
		fixed: map[string]int{
			"add":   4,
			"addc":  4,
			"cmp":   6,
			"xch":   2,
			"divuw": 25,
			"ret":   6,
			"reti":  6,
			"retb":  6,
			"push":  4,
			"pop":   4,
			"dec":   2,
			"call":  7,
			"callf": 5,
			"callt": 6,
			"movw":  8,
			"sub":   4,
		},
		kinds:      kinds{},
		conds:      ConditionTable{},
		constraint: newMnemonicSet("cmp", "set1", "clr1"),
		moves:      newMnemonicSet("mov", "movw"),
	}
	r.variable = map[string]rsasCost{
		"mov":  r.movCost,
		"inc":  r.incCost,
		"set1": r.bitCost,
		"clr1": r.bitCost,
	}

	r.kinds.add(program.KindCondJump, "bc", "bnc", "bz", "bnz")
	r.kinds.add(program.KindUncondJump, "br")
	r.kinds.add(program.KindCall, "call", "callf", "callt")
	r.kinds.add(program.KindReturn, "ret", "reti", "retb")

	// CY is set when the first compare operand is below the second.
	r.conds.Set("bc", "cmp", RelLT)
	r.conds.Set("bnc", "cmp", RelGE)
	r.conds.Set("bz", "cmp", RelEQ)
	r.conds.Set("bnz", "cmp", RelNE)
	r.conds.Set("bc", "set1", RelTrue)
	r.conds.Set("bc", "clr1", RelFalse)
	r.conds.Set("bnc", "set1", RelFalse)
	r.conds.Set("bnc", "clr1", RelTrue)
	return r
}

func (r *RSAS78K0) Name() string { return RSAS78K0Name }

func (r *RSAS78K0) Classify(ins *program.Instruction) program.Kind {
	return r.kinds.classify(ins)
}

func (r *RSAS78K0) Ticks(ins *program.Instruction, taken bool) (int, error) {
	if isBranch(r, ins) {
		return r.BranchCost(ins, taken)
	}
	if cost, ok := r.fixed[ins.Mnemonic]; ok {
		return cost, nil
	}
	if fn, ok := r.variable[ins.Mnemonic]; ok {
		return fn(ins)
	}
	return 0, &UnknownInstructionError{Arch: r.Name(), Mnemonic: ins.Mnemonic, Address: ins.Address}
}

// BranchCost is 8 cycles for branches through AX and 6 for every other form.
func (r *RSAS78K0) BranchCost(ins *program.Instruction, taken bool) (int, error) {
	if strings.Contains(ins.Operand(0), "AX") {
		return 8, nil
	}
	return 6, nil
}

func (r *RSAS78K0) TranslateCondition(cmp, branch *program.Instruction, taken bool) (Predicate, error) {
	return r.conds.translate(r, cmp, branch, taken)
}

func (r *RSAS78K0) IsConstraint(mnemonic string) bool { return r.constraint.has(mnemonic) }

func (r *RSAS78K0) IsMove(mnemonic string) bool { return r.moves.has(mnemonic) }

// MoveOperands reads 78K0 moves destination first: "mov A, [HL+00h]" copies
// [HL+00h] into A.
func (r *RSAS78K0) MoveOperands(ins *program.Instruction) (string, string, bool) {
	if !r.IsMove(ins.Mnemonic) || len(ins.Operands) < 2 {
		return "", "", false
	}
	return ins.Operands[0], ins.Operands[1], true
}

// ParseImmediate accepts the "#03h" hexadecimal form.
func (r *RSAS78K0) ParseImmediate(operand string) (int64, bool) {
	m := rsasImmediate.FindStringSubmatch(strings.TrimSpace(operand))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(m[1], 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (r *RSAS78K0) SuccessMnemonics() []string { return []string{"clr1"} }

func (r *RSAS78K0) ErrorMnemonics() []string { return []string{"set1"} }

func rsasIsReg(op string) bool {
	return op != "" && strings.ContainsRune("AXBCDEHL", rune(op[0]))
}

func rsasIsMemory(op string) bool {
	return strings.HasPrefix(op, "!") || strings.HasPrefix(op, "[HL")
}

var errMovForm = errors.New("mov without a register operand")

func (r *RSAS78K0) movCost(ins *program.Instruction) (int, error) {
	dst, src := ins.Operand(0), ins.Operand(1)
	switch {
	case rsasIsReg(dst):
		if rsasConst.MatchString(src) {
			return 4, nil
		}
		if rsasIsMemory(src) {
			return 8, nil
		}
		return 4, nil
	case rsasIsReg(src):
		if rsasIsMemory(dst) {
			return 8, nil
		}
		return 4, nil
	default:
		return 0, &UnknownInstructionError{Arch: r.Name(), Mnemonic: ins.Mnemonic, Address: ins.Address, Err: errMovForm}
	}
}

func (r *RSAS78K0) incCost(ins *program.Instruction) (int, error) {
	if rsasIsReg(ins.Operand(0)) {
		return 2, nil
	}
	return 4, nil
}

func (r *RSAS78K0) bitCost(ins *program.Instruction) (int, error) {
	if strings.HasPrefix(ins.Operand(0), "CY") {
		return 2, nil
	}
	return 4, nil
}
