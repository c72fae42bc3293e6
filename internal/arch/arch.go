package arch

import (
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Architecture is the timing and branch-condition model of one instruction set.
type Architecture interface {
	// Name is the identifier used in graph files and on the command line.
	Name() string

	// Classify derives the control-flow kind of ins from its mnemonic.
	Classify(ins *program.Instruction) program.Kind

	// Ticks returns the cycle cost of ins. For branches, taken selects the
	// taken or fall-through cost. Instructions missing from the cost table that
	// are not branches yield an *UnknownInstructionError.
	Ticks(ins *program.Instruction, taken bool) (int, error)

	// BranchCost returns the cycle cost of a conditional or unconditional branch.
	BranchCost(ins *program.Instruction, taken bool) (int, error)

	// TranslateCondition returns the predicate that holds over the operands of
	// cmp when branch is (or is not) taken. Immediate operands of cmp are bound
	// in the result. Missing table entries yield a *ConditionError.
	TranslateCondition(cmp, branch *program.Instruction, taken bool) (Predicate, error)

	// IsConstraint reports whether the mnemonic sets the flags a branch tests.
	IsConstraint(mnemonic string) bool

	// IsMove reports whether the mnemonic copies a value between operands.
	IsMove(mnemonic string) bool

	// MoveOperands returns the destination and source of a move instruction.
	MoveOperands(ins *program.Instruction) (dst, src string, ok bool)

	// ParseImmediate returns the value of an immediate operand.
	ParseImmediate(operand string) (int64, bool)

	// SuccessMnemonics are mnemonics marking a terminal block as the success outcome.
	SuccessMnemonics() []string

	// ErrorMnemonics are mnemonics marking a terminal block as the error outcome.
	ErrorMnemonics() []string
}

// Ticker is the subset of Architecture needed for cycle accounting.
type Ticker interface {
	Ticks(ins *program.Instruction, taken bool) (int, error)
}

// isBranch reports whether either the instruction's recorded kind or the
// architecture's classification makes ins a branch.
func isBranch(a Architecture, ins *program.Instruction) bool {
	return ins.Kind.IsBranch() || a.Classify(ins).IsBranch()
}

type mnemonicSet map[string]struct{}

func newMnemonicSet(mnemonics ...string) mnemonicSet {
	s := make(mnemonicSet, len(mnemonics))
	for _, m := range mnemonics {
		s[m] = struct{}{}
	}
	return s
}

func (s mnemonicSet) has(m string) bool {
	_, ok := s[m]
	return ok
}

// kinds maps mnemonics to the control-flow kind they introduce.
type kinds map[string]program.Kind

func (k kinds) classify(ins *program.Instruction) program.Kind {
	if kind, ok := k[ins.Mnemonic]; ok {
		return kind
	}
	return program.KindNormal
}

func (k kinds) add(kind program.Kind, mnemonics ...string) {
	for _, m := range mnemonics {
		k[m] = kind
	}
}
