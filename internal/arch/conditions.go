package arch

import (
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

type conditionKey struct {
	taken   bool
	branch  string
	compare string
}

// ConditionTable maps (taken, branch, compare) to the relation that holds
// between the two compare operands.
type ConditionTable map[conditionKey]Relation

// Set registers the relation for the taken direction and its negation for the
// fall-through direction.
func (t ConditionTable) Set(branch, compare string, taken Relation) {
	t[conditionKey{taken: true, branch: branch, compare: compare}] = taken
	t[conditionKey{taken: false, branch: branch, compare: compare}] = taken.Negate()
}

// SetBoth registers explicit relations for both directions.
func (t ConditionTable) SetBoth(branch, compare string, taken, notTaken Relation) {
	t[conditionKey{taken: true, branch: branch, compare: compare}] = taken
	t[conditionKey{taken: false, branch: branch, compare: compare}] = notTaken
}

// Lookup returns the relation registered for the combination.
func (t ConditionTable) Lookup(branch, compare string, taken bool) (Relation, bool) {
	rel, ok := t[conditionKey{taken: taken, branch: branch, compare: compare}]
	return rel, ok
}

// translate looks up the relation and binds immediate operands of cmp.
func (t ConditionTable) translate(a Architecture, cmp, branch *program.Instruction, taken bool) (Predicate, error) {
	rel, ok := t.Lookup(branch.Mnemonic, cmp.Mnemonic, taken)
	if !ok {
		return Predicate{}, &ConditionError{
			Arch:    a.Name(),
			Branch:  branch.Mnemonic,
			Compare: cmp.Mnemonic,
			Taken:   taken,
		}
	}
	p := NewPredicate(rel)
	if rel.Constant() {
		return p, nil
	}
	for slot := 0; slot < 2; slot++ {
		if v, ok := a.ParseImmediate(cmp.Operand(slot)); ok {
			p = p.Bind(slot, v)
		}
	}
	return p, nil
}
