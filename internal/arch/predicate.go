package arch

import (
	"fmt"
	"strings"
)

// Relation is the comparison a Predicate applies to its two operand slots.
type Relation int

const (
	RelFalse Relation = iota
	RelTrue
	RelLT
	RelLE
	RelGT
	RelGE
	RelEQ
	RelNE
)

var relationNames = map[Relation]string{
	RelFalse: "false",
	RelTrue:  "true",
	RelLT:    "lt",
	RelLE:    "le",
	RelGT:    "gt",
	RelGE:    "ge",
	RelEQ:    "eq",
	RelNE:    "ne",
}

var relationSymbols = map[Relation]string{
	RelLT: "<",
	RelLE: "<=",
	RelGT: ">",
	RelGE: ">=",
	RelEQ: "==",
	RelNE: "!=",
}

func (r Relation) String() string {
	if name, ok := relationNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

// ParseRelation accepts the names used in architecture spec files ("lt",
// "ge", ...) as well as the operator symbols ("<", ">=", ...).
func ParseRelation(s string) (Relation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range relationNames {
		if s == name {
			return r, nil
		}
	}
	for r, sym := range relationSymbols {
		if s == sym {
			return r, nil
		}
	}
	return RelFalse, fmt.Errorf("unknown relation %q", s)
}

// Constant reports whether the relation ignores its operands.
func (r Relation) Constant() bool {
	return r == RelTrue || r == RelFalse
}

// Negate returns the relation that holds exactly when r does not.
func (r Relation) Negate() Relation {
	switch r {
	case RelFalse:
		return RelTrue
	case RelTrue:
		return RelFalse
	case RelLT:
		return RelGE
	case RelLE:
		return RelGT
	case RelGT:
		return RelLE
	case RelGE:
		return RelLT
	case RelEQ:
		return RelNE
	default:
		return RelEQ
	}
}

func (r Relation) holds(x, y int64) bool {
	switch r {
	case RelTrue:
		return true
	case RelLT:
		return x < y
	case RelLE:
		return x <= y
	case RelGT:
		return x > y
	case RelGE:
		return x >= y
	case RelEQ:
		return x == y
	case RelNE:
		return x != y
	default:
		return false
	}
}

// Predicate is a relation over the two operands of a compare instruction.
// Operands that were immediates in the instruction are held in Fixed; the
// remaining slots are free and are supplied to Eval in slot order.
type Predicate struct {
	Rel   Relation
	Fixed [2]*int64
}

// NewPredicate returns a predicate with both slots free.
func NewPredicate(rel Relation) Predicate {
	return Predicate{Rel: rel}
}

// Bind returns a copy of p with slot fixed to v.
func (p Predicate) Bind(slot int, v int64) Predicate {
	if slot < 0 || slot > 1 {
		return p
	}
	val := v
	p.Fixed[slot] = &val
	return p
}

// FreeSlots returns the indices of operand slots that are not fixed. A
// constant relation has no free slots.
func (p Predicate) FreeSlots() []int {
	if p.Rel.Constant() {
		return nil
	}
	var free []int
	for n, v := range p.Fixed {
		if v == nil {
			free = append(free, n)
		}
	}
	return free
}

// Arity is the number of values Eval expects.
func (p Predicate) Arity() int {
	return len(p.FreeSlots())
}

// Eval applies the predicate to the free slot values. It returns false when
// the number of values does not match Arity.
func (p Predicate) Eval(free ...int64) bool {
	if p.Rel.Constant() {
		return p.Rel == RelTrue
	}
	var ops [2]int64
	n := 0
	for slot, v := range p.Fixed {
		if v != nil {
			ops[slot] = *v
			continue
		}
		if n >= len(free) {
			return false
		}
		ops[slot] = free[n]
		n++
	}
	if n != len(free) {
		return false
	}
	return p.Rel.holds(ops[0], ops[1])
}

// String renders the predicate with free slots named x0 and x1,
// e.g. "x0 < 0x3".
func (p Predicate) String() string {
	return p.Format("x0", "x1")
}

// Format renders the predicate using the given names for the two slots.
func (p Predicate) Format(lhs, rhs string) string {
	if p.Rel.Constant() {
		return p.Rel.String()
	}
	names := [2]string{lhs, rhs}
	for n, v := range p.Fixed {
		if v != nil {
			names[n] = fmt.Sprintf("0x%x", *v)
		}
	}
	return fmt.Sprintf("%s %s %s", names[0], relationSymbols[p.Rel], names[1])
}
