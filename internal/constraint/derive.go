package constraint

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/path"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Variable is a symbolic input with its admissible values. Name is the
// operand text the variable stands for, e.g. "[HL+02h]" or "A".
type Variable struct {
	Name   string
	Domain []int64
}

// Range returns the values lo..hi inclusive.
func Range(lo, hi int64) []int64 {
	if hi < lo {
		return nil
	}
	out := make([]int64, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

// Deriver turns the conditional branches of an instruction path into
// predicates over symbolic variables.
type Deriver struct {
	Arch arch.Architecture
	// Vars are the declared symbolic variable names
	Vars []string
	// Logger receives skipped branches at debug level. Nil disables logging.
	Logger *zap.Logger
}

// Derived is the constraint derived from one conditional branch.
type Derived struct {
	Branch    *program.Instruction
	Compare   *program.Instruction
	Taken     bool
	Predicate arch.Predicate
	// Vars holds the variable each compare operand resolved to, "" if none
	Vars [2]string
	// Registered is false when a free operand could not be resolved to a
	// variable and the predicate was dropped
	Registered bool
}

// Constraint returns the solver constraint over the resolved variables.
func (d Derived) Constraint() Constraint {
	pred := d.Predicate
	var vars []string
	for _, slot := range pred.FreeSlots() {
		vars = append(vars, d.Vars[slot])
	}
	return Constraint{
		Vars:  vars,
		Check: func(vals []int64) bool { return pred.Eval(vals...) },
		Desc:  d.Expr(),
	}
}

// Expr renders the predicate with the resolved variable names, falling back
// to the compare operand text.
func (d Derived) Expr() string {
	names := [2]string{d.Compare.Operand(0), d.Compare.Operand(1)}
	for n, v := range d.Vars {
		if v != "" {
			names[n] = v
		}
	}
	return d.Predicate.Format(names[0], names[1])
}

func (d Derived) String() string {
	dir := "not taken"
	if d.Taken {
		dir = "taken"
	}
	s := fmt.Sprintf("0x%x %s %s: %s", d.Branch.Address, d.Branch.Mnemonic, dir, d.Expr())
	if !d.Registered {
		s += " (unbound, ignored)"
	}
	return s
}

// Derive scans ip for conditional branches with a known outcome. For each
// one the nearest preceding constraint instruction is translated into a
// predicate, and its non-immediate operands are resolved to variables either
// directly or through the moves that fed them.
func (d *Deriver) Derive(ip *path.InstructionPath) ([]Derived, error) {
	declared := make(map[string]bool, len(d.Vars))
	for _, v := range d.Vars {
		declared[v] = true
	}

	var out []Derived
	for i, s := range ip.Steps {
		if s.Ins.Kind != program.KindCondJump || s.Outcome == program.OutcomeUnknown {
			continue
		}
		j := d.compareIndex(ip, i)
		if j < 0 {
			d.debug("No constraint instruction before branch", zap.Uint64("address", s.Ins.Address))
			continue
		}
		cmp := ip.Steps[j].Ins
		taken := s.Outcome == program.OutcomeTaken

		pred, err := d.Arch.TranslateCondition(cmp, s.Ins, taken)
		if err != nil {
			return nil, err
		}

		der := Derived{Branch: s.Ins, Compare: cmp, Taken: taken, Predicate: pred, Registered: true}
		for n := 0; n < 2 && n < len(cmp.Operands); n++ {
			op := cmp.Operands[n]
			if _, ok := d.Arch.ParseImmediate(op); ok {
				continue
			}
			if declared[op] {
				der.Vars[n] = op
				continue
			}
			der.Vars[n] = d.propagate(ip, j, op, declared)
		}
		for _, slot := range pred.FreeSlots() {
			if der.Vars[slot] == "" {
				der.Registered = false
				d.debug("Operand not bound to a variable",
					zap.Uint64("address", cmp.Address),
					zap.String("operand", cmp.Operand(slot)),
				)
			}
		}
		out = append(out, der)
	}
	return out, nil
}

func (d *Deriver) compareIndex(ip *path.InstructionPath, branch int) int {
	for j := branch - 1; j >= 0; j-- {
		if d.Arch.IsConstraint(ip.Steps[j].Ins.Mnemonic) {
			return j
		}
	}
	return -1
}

// propagate follows moves backwards from position from, replacing ref with the
// source of each move that wrote it, until ref names a declared variable.
func (d *Deriver) propagate(ip *path.InstructionPath, from int, ref string, declared map[string]bool) string {
	for j := from - 1; j >= 0; j-- {
		ins := ip.Steps[j].Ins
		if !d.Arch.IsMove(ins.Mnemonic) {
			continue
		}
		dst, src, ok := d.Arch.MoveOperands(ins)
		if !ok || dst != ref {
			continue
		}
		ref = src
		if declared[ref] {
			return ref
		}
	}
	return ""
}

func (d *Deriver) debug(msg string, fields ...zap.Field) {
	if d.Logger != nil {
		d.Logger.Debug(msg, fields...)
	}
}

// Build assembles the problem for ip: the variables, the extra constraints,
// and every registered constraint derived from ip's branches. The deriver's
// Vars default to the names of vars.
func Build(ip *path.InstructionPath, d Deriver, vars []Variable, extra []Constraint) (*Problem, []Derived, error) {
	p := NewProblem()
	var names []string
	for _, v := range vars {
		if err := p.AddVariable(v.Name, v.Domain); err != nil {
			return nil, nil, err
		}
		names = append(names, v.Name)
	}
	for _, c := range extra {
		if err := p.AddConstraint(c); err != nil {
			return nil, nil, err
		}
	}

	if d.Vars == nil {
		d.Vars = names
	}
	derived, err := d.Derive(ip)
	if err != nil {
		return nil, nil, err
	}
	for _, der := range derived {
		if !der.Registered {
			continue
		}
		if err := p.AddConstraint(der.Constraint()); err != nil {
			return nil, nil, err
		}
	}
	return p, derived, nil
}
