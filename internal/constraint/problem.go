package constraint

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gnboorse/centipede"
)

// ErrBudget is returned when the solver evaluates constraints more than
// Problem.MaxSteps times.
var ErrBudget = errors.New("constraint solver step budget exhausted")

// pollEvery is the number of constraint evaluations between context checks.
const pollEvery = 1024

// Assignment maps variable names to values.
type Assignment map[string]int64

// String renders the assignment sorted by name, e.g. "A=0x2 B=0x10".
func (a Assignment) String() string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for n, name := range names {
		parts[n] = fmt.Sprintf("%s=0x%x", name, a[name])
	}
	return strings.Join(parts, " ")
}

// Constraint is a predicate over the listed variables. Check receives the
// values of Vars in order. A constraint without variables is a plain
// feasibility check.
type Constraint struct {
	Vars  []string
	Check func(vals []int64) bool
	Desc  string
}

func (c Constraint) String() string {
	if c.Desc != "" {
		return c.Desc
	}
	return fmt.Sprintf("constraint(%s)", strings.Join(c.Vars, ", "))
}

// VariableError reports a bad variable declaration or a constraint over an
// undeclared variable.
type VariableError struct {
	Name   string
	Reason string
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("variable %q: %s", e.Name, e.Reason)
}

// Problem is a finite-domain constraint satisfaction problem. It is built
// once per query, solved and discarded. Constant and unary constraints are
// applied up front; the search over the remaining constraints runs on a
// centipede backtracking solver.
type Problem struct {
	// MaxSteps bounds the number of constraint evaluations over one
	// Solutions call; zero means unbounded
	MaxSteps int

	vars        []string
	domains     map[string][]int64
	constraints []Constraint
}

// NewProblem creates an empty problem.
func NewProblem() *Problem {
	return &Problem{domains: make(map[string][]int64)}
}

// AddVariable declares name with the given admissible values. Duplicate
// values are dropped; the domain is searched in ascending order.
func (p *Problem) AddVariable(name string, domain []int64) error {
	if name == "" {
		return &VariableError{Name: name, Reason: "empty name"}
	}
	if _, ok := p.domains[name]; ok {
		return &VariableError{Name: name, Reason: "declared twice"}
	}
	if len(domain) == 0 {
		return &VariableError{Name: name, Reason: "empty domain"}
	}
	d := slices.Clone(domain)
	slices.Sort(d)
	p.domains[name] = slices.Compact(d)
	p.vars = append(p.vars, name)
	return nil
}

// AddConstraint registers c. Every variable it names must be declared.
func (p *Problem) AddConstraint(c Constraint) error {
	if c.Check == nil {
		return fmt.Errorf("constraint %s has no check function", c)
	}
	for _, name := range c.Vars {
		if _, ok := p.domains[name]; !ok {
			return &VariableError{Name: name, Reason: "not declared"}
		}
	}
	p.constraints = append(p.constraints, c)
	return nil
}

// Variables returns the declared variable names in declaration order.
func (p *Problem) Variables() []string {
	return slices.Clone(p.vars)
}

// Domain returns the values declared for name.
func (p *Problem) Domain(name string) []int64 {
	return slices.Clone(p.domains[name])
}

// Constraints returns the registered constraints.
func (p *Problem) Constraints() []Constraint {
	return slices.Clone(p.constraints)
}

// Solve returns the first satisfying assignment. ok is false when the problem
// has no solution, which is a normal outcome rather than an error.
func (p *Problem) Solve(ctx context.Context) (Assignment, bool, error) {
	sols, err := p.Solutions(ctx, 1)
	if err != nil || len(sols) == 0 {
		return nil, false, err
	}
	return sols[0], true, nil
}

// Solutions returns up to limit satisfying assignments (all of them when
// limit <= 0). Assignments come in lexicographic order of the declared
// variables over their ascending domains.
func (p *Problem) Solutions(ctx context.Context, limit int) ([]Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	domains, nary, ok := p.reduce()
	if !ok {
		return nil, nil
	}
	if len(p.vars) == 0 {
		return []Assignment{{}}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m := &meter{ctx: ctx, cancel: cancel, max: p.MaxSteps}

	seen := mapset.NewThreadUnsafeSet[string]()
	var out []Assignment
	for limit <= 0 || len(out) < limit {
		a, found, err := p.solveOnce(m, domains, nary, seen)
		if err != nil {
			return out, err
		}
		if !found {
			break
		}
		seen.Add(key(p.vars, a))
		out = append(out, a)
	}
	return out, nil
}

// reduce applies zero-arity checks and node consistency. It returns the
// pruned domains and the constraints left for the search; ok is false when
// the problem is already infeasible.
func (p *Problem) reduce() (map[string][]int64, []Constraint, bool) {
	domains := make(map[string][]int64, len(p.domains))
	for name, d := range p.domains {
		domains[name] = d
	}

	var nary []Constraint
	for _, c := range p.constraints {
		uniq := mapset.NewThreadUnsafeSet(c.Vars...)
		switch uniq.Cardinality() {
		case 0:
			if !c.Check(nil) {
				return nil, nil, false
			}
		case 1:
			name := c.Vars[0]
			kept := make([]int64, 0, len(domains[name]))
			vals := make([]int64, len(c.Vars))
			for _, x := range domains[name] {
				for n := range vals {
					vals[n] = x
				}
				if c.Check(vals) {
					kept = append(kept, x)
				}
			}
			if len(kept) == 0 {
				return nil, nil, false
			}
			domains[name] = kept
		default:
			nary = append(nary, c)
		}
	}
	return domains, nary, true
}

// solveOnce runs one backtracking search for an assignment not in seen.
func (p *Problem) solveOnce(m *meter, domains map[string][]int64, nary []Constraint, seen mapset.Set[string]) (Assignment, bool, error) {
	vars := make(centipede.Variables[int64], 0, len(p.vars))
	for _, name := range p.vars {
		vars = append(vars, centipede.NewVariable(centipede.VariableName(name), centipede.Domain[int64](domains[name])))
	}
	constraints := make(centipede.Constraints[int64], 0, len(nary)+1)
	for _, c := range nary {
		constraints = append(constraints, m.wrap(c.Vars, c.Check))
	}
	if seen.Cardinality() > 0 {
		names := p.vars
		constraints = append(constraints, m.wrap(names, func(vals []int64) bool {
			a := make(Assignment, len(names))
			for n, name := range names {
				a[name] = vals[n]
			}
			return !seen.Contains(key(names, a))
		}))
	}

	solver := centipede.NewBackTrackingCSPSolver(vars, constraints)
	ok, err := solver.Solve(m.ctx)
	if m.err != nil {
		return nil, false, m.err
	}
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	a := make(Assignment, len(p.vars))
	for _, v := range solver.State.Vars {
		a[string(v.Name)] = v.Value
	}
	return a, true, nil
}

// meter counts constraint evaluations against the step budget and polls the
// context. Once it trips every wrapped constraint fails, which unwinds the
// search.
type meter struct {
	ctx    context.Context
	cancel context.CancelFunc
	max    int
	steps  int
	err    error
}

func (m *meter) step() bool {
	if m.err != nil {
		return false
	}
	m.steps++
	if m.max > 0 && m.steps > m.max {
		m.fail(ErrBudget)
		return false
	}
	if m.steps%pollEvery == 0 {
		if err := m.ctx.Err(); err != nil {
			m.fail(err)
			return false
		}
	}
	return true
}

func (m *meter) fail(err error) {
	m.err = err
	m.cancel()
}

// wrap adapts check to a centipede constraint. Partial assignments are
// accepted until every variable of the constraint has a value.
func (m *meter) wrap(names []string, check func([]int64) bool) centipede.Constraint[int64] {
	vn := make(centipede.VariableNames, len(names))
	for n, name := range names {
		vn[n] = centipede.VariableName(name)
	}
	return centipede.Constraint[int64]{
		Vars: vn,
		ConstraintFunction: func(vs *centipede.Variables[int64]) bool {
			if !m.step() {
				return false
			}
			vals := make([]int64, len(vn))
			for n, name := range vn {
				v := vs.Find(name)
				if v == nil || v.Empty {
					return true
				}
				vals[n] = v.Value
			}
			return check(vals)
		},
	}
}

func key(vars []string, a Assignment) string {
	var b strings.Builder
	for _, name := range vars {
		fmt.Fprintf(&b, "%x,", a[name])
	}
	return b.String()
}
