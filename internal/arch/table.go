package arch

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Move operand orders accepted in Spec.MoveOrder.
const (
	MoveDstSrc = "dst_src"
	MoveSrcDst = "src_dst"
)

// Spec describes an architecture in YAML. Specs ship in the embedded catalog
// and can be loaded from user files with LoadSpecFile.
type Spec struct {
	// Name is the registry name (e.g. "stm8")
	Name string `yaml:"name"`

	// Description is a human-readable summary
	Description string `yaml:"description"`

	// Mnemonics groups instructions by role
	Mnemonics SpecMnemonics `yaml:"mnemonics"`

	// Costs maps a mnemonic to its cycle count
	Costs map[string]int `yaml:"costs"`

	// Rules override Costs when an operand matches a pattern. The first
	// matching rule wins.
	Rules []CostRule `yaml:"rules,omitempty"`

	// Branches maps a branch mnemonic to its taken and fall-through costs
	Branches map[string]BranchSpec `yaml:"branches"`

	// DefaultBranch applies to branches missing from Branches
	DefaultBranch *BranchSpec `yaml:"default_branch,omitempty"`

	// Conditions is the branch-condition table
	Conditions []ConditionSpec `yaml:"conditions"`

	// Immediates lists the accepted immediate operand syntaxes
	Immediates []ImmediateSpec `yaml:"immediates"`

	// MoveOrder is MoveDstSrc (default) or MoveSrcDst
	MoveOrder string `yaml:"move_order,omitempty"`
}

// SpecMnemonics holds the mnemonic sets of a Spec.
type SpecMnemonics struct {
	CondJump   []string `yaml:"cond_jump"`
	UncondJump []string `yaml:"uncond_jump"`
	Call       []string `yaml:"call"`
	Return     []string `yaml:"return"`
	Constraint []string `yaml:"constraint"`
	Move       []string `yaml:"move"`
	Success    []string `yaml:"success"`
	Error      []string `yaml:"error"`
}

// CostRule assigns Cost to Mnemonic when operand Operand matches Pattern.
type CostRule struct {
	Mnemonic string `yaml:"mnemonic"`
	Operand  int    `yaml:"operand"`
	Pattern  string `yaml:"pattern"`
	Cost     int    `yaml:"cost"`
}

// BranchSpec is the cost of a branch in each direction. Unconditional
// branches only use Taken.
type BranchSpec struct {
	Taken    int `yaml:"taken"`
	NotTaken int `yaml:"not_taken"`
}

// ConditionSpec is one row of the condition table. NotTaken defaults to the
// negation of Taken.
type ConditionSpec struct {
	Branch   string `yaml:"branch"`
	Compare  string `yaml:"compare"`
	Taken    string `yaml:"taken"`
	NotTaken string `yaml:"not_taken,omitempty"`
}

// ImmediateSpec is an immediate syntax: Pattern must have one capture group
// holding the digits, parsed in Base.
type ImmediateSpec struct {
	Pattern string `yaml:"pattern"`
	Base    int    `yaml:"base"`
}

type costRule struct {
	operand int
	re      *regexp.Regexp
	cost    int
}

type immediate struct {
	re   *regexp.Regexp
	base int
}

// Table is an Architecture driven by a Spec.
type Table struct {
	spec       Spec
	costs      map[string]int
	branches   map[string]BranchSpec
	kinds      kinds
	conds      ConditionTable
	rules      map[string][]costRule
	immediates []immediate
	constraint mnemonicSet
	moves      mnemonicSet
}

var _ Architecture = (*Table)(nil)

// NewTable validates spec and builds the architecture.
func NewTable(spec Spec) (*Table, error) {
	if spec.Name == "" {
		return nil, &SpecError{Field: "name", Err: errors.New("must not be empty")}
	}
	specErr := func(field string, err error) error {
		return &SpecError{Name: spec.Name, Field: field, Err: err}
	}

	t := &Table{
		spec:       spec,
		costs:      make(map[string]int, len(spec.Costs)),
		branches:   make(map[string]BranchSpec, len(spec.Branches)),
		kinds:      kinds{},
		conds:      ConditionTable{},
		rules:      map[string][]costRule{},
		constraint: newMnemonicSet(lower(spec.Mnemonics.Constraint)...),
		moves:      newMnemonicSet(lower(spec.Mnemonics.Move)...),
	}
	t.kinds.add(program.KindCondJump, lower(spec.Mnemonics.CondJump)...)
	t.kinds.add(program.KindUncondJump, lower(spec.Mnemonics.UncondJump)...)
	t.kinds.add(program.KindCall, lower(spec.Mnemonics.Call)...)
	t.kinds.add(program.KindReturn, lower(spec.Mnemonics.Return)...)

	for m, c := range spec.Costs {
		t.costs[strings.ToLower(m)] = c
	}
	for m, b := range spec.Branches {
		t.branches[strings.ToLower(m)] = b
	}

	switch spec.MoveOrder {
	case "", MoveDstSrc, MoveSrcDst:
	default:
		return nil, specErr("move_order", fmt.Errorf("unknown order %q", spec.MoveOrder))
	}

	for n, r := range spec.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, specErr(fmt.Sprintf("rules[%d].pattern", n), err)
		}
		if r.Operand < 0 {
			return nil, specErr(fmt.Sprintf("rules[%d].operand", n), errors.New("must not be negative"))
		}
		m := strings.ToLower(r.Mnemonic)
		t.rules[m] = append(t.rules[m], costRule{operand: r.Operand, re: re, cost: r.Cost})
	}

	for n, im := range spec.Immediates {
		re, err := regexp.Compile(im.Pattern)
		if err != nil {
			return nil, specErr(fmt.Sprintf("immediates[%d].pattern", n), err)
		}
		if re.NumSubexp() != 1 {
			return nil, specErr(fmt.Sprintf("immediates[%d].pattern", n), errors.New("needs exactly one capture group"))
		}
		base := im.Base
		if base == 0 {
			base = 10
		}
		t.immediates = append(t.immediates, immediate{re: re, base: base})
	}

	for n, c := range spec.Conditions {
		taken, err := ParseRelation(c.Taken)
		if err != nil {
			return nil, specErr(fmt.Sprintf("conditions[%d].taken", n), err)
		}
		notTaken := taken.Negate()
		if c.NotTaken != "" {
			if notTaken, err = ParseRelation(c.NotTaken); err != nil {
				return nil, specErr(fmt.Sprintf("conditions[%d].not_taken", n), err)
			}
		}
		t.conds.SetBoth(strings.ToLower(c.Branch), strings.ToLower(c.Compare), taken, notTaken)
	}

	return t, nil
}

// ParseSpec decodes and validates a YAML architecture spec.
func ParseSpec(data []byte) (*Table, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse architecture spec: %w", err)
	}
	return NewTable(spec)
}

// LoadSpecFile reads an architecture spec from path.
func LoadSpecFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read architecture spec: %w", err)
	}
	return ParseSpec(data)
}

// Spec returns the spec the table was built from.
func (t *Table) Spec() Spec { return t.spec }

func (t *Table) Name() string { return t.spec.Name }

func (t *Table) Classify(ins *program.Instruction) program.Kind {
	return t.kinds.classify(ins)
}

func (t *Table) Ticks(ins *program.Instruction, taken bool) (int, error) {
	if isBranch(t, ins) {
		return t.BranchCost(ins, taken)
	}
	for _, r := range t.rules[ins.Mnemonic] {
		if r.re.MatchString(ins.Operand(r.operand)) {
			return r.cost, nil
		}
	}
	if cost, ok := t.costs[ins.Mnemonic]; ok {
		return cost, nil
	}
	return 0, &UnknownInstructionError{Arch: t.Name(), Mnemonic: ins.Mnemonic, Address: ins.Address}
}

func (t *Table) BranchCost(ins *program.Instruction, taken bool) (int, error) {
	b, ok := t.branches[ins.Mnemonic]
	if !ok {
		if t.spec.DefaultBranch == nil {
			return 0, &UnknownInstructionError{Arch: t.Name(), Mnemonic: ins.Mnemonic, Address: ins.Address}
		}
		b = *t.spec.DefaultBranch
	}
	if taken || t.Classify(ins) == program.KindUncondJump {
		return b.Taken, nil
	}
	return b.NotTaken, nil
}

func (t *Table) TranslateCondition(cmp, branch *program.Instruction, taken bool) (Predicate, error) {
	return t.conds.translate(t, cmp, branch, taken)
}

func (t *Table) IsConstraint(mnemonic string) bool { return t.constraint.has(mnemonic) }

func (t *Table) IsMove(mnemonic string) bool { return t.moves.has(mnemonic) }

func (t *Table) MoveOperands(ins *program.Instruction) (string, string, bool) {
	if !t.IsMove(ins.Mnemonic) || len(ins.Operands) < 2 {
		return "", "", false
	}
	if t.spec.MoveOrder == MoveSrcDst {
		return ins.Operands[1], ins.Operands[0], true
	}
	return ins.Operands[0], ins.Operands[1], true
}

func (t *Table) ParseImmediate(operand string) (int64, bool) {
	operand = strings.TrimSpace(operand)
	for _, im := range t.immediates {
		m := im.re.FindStringSubmatch(operand)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseInt(m[1], im.base, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func (t *Table) SuccessMnemonics() []string { return lower(t.spec.Mnemonics.Success) }

func (t *Table) ErrorMnemonics() []string { return lower(t.spec.Mnemonics.Error) }

func lower(in []string) []string {
	out := make([]string, len(in))
	for n, s := range in {
		out[n] = strings.ToLower(s)
	}
	return out
}
