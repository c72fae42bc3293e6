package analysis

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/constraint"
	"github.com/janvdherrewegen/bootl-attacks/internal/graphfile"
	"github.com/janvdherrewegen/bootl-attacks/internal/path"
)

// Constraint types accepted in ConstraintSpec.Type.
const (
	ConstraintEqual      = "equal"      // vars[0] == vars[1]
	ConstraintNotEqual   = "not_equal"  // vars[0] != vars[1]
	ConstraintLess       = "less"       // vars[0] < vars[1]
	ConstraintDifference = "difference" // vars[1] - vars[0] == value
	ConstraintMask       = "mask"       // vars[0] & value == equals
	ConstraintValue      = "value"      // vars[0] == value
)

// Config describes one analysis query: which paths to enumerate and which
// symbolic inputs to solve for along them.
type Config struct {
	// Graphs is the graph file to analyse; relative paths are resolved
	// against the directory of the config file
	Graphs string `yaml:"graphs"`
	// Architecture overrides the architecture named in the graph file
	Architecture string `yaml:"architecture,omitempty"`

	Function *graphfile.Address `yaml:"function"`
	// From and To are addresses inside the start and target blocks. Unset
	// selects the function entry and its terminal blocks.
	From *graphfile.Address `yaml:"from,omitempty"`
	To   *graphfile.Address `yaml:"to,omitempty"`
	// Terminal filters terminal blocks when To is not set: any, success or error
	Terminal string `yaml:"terminal,omitempty"`
	// ExcludeTarget drops the target block from every path
	ExcludeTarget bool `yaml:"exclude_target,omitempty"`

	Variables   []VariableSpec   `yaml:"variables,omitempty"`
	Constraints []ConstraintSpec `yaml:"constraints,omitempty"`
	Groups      []GroupSpec      `yaml:"groups,omitempty"`
	Loops       []LoopSpec       `yaml:"loops,omitempty"`

	Budget path.Budget `yaml:"budget,omitempty"`
	// MaxSteps bounds the solver search per expansion; zero means unbounded
	MaxSteps int `yaml:"max_steps,omitempty"`
	// Samples is the number of assignments reported per expansion (default 1)
	Samples int `yaml:"samples,omitempty"`
	// Workers is the number of expansions solved concurrently (default 1)
	Workers int `yaml:"workers,omitempty"`

	// OnSolved is called after each expansion is solved, never concurrently
	OnSolved func(done, total int) `yaml:"-"`
}

// VariableSpec declares a symbolic variable. The domain is either the
// inclusive Range [lo, hi] or the explicit Values.
type VariableSpec struct {
	Name   string  `yaml:"name"`
	Range  []int64 `yaml:"range,omitempty"`
	Values []int64 `yaml:"values,omitempty"`
}

// ConstraintSpec is an extra relationship between variables.
type ConstraintSpec struct {
	Type   string   `yaml:"type"`
	Vars   []string `yaml:"vars"`
	Value  int64    `yaml:"value,omitempty"`
	Equals int64    `yaml:"equals,omitempty"`
}

// GroupSpec assembles variables into one value, most significant first,
// Bits bits per variable (default 8).
type GroupSpec struct {
	Name string   `yaml:"name"`
	Vars []string `yaml:"vars"`
	Bits int      `yaml:"bits,omitempty"`
}

// LoopSpec sets how often the loop starting at Head repeats.
type LoopSpec struct {
	Head        *graphfile.Address `yaml:"head"`
	Repetitions int                `yaml:"repetitions"`
}

// LoadConfig reads and validates a query file.
func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if c.Graphs != "" && !filepath.IsAbs(c.Graphs) {
		c.Graphs = filepath.Join(filepath.Dir(file), c.Graphs)
	}
	return c, nil
}

// ParseConfig decodes and validates a query.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the query for consistency.
func (c *Config) Validate() error {
	if c.Function == nil {
		return &ConfigError{Field: "function", Reason: "required"}
	}
	if _, err := cfg.ParseOutcome(c.Terminal); err != nil {
		return &ConfigError{Field: "terminal", Reason: err.Error()}
	}
	if c.Samples < 0 || c.Workers < 0 || c.MaxSteps < 0 {
		return &ConfigError{Field: "samples/workers/max_steps", Reason: "must not be negative"}
	}

	declared := make(map[string]bool, len(c.Variables))
	for n, v := range c.Variables {
		field := fmt.Sprintf("variables[%d]", n)
		switch {
		case v.Name == "":
			return &ConfigError{Field: field, Reason: "name is required"}
		case declared[v.Name]:
			return &ConfigError{Field: field, Reason: fmt.Sprintf("%q declared twice", v.Name)}
		case len(v.Range) > 0 && len(v.Values) > 0:
			return &ConfigError{Field: field, Reason: "use either range or values"}
		case len(v.Range) > 0 && (len(v.Range) != 2 || v.Range[0] > v.Range[1]):
			return &ConfigError{Field: field, Reason: "range must be [lo, hi] with lo <= hi"}
		case len(v.Range) == 0 && len(v.Values) == 0:
			return &ConfigError{Field: field, Reason: "domain is empty"}
		}
		declared[v.Name] = true
	}

	for n, cs := range c.Constraints {
		field := fmt.Sprintf("constraints[%d]", n)
		want := 2
		switch cs.Type {
		case ConstraintEqual, ConstraintNotEqual, ConstraintLess, ConstraintDifference:
		case ConstraintMask, ConstraintValue:
			want = 1
		default:
			return &ConfigError{Field: field, Reason: fmt.Sprintf("unknown type %q", cs.Type)}
		}
		if len(cs.Vars) != want {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("%s takes %d variables", cs.Type, want)}
		}
		for _, name := range cs.Vars {
			if !declared[name] {
				return &ConfigError{Field: field, Reason: fmt.Sprintf("variable %q is not declared", name)}
			}
		}
	}

	for n, g := range c.Groups {
		field := fmt.Sprintf("groups[%d]", n)
		if g.Name == "" || len(g.Vars) == 0 {
			return &ConfigError{Field: field, Reason: "name and vars are required"}
		}
		if g.Bits < 0 || g.width()*len(g.Vars) > 64 {
			return &ConfigError{Field: field, Reason: "group does not fit 64 bits"}
		}
		for _, name := range g.Vars {
			if !declared[name] {
				return &ConfigError{Field: field, Reason: fmt.Sprintf("variable %q is not declared", name)}
			}
		}
	}

	for n, l := range c.Loops {
		if l.Head == nil || l.Repetitions < 1 {
			return &ConfigError{Field: fmt.Sprintf("loops[%d]", n), Reason: "head and a positive repetition count are required"}
		}
	}
	return nil
}

// Query returns the path query the config describes.
func (c *Config) Query() path.Query {
	outcome, _ := cfg.ParseOutcome(c.Terminal)
	q := path.Query{
		From:          addr(c.From),
		To:            addr(c.To),
		Terminals:     cfg.TerminalFilter{Outcome: outcome, Fallback: cfg.FallbackAll},
		ExcludeTarget: c.ExcludeTarget,
	}
	if len(c.Loops) > 0 {
		q.LoopRepetitions = make(map[uint64]int, len(c.Loops))
		for _, l := range c.Loops {
			if l.Head != nil {
				q.LoopRepetitions[uint64(*l.Head)] = l.Repetitions
			}
		}
	}
	return q
}

// Entry returns the function entry address, zero when unset.
func (c *Config) Entry() uint64 {
	if c.Function == nil {
		return 0
	}
	return uint64(*c.Function)
}

func addr(a *graphfile.Address) *uint64 {
	if a == nil {
		return nil
	}
	return path.Addr(uint64(*a))
}

// SolverVariables returns the declared variables with their domains.
func (c *Config) SolverVariables() []constraint.Variable {
	out := make([]constraint.Variable, 0, len(c.Variables))
	for _, v := range c.Variables {
		domain := v.Values
		if len(v.Range) == 2 {
			domain = constraint.Range(v.Range[0], v.Range[1])
		}
		out = append(out, constraint.Variable{Name: v.Name, Domain: domain})
	}
	return out
}

// SolverConstraints returns the extra constraints as solver constraints.
func (c *Config) SolverConstraints() []constraint.Constraint {
	out := make([]constraint.Constraint, 0, len(c.Constraints))
	for _, cs := range c.Constraints {
		out = append(out, cs.constraint())
	}
	return out
}

func (cs ConstraintSpec) constraint() constraint.Constraint {
	value, equals := cs.Value, cs.Equals
	c := constraint.Constraint{Vars: cs.Vars}
	switch cs.Type {
	case ConstraintEqual:
		c.Check = func(v []int64) bool { return v[0] == v[1] }
		c.Desc = fmt.Sprintf("%s == %s", cs.Vars[0], cs.Vars[1])
	case ConstraintNotEqual:
		c.Check = func(v []int64) bool { return v[0] != v[1] }
		c.Desc = fmt.Sprintf("%s != %s", cs.Vars[0], cs.Vars[1])
	case ConstraintLess:
		c.Check = func(v []int64) bool { return v[0] < v[1] }
		c.Desc = fmt.Sprintf("%s < %s", cs.Vars[0], cs.Vars[1])
	case ConstraintDifference:
		c.Check = func(v []int64) bool { return v[1]-v[0] == value }
		c.Desc = fmt.Sprintf("%s - %s == %d", cs.Vars[1], cs.Vars[0], value)
	case ConstraintMask:
		c.Check = func(v []int64) bool { return v[0]&value == equals }
		c.Desc = fmt.Sprintf("%s & 0x%x == 0x%x", cs.Vars[0], value, equals)
	case ConstraintValue:
		c.Check = func(v []int64) bool { return v[0] == value }
		c.Desc = fmt.Sprintf("%s == 0x%x", cs.Vars[0], value)
	}
	return c
}

// width is the number of bits per variable.
func (g GroupSpec) width() int {
	if g.Bits == 0 {
		return 8
	}
	return g.Bits
}

// GroupValue assembles g from a, most significant variable first.
func (g GroupSpec) GroupValue(a constraint.Assignment) uint64 {
	bits := g.width()
	mask := uint64(1)<<uint(bits) - 1
	var v uint64
	for _, name := range g.Vars {
		v = v<<uint(bits) | uint64(a[name])&mask
	}
	return v
}

// ConfigError reports an invalid query field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Reason)
}
