package path

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/logging"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Config holds the Analyzer configuration
type Config struct {
	// Budget limits enumeration and call recursion. The zero value selects
	// DefaultBudget.
	Budget Budget
	// Logger receives progress at debug level. Nil uses the global logger.
	Logger *zap.Logger
}

// Analyzer computes paths, cycle bounds and expansions over a graph database.
// Per-function results are memoised, so an Analyzer must not be used from
// several goroutines at once.
type Analyzer struct {
	db     *cfg.Database
	budget Budget
	logger *zap.Logger

	bounds     map[uint64]Bounds
	expansions map[uint64][]*InstructionPath

	// call chains currently being bounded or expanded
	bounding  []uint64
	expanding []uint64
}

// NewAnalyzer creates an Analyzer over db.
func NewAnalyzer(db *cfg.Database, config Config) *Analyzer {
	budget := config.Budget
	if budget == (Budget{}) {
		budget = DefaultBudget()
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Analyzer{
		db:         db,
		budget:     budget,
		logger:     logger,
		bounds:     make(map[uint64]Bounds),
		expansions: make(map[uint64][]*InstructionPath),
	}
}

// Database returns the graph database the analyzer works on.
func (a *Analyzer) Database() *cfg.Database { return a.db }

// Budget returns the effective budget.
func (a *Analyzer) Budget() Budget { return a.budget }

// Paths enumerates the paths of the function at entry selected by q.
func (a *Analyzer) Paths(entry uint64, q Query) (*Result, error) {
	g, err := a.db.Get(entry)
	if err != nil {
		return nil, err
	}
	res, err := Enumerate(g, q, a.budget)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Enumerated paths",
		zap.String("function", hex(entry)),
		zap.String("from", hex(res.Start.Start())),
		zap.Int("targets", len(res.Targets)),
		zap.Int("paths", len(res.Paths)),
		zap.Int("loops", len(res.Loops)),
	)
	return res, nil
}

// ClockBounds returns the smallest minimum and largest maximum cycle count over
// every path from the entry of the function to any of its terminal blocks,
// including callees and loops.
func (a *Analyzer) ClockBounds(entry uint64) (Bounds, error) {
	if b, ok := a.bounds[entry]; ok {
		return b, nil
	}
	if idx := slices.Index(a.bounding, entry); idx >= 0 {
		return Bounds{}, &RecursionError{Cycle: slices.Clone(a.bounding[idx:])}
	}
	if a.budget.MaxCallDepth > 0 && len(a.bounding) >= a.budget.MaxCallDepth {
		return Bounds{}, &BudgetError{Limit: "max_call_depth", Max: a.budget.MaxCallDepth, Function: entry}
	}

	a.bounding = append(a.bounding, entry)
	defer func() { a.bounding = a.bounding[:len(a.bounding)-1] }()

	res, err := a.Paths(entry, Query{Terminals: cfg.AllTerminals})
	if err != nil {
		return Bounds{}, err
	}
	if len(res.Paths) == 0 {
		return Bounds{}, &NoPathError{Function: entry, From: res.Start.Start()}
	}

	var total Bounds
	for n, p := range res.Paths {
		b, err := a.PathTicks(p)
		if err != nil {
			return Bounds{}, err
		}
		if n == 0 {
			total = b
		} else {
			total = total.Merge(b)
		}
	}

	a.bounds[entry] = total
	a.logger.Debug("Clock bounds",
		zap.String("function", hex(entry)),
		zap.Int("min", total.Min),
		zap.Int("max", total.Max),
	)
	return total, nil
}

// PathTicks returns the cycle bounds of p, with callees bounded by ClockBounds.
func (a *Analyzer) PathTicks(p *ExecutionPath) (Bounds, error) {
	g, err := a.db.Get(p.Function)
	if err != nil {
		return Bounds{}, err
	}
	return p.Ticks(g.Arch(), a.callBounds(p.Function))
}

// LoopTicks returns the cycle bounds contributed by l.
func (a *Analyzer) LoopTicks(l *Loop) (Bounds, error) {
	g, err := a.db.Get(l.Function)
	if err != nil {
		return Bounds{}, err
	}
	return l.Ticks(g.Arch(), a.callBounds(l.Function))
}

func (a *Analyzer) callBounds(caller uint64) CallBounds {
	return func(call *program.Instruction) (Bounds, error) {
		if err := a.resolve(caller, call); err != nil {
			return Bounds{}, err
		}
		return a.ClockBounds(call.Callee)
	}
}

func (a *Analyzer) resolve(caller uint64, call *program.Instruction) error {
	if !call.HasCallee {
		return &cfg.UnresolvedCallError{Function: caller, Address: call.Address}
	}
	if _, err := a.db.Get(call.Callee); err != nil {
		return &cfg.UnresolvedCallError{
			Function:  caller,
			Address:   call.Address,
			Callee:    call.Callee,
			HasCallee: true,
			Err:       err,
		}
	}
	return nil
}

// Expand flattens p into instruction sequences. At every call the callee's
// paths to its success terminals (all terminals if none is recognised) are
// expanded recursively and spliced in, so the result is the cross product of
// the caller's prefix with every callee expansion.
func (a *Analyzer) Expand(p *ExecutionPath) ([]*InstructionPath, error) {
	prefixes := []*InstructionPath{{}}
	for i, b := range p.Blocks {
		last := len(b.Instructions) - 1
		for n, ins := range b.Instructions {
			o := program.OutcomeUnknown
			if n == last && i < len(p.Outcomes) {
				o = p.Outcomes[i]
			}
			for _, pre := range prefixes {
				pre.Steps = append(pre.Steps, Step{Ins: ins, Outcome: o})
			}
			if ins.Kind != program.KindCall {
				continue
			}

			callee, err := a.calleeExpansions(p.Function, ins)
			if err != nil {
				return nil, err
			}
			if limit := a.budget.MaxExpansions; limit > 0 && len(prefixes)*len(callee) > limit {
				return nil, &BudgetError{Limit: "max_expansions", Max: limit, Function: p.Function}
			}
			if len(callee) == 0 {
				a.logger.Warn("Callee has no paths, dropping expansions",
					zap.String("function", hex(p.Function)),
					zap.String("call", hex(ins.Address)),
					zap.String("callee", hex(ins.Callee)),
				)
			}
			next := make([]*InstructionPath, 0, len(prefixes)*len(callee))
			for _, pre := range prefixes {
				for _, c := range callee {
					steps := make([]Step, 0, len(pre.Steps)+len(c.Steps))
					steps = append(steps, pre.Steps...)
					steps = append(steps, c.Steps...)
					next = append(next, &InstructionPath{Steps: steps})
				}
			}
			prefixes = next
		}
	}
	return prefixes, nil
}

func (a *Analyzer) calleeExpansions(caller uint64, call *program.Instruction) ([]*InstructionPath, error) {
	if err := a.resolve(caller, call); err != nil {
		return nil, err
	}
	entry := call.Callee
	if cached, ok := a.expansions[entry]; ok {
		return cached, nil
	}
	if idx := slices.Index(a.expanding, entry); idx >= 0 {
		return nil, &RecursionError{Cycle: slices.Clone(a.expanding[idx:])}
	}
	if a.budget.MaxCallDepth > 0 && len(a.expanding) >= a.budget.MaxCallDepth {
		return nil, &BudgetError{Limit: "max_call_depth", Max: a.budget.MaxCallDepth, Function: entry}
	}

	a.expanding = append(a.expanding, entry)
	defer func() { a.expanding = a.expanding[:len(a.expanding)-1] }()

	res, err := a.Paths(entry, Query{Terminals: cfg.SuccessTerminals})
	if err != nil {
		return nil, err
	}
	var out []*InstructionPath
	for _, p := range res.Paths {
		exp, err := a.Expand(p)
		if err != nil {
			return nil, err
		}
		if limit := a.budget.MaxExpansions; limit > 0 && len(out)+len(exp) > limit {
			return nil, &BudgetError{Limit: "max_expansions", Max: limit, Function: entry}
		}
		out = append(out, exp...)
	}
	a.expansions[entry] = out
	return out, nil
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
