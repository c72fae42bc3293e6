package path

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Budget limits the work an analysis may do. A zero field means no limit.
type Budget struct {
	// MaxDepth bounds the number of blocks on one path
	MaxDepth int `yaml:"max_depth" json:"max_depth"`
	// MaxPaths bounds the number of paths one query may produce
	MaxPaths int `yaml:"max_paths" json:"max_paths"`
	// MaxCallDepth bounds the nesting of calls followed for bounds and expansion
	MaxCallDepth int `yaml:"max_call_depth" json:"max_call_depth"`
	// MaxExpansions bounds the number of instruction paths one expansion may produce
	MaxExpansions int `yaml:"max_expansions" json:"max_expansions"`
}

// DefaultBudget is generous enough for bootloader-sized routines.
func DefaultBudget() Budget {
	return Budget{
		MaxDepth:      4096,
		MaxPaths:      100000,
		MaxCallDepth:  64,
		MaxExpansions: 100000,
	}
}

// Query selects the paths to enumerate within one function.
type Query struct {
	// From is an address inside the start block; nil means the function entry
	From *uint64
	// To is an address inside the target block; nil means every terminal
	// block selected by Terminals
	To *uint64
	// Terminals filters terminal blocks when To is nil
	Terminals cfg.TerminalFilter
	// ExcludeTarget drops the target block from every returned path
	ExcludeTarget bool
	// LoopRepetitions sets the repetition count of loops by head block start;
	// loops not listed repeat once
	LoopRepetitions map[uint64]int
}

// Addr returns a pointer to v for the address fields of Query.
func Addr(v uint64) *uint64 {
	return &v
}

// Result holds the paths and loops found by one query.
type Result struct {
	Function uint64
	Start    *program.BasicBlock
	Targets  []*program.BasicBlock
	Paths    []*ExecutionPath
	Loops    []*Loop
}

type frame struct {
	block *program.BasicBlock
	succ  []*program.BasicBlock
	next  int
}

type enumerator struct {
	g      *cfg.Graph
	budget Budget
	res    *Result

	loopKeys mapset.Set[string]
}

// Enumerate returns every simple path of g from the start block to each target
// block, plus the loops closed by back edges met on the way. Each loop is
// attached to every path containing its head block.
func Enumerate(g *cfg.Graph, q Query, budget Budget) (*Result, error) {
	from := g.Entry()
	if q.From != nil {
		from = *q.From
	}
	start, err := g.BlockAt(from)
	if err != nil {
		return nil, err
	}

	var targets []*program.BasicBlock
	if q.To != nil {
		t, err := g.BlockAt(*q.To)
		if err != nil {
			return nil, err
		}
		targets = []*program.BasicBlock{t}
	} else {
		targets = g.Terminals(q.Terminals)
	}

	e := &enumerator{
		g:        g,
		budget:   budget,
		res:      &Result{Function: g.Entry(), Start: start, Targets: targets},
		loopKeys: mapset.NewThreadUnsafeSet[string](),
	}
	for _, t := range targets {
		if err := e.search(start, t); err != nil {
			return nil, err
		}
	}

	for _, l := range e.res.Loops {
		l.Repetitions = 1
		if n, ok := q.LoopRepetitions[l.Head().Start()]; ok && n > 0 {
			l.Repetitions = n
		}
	}
	for _, p := range e.res.Paths {
		for _, l := range e.res.Loops {
			if p.Contains(l.Head().Start()) {
				p.Loops = append(p.Loops, l)
			}
		}
		if q.ExcludeTarget && len(p.Blocks) > 0 {
			p.Blocks = p.Blocks[:len(p.Blocks)-1]
			p.Outcomes = p.Outcomes[:len(p.Outcomes)-1]
		}
	}
	return e.res, nil
}

// search runs a depth-first search from start to target with an explicit
// frame stack. Blocks on the current stack are visited; meeting one again
// closes a loop. Blocks are reset when popped, so every distinct route is
// reported.
func (e *enumerator) search(start, target *program.BasicBlock) error {
	var (
		stack    []*frame
		blocks   []*program.BasicBlock
		outcomes []program.Outcome
	)
	onStack := make(map[uint64]int)

	enter := func(b *program.BasicBlock) error {
		if e.budget.MaxDepth > 0 && len(stack) >= e.budget.MaxDepth {
			return &BudgetError{Limit: "max_depth", Max: e.budget.MaxDepth, Function: e.g.Entry()}
		}
		onStack[b.Start()] = len(blocks)
		blocks = append(blocks, b)
		outcomes = append(outcomes, program.OutcomeUnknown)

		f := &frame{block: b}
		if b.Start() == target.Start() {
			if e.budget.MaxPaths > 0 && len(e.res.Paths) >= e.budget.MaxPaths {
				return &BudgetError{Limit: "max_paths", Max: e.budget.MaxPaths, Function: e.g.Entry()}
			}
			e.res.Paths = append(e.res.Paths, &ExecutionPath{
				Function: e.g.Entry(),
				Blocks:   append([]*program.BasicBlock(nil), blocks...),
				Outcomes: append([]program.Outcome(nil), outcomes...),
			})
		} else {
			f.succ = e.g.Successors(b)
		}
		stack = append(stack, f)
		return nil
	}

	if err := enter(start); err != nil {
		return err
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.succ) {
			n := top.succ[top.next]
			top.next++
			if idx, visited := onStack[n.Start()]; visited {
				e.addLoop(blocks[idx:], outcomes[idx:], edgeOutcome(top.block, n))
				continue
			}
			outcomes[len(outcomes)-1] = edgeOutcome(top.block, n)
			if err := enter(n); err != nil {
				return err
			}
			continue
		}

		delete(onStack, top.block.Start())
		stack = stack[:len(stack)-1]
		blocks = blocks[:len(blocks)-1]
		outcomes = outcomes[:len(outcomes)-1]
	}
	return nil
}

// addLoop records the cycle blocks[0] -> ... -> blocks[len-1] -> blocks[0].
func (e *enumerator) addLoop(blocks []*program.BasicBlock, outcomes []program.Outcome, back program.Outcome) {
	l := &Loop{
		ExecutionPath: ExecutionPath{
			Function: e.g.Entry(),
			Blocks:   append([]*program.BasicBlock(nil), blocks...),
			Outcomes: append([]program.Outcome(nil), outcomes...),
		},
		Repetitions: 1,
	}
	l.Outcomes[len(l.Outcomes)-1] = back
	if !e.loopKeys.Add(l.Key()) {
		return
	}
	e.res.Loops = append(e.res.Loops, l)
}
