package path

import (
	"fmt"
	"strings"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// CallBounds returns the cycle bounds of the function a call instruction enters.
type CallBounds func(call *program.Instruction) (Bounds, error)

// ExecutionPath is a walk through the blocks of one function. Outcomes[i] is
// what the terminating instruction of Blocks[i] did on this walk; the last
// block's outcome is unknown because the walk ends there.
type ExecutionPath struct {
	Function uint64
	Blocks   []*program.BasicBlock
	Outcomes []program.Outcome
	Loops    []*Loop
}

// Loop is a cycle found through a back edge: it starts at the back-edge target
// and ends with the block that jumped back. Its bounds count Repetitions times.
type Loop struct {
	ExecutionPath
	Repetitions int
}

// Step is one instruction of an InstructionPath with the outcome it had on
// the path (unknown for anything but a block's terminating instruction).
type Step struct {
	Ins     *program.Instruction
	Outcome program.Outcome
}

// InstructionPath is a flat instruction sequence with calls inlined.
type InstructionPath struct {
	Steps []Step
}

// Start returns the first block, or nil for an empty path.
func (p *ExecutionPath) Start() *program.BasicBlock {
	if len(p.Blocks) == 0 {
		return nil
	}
	return p.Blocks[0]
}

// Contains reports whether the path visits the block starting at start.
func (p *ExecutionPath) Contains(start uint64) bool {
	for _, b := range p.Blocks {
		if b.Start() == start {
			return true
		}
	}
	return false
}

// Starts returns the start address of each block.
func (p *ExecutionPath) Starts() []uint64 {
	out := make([]uint64, len(p.Blocks))
	for n, b := range p.Blocks {
		out[n] = b.Start()
	}
	return out
}

// Key identifies the block sequence.
func (p *ExecutionPath) Key() string {
	parts := make([]string, len(p.Blocks))
	for n, b := range p.Blocks {
		parts[n] = fmt.Sprintf("%x", b.Start())
	}
	return strings.Join(parts, ",")
}

// Ticks returns the cycle bounds of the path: the cost of every instruction,
// the bounds of every callee (resolved through calls) and the bounds of every
// attached loop.
func (p *ExecutionPath) Ticks(a arch.Ticker, calls CallBounds) (Bounds, error) {
	total, err := p.blockTicks(a, calls)
	if err != nil {
		return Bounds{}, err
	}
	for _, l := range p.Loops {
		lt, err := l.Ticks(a, calls)
		if err != nil {
			return Bounds{}, err
		}
		total = total.Add(lt)
	}
	return total, nil
}

func (p *ExecutionPath) blockTicks(a arch.Ticker, calls CallBounds) (Bounds, error) {
	var total Bounds
	for i, b := range p.Blocks {
		last := len(b.Instructions) - 1
		for n, ins := range b.Instructions {
			o := program.OutcomeUnknown
			if n == last && i < len(p.Outcomes) {
				o = p.Outcomes[i]
			}
			t, err := instructionTicks(a, ins, o)
			if err != nil {
				return Bounds{}, err
			}
			total = total.Add(t)

			if ins.Kind != program.KindCall {
				continue
			}
			if calls == nil {
				return Bounds{}, &cfg.UnresolvedCallError{
					Function:  p.Function,
					Address:   ins.Address,
					Callee:    ins.Callee,
					HasCallee: ins.HasCallee,
				}
			}
			cb, err := calls(ins)
			if err != nil {
				return Bounds{}, err
			}
			total = total.Add(cb)
		}
	}
	return total, nil
}

func (p *ExecutionPath) String() string {
	var sb strings.Builder
	for n, b := range p.Blocks {
		for _, l := range p.Loops {
			if l.Start() == b {
				sb.WriteString("[" + l.ExecutionPath.String() + "] -> ")
			}
		}
		fmt.Fprintf(&sb, "0x%x", b.Start())
		if n < len(p.Blocks)-1 {
			sb.WriteString(" -> ")
		}
	}
	return sb.String()
}

// Ticks returns the loop body's bounds multiplied by Repetitions.
func (l *Loop) Ticks(a arch.Ticker, calls CallBounds) (Bounds, error) {
	b, err := l.blockTicks(a, calls)
	if err != nil {
		return Bounds{}, err
	}
	return b.Scale(l.Repetitions), nil
}

// Head returns the back-edge target the loop starts at.
func (l *Loop) Head() *program.BasicBlock {
	return l.Start()
}

// instructionTicks costs one instruction. A conditional branch whose outcome
// is unknown may go either way, so it spans both costs.
func instructionTicks(a arch.Ticker, ins *program.Instruction, o program.Outcome) (Bounds, error) {
	switch {
	case ins.Kind == program.KindCondJump && o == program.OutcomeUnknown:
		taken, err := a.Ticks(ins, true)
		if err != nil {
			return Bounds{}, err
		}
		notTaken, err := a.Ticks(ins, false)
		if err != nil {
			return Bounds{}, err
		}
		return Bounds{Min: min(taken, notTaken), Max: max(taken, notTaken)}, nil
	case ins.Kind == program.KindUncondJump || o == program.OutcomeTaken:
		t, err := a.Ticks(ins, true)
		return Exact(t), err
	default:
		t, err := a.Ticks(ins, false)
		return Exact(t), err
	}
}

// Len returns the number of instructions.
func (ip *InstructionPath) Len() int {
	return len(ip.Steps)
}

// Instructions returns the instructions without outcomes.
func (ip *InstructionPath) Instructions() []*program.Instruction {
	out := make([]*program.Instruction, len(ip.Steps))
	for n, s := range ip.Steps {
		out[n] = s.Ins
	}
	return out
}

// Ticks sums the cost of every step. Calls were inlined by expansion, so
// only the call instruction itself is charged.
func (ip *InstructionPath) Ticks(a arch.Ticker) (Bounds, error) {
	var total Bounds
	for _, s := range ip.Steps {
		t, err := instructionTicks(a, s.Ins, s.Outcome)
		if err != nil {
			return Bounds{}, err
		}
		total = total.Add(t)
	}
	return total, nil
}

// Format lists one instruction per line with its outcome and cycle cost.
func (ip *InstructionPath) Format(a arch.Ticker) string {
	var sb strings.Builder
	for _, s := range ip.Steps {
		cost := "?"
		if t, err := instructionTicks(a, s.Ins, s.Outcome); err == nil {
			cost = t.String()
		}
		outcome := ""
		if s.Ins.Kind == program.KindCondJump {
			outcome = s.Outcome.String()
		}
		fmt.Fprintf(&sb, "%-40s %-10s %s\n", s.Ins.String(), outcome, cost)
	}
	return sb.String()
}

func edgeOutcome(from, to *program.BasicBlock) program.Outcome {
	last := from.Last()
	switch {
	case last.Kind == program.KindUncondJump:
		return program.OutcomeTaken
	case last.Kind != program.KindCondJump:
		return program.OutcomeNotTaken
	case to.Start() == from.End():
		return program.OutcomeNotTaken
	default:
		return program.OutcomeTaken
	}
}
