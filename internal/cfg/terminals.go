package cfg

import (
	"fmt"
	"strings"

	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Outcome selects terminal blocks by the heuristic mnemonics of the
// architecture.
type Outcome int

const (
	// OutcomeAny keeps every terminal block
	OutcomeAny Outcome = iota
	// OutcomeSuccess keeps terminal blocks containing a success mnemonic
	OutcomeSuccess
	// OutcomeError keeps terminal blocks containing an error mnemonic
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "any"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all":
		return OutcomeAny, nil
	case "success":
		return OutcomeSuccess, nil
	case "error":
		return OutcomeError, nil
	default:
		return OutcomeAny, fmt.Errorf("unknown terminal outcome %q (want any, success or error)", s)
	}
}

// Fallback decides what a filtered terminal lookup returns when no terminal
// block matches the filter.
type Fallback int

const (
	// FallbackAll returns every terminal block
	FallbackAll Fallback = iota
	// FallbackNone returns no blocks
	FallbackNone
)

// TerminalFilter selects terminal blocks. The zero value selects all of them.
type TerminalFilter struct {
	Outcome  Outcome
	Fallback Fallback
}

var (
	// AllTerminals selects every terminal block
	AllTerminals = TerminalFilter{}
	// SuccessTerminals selects success terminals, or all terminals if none match
	SuccessTerminals = TerminalFilter{Outcome: OutcomeSuccess, Fallback: FallbackAll}
	// ErrorTerminals selects error terminals, or all terminals if none match
	ErrorTerminals = TerminalFilter{Outcome: OutcomeError, Fallback: FallbackAll}
)

// Terminals returns the blocks without successors selected by f, ordered by
// start address. A graph with a single terminal block always returns it.
func (g *Graph) Terminals(f TerminalFilter) []*program.BasicBlock {
	var all []*program.BasicBlock
	for _, b := range g.Blocks() {
		if g.IsTerminal(b) {
			all = append(all, b)
		}
	}
	if f.Outcome == OutcomeAny || len(all) <= 1 {
		return all
	}

	var mnemonics []string
	switch f.Outcome {
	case OutcomeSuccess:
		mnemonics = g.arch.SuccessMnemonics()
	case OutcomeError:
		mnemonics = g.arch.ErrorMnemonics()
	}

	var matched []*program.BasicBlock
	for _, b := range all {
		for _, m := range mnemonics {
			if b.HasMnemonic(m) {
				matched = append(matched, b)
				break
			}
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if f.Fallback == FallbackNone {
		return nil
	}
	return all
}
