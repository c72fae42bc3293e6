package path

import (
	"fmt"
	"strings"
)

// RecursionError is returned when cycle bounds or expansions are requested
// for a function that (directly or indirectly) calls itself.
type RecursionError struct {
	// Cycle lists the function entries of the call chain; the last entry
	// calls the first
	Cycle []uint64
}

func (e *RecursionError) Error() string {
	parts := make([]string, 0, len(e.Cycle)+1)
	for _, entry := range e.Cycle {
		parts = append(parts, fmt.Sprintf("0x%x", entry))
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, fmt.Sprintf("0x%x", e.Cycle[0]))
	}
	return fmt.Sprintf("recursive call chain %s", strings.Join(parts, " -> "))
}

// BudgetError is returned when an analysis exceeds one of the limits in Budget.
type BudgetError struct {
	// Limit names the exceeded Budget field
	Limit string
	// Max is the configured value of the limit
	Max int
	// Function is the entry of the function being analysed
	Function uint64
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("function 0x%x: analysis budget exceeded (%s = %d)", e.Function, e.Limit, e.Max)
}

// NoPathError is returned when a function has no path from its start block to
// any of the requested targets.
type NoPathError struct {
	Function uint64
	From     uint64
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("function 0x%x: no path from 0x%x to a target block", e.Function, e.From)
}
