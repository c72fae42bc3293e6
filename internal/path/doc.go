// Package path enumerates execution paths through function graphs and computes
// their clock-cycle bounds.
//
// # Enumeration
//
// Enumerate runs a depth-first search from a start block to one target block,
// or to every terminal block selected by a cfg.TerminalFilter. The search keeps
// an explicit frame stack rather than recursing, so deep graphs cannot exhaust
// the goroutine stack, and it fails closed with a *BudgetError when a path
// grows past Budget.MaxDepth or a query yields more than Budget.MaxPaths paths.
//
// Whether a conditional branch was taken is recorded on the path, never on the
// instruction: an edge is the fall-through edge iff the successor starts at the
// block's end address. Graphs and instructions are therefore read-only during
// analysis and may be shared between queries.
//
// An edge back to a block on the current stack closes a Loop. Loops are
// attached to every path that contains their head block and count
// Loop.Repetitions times towards the path's bounds.
//
// # Cycle bounds
//
// An Analyzer resolves calls through a cfg.Database:
//
//	a := path.NewAnalyzer(db, path.Config{})
//	bounds, err := a.ClockBounds(0x1aa8)
//
// ClockBounds enumerates the function's paths to all terminal blocks and
// returns the smallest minimum and the largest maximum. Each call adds the
// callee's own ClockBounds. A recursive call graph yields a *RecursionError.
//
// # Expansion
//
// Analyzer.Expand turns a block-level path into flat InstructionPaths, splicing
// every callee path that ends in a success terminal into each call site. The
// number of results multiplies at every call and is bounded by
// Budget.MaxExpansions.
package path
