// Package constraint derives and solves the input constraints that force
// execution down one instruction path.
//
// A Deriver walks an expanded path and, for every conditional branch with a
// known outcome, finds the compare instruction that set the condition, asks
// the architecture for the matching predicate and binds the compare's
// operands to symbolic variables. Operands that are neither immediates nor
// variables are traced backwards through move instructions:
//
//	mov A, [HL+02h]    ; A <- [HL+02h]
//	cmp A, #03h
//	bc  $fail          ; taken: [HL+02h] < 0x3
//
// Build collects those predicates, together with any extra constraints the
// caller declares, into a Problem over finite integer domains. Problem.Solve
// returns one satisfying Assignment or reports that the path is infeasible;
// Problem.Solutions enumerates the equivalence class.
//
// Constant and single-variable constraints are applied to the domains before
// the search; the rest is handed to the centipede backtracking solver.
// Further members of the class are found by solving again with the
// assignments already reported excluded.
package constraint
