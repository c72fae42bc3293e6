// Package arch provides per-instruction-set timing and branch-condition models.
//
// An Architecture answers four kinds of question about an instruction:
//
//   - how many clock cycles it costs (Ticks, BranchCost)
//   - what control-flow kind it is (Classify)
//   - which predicate over a compare's operands a branch direction implies
//     (TranslateCondition)
//   - which mnemonics set flags, move data, or mark the success and error
//     outcomes of a routine
//
// # Architectures
//
// Three implementations ship with the package:
//
//   - RSAS78K0: Renesas 78K0, hand-written with operand-dependent costs
//   - Dummy: unit-cost model for tests and synthetic graphs
//   - Table: any architecture described by a YAML Spec; the embedded catalog
//     provides "stm8"
//
// Use Lookup to resolve a name:
//
//	a, err := arch.Lookup("78k0")
//	if err != nil {
//	    return err
//	}
//	cost, err := a.Ticks(ins, false)
//
// # Predicates
//
// TranslateCondition returns a Predicate: a Relation between the compare's two
// operands with immediates already substituted. For "cmp A, #03h; bc" taken,
// the 78K0 table yields "x0 < 0x3", a unary predicate over A.
//
// # Errors
//
// An instruction missing from a cost table yields *UnknownInstructionError and a
// missing condition-table entry yields *ConditionError. Both mean the model is
// incomplete for the firmware under analysis and are never defaulted.
package arch
