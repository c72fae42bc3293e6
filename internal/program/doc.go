// Package program holds the value types the analysis engine works on:
// instructions and basic blocks as produced by a disassembler front end.
//
// The types carry no behaviour beyond simple accessors. An Instruction is
// immutable once its block has been added to a graph; anything that depends on
// a particular traversal (such as whether a conditional branch was taken) is
// stored on the path that traversed it, never on the instruction.
//
// # Blocks
//
// A BasicBlock is a non-empty run of instructions. Its start address is the
// address of its first instruction and its end address is the address just
// past its last instruction, unless the front end supplied an explicit end:
//
//	blk, err := program.NewBlock(
//	    program.NewInstruction("cmp", []string{"A", "#03h"}, 0x1aa8, 2),
//	    program.NewInstruction("bc", []string{"$1ab7"}, 0x1aaa, 2),
//	)
//
// Two blocks describe the same block iff their start addresses match.
package program
