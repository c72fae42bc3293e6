package program

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyBlock is returned when a block is built without instructions.
var ErrEmptyBlock = errors.New("basic block has no instructions")

// BasicBlock is a straight-line run of instructions with one entry and one exit.
type BasicBlock struct {
	Instructions []*Instruction

	end    uint64
	hasEnd bool
}

// NewBlock creates a block from instrs, which must be non-empty and ordered.
func NewBlock(instrs ...*Instruction) (*BasicBlock, error) {
	if len(instrs) == 0 {
		return nil, ErrEmptyBlock
	}
	for n := 1; n < len(instrs); n++ {
		if instrs[n].Address <= instrs[n-1].Address {
			return nil, fmt.Errorf("instruction at 0x%x does not follow 0x%x", instrs[n].Address, instrs[n-1].Address)
		}
	}
	return &BasicBlock{Instructions: instrs}, nil
}

// MustBlock is like NewBlock but panics on error. Intended for tests and
// static fixtures.
func MustBlock(instrs ...*Instruction) *BasicBlock {
	b, err := NewBlock(instrs...)
	if err != nil {
		panic(err)
	}
	return b
}

// WithEnd overrides the computed end address.
func (b *BasicBlock) WithEnd(end uint64) *BasicBlock {
	b.end = end
	b.hasEnd = true
	return b
}

// HasExplicitEnd reports whether the end address was supplied rather than computed.
func (b *BasicBlock) HasExplicitEnd() bool {
	return b.hasEnd
}

// Start returns the address of the first instruction.
func (b *BasicBlock) Start() uint64 {
	return b.Instructions[0].Address
}

// End returns the address just past the block.
func (b *BasicBlock) End() uint64 {
	if b.hasEnd {
		return b.end
	}
	return b.Last().End()
}

// Last returns the terminating instruction.
func (b *BasicBlock) Last() *Instruction {
	return b.Instructions[len(b.Instructions)-1]
}

// Contains reports whether addr lies in [Start, End).
func (b *BasicBlock) Contains(addr uint64) bool {
	return addr >= b.Start() && addr < b.End()
}

// HasMnemonic reports whether any instruction in the block uses mnemonic.
func (b *BasicBlock) HasMnemonic(mnemonic string) bool {
	for _, ins := range b.Instructions {
		if ins.Mnemonic == mnemonic {
			return true
		}
	}
	return false
}

func (b *BasicBlock) String() string {
	var sb strings.Builder
	for _, ins := range b.Instructions {
		sb.WriteString(ins.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
