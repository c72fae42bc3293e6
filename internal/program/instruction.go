package program

import (
	"fmt"
	"strings"
)

// Kind classifies an instruction by its effect on control flow.
type Kind int

const (
	// KindNormal is any instruction that falls through to the next one
	KindNormal Kind = iota
	// KindCondJump is a conditional branch
	KindCondJump
	// KindUncondJump is an unconditional branch
	KindUncondJump
	// KindCall transfers control to another function and returns
	KindCall
	// KindReturn leaves the current function
	KindReturn
)

// String returns the lower-case name used in graph files and reports.
func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindCondJump:
		return "cond_jump"
	case KindUncondJump:
		return "uncond_jump"
	case KindCall:
		return "call"
	case KindReturn:
		return "return"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "":
		return KindNormal, nil
	case "cond_jump":
		return KindCondJump, nil
	case "uncond_jump":
		return KindUncondJump, nil
	case "call":
		return KindCall, nil
	case "return":
		return KindReturn, nil
	default:
		return KindNormal, fmt.Errorf("unknown instruction kind %q", s)
	}
}

// IsBranch reports whether k is a conditional or unconditional jump.
func (k Kind) IsBranch() bool {
	return k == KindCondJump || k == KindUncondJump
}

// Outcome records, for one traversal, what a block's terminating instruction did.
type Outcome int8

const (
	// OutcomeUnknown means the traversal did not leave the block (or the
	// instruction is not a branch).
	OutcomeUnknown Outcome = iota
	// OutcomeNotTaken means execution fell through to the next address.
	OutcomeNotTaken
	// OutcomeTaken means execution continued at the branch target.
	OutcomeTaken
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotTaken:
		return "not-taken"
	case OutcomeTaken:
		return "taken"
	default:
		return "unknown"
	}
}

// Instruction is a single disassembled instruction.
type Instruction struct {
	// Mnemonic is always lower case
	Mnemonic string
	// Operands are the operand tokens as printed by the disassembler
	Operands []string
	// Address of the first byte of the instruction
	Address uint64
	// Size is the encoded length in bytes
	Size int
	// Kind is the control-flow classification
	Kind Kind
	// Callee is the entry address of the called function. Only meaningful
	// when Kind is KindCall and HasCallee is set.
	Callee    uint64
	HasCallee bool
}

// NewInstruction creates a KindNormal instruction. The mnemonic is lower-cased
// and operands are trimmed.
func NewInstruction(mnemonic string, operands []string, addr uint64, size int) *Instruction {
	ops := make([]string, 0, len(operands))
	for _, op := range operands {
		ops = append(ops, strings.TrimSpace(op))
	}
	return &Instruction{
		Mnemonic: strings.ToLower(strings.TrimSpace(mnemonic)),
		Operands: ops,
		Address:  addr,
		Size:     size,
	}
}

// ParseInstruction splits disassembly text such as "cmp A, #03h" into a
// mnemonic and comma separated operands.
func ParseInstruction(text string, addr uint64, size int) (*Instruction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty instruction text at 0x%x", addr)
	}
	mnem, rest, _ := strings.Cut(text, " ")
	var ops []string
	if rest = strings.TrimSpace(rest); rest != "" {
		ops = strings.Split(rest, ",")
	}
	return NewInstruction(mnem, ops, addr, size), nil
}

// WithKind sets the classification and returns the instruction.
func (i *Instruction) WithKind(k Kind) *Instruction {
	i.Kind = k
	return i
}

// WithCallee marks the instruction as a call to the function at entry.
func (i *Instruction) WithCallee(entry uint64) *Instruction {
	i.Kind = KindCall
	i.Callee = entry
	i.HasCallee = true
	return i
}

// End returns the address just past the instruction.
func (i *Instruction) End() uint64 {
	return i.Address + uint64(i.Size)
}

// Operand returns operand n, or "" if there is none.
func (i *Instruction) Operand(n int) string {
	if n < 0 || n >= len(i.Operands) {
		return ""
	}
	return i.Operands[n]
}

// Text returns the instruction without its address, e.g. "cmp A, #03h".
func (i *Instruction) Text() string {
	if len(i.Operands) == 0 {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + strings.Join(i.Operands, ", ")
}

func (i *Instruction) String() string {
	return fmt.Sprintf("0x%x\t%s", i.Address, i.Text())
}
