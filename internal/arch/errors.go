package arch

import (
	"fmt"
)

// UnknownInstructionError is returned when an instruction has no entry in the
// architecture's cost table and is not a branch. It means the model is
// incomplete for the binary under analysis.
type UnknownInstructionError struct {
	// Arch is the architecture name
	Arch string
	// Mnemonic of the offending instruction
	Mnemonic string
	// Address of the offending instruction
	Address uint64
	// Underlying error if any
	Err error
}

func (e *UnknownInstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: no cost for instruction %q at 0x%x: %v", e.Arch, e.Mnemonic, e.Address, e.Err)
	}
	return fmt.Sprintf("%s: no cost for instruction %q at 0x%x", e.Arch, e.Mnemonic, e.Address)
}

func (e *UnknownInstructionError) Unwrap() error {
	return e.Err
}

// ConditionError is returned when the condition table has no entry for a
// (taken, branch, compare) combination.
type ConditionError struct {
	Arch    string
	Branch  string
	Compare string
	Taken   bool
}

func (e *ConditionError) Error() string {
	dir := "not taken"
	if e.Taken {
		dir = "taken"
	}
	return fmt.Sprintf("%s: no condition for %q %s after %q", e.Arch, e.Branch, dir, e.Compare)
}

// SpecError is returned when an architecture spec fails validation.
type SpecError struct {
	// Name of the architecture spec (may be empty if the name itself is missing)
	Name string
	// Field is the offending spec field
	Field string
	// Underlying error
	Err error
}

func (e *SpecError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid architecture spec, field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid architecture spec %q, field %q: %v", e.Name, e.Field, e.Err)
}

func (e *SpecError) Unwrap() error {
	return e.Err
}
