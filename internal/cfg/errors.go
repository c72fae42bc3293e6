package cfg

import (
	"fmt"
)

// AddressError is returned when no block of a graph covers an address.
type AddressError struct {
	// Function is the entry address of the graph searched
	Function uint64
	// Address that was looked up
	Address uint64
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("no block in function 0x%x contains address 0x%x", e.Function, e.Address)
}

// NotFoundError is returned when the database has no graph for an entry address.
type NotFoundError struct {
	Entry uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no function with entry 0x%x in graph database", e.Entry)
}

// EdgeError is returned when an edge refers to a block start that is not in
// the graph.
type EdgeError struct {
	Function uint64
	From     uint64
	To       uint64
	// Missing is the endpoint that could not be resolved
	Missing uint64
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("function 0x%x: edge 0x%x -> 0x%x refers to unknown block 0x%x",
		e.Function, e.From, e.To, e.Missing)
}

// UnresolvedCallError is returned when a call instruction has no callee or its
// callee is missing from the database.
type UnresolvedCallError struct {
	// Function containing the call
	Function uint64
	// Address of the call instruction
	Address uint64
	// Callee entry, if the instruction named one
	Callee    uint64
	HasCallee bool
	// Underlying error if any
	Err error
}

func (e *UnresolvedCallError) Error() string {
	if !e.HasCallee {
		return fmt.Sprintf("function 0x%x: call at 0x%x has no callee", e.Function, e.Address)
	}
	if e.Err != nil {
		return fmt.Sprintf("function 0x%x: call at 0x%x to 0x%x cannot be resolved: %v", e.Function, e.Address, e.Callee, e.Err)
	}
	return fmt.Sprintf("function 0x%x: call at 0x%x to 0x%x cannot be resolved", e.Function, e.Address, e.Callee)
}

func (e *UnresolvedCallError) Unwrap() error {
	return e.Err
}
