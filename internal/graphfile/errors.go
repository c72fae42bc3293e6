package graphfile

import (
	"errors"
	"fmt"
)

// ErrNoArchitecture is returned when neither the graph file nor the caller
// names an architecture.
var ErrNoArchitecture = errors.New("graph file names no architecture")

// DecodeError locates a problem in a graph file. Block is the index of the
// block within the function, or -1 for function-level problems.
type DecodeError struct {
	Function uint64
	Block    int
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Block < 0 {
		return fmt.Sprintf("function 0x%x: %v", e.Function, e.Err)
	}
	return fmt.Sprintf("function 0x%x, block %d: %v", e.Function, e.Block, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
