package graphfile

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the only file format version understood.
const Version = 1

// Address is a code address. It is written as a hex literal (0x1aa8) and
// read from YAML integers, 0x-prefixed strings or assembler style "1aa8h".
type Address uint64

// MarshalYAML writes the address as an unquoted hex integer.
func (a Address) MarshalYAML() (interface{}, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("0x%x", uint64(a))}, nil
}

// UnmarshalYAML parses an address scalar.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", value.Line)
	}
	v, err := ParseAddress(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*a = Address(v)
	return nil
}

// ParseAddress accepts decimal, 0x-prefixed hex and "h"-suffixed hex.
func ParseAddress(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	if strings.HasSuffix(s, "h") || strings.HasSuffix(s, "H") {
		v, err := strconv.ParseUint(s[:len(s)-1], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid address %q", s)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

// File is the on-disk form of a graph database.
type File struct {
	Version      int        `yaml:"version"`
	Architecture string     `yaml:"architecture"`
	Functions    []Function `yaml:"functions"`
}

// Function is one control-flow graph.
type Function struct {
	Name   string  `yaml:"name,omitempty"`
	Entry  Address `yaml:"entry"`
	End    Address `yaml:"end,omitempty"`
	Blocks []Block `yaml:"blocks"`
}

// Block is a basic block and its outgoing edges. Start defaults to the first
// instruction's address; End is only needed when it differs from the end of
// the last instruction.
type Block struct {
	Start        Address       `yaml:"start,omitempty"`
	End          Address       `yaml:"end,omitempty"`
	Instructions []Instruction `yaml:"instructions"`
	Successors   []Address     `yaml:"successors,omitempty"`
}

// Instruction is either given as disassembly Text or as Mnemonic and
// Operands. Kind defaults to the architecture's classification.
type Instruction struct {
	Addr     Address  `yaml:"addr"`
	Size     int      `yaml:"size"`
	Text     string   `yaml:"text,omitempty"`
	Mnemonic string   `yaml:"mnemonic,omitempty"`
	Operands []string `yaml:"operands,omitempty"`
	Kind     string   `yaml:"kind,omitempty"`
	Calls    *Address `yaml:"calls,omitempty"`
}
