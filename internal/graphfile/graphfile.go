package graphfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Load reads a graph file. When a is nil the architecture named in the file
// is looked up with arch.Lookup.
func Load(path string, a arch.Architecture) (*cfg.Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	db, err := Decode(data, a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return db, nil
}

// Save writes db to path, replacing the file atomically.
func Save(path string, db *cfg.Database) error {
	data, err := Encode(db)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary graph file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename graph file: %w", err)
	}
	return nil
}

// Decode parses a graph file. a overrides the file's architecture if set.
func Decode(data []byte, a arch.Architecture) (*cfg.Database, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse graph file: %w", err)
	}
	return Build(&f, a)
}

// Build converts a parsed file into a database.
func Build(f *File, a arch.Architecture) (*cfg.Database, error) {
	if f.Version != Version {
		return nil, fmt.Errorf("unsupported graph file version: %d (expected %d)", f.Version, Version)
	}
	if a == nil {
		if f.Architecture == "" {
			return nil, ErrNoArchitecture
		}
		var err error
		if a, err = arch.Lookup(f.Architecture); err != nil {
			return nil, err
		}
	}

	db := cfg.NewDatabase()
	for _, fn := range f.Functions {
		g, err := buildGraph(a, fn)
		if err != nil {
			return nil, err
		}
		db.Add(g)
	}
	return db, nil
}

func buildGraph(a arch.Architecture, fn Function) (*cfg.Graph, error) {
	entry := uint64(fn.Entry)
	g := cfg.NewGraph(a, entry)
	g.SetName(fn.Name)
	for n, blk := range fn.Blocks {
		b, err := buildBlock(a, blk)
		if err != nil {
			return nil, &DecodeError{Function: entry, Block: n, Err: err}
		}
		if !g.AddBlock(b) {
			return nil, &DecodeError{Function: entry, Block: n, Err: fmt.Errorf("duplicate block 0x%x", b.Start())}
		}
	}
	if _, ok := g.Block(entry); !ok {
		return nil, &DecodeError{Function: entry, Block: -1, Err: fmt.Errorf("no block starts at the entry address")}
	}
	for n, blk := range fn.Blocks {
		from := uint64(blk.Instructions[0].Addr)
		for _, to := range blk.Successors {
			if err := g.AddEdgeAddr(from, uint64(to)); err != nil {
				return nil, &DecodeError{Function: entry, Block: n, Err: err}
			}
		}
	}
	return g, nil
}

func buildBlock(a arch.Architecture, blk Block) (*program.BasicBlock, error) {
	instrs := make([]*program.Instruction, 0, len(blk.Instructions))
	for _, in := range blk.Instructions {
		ins, err := buildInstruction(a, in)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, ins)
	}
	b, err := program.NewBlock(instrs...)
	if err != nil {
		return nil, err
	}
	if blk.Start != 0 && uint64(blk.Start) != b.Start() {
		return nil, fmt.Errorf("block start 0x%x does not match first instruction 0x%x", uint64(blk.Start), b.Start())
	}
	if blk.End != 0 {
		b = b.WithEnd(uint64(blk.End))
	}
	return b, nil
}

func buildInstruction(a arch.Architecture, in Instruction) (*program.Instruction, error) {
	var ins *program.Instruction
	switch {
	case in.Text != "":
		var err error
		if ins, err = program.ParseInstruction(in.Text, uint64(in.Addr), in.Size); err != nil {
			return nil, err
		}
	case in.Mnemonic != "":
		ins = program.NewInstruction(in.Mnemonic, in.Operands, uint64(in.Addr), in.Size)
	default:
		return nil, fmt.Errorf("instruction at 0x%x has neither text nor mnemonic", uint64(in.Addr))
	}
	if in.Size <= 0 {
		return nil, fmt.Errorf("instruction at 0x%x has no size", uint64(in.Addr))
	}

	if in.Kind != "" {
		k, err := program.ParseKind(in.Kind)
		if err != nil {
			return nil, fmt.Errorf("instruction at 0x%x: %w", uint64(in.Addr), err)
		}
		ins.WithKind(k)
	} else {
		ins.WithKind(a.Classify(ins))
	}
	if in.Calls != nil {
		ins.WithCallee(uint64(*in.Calls))
	}
	return ins, nil
}

// Encode writes db in graph file form. Kinds are always written so the file
// reads back the same under any architecture.
func Encode(db *cfg.Database) ([]byte, error) {
	f := File{Version: Version}
	for _, g := range db.Graphs() {
		if f.Architecture == "" {
			f.Architecture = g.Arch().Name()
		} else if f.Architecture != g.Arch().Name() {
			return nil, fmt.Errorf("function 0x%x uses architecture %s, file uses %s", g.Entry(), g.Arch().Name(), f.Architecture)
		}
		f.Functions = append(f.Functions, encodeGraph(g))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return nil, fmt.Errorf("failed to marshal graph file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal graph file: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeGraph(g *cfg.Graph) Function {
	fn := Function{Name: g.Name(), Entry: Address(g.Entry()), End: Address(g.End())}
	for _, b := range g.Blocks() {
		blk := Block{Start: Address(b.Start())}
		if b.HasExplicitEnd() {
			blk.End = Address(b.End())
		}
		for _, ins := range b.Instructions {
			in := Instruction{
				Addr: Address(ins.Address),
				Size: ins.Size,
				Text: ins.Text(),
				Kind: ins.Kind.String(),
			}
			if ins.HasCallee {
				callee := Address(ins.Callee)
				in.Calls = &callee
			}
			blk.Instructions = append(blk.Instructions, in)
		}
		for _, s := range g.Successors(b) {
			blk.Successors = append(blk.Successors, Address(s.Start()))
		}
		fn.Blocks = append(fn.Blocks, blk)
	}
	return fn
}
