package cfg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benbjohnson/immutable"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Graph is the control-flow graph of one function.
type Graph struct {
	arch  arch.Architecture
	name  string
	entry uint64
	end   uint64

	blocks map[uint64]*program.BasicBlock
	succ   map[uint64]mapset.Set[uint64]

	// index orders blocks by start address for containing-address lookups
	index *immutable.SortedMap[uint64, *program.BasicBlock]
	// span is the length of the longest block
	span uint64
}

// NewGraph creates an empty graph for the function starting at entry.
func NewGraph(a arch.Architecture, entry uint64) *Graph {
	return &Graph{
		arch:   a,
		entry:  entry,
		end:    entry,
		blocks: make(map[uint64]*program.BasicBlock),
		succ:   make(map[uint64]mapset.Set[uint64]),
		index:  immutable.NewSortedMap[uint64, *program.BasicBlock](immutable.NewComparer[uint64](0)),
	}
}

// Arch returns the architecture the function is written for.
func (g *Graph) Arch() arch.Architecture { return g.arch }

// Entry returns the function entry address.
func (g *Graph) Entry() uint64 { return g.entry }

// Name returns the function's symbol name, if known.
func (g *Graph) Name() string { return g.name }

// SetName records the function's symbol name.
func (g *Graph) SetName(name string) { g.name = name }

// Label returns the name, or the entry address in hex when unnamed.
func (g *Graph) Label() string {
	if g.name != "" {
		return g.name
	}
	return fmt.Sprintf("0x%x", g.entry)
}

// End returns the highest block end seen so far.
func (g *Graph) End() uint64 { return g.end }

// Len returns the number of blocks.
func (g *Graph) Len() int { return len(g.blocks) }

// AddBlock inserts b. It returns false, leaving the graph unchanged, if a
// block with the same start address already exists.
func (g *Graph) AddBlock(b *program.BasicBlock) bool {
	start := b.Start()
	if _, dup := g.blocks[start]; dup {
		return false
	}
	g.blocks[start] = b
	g.succ[start] = mapset.NewThreadUnsafeSet[uint64]()
	g.index = g.index.Set(start, b)
	if end := b.End(); end > g.end {
		g.end = end
	}
	if n := b.End() - start; n > g.span {
		g.span = n
	}
	return true
}

// AddEdge records that control may pass from one block to another. Missing
// endpoints are added first.
func (g *Graph) AddEdge(from, to *program.BasicBlock) {
	g.AddBlock(from)
	g.AddBlock(to)
	g.succ[from.Start()].Add(to.Start())
}

// AddEdgeAddr is AddEdge for blocks already in the graph, named by start address.
func (g *Graph) AddEdgeAddr(from, to uint64) error {
	if _, ok := g.blocks[from]; !ok {
		return &EdgeError{Function: g.entry, From: from, To: to, Missing: from}
	}
	if _, ok := g.blocks[to]; !ok {
		return &EdgeError{Function: g.entry, From: from, To: to, Missing: to}
	}
	g.succ[from].Add(to)
	return nil
}

// Block returns the block starting exactly at start.
func (g *Graph) Block(start uint64) (*program.BasicBlock, bool) {
	b, ok := g.blocks[start]
	return b, ok
}

// BlockAt returns the block whose [start, end) range contains addr. When
// blocks overlap the one starting closest to addr wins.
func (g *Graph) BlockAt(addr uint64) (*program.BasicBlock, error) {
	itr := g.index.Iterator()
	itr.Seek(addr)
	if itr.Done() {
		itr.Last()
	}
	for !itr.Done() {
		start, b, _ := itr.Prev()
		if start > addr {
			continue
		}
		if b.Contains(addr) {
			return b, nil
		}
		// no earlier block is long enough to reach addr
		if addr-start >= g.span {
			break
		}
	}
	return nil, &AddressError{Function: g.entry, Address: addr}
}

// Blocks returns all blocks ordered by start address.
func (g *Graph) Blocks() []*program.BasicBlock {
	out := make([]*program.BasicBlock, 0, g.index.Len())
	itr := g.index.Iterator()
	for !itr.Done() {
		_, b, _ := itr.Next()
		out = append(out, b)
	}
	return out
}

// Successors returns the successors of b ordered by start address.
func (g *Graph) Successors(b *program.BasicBlock) []*program.BasicBlock {
	set, ok := g.succ[b.Start()]
	if !ok {
		return nil
	}
	starts := set.ToSlice()
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	out := make([]*program.BasicBlock, 0, len(starts))
	for _, s := range starts {
		out = append(out, g.blocks[s])
	}
	return out
}

// IsTerminal reports whether b has no successors.
func (g *Graph) IsTerminal(b *program.BasicBlock) bool {
	set, ok := g.succ[b.Start()]
	return !ok || set.Cardinality() == 0
}

// Edges returns the number of edges.
func (g *Graph) Edges() int {
	n := 0
	for _, s := range g.succ {
		n += s.Cardinality()
	}
	return n
}

// Calls returns every call instruction in the graph in address order.
func (g *Graph) Calls() []*program.Instruction {
	var calls []*program.Instruction
	for _, b := range g.Blocks() {
		for _, ins := range b.Instructions {
			if ins.Kind == program.KindCall {
				calls = append(calls, ins)
			}
		}
	}
	return calls
}

func (g *Graph) String() string {
	var sb strings.Builder
	for _, b := range g.Blocks() {
		sb.WriteString(b.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
