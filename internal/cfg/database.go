package cfg

import (
	"errors"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// Database holds the graphs of a firmware image keyed by function entry.
type Database struct {
	graphs map[uint64]*Graph
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{graphs: make(map[uint64]*Graph)}
}

// Add stores g, replacing any graph with the same entry.
func (db *Database) Add(g *Graph) {
	db.graphs[g.Entry()] = g
}

// Get returns the graph for the function starting at entry.
func (db *Database) Get(entry uint64) (*Graph, error) {
	g, ok := db.graphs[entry]
	if !ok {
		return nil, &NotFoundError{Entry: entry}
	}
	return g, nil
}

// BlockAt returns the block containing addr within the function at entry.
func (db *Database) BlockAt(entry, addr uint64) (*program.BasicBlock, error) {
	g, err := db.Get(entry)
	if err != nil {
		return nil, err
	}
	return g.BlockAt(addr)
}

// Entries returns all function entries in ascending order.
func (db *Database) Entries() []uint64 {
	entries := make([]uint64, 0, len(db.graphs))
	for e := range db.graphs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i] < entries[j] })
	return entries
}

// Graphs returns all graphs ordered by entry.
func (db *Database) Graphs() []*Graph {
	out := make([]*Graph, 0, len(db.graphs))
	for _, e := range db.Entries() {
		out = append(out, db.graphs[e])
	}
	return out
}

// Len returns the number of graphs.
func (db *Database) Len() int {
	return len(db.graphs)
}

// Callees returns the distinct resolved callee entries of the function at
// entry, in ascending order. Calls without a callee are ignored.
func (db *Database) Callees(entry uint64) ([]uint64, error) {
	g, err := db.Get(entry)
	if err != nil {
		return nil, err
	}
	set := mapset.NewThreadUnsafeSet[uint64]()
	for _, ins := range g.Calls() {
		if ins.HasCallee {
			set.Add(ins.Callee)
		}
	}
	out := set.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CheckCalls verifies that every call instruction names a callee present in
// the database. All problems are reported, joined.
func (db *Database) CheckCalls() error {
	var errs []error
	for _, g := range db.Graphs() {
		for _, ins := range g.Calls() {
			if !ins.HasCallee {
				errs = append(errs, &UnresolvedCallError{Function: g.Entry(), Address: ins.Address})
				continue
			}
			if _, err := db.Get(ins.Callee); err != nil {
				errs = append(errs, &UnresolvedCallError{
					Function:  g.Entry(),
					Address:   ins.Address,
					Callee:    ins.Callee,
					HasCallee: true,
					Err:       err,
				})
			}
		}
	}
	return errors.Join(errs...)
}

// CallCycle returns a cycle in the call graph as a list of function entries
// whose last element calls the first, or nil if the call graph is acyclic.
// Calls to functions outside the database are ignored.
func (db *Database) CallCycle() []uint64 {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[uint64]int, len(db.graphs))

	type frame struct {
		entry   uint64
		callees []uint64
		next    int
	}

	for _, root := range db.Entries() {
		if state[root] != unvisited {
			continue
		}
		callees, _ := db.Callees(root)
		stack := []*frame{{entry: root, callees: callees}}
		state[root] = active

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next == len(top.callees) {
				state[top.entry] = done
				stack = stack[:len(stack)-1]
				continue
			}
			c := top.callees[top.next]
			top.next++
			if _, ok := db.graphs[c]; !ok {
				continue
			}
			switch state[c] {
			case active:
				var cycle []uint64
				for n := len(stack) - 1; n >= 0; n-- {
					if stack[n].entry == c {
						for _, f := range stack[n:] {
							cycle = append(cycle, f.entry)
						}
						break
					}
				}
				return cycle
			case unvisited:
				next, _ := db.Callees(c)
				state[c] = active
				stack = append(stack, &frame{entry: c, callees: next})
			}
		}
	}
	return nil
}
