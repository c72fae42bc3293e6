// Package cfg provides per-function control-flow graphs and the database that
// holds them.
//
// A Graph owns its basic blocks and a successor set per block. Blocks are
// identified by start address; adding a block twice is a no-op reported by
// AddBlock returning false, and adding an edge adds any missing endpoint.
// Blocks without successors are terminal.
//
// # Lookups
//
//	g := cfg.NewGraph(arch.NewRSAS78K0(), 0x1aa8)
//	g.AddEdge(head, fallthrough)
//	g.AddEdge(head, target)
//
//	blk, err := g.BlockAt(0x1aab)        // block containing an address
//	ends := g.Terminals(cfg.SuccessTerminals)
//
// Terminals filters terminal blocks by the architecture's success or error
// mnemonics. When nothing matches, the filter's Fallback decides whether all
// terminals or none are returned. A graph with a single terminal block is never
// filtered.
//
// # Database
//
// A Database maps function entries to graphs. Call instructions refer to their
// callee by entry address and are resolved through the database, so caller and
// callee graphs never point at each other. CheckCalls reports calls that do not
// resolve and CallCycle reports recursion in the call graph, which cycle-bound
// computation does not support.
//
// DOT and DatabaseDOT render graphs for Graphviz.
package cfg
