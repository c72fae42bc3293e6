package cfg

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

// DOT renders g in Graphviz format. Block nodes show their instructions; taken
// edges are labelled "T" and fall-through edges "F".
func DOT(g *Graph) string {
	out := dot.NewGraph(dot.Directed)
	out.Attr("rankdir", "TB")
	addGraph(out, g)
	return out.String()
}

// DatabaseDOT renders every graph of db as a cluster and draws dashed edges
// from call sites to callee entries.
func DatabaseDOT(db *Database) string {
	out := dot.NewGraph(dot.Directed)
	out.Attr("compound", "true")

	nodes := make(map[uint64]map[uint64]dot.Node)
	for _, g := range db.Graphs() {
		sub := out.Subgraph(fmt.Sprintf("fn_%x", g.Entry()), dot.ClusterOption{})
		sub.Attr("label", g.Label())
		nodes[g.Entry()] = addGraph(sub, g)
	}

	for _, g := range db.Graphs() {
		for _, b := range g.Blocks() {
			for _, ins := range b.Instructions {
				if ins.Kind != program.KindCall || !ins.HasCallee {
					continue
				}
				callee, ok := nodes[ins.Callee]
				if !ok {
					continue
				}
				out.Edge(nodes[g.Entry()][b.Start()], callee[ins.Callee], "call").Dashed()
			}
		}
	}
	return out.String()
}

func addGraph(out *dot.Graph, g *Graph) map[uint64]dot.Node {
	nodes := make(map[uint64]dot.Node, g.Len())
	for _, b := range g.Blocks() {
		n := out.Node(fmt.Sprintf("b_%x_%x", g.Entry(), b.Start())).Box().Attr("label", blockLabel(b))
		if b.Start() == g.Entry() {
			n.Attr("style", "bold")
		}
		if g.IsTerminal(b) {
			n.Attr("peripheries", "2")
		}
		nodes[b.Start()] = n
	}
	for _, b := range g.Blocks() {
		for _, s := range g.Successors(b) {
			e := out.Edge(nodes[b.Start()], nodes[s.Start()])
			if b.Last().Kind == program.KindCondJump {
				if s.Start() == b.End() {
					e.Label("F")
				} else {
					e.Label("T")
				}
			}
		}
	}
	return nodes
}

// blockLabel left-justifies one instruction per line.
func blockLabel(b *program.BasicBlock) dot.Literal {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, ins := range b.Instructions {
		line := fmt.Sprintf("%04x  %s", ins.Address, ins.Text())
		sb.WriteString(strings.ReplaceAll(line, `"`, `\"`))
		sb.WriteString(`\l`)
	}
	sb.WriteByte('"')
	return dot.Literal(sb.String())
}
