// Package analysis runs one fault-injection query end to end.
//
// A query file names a graph file, the function to analyse, optional start
// and target addresses, and the symbolic inputs to solve for:
//
//	graphs: checksum.yaml
//	function: 0x1aa8
//	to: 0x1ab9
//	variables:
//	  - {name: "[HL+02h]", range: [0, 255]}
//	constraints:
//	  - {type: mask, vars: ["[HL+02h]"], value: 3, equals: 0}
//
// Run enumerates the block paths, expands them through their calls, derives
// the branch constraints along every expansion and solves them. The Report
// lists each path with its cycle bounds and, per expansion, whether it is
// feasible together with sample assignments from its equivalence class.
package analysis
