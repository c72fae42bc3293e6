// Package graphfile reads and writes graph databases as YAML.
//
// A graph file lists the functions of one firmware image, each with its basic
// blocks, their instructions and their successor edges:
//
//	version: 1
//	architecture: 78k0
//	functions:
//	  - name: verify_range
//	    entry: 0x1aa8
//	    blocks:
//	      - instructions:
//	          - {addr: 0x1aa8, size: 2, text: "mov A, [HL+00h]"}
//	          - {addr: 0x1aaa, size: 2, text: "cmp A, #00h"}
//	          - {addr: 0x1aac, size: 2, text: "bnz $1ad0h"}
//	        successors: [0x1aae, 0x1ad0]
//
// Addresses may be written as YAML integers, 0x-prefixed hex or assembler
// style "1ad0h". Instruction kinds are classified by the architecture unless
// given explicitly; calls name their callee with "calls". Files are produced
// by a disassembler export script and are the only input the analysis needs.
package graphfile
