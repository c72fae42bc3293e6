package cfg

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/program"
)

func callBlock(addr, callee uint64) *program.BasicBlock {
	ins := program.NewInstruction("call", []string{"fn"}, addr, 2).WithCallee(callee)
	ret := program.NewInstruction("ret", nil, addr+2, 1).WithKind(program.KindReturn)
	return program.MustBlock(ins, ret)
}

func fn(entry uint64, b *program.BasicBlock) *Graph {
	g := NewGraph(arch.NewDummy(), entry)
	g.AddBlock(b)
	return g
}

func TestDatabaseGet(t *testing.T) {
	db := NewDatabase()
	db.Add(fn(0x200, block(0x200, "ret")))
	db.Add(fn(0x100, block(0x100, "ret")))

	if db.Len() != 2 {
		t.Errorf("Len() = %d", db.Len())
	}
	if diff := cmp.Diff([]uint64{0x100, 0x200}, db.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}

	g, err := db.Get(0x200)
	if err != nil || g.Entry() != 0x200 {
		t.Errorf("Get(0x200) = %v, %v", g, err)
	}

	_, err = db.Get(0x300)
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Entry != 0x300 {
		t.Errorf("Get(0x300) error = %v, want *NotFoundError", err)
	}

	if _, err := db.BlockAt(0x100, 0x100); err != nil {
		t.Errorf("BlockAt() error = %v", err)
	}
	if _, err := db.BlockAt(0x300, 0x300); !errors.As(err, &nf) {
		t.Errorf("BlockAt() on missing function error = %v", err)
	}
}

func TestCallCycle(t *testing.T) {
	tests := []struct {
		name  string
		calls map[uint64]uint64
		want  []uint64
	}{
		{name: "acyclic", calls: map[uint64]uint64{0x100: 0x200, 0x200: 0x300}},
		{name: "self", calls: map[uint64]uint64{0x100: 0x100}, want: []uint64{0x100}},
		{name: "mutual", calls: map[uint64]uint64{0x100: 0x200, 0x200: 0x100}, want: []uint64{0x100, 0x200}},
		{name: "missing callee ignored", calls: map[uint64]uint64{0x100: 0x999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := NewDatabase()
			entries := map[uint64]bool{}
			for from, to := range tt.calls {
				db.Add(fn(from, callBlock(from, to)))
				entries[from] = true
			}
			for _, to := range tt.calls {
				if !entries[to] && to != 0x999 {
					db.Add(fn(to, block(to, "ret")))
				}
			}
			if diff := cmp.Diff(tt.want, db.CallCycle()); diff != "" {
				t.Errorf("CallCycle() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckCalls(t *testing.T) {
	db := NewDatabase()
	db.Add(fn(0x100, callBlock(0x100, 0x200)))
	db.Add(fn(0x200, block(0x200, "ret")))
	if err := db.CheckCalls(); err != nil {
		t.Fatalf("CheckCalls() error = %v", err)
	}

	db.Add(fn(0x300, callBlock(0x300, 0x400)))
	bare := program.MustBlock(program.NewInstruction("call", []string{"AX"}, 0x500, 2).WithKind(program.KindCall))
	db.Add(fn(0x500, bare))

	err := db.CheckCalls()
	var unresolved *UnresolvedCallError
	if !errors.As(err, &unresolved) {
		t.Fatalf("CheckCalls() error = %v, want *UnresolvedCallError", err)
	}
	msg := err.Error()
	for _, want := range []string{"0x400", "call at 0x500 has no callee"} {
		if !strings.Contains(msg, want) {
			t.Errorf("CheckCalls() error %q missing %q", msg, want)
		}
	}

	callees, err := db.Callees(0x100)
	if err != nil {
		t.Fatalf("Callees() error = %v", err)
	}
	if diff := cmp.Diff([]uint64{0x200}, callees); diff != "" {
		t.Errorf("Callees() mismatch (-want +got):\n%s", diff)
	}
}

func TestDatabaseDOT(t *testing.T) {
	db := NewDatabase()
	db.Add(fn(0x100, callBlock(0x100, 0x200)))
	db.Add(fn(0x200, block(0x200, "ret")))

	out := DatabaseDOT(db)
	for _, want := range []string{"cluster", "fn_100", "fn_200", "call", "dashed"} {
		if !strings.Contains(out, want) {
			t.Errorf("DatabaseDOT() missing %q:\n%s", want, out)
		}
	}
}
