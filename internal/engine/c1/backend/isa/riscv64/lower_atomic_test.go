package riscv64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// atomicOps returns the atomic instructions and fences of the main code of cm in order.
func atomicOps(cm *CompiledMethod) []Inst {
	var ret []Inst
	for _, w := range words(cm.Code[:cm.MainSize]) {
		in, ok := Decode(w)
		if !ok {
			continue
		}
		switch in.Op {
		case opLRW, opLRD, opSCW, opSCD, opAMOADDW, opAMOADDD, opAMOSWAPW, opAMOSWAPD, opFENCE:
			ret = append(ret, in)
		}
	}
	return ret
}

const fullFence = (fenceR|fenceW)<<4 | fenceR | fenceW

func casProgram(k backend.ValueKind) *backend.Program {
	ins := &backend.Instruction{
		Op:     backend.OpCAS,
		In:     []backend.Operand{longReg(x11), backend.RegisterOperand(x12, k), backend.RegisterOperand(x13, k)},
		Result: intReg(x10),
	}
	if k == backend.KindObject {
		ins.Tmp = []backend.Operand{longReg(x14), longReg(x15)}
	}
	prog := backend.NewProgram("cas_"+k.String(), 32)
	prog.Append(ins)
	prog.Return(intReg(x10))
	return prog
}

func TestCompile_CAS(t *testing.T) {
	const cell = simHeap + 0x100
	for _, tc := range []struct {
		name      string
		kind      backend.ValueKind
		mem       uint64
		expected  uint64
		newVal    uint64
		swapped   bool
		memAfter  uint64
		lrOp      op
		sizeBytes int
	}{
		{name: "int match", kind: backend.KindInt, mem: 5, expected: 5, newVal: 9, swapped: true, memAfter: 9, lrOp: opLRW, sizeBytes: 4},
		{name: "int mismatch", kind: backend.KindInt, mem: 5, expected: 6, newVal: 9, memAfter: 5, lrOp: opLRW, sizeBytes: 4},
		{
			name: "negative int", kind: backend.KindInt, mem: 0xffff_fff0, expected: 0xffff_ffff_ffff_fff0, newVal: 1,
			swapped: true, memAfter: 1, lrOp: opLRW, sizeBytes: 4,
		},
		{
			name: "long match", kind: backend.KindLong, mem: 0x1_0000_0005, expected: 0x1_0000_0005, newVal: 0x2_0000_0000,
			swapped: true, memAfter: 0x2_0000_0000, lrOp: opLRD, sizeBytes: 8,
		},
		{name: "long differs in the upper half", kind: backend.KindLong, mem: 0x1_0000_0005, expected: 5, newVal: 7, memAfter: 0x1_0000_0005, lrOp: opLRD, sizeBytes: 8},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			cm := compile(t, be, casProgram(tc.kind))

			ops := atomicOps(cm)
			require.Len(t, ops, 3)
			require.Equal(t, tc.lrOp, ops[0].Op)
			require.Equal(t, aqrlAq, ops[0].Aqrl)
			require.Equal(t, aqrlRl, ops[1].Aqrl)
			require.Equal(t, opFENCE, ops[2].Op)
			require.Equal(t, int64(fullFence), ops[2].Imm, "a full fence follows the exchange")

			s := newSim(t)
			s.install(cm.CodeBlob)
			s.store64(cell, 0xdead_beef_0000_0000)
			s.write(cell, tc.sizeBytes, tc.mem)
			s.setReg(x11, cell)
			s.setReg(x12, tc.expected)
			s.setReg(x13, tc.newVal)
			s.call(cm.EntryAddress(EntryVerified))

			require.Equal(t, b2u(tc.swapped), s.reg(x10))
			require.Equal(t, tc.memAfter, s.read(cell, tc.sizeBytes))
			if tc.sizeBytes == 4 {
				require.Equal(t, uint32(0xdead_beef), s.load32(cell+4), "the neighbouring word is untouched")
			}
		})
	}
}

func TestCompile_CASCompressedOop(t *testing.T) {
	const cell = simHeap + 0x100
	for _, base := range []uint64{0, 0x8_0000_0000} {
		// The narrow form of obj has its sign bit set.
		obj := base + 0x4_0000_0008
		other := base + 0x4_0000_0010
		narrow := func(o uint64) uint64 {
			if o == 0 {
				return 0
			}
			return (o - base) >> 3
		}
		for _, tc := range []struct {
			name             string
			mem              uint64
			expected, newVal uint64
			swapped          bool
		}{
			{name: "match", mem: obj, expected: obj, newVal: other, swapped: true},
			{name: "mismatch", mem: obj, expected: other, newVal: 0},
			{name: "null to object", mem: 0, expected: 0, newVal: obj, swapped: true},
			{name: "object to null", mem: other, expected: other, newVal: 0, swapped: true},
		} {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				be := newTestBackend(t, func(o *backend.Options) { o.OopBase = base })
				cm := compile(t, be, casProgram(backend.KindObject))
				require.Equal(t, opLRW, atomicOps(cm)[0].Op, "narrow references are compared in 32 bits")

				s := newSim(t)
				s.install(cm.CodeBlob)
				s.store32(cell, uint32(narrow(tc.mem)))
				s.setReg(x11, cell)
				s.setReg(x12, tc.expected)
				s.setReg(x13, tc.newVal)
				s.call(cm.EntryAddress(EntryVerified))

				require.Equal(t, b2u(tc.swapped), s.reg(x10))
				exp := tc.mem
				if tc.swapped {
					exp = tc.newVal
				}
				require.Equal(t, uint32(narrow(exp)), s.load32(cell))
				require.Equal(t, tc.expected, s.reg(x12), "the inputs are preserved")
				require.Equal(t, tc.newVal, s.reg(x13))
			})
		}
	}
}

func TestCompile_AtomicRMW(t *testing.T) {
	const cell = simHeap + 0x100
	for _, tc := range []struct {
		name      string
		opcode    backend.Opcode
		value     backend.Operand
		reg       uint64
		mem       uint64
		sizeBytes int
		old       uint64
		memAfter  uint64
		amo       op
	}{
		{
			name: "xadd int wraps", opcode: backend.OpXadd, value: intReg(x12), reg: 1, mem: 0x7fff_ffff, sizeBytes: 4,
			old: 0x7fff_ffff, memAfter: 0x8000_0000, amo: opAMOADDW,
		},
		{
			name: "xadd int constant", opcode: backend.OpXadd, value: backend.IntConst(-1), mem: 0, sizeBytes: 4,
			old: 0, memAfter: 0xffff_ffff, amo: opAMOADDW,
		},
		{
			name: "xadd long", opcode: backend.OpXadd, value: longReg(x12), reg: 1, mem: 0xffff_ffff, sizeBytes: 8,
			old: 0xffff_ffff, memAfter: 0x1_0000_0000, amo: opAMOADDD,
		},
		{
			name: "xchg int", opcode: backend.OpXchg, value: intReg(x12), reg: 3, mem: 0xffff_fffe, sizeBytes: 4,
			old: 0xffff_ffff_ffff_fffe, memAfter: 3, amo: opAMOSWAPW,
		},
		{
			name: "xchg long", opcode: backend.OpXchg, value: longReg(x12), reg: 0x1_0000_0000, mem: 0x2_0000_0000, sizeBytes: 8,
			old: 0x2_0000_0000, memAfter: 0x1_0000_0000, amo: opAMOSWAPD,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			be := newTestBackend(t, nil)
			prog := backend.NewProgram("rmw", 32)
			prog.Append(&backend.Instruction{Op: tc.opcode, In: []backend.Operand{longReg(x11), tc.value}, Result: longReg(x10)})
			prog.Return(longReg(x10))
			cm := compile(t, be, prog)

			ops := atomicOps(cm)
			require.Len(t, ops, 1)
			require.Equal(t, tc.amo, ops[0].Op)
			require.Equal(t, aqrlAqRl, ops[0].Aqrl, "ordered like a full fence")

			s := newSim(t)
			s.install(cm.CodeBlob)
			s.write(cell, tc.sizeBytes, tc.mem)
			s.setReg(x11, cell)
			s.setReg(x12, tc.reg)
			s.call(cm.EntryAddress(EntryVerified))

			require.Equal(t, tc.old, s.reg(x10))
			require.Equal(t, tc.memAfter, s.read(cell, tc.sizeBytes))
		})
	}
}

func TestCompile_XchgCompressedOop(t *testing.T) {
	const cell = simHeap + 0x100
	for _, base := range []uint64{0, 0x8_0000_0000} {
		be := newTestBackend(t, func(o *backend.Options) { o.OopBase = base })
		prog := backend.NewProgram("xchg_oop", 32)
		prog.Append(&backend.Instruction{Op: backend.OpXchg, In: []backend.Operand{longReg(x11), objReg(x12)}, Result: objReg(x10)})
		prog.Return(objReg(x10))
		cm := compile(t, be, prog)
		require.Equal(t, opAMOSWAPW, atomicOps(cm)[0].Op)

		old := base + 0x4_0000_0008
		for _, newVal := range []uint64{base + 0x10_0000, 0} {
			s := newSim(t)
			s.install(cm.CodeBlob)
			s.store32(cell, uint32((old-base)>>3))
			s.setReg(x11, cell)
			s.setReg(x12, newVal)
			s.call(cm.EntryAddress(EntryVerified))

			require.Equal(t, old, s.reg(x10), "the old reference is decoded from its zero-extended narrow form")
			var narrow uint32
			if newVal != 0 {
				narrow = uint32((newVal - base) >> 3)
			}
			require.Equal(t, narrow, s.load32(cell))
		}

		s := newSim(t)
		s.install(cm.CodeBlob)
		s.store32(cell, 0)
		s.setReg(x11, cell)
		s.setReg(x12, old)
		s.call(cm.EntryAddress(EntryVerified))
		require.Zero(t, s.reg(x10), "null decodes to null")
	}
}
