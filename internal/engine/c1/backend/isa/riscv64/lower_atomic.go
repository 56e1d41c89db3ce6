package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// lowerCAS compares the word at In[0] with In[1] and stores In[2] on match.
// Compressed references are compared in their narrow form.
func (l *lowering) lowerCAS(ins *backend.Instruction) {
	addr := reg(ins.In[0], "address")
	cmp := reg(ins.In[1], "expected value")
	nv := reg(ins.In[2], "new value")
	res := reg(ins.Result, "cas result")
	k := ins.In[1].Type()
	switch {
	case k.IsIntLike():
		l.cmpxchg(addr, cmp, nv, res, false)
	case l.compressedOop(k):
		c1api.Check(len(ins.Tmp) >= 2, "compressed reference cas needs two temporaries")
		tc, tn := reg(ins.Tmp[0], "temporary"), reg(ins.Tmp[1], "temporary")
		distinct("cas", addr, tc, tn)
		l.encodeHeapOop(tc, cmp, tc)
		l.encodeHeapOop(tn, nv, tn)
		// lr.w sign-extends what it loads.
		l.sextw(tc, tc)
		l.sextw(tn, tn)
		l.cmpxchg(addr, tc, tn, res, false)
	default:
		l.cmpxchg(addr, cmp, nv, res, true)
	}
}

// lowerAtomicRMW emits xadd and xchg as single amo instructions ordered
// like a full fence.
func (l *lowering) lowerAtomicRMW(ins *backend.Instruction) {
	addr := reg(ins.In[0], "address")
	res := reg(ins.Result, "old value")
	k := ins.In[1].Type()
	val := l.srcReg(ins.In[1], t1)
	wide := !k.IsIntLike()

	if ins.Op == backend.OpXadd {
		c1api.Check(!k.IsReference(), "cannot add to a reference")
		o := opAMOADDD
		if !wide {
			o = opAMOADDW
		}
		l.amo(o, res, val, addr, aqrlAqRl)
		return
	}
	if l.compressedOop(k) {
		l.encodeHeapOop(t1, val, t0)
		l.amo(opAMOSWAPW, res, t1, addr, aqrlAqRl)
		l.slli(res, res, 32)
		l.srli(res, res, 32)
		l.decodeHeapOop(res, t0)
		return
	}
	o := opAMOSWAPD
	if !wide {
		o = opAMOSWAPW
	}
	l.amo(o, res, val, addr, aqrlAqRl)
}
