package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// slowSubtypeCheck calls the shared secondary supers scan with sub and super
// pushed on the stack and branches on its answer.
func (l *lowering) slowSubtypeCheck(sub, super backend.RealReg, success, failure *asm.Label) {
	l.addi(sp, sp, -16)
	l.sd(sub, sp, 8)
	l.sd(super, sp, 0)
	l.rtCall(backend.EntrySlowSubtypeCheck)
	l.ld(t0, sp, 0)
	l.addi(sp, sp, 16)
	l.beqz(t0, failure)
	l.j(success)
}

// checkSubtypeStatic decides whether the type descriptor sub is a subtype of
// super, whose super check offset sco is known at compile time.
func (l *lowering) checkSubtypeStatic(sub, super backend.RealReg, sco int32, fast bool, success, failure *asm.Label) {
	l.bcond(opBEQ, sub, super, success)
	if fast {
		l.j(failure)
		return
	}
	l.loadOff(opLD, t0, sub, int64(sco), t0)
	l.bcond(opBEQ, t0, super, success)
	if sco != c1api.KlassOffsets.SecondarySuperCache.I32() {
		// The primary supers display decides.
		l.j(failure)
		return
	}
	l.slowSubtypeCheck(sub, super, success, failure)
}

// checkSubtypeDynamic is checkSubtypeStatic with the super check offset
// loaded from super into tmp.
func (l *lowering) checkSubtypeDynamic(sub, super, tmp backend.RealReg, success, failure *asm.Label) {
	l.bcond(opBEQ, sub, super, success)
	l.lwu(tmp, super, c1api.KlassOffsets.SuperCheckOffset.I64())
	l.add(t0, sub, tmp)
	l.ld(t0, t0, 0)
	l.bcond(opBEQ, t0, super, success)
	l.li(t1, c1api.KlassOffsets.SecondarySuperCache.I64())
	l.bcond(opBNE, tmp, t1, failure)
	l.slowSubtypeCheck(sub, super, success, failure)
}

// profileNullSeen sets the null seen flag of the profile entry at mdp.
func (l *lowering) profileNullSeen(mdp uint64) {
	l.li(t1, int64(mdp))
	l.lbu(t0, t1, c1api.ProfileFlagsOffset.I64())
	l.ori(t0, t0, c1api.ProfileNullSeenByte)
	l.sb(t0, t1, c1api.ProfileFlagsOffset.I64())
}

// profileReceiver counts recv in the receiver rows of p: the matching row,
// else the first empty one, else the polymorphic counter.
func (l *lowering) profileReceiver(p *backend.ProfileSite, recv backend.RealReg) {
	var updated asm.Label
	row := func(i int) int64 {
		return c1api.ProfileFirstRowOffset.I64() + int64(i*c1api.ProfileRowSize)
	}
	l.li(t1, int64(p.MDP))
	for i := 0; i < p.Rows; i++ {
		var next asm.Label
		l.ld(t0, t1, row(i))
		l.branch(opBNE, t0, recv, &next)
		l.ld(t0, t1, row(i)+8)
		l.addi(t0, t0, c1api.ProfileCounterIncrement)
		l.sd(t0, t1, row(i)+8)
		l.j(&updated)
		l.Bind(&next)
	}
	for i := 0; i < p.Rows; i++ {
		var next asm.Label
		l.ld(t0, t1, row(i))
		l.branch(opBNE, t0, zr, &next)
		l.sd(recv, t1, row(i))
		l.li(t0, c1api.ProfileCounterIncrement)
		l.sd(t0, t1, row(i)+8)
		l.j(&updated)
		l.Bind(&next)
	}
	l.ld(t0, t1, c1api.ProfileCountOffset.I64())
	l.addi(t0, t0, c1api.ProfileCounterIncrement)
	l.sd(t0, t1, c1api.ProfileCountOffset.I64())
	l.Bind(&updated)
}

// typeCheck emits the shared part of instanceof and checkcast: it branches
// to onNull, success or failure.
func (l *lowering) typeCheck(obj backend.RealReg, tc *backend.TypeCheckInfo, onNull, success, failure *asm.Label) {
	super := reg(tc.Tmp1, "klass temporary")
	sub := reg(tc.Tmp2, "object klass temporary")
	distinct("type check", obj, super, sub)

	if tc.Profile != nil {
		var notNull asm.Label
		l.branch(opBNE, obj, zr, &notNull)
		l.profileNullSeen(tc.Profile.MDP)
		l.j(onNull)
		l.Bind(&notNull)
	} else {
		l.beqz(obj, onNull)
	}
	l.movptr(super, tc.Klass)
	l.loadKlass(sub, obj, t0)
	if tc.Profile == nil {
		l.checkSubtypeStatic(sub, super, tc.SuperCheckOffset, tc.FastCheck, success, failure)
		return
	}
	// Only receivers which pass the check are counted.
	var passed asm.Label
	l.checkSubtypeStatic(sub, super, tc.SuperCheckOffset, tc.FastCheck, &passed, failure)
	l.Bind(&passed)
	l.profileReceiver(tc.Profile, sub)
	l.j(success)
}

func (l *lowering) lowerInstanceOf(ins *backend.Instruction) {
	obj := reg(ins.In[0], "object")
	res := reg(ins.Result, "instanceof result")
	var success, failure, done asm.Label
	l.typeCheck(obj, ins.TypeCheck, &failure, &success, &failure)
	l.Bind(&success)
	l.li(res, 1)
	l.j(&done)
	l.Bind(&failure)
	l.mv(res, zr)
	l.Bind(&done)
}

func (l *lowering) lowerCheckCast(ins *backend.Instruction) {
	obj := reg(ins.In[0], "object")
	res := reg(ins.Result, "checkcast result")
	s := &simpleExceptionStub{rt: backend.EntryThrowClassCast, obj: obj, info: ins.Info}
	l.addStub(s)
	var success asm.Label
	l.typeCheck(obj, ins.TypeCheck, &success, &success, &s.entry)
	l.Bind(&success)
	l.mv(res, obj)
}

// lowerStoreCheck verifies that the value In[0] may be stored into the
// object array In[1]. Null values always pass.
func (l *lowering) lowerStoreCheck(ins *backend.Instruction) {
	value := reg(ins.In[0], "stored value")
	array := reg(ins.In[1], "array")
	tc := ins.TypeCheck
	c1api.Check(!tc.Tmp3.IsIllegal(), "store check needs three temporaries")
	elem := reg(tc.Tmp1, "element klass temporary")
	sub := reg(tc.Tmp2, "value klass temporary")
	tmp := reg(tc.Tmp3, "temporary")
	distinct("store check", value, array, elem, sub, tmp)

	s := &simpleExceptionStub{rt: backend.EntryThrowArrayStore, obj: value, info: ins.Info}
	l.addStub(s)
	var done asm.Label
	if tc.Profile != nil {
		var notNull asm.Label
		l.branch(opBNE, value, zr, &notNull)
		l.profileNullSeen(tc.Profile.MDP)
		l.j(&done)
		l.Bind(&notNull)
	} else {
		l.beqz(value, &done)
	}
	l.loadKlass(elem, array, t0)
	l.ld(elem, elem, c1api.KlassOffsets.ElementKlass.I64())
	l.loadKlass(sub, value, t0)
	if tc.Profile == nil {
		l.checkSubtypeDynamic(sub, elem, tmp, &done, &s.entry)
		l.Bind(&done)
		return
	}
	var passed asm.Label
	l.checkSubtypeDynamic(sub, elem, tmp, &passed, &s.entry)
	l.Bind(&passed)
	l.profileReceiver(tc.Profile, sub)
	l.Bind(&done)
}

// lowerProfileType records the type of In[0] in a type profile cell. The
// update is racy: concurrent updates may lose information but never
// record a wrong type.
func (l *lowering) lowerProfileType(ins *backend.Instruction) {
	obj := reg(ins.In[0], "profiled value")
	pt := ins.ProfileType
	tmp := reg(pt.Tmp, "temporary")
	distinct("profile type", obj, tmp)
	cur := int64(pt.Current)

	var done asm.Label
	if !pt.NotNull {
		var notNull asm.Label
		l.branch(opBNE, obj, zr, &notNull)
		if cur&c1api.TypeEntryNullSeen == 0 {
			l.li(t1, int64(pt.Cell))
			l.ld(t0, t1, 0)
			l.ori(t0, t0, c1api.TypeEntryNullSeen)
			l.sd(t0, t1, 0)
		}
		l.j(&done)
		l.Bind(&notNull)
	}
	known := cur & c1api.TypeEntryKlassMask
	switch {
	case cur&c1api.TypeEntryUnknown != 0:
		// Already polymorphic.
	case pt.ExactKlass != 0 && known == int64(pt.ExactKlass):
		// Already recorded.
	default:
		var conflict asm.Label
		if pt.ExactKlass != 0 {
			l.li(tmp, int64(pt.ExactKlass))
		} else {
			l.loadKlass(tmp, obj, t0)
		}
		l.li(t1, int64(pt.Cell))
		l.ld(t0, t1, 0)
		// tmp = klass ^ cell: zero klass bits mean the same type is recorded.
		l.xor(tmp, tmp, t0)
		l.andi(t1, tmp, c1api.TypeEntryKlassMask)
		l.branch(opBEQ, t1, zr, &done)
		l.andi(t1, t0, c1api.TypeEntryUnknown)
		l.branch(opBNE, t1, zr, &done)
		l.andi(t1, t0, c1api.TypeEntryKlassMask)
		l.branch(opBNE, t1, zr, &conflict)
		// Empty cell: tmp is the klass with the cell flags.
		l.li(t1, int64(pt.Cell))
		l.sd(tmp, t1, 0)
		l.j(&done)
		l.Bind(&conflict)
		l.ori(t0, t0, c1api.TypeEntryUnknown)
		l.li(t1, int64(pt.Cell))
		l.sd(t0, t1, 0)
	}
	l.Bind(&done)
}
