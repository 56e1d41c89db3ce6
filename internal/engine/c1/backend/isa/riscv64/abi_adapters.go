package riscv64

import (
	"github.com/sirupsen/logrus"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// senderSP holds the stack pointer of the caller when entering the interpreter.
const senderSP = x19

// interpreterSlotSize is the size of one interpreter expression stack element.
const interpreterSlotSize = 8

// interpreterArgOffset returns the esp relative offset of the expanded
// argument i. The interpreter pushes arguments in order so the
// first one is the deepest. Longs and doubles live in the lower of their two
// elements.
func interpreterArgOffset(kinds []backend.ValueKind, i int) int64 {
	off := int64(len(kinds)-1-i) * interpreterSlotSize
	if kinds[i].IsDoubleWord() {
		off -= interpreterSlotSize
	}
	return off
}

// interpreterLoadOp returns the load of an argument of kind k from the
// interpreter stack into a register.
func interpreterLoadOp(k backend.ValueKind, r backend.RealReg) op {
	switch {
	case r.IsFloat() && k == backend.KindFloat:
		return opFLW
	case r.IsFloat():
		return opFLD
	case k.IsIntLike():
		return opLW
	default:
		return opLD
	}
}

// GenerateAdapters generates the adapters of methods with signature sig:
// i2c, called by the interpreter, moves the arguments from the expression
// stack into the managed convention and enters the compiled code of the
// method in xmethod. c2i does the opposite for compiled callers of
// interpreted methods, and c2i_unverified checks the receiver against the
// inline cache holder in t1 first.
func (b *Backend) GenerateAdapters(sig *backend.Signature, base uint64) (*CodeBlob, error) {
	name := "adapters" + sig.String()
	u := b.newUnit(name, base, b.opts.StubBufferSize)
	kinds := sig.Expanded()
	locs, stackSlots := backend.Map(sig, JavaConvention, backend.DirectionOutgoing)

	u.markEntry(EntryI2C)
	u.genI2C(kinds, locs, stackSlots)

	var skipFixup asm.Label
	u.markEntry(EntryC2IUnverified)
	u.genC2IUnverified(&skipFixup)
	u.markEntry(EntryC2I)
	u.genC2I(kinds, locs, &skipFixup)

	blob, err := b.finish(u, 0)
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{"component": "adapters", "signature": string(sig.Fingerprint())}).Debug("adapters generated")
	return blob, nil
}

func (u *unit) genI2C(kinds []backend.ValueKind, locs []backend.Location, stackSlots int) {
	u.ld(t1, xmethod, c1api.MethodOffsets.FromCompiled.I64())
	if stackSlots > 0 {
		size := backend.AlignUp(stackSlots*backend.StackSlotSize, 8)
		u.addImm(t0, sp, -int64(size), t0)
		u.andi(sp, t0, -backend.StackAlignment)
	}
	for i, k := range kinds {
		if k == backend.KindVoid {
			continue
		}
		src := interpreterArgOffset(kinds, i)
		dst := locs[i]
		if dst.IsReg() {
			u.load(interpreterLoadOp(k, dst.Reg), dst.Reg, esp, src)
			continue
		}
		u.ld(t0, esp, src)
		u.storeOff(opSD, t0, sp, JavaConvention.StackByteOffset(dst, backend.DirectionOutgoing), t2)
	}
	// The callee may be deoptimized before it builds its frame, the runtime
	// then finds the method here.
	u.sd(xmethod, xthread, c1api.ThreadOffsets.CalleeTarget.I64())
	u.jr(t1)
}

func (u *unit) genC2IUnverified(skipFixup *asm.Label) {
	ic := c1api.ICHolderOffsets
	receiver, holder := JavaConvention.IntArgs[0], t1
	var ok asm.Label
	u.loadKlass(t0, receiver, t2)
	u.ld(t2, holder, ic.HolderKlass.I64())
	u.ld(xmethod, holder, ic.HolderMetadata.I64())
	u.branch(opBEQ, t0, t2, &ok)
	u.rtJump(backend.EntryICMissStub)
	u.Bind(&ok)
	// A method compiled since the call site went interpreted is a miss too,
	// so that the call site gets corrected.
	u.ld(t0, xmethod, c1api.MethodOffsets.Code.I64())
	u.beqz(t0, skipFixup)
	u.rtJump(backend.EntryICMissStub)
}

// javaArgRegs are the registers saved around runtime calls made before the
// arguments are moved.
var javaArgRegs = func() []backend.RealReg {
	ret := append([]backend.RealReg{}, jArgRegs...)
	ret = append(ret, jFArgRegs...)
	return append(ret, xmethod, senderSP)
}()

// patchCallersCallsite asks the runtime to repoint the call site of the
// caller at the compiled code when the method has some by now.
func (u *unit) patchCallersCallsite() {
	var done asm.Label
	u.ld(t0, xmethod, c1api.MethodOffsets.Code.I64())
	u.beqz(t0, &done)
	u.enter()
	u.pushRegs(javaArgRegs)
	u.mv(x10, xmethod)
	u.ld(x11, fp, 8)
	u.rtCall(backend.EntryFixupCallersCallsite)
	u.popRegs(javaArgRegs)
	u.leave()
	u.Bind(&done)
}

func (u *unit) genC2I(kinds []backend.ValueKind, locs []backend.Location, skipFixup *asm.Label) {
	u.patchCallersCallsite()
	u.Bind(skipFixup)

	extra := int64(backend.AlignUp(len(kinds)*interpreterSlotSize, backend.StackAlignment))
	u.mv(senderSP, sp)
	if extra > 0 {
		u.addImm(sp, sp, -extra, t0)
	}
	for i, k := range kinds {
		if k == backend.KindVoid {
			continue
		}
		dst := interpreterArgOffset(kinds, i)
		src := locs[i]
		switch {
		case src.IsStack():
			u.loadOff(opLD, t0, sp, extra+JavaConvention.StackByteOffset(src, backend.DirectionOutgoing), t1)
			u.sd(t0, sp, dst)
		case src.Reg.IsFloat() && k == backend.KindFloat:
			u.store(opFSW, src.Reg, sp, dst)
		default:
			u.store(storeOpFor(src.Reg), src.Reg, sp, dst)
		}
	}
	u.mv(esp, sp)
	u.ld(t0, xmethod, c1api.MethodOffsets.InterpreterEntry.I64())
	u.jr(t0)
}
