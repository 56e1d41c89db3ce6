package riscv64

import (
	"math/bits"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// maxUnrolledClear is the largest body, in words, cleared without a loop.
const maxUnrolledClear = 8

// checkInitialized jumps to slow unless the type in klass finished static initialization.
func (l *lowering) checkInitialized(klass backend.RealReg, slow *asm.Label) {
	l.lbu(t0, klass, c1api.KlassOffsets.InitState.I64())
	l.li(t1, c1api.KlassFullyInitialized)
	l.bcond(opBNE, t0, t1, slow)
}

// tlabAllocate bumps the thread local allocation top by the size in sizeReg,
// or the constant size when sizeReg is invalid. obj receives the old top and
// end the new one. It jumps to slow when the buffer is exhausted.
func (l *lowering) tlabAllocate(obj, end, sizeReg backend.RealReg, size int64, slow *asm.Label) {
	th := c1api.ThreadOffsets
	l.ld(obj, xthread, th.TLABTop.I64())
	if sizeReg.IsValid() {
		l.add(end, obj, sizeReg)
	} else {
		l.addImm(end, obj, size, t0)
	}
	l.ld(t0, xthread, th.TLABEnd.I64())
	l.bcond(opBLTU, t0, end, slow)
	l.sd(end, xthread, th.TLABTop.I64())
}

// initializeHeader writes the mark word and the type descriptor of obj.
func (l *lowering) initializeHeader(obj, klass backend.RealReg) {
	l.li(t0, c1api.MarkPrototype)
	l.sd(t0, obj, c1api.ObjectLayout.MarkOffset.I64())
	l.storeKlass(obj, klass, t0)
}

// clearRange zeroes the words of [obj+from, obj+to) for constant bounds.
func (l *lowering) clearRange(obj, cur, end backend.RealReg, from, to int64) {
	if to <= from {
		return
	}
	if (to-from)/8 <= maxUnrolledClear {
		for off := from; off < to; off += 8 {
			l.storeOff(opSD, zr, obj, off, t0)
		}
		return
	}
	var loop asm.Label
	l.addImm(cur, obj, from, t0)
	l.addImm(end, obj, to, t0)
	l.Bind(&loop)
	l.sd(zr, cur, 0)
	l.addi(cur, cur, 8)
	l.branch(opBLTU, cur, end, &loop)
}

func (l *lowering) lowerAllocObject(ins *backend.Instruction) {
	a := ins.Alloc
	obj := reg(ins.Result, "new object")
	klass := reg(a.Klass, "klass")
	tmp1, tmp2 := reg(a.Tmp1, "temporary"), reg(a.Tmp2, "temporary")
	distinct("allocate object", obj, klass, tmp1, tmp2)
	c1api.Check(a.ObjectSize > 0 && a.ObjectSize%8 == 0, "object size %d is not a positive multiple of 8", a.ObjectSize)

	s := &newInstanceStub{klass: klass, result: obj, info: ins.Info}
	l.addStub(s)
	if a.InitCheck {
		l.checkInitialized(klass, &s.entry)
	}
	if !l.opts.UseTLAB {
		l.j(&s.entry)
		l.Bind(&s.cont)
		return
	}
	size := int64(a.ObjectSize)
	l.tlabAllocate(obj, tmp2, none, size, &s.entry)
	l.initializeHeader(obj, klass)
	hdr := int64(c1api.ObjectLayout.InstanceHeaderSize)
	if l.opts.CompressedClassPointers {
		hdr = int64(c1api.ObjectLayout.InstanceHeaderSizeNarrow)
		if hdr%8 != 0 && hdr < size {
			// Klass gap.
			l.sw(zr, obj, hdr)
			hdr += 4
		}
	}
	l.clearRange(obj, tmp1, tmp2, hdr, size)
	l.membar(backend.OrderStoreStore)
	l.Bind(&s.cont)
}

// elementShift returns log2 of the size of array elements of kind k.
func (l *lowering) elementShift(k backend.ValueKind) int64 {
	size := k.Size()
	if isOop(k) {
		size = l.opts.HeapOopSize()
	}
	return int64(bits.TrailingZeros(uint(size)))
}

func (l *lowering) lowerAllocArray(ins *backend.Instruction) {
	a := ins.Alloc
	obj := reg(ins.Result, "new array")
	klass := reg(a.Klass, "klass")
	length := reg(a.Len, "length")
	tmp1, tmp2 := reg(a.Tmp1, "temporary"), reg(a.Tmp2, "temporary")
	distinct("allocate array", obj, klass, length, tmp1, tmp2)

	rt := backend.EntryNewTypeArray
	if isOop(a.ElementKind) {
		rt = backend.EntryNewObjectArray
	}
	s := &newArrayStub{rt: rt, klass: klass, length: length, result: obj, info: ins.Info}
	l.addStub(s)
	if !l.opts.UseTLAB {
		l.j(&s.entry)
		l.Bind(&s.cont)
		return
	}
	compressed := l.opts.CompressedClassPointers
	base := int64(c1api.ObjectLayout.ArrayBaseOffset(compressed))
	lenOff := c1api.ObjectLayout.ArrayLengthOffsetFor(compressed).I64()

	// Negative lengths compare above the limit.
	l.li(t0, c1api.MaxArrayAllocationLength)
	l.bcond(opBLTU, t0, length, &s.entry)
	l.slli(tmp1, length, l.elementShift(a.ElementKind))
	l.addi(tmp1, tmp1, base+7)
	l.andi(tmp1, tmp1, -8)
	l.tlabAllocate(obj, tmp2, tmp1, 0, &s.entry)
	l.initializeHeader(obj, klass)
	l.sw(length, obj, lenOff)
	if lenOff+4 < base {
		l.sw(zr, obj, lenOff+4)
	}

	var loop, done asm.Label
	l.addi(tmp1, obj, base)
	l.Bind(&loop)
	l.branch(opBGEU, tmp1, tmp2, &done)
	l.sd(zr, tmp1, 0)
	l.addi(tmp1, tmp1, 8)
	l.j(&loop)
	l.Bind(&done)
	l.membar(backend.OrderStoreStore)
	l.Bind(&s.cont)
}
