package riscv64

import (
	"fmt"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// Registers of the deoptimization blob. They are callee saved in the native
// convention so they survive the runtime calls.
const (
	deoptKind    = xcpool
	deoptUnroll  = x18
	deoptResult  = x25
	deoptFResult = f9
	// deoptLastPC points at the continuation pc once the frames are pushed.
	deoptLastPC = moveScratch
)

// GenerateDeoptBlob generates the code replacing a compiled frame by
// interpreter frames. Compiled code enters it with the frame to deoptimize
// on top of the stack and ra holding the pc being deoptimized:
//
//   - deopt and reexecute resume at, or redo, the current bytecode,
//   - exception enters with the exception in x10 and the throwing pc in x13,
//   - exception_in_tls finds them in the thread already.
//
// The runtime computes an UnrollBlock; the blob captures the live values of
// the compiled frame, pops it, pushes one skeletal frame per scope, fills
// them and lets the runtime finish the frames before returning into the
// innermost one.
func (b *Backend) GenerateDeoptBlob(base uint64) (*CodeBlob, error) {
	u := b.newUnit("deopt_blob", base, b.opts.StubBufferSize)
	th := c1api.ThreadOffsets
	var cont asm.Label

	u.markEntry(EntryDeopt)
	om := u.saveLiveRegisters()
	u.li(deoptKind, int64(backend.UnpackDeopt))
	u.j(&cont)

	u.markEntry(EntryReexecute)
	u.saveLiveRegisters()
	u.li(deoptKind, int64(backend.UnpackReexecute))
	u.j(&cont)

	u.markEntry(EntryException)
	u.sd(exceptionOopReg, xthread, th.ExceptionOop.I64())
	u.sd(exceptionPCReg, xthread, th.ExceptionPC.I64())
	u.markEntry(EntryExceptionInTLS)
	u.saveLiveRegisters()
	u.li(deoptKind, int64(backend.UnpackException))

	u.Bind(&cont)
	u.genUnpack(om)
	return b.finish(u, regSaveFrameSize)
}

func (u *unit) genUnpack(om *backend.OopMap) {
	off := backend.UnrollBlockOffsets
	shape := InterpreterFrame

	var fetched asm.Label
	u.mv(x10, xthread)
	u.mv(x11, deoptKind)
	u.setLastJavaFrame(sp, fp, &fetched, t0)
	u.rtCall(backend.EntryFetchUnrollInfo)
	u.Bind(&fetched)
	u.addOopMap(om)
	u.resetLastJavaFrame(false)
	u.mv(deoptUnroll, x10)

	// Copy the live values out while the compiled frame and the saved
	// registers are still in place.
	u.ld(x10, deoptUnroll, int64(off.Values))
	u.addi(x11, sp, regSaveFrameSize)
	u.mv(x12, sp)
	u.ld(t0, deoptUnroll, int64(off.CaptureRoutine))
	u.jalr(ra, t0, 0)

	u.restoreResultRegisters()
	u.mv(deoptResult, x10)
	u.mv(deoptFResult, f10)

	// Pop the compiled frame.
	u.lwu(t1, deoptUnroll, int64(off.SizeOfDeoptimizedFrame))
	u.add(sp, sp, t1)
	u.ld(ra, sp, -8)
	u.ld(fp, sp, -16)

	sender := x21
	u.mv(sender, sp)
	u.lwu(t1, deoptUnroll, int64(off.CallerAdjustment))
	u.sub(sp, sp, t1)

	sizes, pcs, count := x28, x29, x30
	var loop asm.Label
	u.ld(sizes, deoptUnroll, int64(off.FrameSizes))
	u.ld(pcs, deoptUnroll, int64(off.FramePCs))
	u.lwu(count, deoptUnroll, int64(off.NumberOfFrames))
	u.Bind(&loop)
	u.ld(t1, sizes, 0)
	u.ld(ra, pcs, 0)
	u.enter()
	u.addi(t1, t1, -16)
	u.sub(sp, sp, t1)
	u.sd(sender, fp, int64(shape.SenderSP)*8)
	u.sd(zr, fp, int64(shape.LastSP)*8)
	u.mv(sender, sp)
	u.addi(sizes, sizes, 8)
	u.addi(pcs, pcs, 8)
	u.addi(count, count, -1)
	u.branch(opBNE, count, zr, &loop)
	u.mv(deoptLastPC, pcs)

	u.ld(x10, deoptUnroll, int64(off.Values))
	u.mv(x11, fp)
	u.ld(t0, deoptUnroll, int64(off.FillRoutine))
	u.jalr(ra, t0, 0)

	var unpacked asm.Label
	u.mv(x10, xthread)
	u.lwu(x11, deoptUnroll, int64(off.UnpackKind))
	u.setLastJavaFrame(sp, fp, &unpacked, t0)
	u.rtCall(backend.EntryUnpackFrames)
	u.Bind(&unpacked)
	u.addOopMap(backend.NewOopMap(0))
	u.resetLastJavaFrame(true)

	u.mv(x10, deoptResult)
	u.mv(f10, deoptFResult)
	u.ld(ra, deoptLastPC, 0)
	u.ret()
}

// GenerateDeoptRoutines generates the capture and fill routines of ub.
//
// capture is called with the values area in x10, the sp of the compiled
// frame in x11 and the register save area in x12, and stores every value of
// ub.Values into its word of the values area. fill is called with the values
// area in x10 and the fp of the innermost interpreter frame in x11, and
// performs the stores of every frame plan, walking the frames outwards.
func (b *Backend) GenerateDeoptRoutines(ub *backend.UnrollBlock, base uint64) (*CodeBlob, error) {
	u := b.newUnit(fmt.Sprintf("deopt_routines:%d", len(ub.Frames)), base, b.opts.CodeBufferSize)
	u.markEntry(EntryCapture)
	for i, v := range ub.Values {
		u.captureValue(v)
		u.storeOff(opSD, t0, x10, int64(i)*8, t1)
	}
	u.ret()

	u.markEntry(EntryFill)
	for k, f := range ub.Frames {
		for _, s := range f.Stores {
			switch s.Source.Kind {
			case backend.SourceValue:
				u.loadOff(opLD, t0, x10, int64(s.Source.Value)*8, t0)
			case backend.SourceConst:
				u.li(t0, s.Source.Bits)
			case backend.SourceFrameAddress:
				u.addImm(t0, x11, s.Source.Bits, t1)
			}
			u.storeOff(opSD, t0, x11, s.Offset, t1)
		}
		if k < len(ub.Frames)-1 {
			u.ld(x11, x11, 0)
		}
	}
	u.ret()
	return b.finish(u, 0)
}

// captureValue loads v into t0 as a full interpreter slot word.
func (u *unit) captureValue(v backend.ScopeValue) {
	switch {
	case v.IsConstant():
		u.li(t0, int64(v.Const))
		return
	case v.Loc.IsReg():
		off := savedRegOffset(v.Loc.Reg)
		switch {
		case v.Kind == backend.KindFloat || v.Kind == backend.KindNarrowOop:
			u.lwu(t0, x12, off)
		default:
			u.ld(t0, x12, off)
		}
	default:
		off := v.Loc.ByteOffset()
		o := opLD
		switch {
		case v.Kind.IsIntLike():
			o = opLW
		case v.Kind == backend.KindFloat || v.Kind == backend.KindNarrowOop:
			o = opLWU
		}
		u.loadOff(o, t0, x11, off, t0)
	}
	if v.Kind == backend.KindNarrowOop {
		u.decodeHeapOop(t0, t1)
	}
}
