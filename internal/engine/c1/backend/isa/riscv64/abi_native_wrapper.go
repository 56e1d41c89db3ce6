package riscv64

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// NativeMethod describes a method implemented in native code.
type NativeMethod struct {
	Name string
	// Sig is the managed signature, the receiver included for instance methods.
	Sig          *backend.Signature
	IsStatic     bool
	Synchronized bool
	// NativeEntry is the address of the native function.
	NativeEntry uint64
	// Mirror is the class mirror passed to static methods.
	Mirror uint64
}

// NativeWrapper is the code calling a native method from managed code.
type NativeWrapper struct {
	*CodeBlob
	Layout backend.FrameLayout
	// NativeSig is the signature of the native function: the environment,
	// the class mirror of static methods and the managed arguments.
	NativeSig *backend.Signature
	// Moves are the moves of the non-reference arguments in emission order.
	Moves []backend.Move
}

// wrapperLockRegs hold the monitor of synchronized native methods.
var wrapperLockRegs = lockRegs{obj: x28, lock: x29, hdr: x30, scratch: t2}

// savedPendingException keeps the pending exception across the unlock slow
// path. It is callee saved in the native convention.
const savedPendingException = x18

// wrapperGen is the state of one GenerateNativeWrapper call.
type wrapperGen struct {
	*unit
	m      *NativeMethod
	layout backend.FrameLayout
	// handles maps expanded argument indexes of references to their handle offset.
	handles  map[int]int64
	klassOff int64
	lockOff  int64
	tempOff  int64
	// slowPaths are emitted after the main code.
	slowPaths []func()
	retPC     asm.Label
}

// GenerateNativeWrapper generates the wrapper of the native method m: it
// shuffles the arguments into the native convention, passing references as
// handles, moves the thread into native state around the call, unpacks the
// result, releases the monitor of synchronized methods and forwards any
// exception the native code left pending.
func (b *Backend) GenerateNativeWrapper(m *NativeMethod, base uint64) (*NativeWrapper, error) {
	c1api.Check(m.Sig != nil, "native method %s has no signature", m.Name)
	c1api.Check(m.IsStatic || (len(m.Sig.Args) > 0 && m.Sig.Args[0].IsReference()), "instance method %s has no receiver", m.Name)
	c1api.Check(m.NativeEntry != 0, "native method %s has no entry", m.Name)

	prefix := []backend.ValueKind{backend.KindAddress}
	if m.IsStatic {
		prefix = append(prefix, backend.KindObject)
	}
	nsig := backend.NewSignature(m.Sig.Ret, append(prefix, m.Sig.Args...)...)
	kinds := m.Sig.Expanded()
	in, _ := backend.Map(m.Sig, JavaConvention, backend.DirectionIncoming)
	out, outSlots := backend.Map(nsig, NativeConvention, backend.DirectionOutgoing)
	out = out[len(prefix):]

	g := &wrapperGen{
		unit:    b.newUnit("native_wrapper:"+m.Name, base, b.opts.CodeBufferSize),
		m:       m,
		handles: map[int]int64{},
	}
	var fb backend.FrameBuilder
	fb.Reserve(backend.RegionOutgoingArgs, outSlots*backend.StackSlotSize, 8)
	var refs []int
	for i, k := range kinds {
		if k.IsReference() {
			refs = append(refs, i)
		}
	}
	handleBase := fb.Reserve(backend.RegionOopHandles, len(refs)*8, 8)
	for j, i := range refs {
		g.handles[i] = int64(handleBase + 8*j)
	}
	g.klassOff, g.lockOff = -1, -1
	if m.IsStatic {
		g.klassOff = int64(fb.Reserve(backend.RegionKlassHandle, 8, 8))
	}
	if m.Synchronized {
		g.lockOff = int64(fb.Reserve(backend.RegionLock, 16, 8))
	}
	g.tempOff = int64(fb.Reserve(backend.RegionResultTemp, 16, 8))
	g.layout = fb.Finish(backend.RegionLinkage, 16)

	// Incoming stack arguments are addressed from sp once the frame is built.
	frameSlots := g.layout.Slots()
	for i, l := range in {
		if l.IsStack() {
			in[i] = backend.StackLocation(l.Slot + frameSlots)
		}
	}

	if !m.IsStatic {
		g.markEntry(EntryUnverified)
		g.inlineCacheCheck()
	}
	g.markEntry(EntryVerified)
	g.buildFrame(g.layout.Size)
	g.markEntry(EntryFrameComplete)

	g.storeHandles(kinds, in)
	g.setLastJavaFrame(sp, fp, &g.retPC, t0)
	if m.Synchronized {
		g.lock()
	}
	moves := g.moveArguments(kinds, in, out)
	g.passHandles(kinds, out)
	g.addi(x10, xthread, c1api.ThreadOffsets.JNIEnvironment.I64())
	if m.IsStatic {
		g.addi(x11, sp, g.klassOff)
	}
	g.callNative()
	g.transitionBack()
	g.unlock()
	g.epilogue()

	for _, f := range g.slowPaths {
		if !g.buf.StartStub("native_wrapper_slow_path", 4*maxStubSize) {
			break
		}
		f()
		g.buf.EndStub()
	}
	blob, err := b.finish(g.unit, g.layout.Size)
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{"component": "wrapper", "method": m.Name, "signature": nsig.String()}).Debug("native wrapper generated")
	return &NativeWrapper{CodeBlob: blob, Layout: g.layout, NativeSig: nsig, Moves: moves}, nil
}

// slowPath emits f after the main code and returns its entry.
func (g *wrapperGen) slowPath(f func()) *asm.Label {
	entry := new(asm.Label)
	g.slowPaths = append(g.slowPaths, func() {
		g.Bind(entry)
		f()
	})
	return entry
}

// inlineCacheCheck jumps to the inline cache miss handler unless the
// receiver's type is the one in t1.
func (g *wrapperGen) inlineCacheCheck() {
	var hit asm.Label
	g.loadKlass(t0, JavaConvention.IntArgs[0], t2)
	g.branch(opBEQ, t0, t1, &hit)
	g.rtJump(backend.EntryICMissStub)
	g.Bind(&hit)
}

// frameOopMap returns the map of the wrapper frame: the handles are its only references.
func (g *wrapperGen) frameOopMap() *backend.OopMap {
	om := backend.NewOopMap(g.layout.Slots())
	for _, off := range g.handles {
		om.SetOop(backend.StackLocation(int(off / backend.StackSlotSize)))
	}
	if g.klassOff >= 0 {
		om.SetOop(backend.StackLocation(int(g.klassOff / backend.StackSlotSize)))
	}
	return om
}

// storeHandles copies the reference arguments into their handle slots,
// before any argument register is overwritten.
func (g *wrapperGen) storeHandles(kinds []backend.ValueKind, in []backend.Location) {
	for i := range kinds {
		off, ok := g.handles[i]
		if !ok {
			continue
		}
		src := in[i]
		if src.IsReg() {
			g.sd(src.Reg, sp, off)
			continue
		}
		g.loadOff(opLD, t0, sp, src.ByteOffset(), t0)
		g.sd(t0, sp, off)
	}
	if g.m.IsStatic {
		g.li(t0, int64(g.m.Mirror))
		g.sd(t0, sp, g.klassOff)
	}
}

// lock acquires the monitor of the receiver, or of the class mirror for
// static methods.
func (g *wrapperGen) lock() {
	r := wrapperLockRegs
	if g.m.IsStatic {
		g.ld(r.obj, sp, g.klassOff)
	} else {
		g.ld(r.obj, sp, g.handles[0])
	}
	g.addi(r.lock, sp, g.lockOff)
	var locked asm.Label
	slow := g.slowPath(func() {
		g.pushRegs(javaArgRegs)
		g.mv(x10, r.obj)
		g.mv(x11, r.lock)
		g.mv(x12, xthread)
		g.rtCall(backend.EntryCompleteMonitorLockingC)
		g.popRegs(javaArgRegs)
		g.j(&locked)
	})
	if g.opts.UseFastLocking {
		g.fastLock(r, slow)
	} else {
		g.j(slow)
	}
	g.Bind(&locked)
}

// moveArguments moves the non-reference arguments in an order which
// clobbers no pending source and returns the moves performed.
func (g *wrapperGen) moveArguments(kinds []backend.ValueKind, in, out []backend.Location) []backend.Move {
	var moves []backend.Move
	for i, k := range kinds {
		if k == backend.KindVoid || k.IsReference() {
			continue
		}
		moves = append(moves, backend.Move{Src: in[i], Dst: out[i], Kind: k})
	}
	ordered := backend.NewMoveOrderSolver().Solve(moves, backend.RegLocation(moveScratch))
	for _, mv := range ordered {
		g.move(mv)
	}
	return ordered
}

// move performs one argument move. Stack locations are sp relative.
func (g *wrapperGen) move(mv backend.Move) {
	src, dst, k := mv.Src, mv.Dst, mv.Kind
	single := k == backend.KindFloat
	switch {
	case src.IsStack() && dst.IsStack():
		g.loadOff(opLD, t0, sp, src.ByteOffset(), t0)
		g.storeOff(opSD, t0, sp, dst.ByteOffset(), t1)
	case src.IsStack():
		o := opLD
		switch {
		case dst.Reg.IsFloat() && single:
			o = opFLW
		case dst.Reg.IsFloat():
			o = opFLD
		case k.IsIntLike() || single:
			o = opLW
		}
		g.loadOff(o, dst.Reg, sp, src.ByteOffset(), t1)
	case dst.IsStack():
		o := storeOpFor(src.Reg)
		if src.Reg.IsFloat() && single {
			o = opFSW
		}
		g.storeOff(o, src.Reg, sp, dst.ByteOffset(), t1)
	case src.Reg.IsFloat() == dst.Reg.IsFloat():
		g.mv(dst.Reg, src.Reg)
	case src.Reg.IsFloat():
		if single {
			g.fmv(opFMVXW, dst.Reg, src.Reg)
		} else {
			g.fmv(opFMVXD, dst.Reg, src.Reg)
		}
	default:
		if single {
			g.fmv(opFMVWX, dst.Reg, src.Reg)
		} else {
			g.fmv(opFMVDX, dst.Reg, src.Reg)
		}
	}
}

// passHandles passes the address of the handle of every non-null reference
// argument and null otherwise.
func (g *wrapperGen) passHandles(kinds []backend.ValueKind, out []backend.Location) {
	for i := range kinds {
		off, ok := g.handles[i]
		if !ok {
			continue
		}
		dst := out[i]
		d := t1
		if dst.IsReg() {
			d = dst.Reg
		}
		var isNull asm.Label
		g.ld(t0, sp, off)
		g.mv(d, zr)
		g.branch(opBEQ, t0, zr, &isNull)
		g.addi(d, sp, off)
		g.Bind(&isNull)
		if dst.IsStack() {
			g.storeOff(opSD, d, sp, dst.ByteOffset(), t0)
		}
	}
}

func (g *wrapperGen) callNative() {
	g.storeThreadState(c1api.ThreadInNative)
	g.call(g.m.NativeEntry)
	g.Bind(&g.retPC)
	g.addOopMap(g.frameOopMap())
	g.normalizeResult()
}

// normalizeResult widens subword results the way the managed convention expects them.
func (g *wrapperGen) normalizeResult() {
	switch g.m.Sig.Ret {
	case backend.KindBoolean:
		g.andi(x10, x10, 0xff)
		g.rr(opSLTU, x10, zr, x10)
	case backend.KindChar:
		g.slli(x10, x10, 48)
		g.srli(x10, x10, 48)
	case backend.KindByte:
		g.slli(x10, x10, 56)
		g.srai(x10, x10, 56)
	case backend.KindShort:
		g.slli(x10, x10, 48)
		g.srai(x10, x10, 48)
	case backend.KindInt:
		g.sextw(x10, x10)
	}
}

func (g *wrapperGen) saveResult() {
	g.sd(x10, sp, g.tempOff)
	g.store(opFSD, f10, sp, g.tempOff+8)
}

func (g *wrapperGen) restoreResult() {
	g.ld(x10, sp, g.tempOff)
	g.load(opFLD, f10, sp, g.tempOff+8)
}

// transitionBack returns the thread to managed state. The transitional
// state must be visible before the poll word is read, a requester of a
// safepoint reads the state without holding a lock.
func (g *wrapperGen) transitionBack() {
	th := c1api.ThreadOffsets
	g.storeThreadState(c1api.ThreadInNativeTrans)
	g.membar(backend.OrderAnyAny)

	var resumed asm.Label
	special := g.slowPath(func() {
		g.saveResult()
		g.mv(x10, xthread)
		g.rtCall(backend.EntryCheckSpecialConditionForNativeTrans)
		g.restoreResult()
		g.j(&resumed)
	})
	g.ld(t0, xthread, th.PollingWord.I64())
	g.andi(t0, t0, c1api.SafepointPollBit)
	g.bnez(t0, special)
	g.lwu(t0, xthread, th.SuspendFlags.I64())
	g.bnez(t0, special)
	g.Bind(&resumed)
	g.storeThreadState(c1api.ThreadInJava)

	var reguarded asm.Label
	reguard := g.slowPath(func() {
		g.saveResult()
		g.rtCall(backend.EntryReguardYellowPages)
		g.restoreResult()
		g.j(&reguarded)
	})
	g.lbu(t0, xthread, th.StackGuardState.I64())
	g.li(t1, c1api.StackGuardYellowReservedDisabled)
	g.bcond(opBEQ, t0, t1, reguard)
	g.Bind(&reguarded)
}

// unlock releases the monitor of synchronized methods. The slow path must
// not see the exception left by the native code.
func (g *wrapperGen) unlock() {
	if !g.m.Synchronized {
		return
	}
	th := c1api.ThreadOffsets
	r := wrapperLockRegs
	var unlocked asm.Label
	slow := g.slowPath(func() {
		g.saveResult()
		g.ld(savedPendingException, xthread, th.PendingException.I64())
		g.sd(zr, xthread, th.PendingException.I64())
		g.mv(x10, r.obj)
		g.mv(x11, r.lock)
		g.mv(x12, xthread)
		g.rtCall(backend.EntryCompleteMonitorUnlockingC)
		g.sd(savedPendingException, xthread, th.PendingException.I64())
		g.restoreResult()
		g.j(&unlocked)
	})
	g.addi(r.lock, sp, g.lockOff)
	g.ld(r.obj, r.lock, lockSlotObjOffset)
	if g.opts.UseFastLocking {
		g.fastUnlock(r, slow)
	} else {
		g.j(slow)
	}
	g.Bind(&unlocked)
}

// epilogue checks for a pending exception, unpacks a reference result, pops
// the frame and returns.
func (g *wrapperGen) epilogue() {
	th := c1api.ThreadOffsets
	pending := g.slowPath(func() {
		g.leaveWrapper()
		g.rtJump(backend.EntryForwardException)
	})
	g.ld(t0, xthread, th.PendingException.I64())
	g.bnez(t0, pending)
	g.leaveWrapper()
	g.ret()
}

func (g *wrapperGen) leaveWrapper() {
	g.resetLastJavaFrame(true)
	if g.m.Sig.Ret.IsReference() {
		var isNull asm.Label
		g.branch(opBEQ, x10, zr, &isNull)
		g.ld(x10, x10, 0)
		g.Bind(&isNull)
	}
	g.ld(t0, xthread, c1api.ThreadOffsets.ActiveHandles.I64())
	g.sw(zr, t0, c1api.JNIHandleBlockTopOffset.I64())
	g.removeFrame(g.layout.Size)
}

// String implements fmt.Stringer.
func (w *NativeWrapper) String() string {
	return fmt.Sprintf("%s %s\n%s", w.Name, w.NativeSig, w.Layout.String())
}
