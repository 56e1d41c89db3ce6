package riscv64

import (
	"fmt"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/c1api"
)

// CompiledMethod is the code of one compiled method.
type CompiledMethod struct {
	*CodeBlob
	// DebugSites are the pcs where execution may stop, in code order.
	DebugSites []DebugSite
}

// DebugSite is a pc where the runtime may inspect the frame: the return
// address of a call, a safepoint poll or the pc of a throw.
type DebugSite struct {
	Offset int
	Info   *backend.CodeEmitInfo
	OopMap *backend.OopMap
}

// SiteAt returns the debug site at off.
func (c *CompiledMethod) SiteAt(off int) (DebugSite, bool) {
	for _, s := range c.DebugSites {
		if s.Offset == off {
			return s, true
		}
	}
	return DebugSite{}, false
}

// maxStubSize bounds the size of one out-of-line stub.
const maxStubSize = 128

// codeStub is an out-of-line slow path emitted after the main code.
type codeStub interface {
	name() string
	emit(l *lowering)
}

// lowering is the state of one Compile call.
type lowering struct {
	*unit
	prog       *backend.Program
	labels     []asm.Label
	stubs      []codeStub
	sites      []DebugSite
	frameSlots int
	// lastSite is the offset of the last debug site, -1 if none.
	lastSite int
	unwind   asm.Label
	// needsUnwind is set once a branch to the unwind handler was emitted.
	needsUnwind bool
}

// Compile lowers prog into machine code to be installed at base, which may
// be zero when unknown. Running out of buffer space returns a *c1api.Bailout.
// Malformed LIR panics with a *c1api.PreconditionError.
func (b *Backend) Compile(prog *backend.Program, base uint64) (*CompiledMethod, error) {
	c1api.Check(prog.FrameSize%backend.StackAlignment == 0, "frame size %d of %s is not aligned", prog.FrameSize, prog.Name)
	c1api.Check(prog.FrameSize >= 16+backend.ReservedArgumentArea, "frame size %d of %s has no room for fp, ra and stub arguments", prog.FrameSize, prog.Name)
	if c1api.PrintLIR {
		fmt.Println(prog.String())
	}

	l := &lowering{
		unit:       b.newUnit(prog.Name, base, b.opts.CodeBufferSize),
		prog:       prog,
		labels:     make([]asm.Label, prog.NumLabels()+1),
		frameSlots: prog.FrameSize / backend.StackSlotSize,
		lastSite:   -1,
	}
	l.markEntry(EntryVerified)
	l.buildFrame(prog.FrameSize)
	l.markEntry(EntryFrameComplete)
	for _, ins := range prog.Instructions {
		if l.buf.Failed() {
			break
		}
		l.lowerInstr(ins)
	}
	l.emitStubs()

	if !l.buf.Failed() {
		for id := range l.labels {
			c1api.Check(!l.labels[id].HasPendingUses(), "label L%d of %s is referenced but never bound", id, prog.Name)
		}
	}
	blob, err := b.finish(l.unit, prog.FrameSize)
	if err != nil {
		return nil, err
	}
	return &CompiledMethod{CodeBlob: blob, DebugSites: l.sites}, nil
}

// buildFrame allocates a frame of size bytes, saves ra and fp at its top and
// points fp at the saved fp.
func (m *MacroAssembler) buildFrame(size int) {
	sz := int64(size)
	m.addImm(sp, sp, -sz, t0)
	m.storeOff(opSD, ra, sp, sz-8, t0)
	m.storeOff(opSD, fp, sp, sz-16, t0)
	m.addImm(fp, sp, sz-16, t0)
}

// removeFrame pops the frame built by buildFrame.
func (m *MacroAssembler) removeFrame(size int) {
	sz := int64(size)
	m.loadOff(opLD, ra, sp, sz-8, t0)
	m.loadOff(opLD, fp, sp, sz-16, t0)
	m.addImm(sp, sp, sz, t0)
}

func (l *lowering) label(id backend.LabelID) *asm.Label {
	c1api.Check(id > 0 && int(id) < len(l.labels), "unknown label L%d", id)
	return &l.labels[id]
}

func (l *lowering) addStub(s codeStub) { l.stubs = append(l.stubs, s) }

func (l *lowering) emitStubs() {
	for i := 0; i < len(l.stubs); i++ {
		s := l.stubs[i]
		if !l.buf.StartStub(s.name(), maxStubSize) {
			return
		}
		l.BlockComment(s.name())
		s.emit(l)
		l.buf.EndStub()
	}
	if l.needsUnwind && l.buf.StartStub("unwind_handler", 2*maxStubSize) {
		l.emitUnwindHandler()
		l.buf.EndStub()
	}
}

// ensureUniquePC pads with a nop when a debug site was already recorded at
// the current offset.
func (l *lowering) ensureUniquePC() {
	if l.lastSite == l.Offset() {
		l.nop()
	}
}

// addSite records a debug site with its oop map at the current offset.
func (l *lowering) addSite(info *backend.CodeEmitInfo) { l.addSiteAt(l.Offset(), info) }

func (l *lowering) addSiteAt(off int, info *backend.CodeEmitInfo, extraOops ...backend.Operand) {
	if info == nil || l.buf.Failed() {
		return
	}
	live := info.Live
	if len(extraOops) > 0 {
		live = append(append([]backend.Operand(nil), info.Live...), extraOops...)
	}
	om := backend.BuildOopMap(live, l.frameSlots)
	l.oopMaps.Add(off, om)
	l.sites = append(l.sites, DebugSite{Offset: off, Info: info, OopMap: om})
	l.lastSite = off
}

// checkOperands rejects operands naming registers reserved for the code
// generator, and results written to zr.
func checkOperands(ins *backend.Instruction) {
	if !c1api.AssertionsEnabled {
		return
	}
	check := func(o backend.Operand, what string) {
		switch o.Kind() {
		case backend.OperandRegister, backend.OperandFloatRegister:
			r := o.Reg()
			c1api.Check(r == zr || !isReservedReg(r), "%s of %s uses reserved register %s", what, ins.Op, RegName(r))
		case backend.OperandAddress:
			a := o.Addr()
			c1api.Check(a.Base == sp || a.Base == xthread || !isReservedReg(a.Base), "%s of %s uses reserved base %s", what, ins.Op, RegName(a.Base))
			if a.HasIndex() {
				c1api.Check(!isReservedReg(a.Index), "%s of %s uses reserved index %s", what, ins.Op, RegName(a.Index))
			}
		}
	}
	for _, in := range ins.In {
		check(in, "input")
	}
	for _, t := range ins.Tmp {
		check(t, "temporary")
	}
	if ins.Result.IsRegister() {
		c1api.Check(ins.Result.Reg() != zr, "result of %s written to zr", ins.Op)
	}
	check(ins.Result, "result")
}

func (l *lowering) lowerInstr(ins *backend.Instruction) {
	checkOperands(ins)
	switch ins.Op {
	case backend.OpLabel:
		l.Bind(l.label(ins.Label))
	case backend.OpNop:
		l.nop()
	case backend.OpMove:
		l.move(ins.In[0], ins.Result)
	case backend.OpAdd, backend.OpSub, backend.OpMul, backend.OpDiv, backend.OpRem,
		backend.OpAnd, backend.OpOr, backend.OpXor:
		l.lowerArith(ins)
	case backend.OpShl, backend.OpShr, backend.OpUshr:
		l.lowerShift(ins)
	case backend.OpNeg:
		l.lowerNeg(ins)
	case backend.OpCmpBranch:
		l.lowerCmpBranch(ins)
	case backend.OpBranch:
		l.j(l.label(ins.Target))
	case backend.OpCmove:
		l.lowerCmove(ins)
	case backend.OpCmp3:
		l.lowerCmp3(ins)
	case backend.OpConvert:
		l.lowerConvert(ins)
	case backend.OpInstanceOf:
		l.lowerInstanceOf(ins)
	case backend.OpCheckCast:
		l.lowerCheckCast(ins)
	case backend.OpStoreCheck:
		l.lowerStoreCheck(ins)
	case backend.OpProfileType:
		l.lowerProfileType(ins)
	case backend.OpLock:
		l.lowerLock(ins)
	case backend.OpUnlock:
		l.lowerUnlock(ins)
	case backend.OpCAS:
		l.lowerCAS(ins)
	case backend.OpXadd, backend.OpXchg:
		l.lowerAtomicRMW(ins)
	case backend.OpAllocObject:
		l.lowerAllocObject(ins)
	case backend.OpAllocArray:
		l.lowerAllocArray(ins)
	case backend.OpThrow:
		l.lowerThrow(ins)
	case backend.OpUnwind:
		l.lowerUnwind(ins)
	case backend.OpReturn:
		l.lowerReturn(ins)
	case backend.OpSafepoint:
		l.lowerSafepoint(ins)
	case backend.OpCallRuntime:
		l.lowerCallRuntime(ins)
	case backend.OpCall:
		l.lowerCall(ins)
	case backend.OpNullCheck:
		l.lowerNullCheck(ins)
	case backend.OpRangeCheck:
		l.lowerRangeCheck(ins)
	case backend.OpMembar:
		l.membar(ins.Membar)
	default:
		panic(fmt.Sprintf("BUG: cannot lower %s", ins.Op))
	}
}

// reg returns the register of o, which must be an integer register operand.
func reg(o backend.Operand, what string) backend.RealReg {
	c1api.Check(o.IsCPURegister(), "%s must be an integer register, got %s", what, o)
	return o.Reg()
}

// freg returns the register of o, which must be a float register operand.
func freg(o backend.Operand, what string) backend.RealReg {
	c1api.Check(o.IsFloatRegister(), "%s must be a float register, got %s", what, o)
	return o.Reg()
}

// distinct panics when two of regs are the same register.
func distinct(what string, regs ...backend.RealReg) {
	for i := range regs {
		for j := i + 1; j < len(regs); j++ {
			c1api.Check(regs[i] != regs[j], "%s: registers %s and %s alias", what, RegName(regs[i]), RegName(regs[j]))
		}
	}
}
