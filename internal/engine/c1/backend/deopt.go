package backend

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MethodInfo describes a method as far as its interpreter frame is concerned.
type MethodInfo struct {
	Name string
	// Address is the address of the method descriptor.
	Address uint64
	// CodeBase is the address of the first bytecode.
	CodeBase uint64
	// Mirror is the class mirror stored in interpreter frames, zero if not needed.
	Mirror uint64

	MaxLocals, MaxStack, SizeOfParameters int
}

// ScopeValue is the value of one local, expression stack element or monitor
// owner of a scope. Longs and doubles take two entries, the second one being
// KindVoid.
type ScopeValue struct {
	Kind ValueKind
	// Loc is where the compiled frame holds the value. Stack locations are
	// relative to the compiled frame's stack pointer. Invalid for constants.
	Loc Location
	// Const is the value when Loc is invalid.
	Const uint64
}

// LocationValue returns a value held at loc.
func LocationValue(k ValueKind, loc Location) ScopeValue { return ScopeValue{Kind: k, Loc: loc} }

// ConstantValue returns a constant value.
func ConstantValue(k ValueKind, bits uint64) ScopeValue { return ScopeValue{Kind: k, Const: bits} }

// VoidValue is the second half of a long or double, or a dead slot.
var VoidValue = ScopeValue{Kind: KindVoid}

// IsConstant returns true if v is not held in the compiled frame.
func (v ScopeValue) IsConstant() bool { return !v.Loc.IsValid() }

// String implements fmt.Stringer.
func (v ScopeValue) String() string {
	switch {
	case v.Kind == KindVoid:
		return "void"
	case v.IsConstant():
		return fmt.Sprintf("%s:#%#x", v.Kind, v.Const)
	default:
		return fmt.Sprintf("%s:%s", v.Kind, v.Loc)
	}
}

// MonitorValue is a monitor held by a scope.
type MonitorValue struct {
	Owner ScopeValue
	// BasicLock is the stack location of the lock slot in the compiled frame.
	BasicLock Location
}

// ScopeDesc describes one inlined level at a deoptimization point.
type ScopeDesc struct {
	Method *MethodInfo
	BCI    int
	// Reexecute is set when the interpreter must execute the bytecode at BCI again.
	Reexecute   bool
	Locals      []ScopeValue
	Expressions []ScopeValue
	Monitors    []MonitorValue
	// Caller is the next outer scope, nil for the outermost one.
	Caller *ScopeDesc
}

// Depth returns the number of scopes in the chain starting at s.
func (s *ScopeDesc) Depth() int {
	n := 0
	for c := s; c != nil; c = c.Caller {
		n++
	}
	return n
}

// InterpreterFrameShape is the interpreter's frame convention: word offsets
// from the frame pointer of the fixed slots.
type InterpreterFrameShape struct {
	SenderSP, LastSP, Method, Mirror, MDP, Cache, Locals, BCP, InitialSP int
	// SenderSPFromFP is the word offset of the sender's stack pointer.
	SenderSPFromFP int
	// MonitorWords is the size of one monitor.
	MonitorWords int
}

// OverheadWords is the number of words taken by the fixed part of a frame,
// including the saved frame pointer and return address.
func (s *InterpreterFrameShape) OverheadWords() int { return s.SenderSPFromFP - s.InitialSP }

// FrameWords returns the size in words of an interpreter frame for m holding
// monitors monitors and making room for the locals of callee, which may be nil.
func (s *InterpreterFrameShape) FrameWords(m *MethodInfo, monitors int, callee *MethodInfo) int {
	words := s.OverheadWords() + monitors*s.MonitorWords + m.MaxStack
	if callee != nil {
		words += callee.MaxLocals
	}
	return alignUp(words, 2)
}

// LocalsPointer returns the fp relative byte offset of local 0 for a method with maxLocals locals.
func (s *InterpreterFrameShape) LocalsPointer(maxLocals int) int64 {
	return int64(s.SenderSPFromFP+maxLocals-1) * 8
}

// LocalAddr returns the address of local i given the locals pointer.
func (s *InterpreterFrameShape) LocalAddr(locals uint64, i int) uint64 { return locals - uint64(i)*8 }

// MonitorBottom returns the fp relative byte offset of the end of the monitor block.
func (s *InterpreterFrameShape) MonitorBottom() int64 { return int64(s.InitialSP) * 8 }

// MonitorOffset returns the fp relative byte offset of monitor k.
func (s *InterpreterFrameShape) MonitorOffset(k int) int64 {
	return s.MonitorBottom() - int64(k+1)*int64(s.MonitorWords)*8
}

// ExpressionAddr returns the address of expression stack element j, counted
// from the bottom, given the top of the monitor block.
func (s *InterpreterFrameShape) ExpressionAddr(monitorTop uint64, j int) uint64 {
	return monitorTop - uint64(j+1)*8
}

// UnpackKind is the reason a frame is deoptimized. The values are shared with the runtime.
type UnpackKind int32

const (
	UnpackDeopt        UnpackKind = 0
	UnpackException    UnpackKind = 1
	UnpackUncommonTrap UnpackKind = 2
	UnpackReexecute    UnpackKind = 3
)

// String implements fmt.Stringer.
func (k UnpackKind) String() string {
	switch k {
	case UnpackDeopt:
		return "deopt"
	case UnpackException:
		return "exception"
	case UnpackUncommonTrap:
		return "uncommon_trap"
	case UnpackReexecute:
		return "reexecute"
	default:
		return fmt.Sprintf("unpack(%d)", int32(k))
	}
}

// SlotSourceKind is the kind of SlotSource.
type SlotSourceKind byte

const (
	// SourceValue stores a captured value.
	SourceValue SlotSourceKind = iota
	// SourceConst stores a constant.
	SourceConst
	// SourceFrameAddress stores the frame pointer plus an offset.
	SourceFrameAddress
)

// SlotSource is what a SlotStore writes.
type SlotSource struct {
	Kind SlotSourceKind
	// Value is the index into UnrollBlock.Values for SourceValue.
	Value int
	// Bits is the constant for SourceConst, the fp offset for SourceFrameAddress.
	Bits int64
}

// SlotStore is one word written into an interpreter frame at Offset from its frame pointer.
type SlotStore struct {
	Offset int64
	Source SlotSource
}

// FramePlan is how one skeletal interpreter frame is filled.
type FramePlan struct {
	Method *MethodInfo
	BCI    int
	// Size is the size of the frame in bytes, including fp and ra.
	Size   int
	Stores []SlotStore
}

// UnrollBlock is everything needed to replace one compiled frame by
// interpreter frames, one per inlined scope.
type UnrollBlock struct {
	Kind UnpackKind
	// SizeOfDeoptimizedFrame is the compiled frame size in bytes, including fp and ra.
	SizeOfDeoptimizedFrame int
	// CallerAdjustment extends the caller's frame to hold the outermost frame's extra locals.
	CallerAdjustment int
	// FrameSizes are in push order, outermost first.
	FrameSizes []int64
	// FramePCs has one more entry than FrameSizes. FramePCs[i] is the return
	// address pushed with frame i; the last one is where the innermost frame
	// resumes once unpacking completes.
	FramePCs []uint64
	// Values are captured from the compiled frame before it is popped.
	Values []ScopeValue
	// Frames are in unpack order, innermost first.
	Frames []FramePlan
	// CaptureRoutine and FillRoutine are the addresses of the code copying
	// Values out of the compiled frame and into the interpreter frames.
	CaptureRoutine, FillRoutine uint64
}

// NumberOfFrames returns the number of interpreter frames.
func (u *UnrollBlock) NumberOfFrames() int { return len(u.FrameSizes) }

// TotalFrameSizes returns the sum of FrameSizes.
func (u *UnrollBlock) TotalFrameSizes() int64 {
	var t int64
	for _, s := range u.FrameSizes {
		t += s
	}
	return t
}

// DeoptRequest is the input of BuildUnrollBlock.
type DeoptRequest struct {
	// Scope is the innermost scope at the deoptimization point.
	Scope *ScopeDesc
	Kind  UnpackKind
	// CompiledFrameSize is the size in bytes of the compiled frame, including fp and ra.
	CompiledFrameSize int
	// CallerIsCompiled is set when the caller of the outermost scope is compiled code.
	CallerIsCompiled bool
	// CallerPC is the return address into the caller of the outermost scope.
	CallerPC uint64
	// InterpreterReturnPC is where an interpreter frame resumes after its callee returns.
	InterpreterReturnPC uint64
	// ContinuationPC is where the innermost interpreter frame resumes.
	ContinuationPC uint64
}

// LastFrameAdjust returns the bytes by which the caller of a frame with
// calleeLocals locals, of which calleeParams were passed by the caller, must
// be extended.
func LastFrameAdjust(calleeParams, calleeLocals int) int {
	if calleeLocals <= calleeParams {
		return 0
	}
	return alignUp(calleeLocals-calleeParams, 2) * 8
}

// BuildUnrollBlock computes the interpreter frames replacing a compiled frame.
func BuildUnrollBlock(req *DeoptRequest, shape *InterpreterFrameShape) (*UnrollBlock, error) {
	if req.Scope == nil {
		return nil, fmt.Errorf("deoptimization without scope")
	}
	if req.CompiledFrameSize%StackAlignment != 0 {
		return nil, fmt.Errorf("compiled frame size %d is not aligned", req.CompiledFrameSize)
	}
	u := &UnrollBlock{Kind: req.Kind, SizeOfDeoptimizedFrame: req.CompiledFrameSize}

	var scopes []*ScopeDesc
	for s := req.Scope; s != nil; s = s.Caller {
		if err := validateScope(s); err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	n := len(scopes)

	outer := scopes[n-1].Method
	if req.CallerIsCompiled {
		u.CallerAdjustment = LastFrameAdjust(0, outer.MaxLocals)
	} else {
		u.CallerAdjustment = LastFrameAdjust(outer.SizeOfParameters, outer.MaxLocals)
	}

	u.FrameSizes = make([]int64, n)
	u.FramePCs = make([]uint64, n+1)
	u.FramePCs[0] = req.CallerPC
	for i := 1; i < n; i++ {
		u.FramePCs[i] = req.InterpreterReturnPC
	}
	u.FramePCs[n] = req.ContinuationPC

	for k, s := range scopes {
		var callee *MethodInfo
		if k > 0 {
			callee = scopes[k-1].Method
		}
		plan := FramePlan{Method: s.Method, BCI: s.BCI}
		plan.Size = shape.FrameWords(s.Method, len(s.Monitors), callee) * 8
		u.FrameSizes[n-1-k] = int64(plan.Size)
		u.planFrame(&plan, s, shape)
		u.Frames = append(u.Frames, plan)
	}
	return u, nil
}

func validateScope(s *ScopeDesc) error {
	m := s.Method
	if m == nil {
		return fmt.Errorf("scope at bci %d has no method", s.BCI)
	}
	if len(s.Locals) > m.MaxLocals {
		return fmt.Errorf("%s: %d locals exceed max locals %d", m.Name, len(s.Locals), m.MaxLocals)
	}
	if len(s.Expressions) > m.MaxStack {
		return fmt.Errorf("%s: %d expressions exceed max stack %d", m.Name, len(s.Expressions), m.MaxStack)
	}
	if m.SizeOfParameters > m.MaxLocals {
		return fmt.Errorf("%s: parameters exceed locals", m.Name)
	}
	for _, vs := range [][]ScopeValue{s.Locals, s.Expressions} {
		for i, v := range vs {
			if v.Kind.IsDoubleWord() && (i+1 >= len(vs) || vs[i+1].Kind != KindVoid) {
				return fmt.Errorf("%s: %s at %d is not followed by void", m.Name, v.Kind, i)
			}
		}
	}
	return nil
}

func (u *UnrollBlock) capture(v ScopeValue) SlotSource {
	u.Values = append(u.Values, v)
	return SlotSource{Kind: SourceValue, Value: len(u.Values) - 1}
}

func (u *UnrollBlock) planFrame(plan *FramePlan, s *ScopeDesc, shape *InterpreterFrameShape) {
	m := s.Method
	store := func(wordOff int, src SlotSource) {
		plan.Stores = append(plan.Stores, SlotStore{Offset: int64(wordOff) * 8, Source: src})
	}
	monitorTop := shape.MonitorBottom() - int64(len(s.Monitors)*shape.MonitorWords*8)
	localsPtr := shape.LocalsPointer(m.MaxLocals)

	store(shape.Method, SlotSource{Kind: SourceConst, Bits: int64(m.Address)})
	store(shape.Mirror, SlotSource{Kind: SourceConst, Bits: int64(m.Mirror)})
	store(shape.MDP, SlotSource{Kind: SourceConst})
	store(shape.Cache, SlotSource{Kind: SourceConst})
	store(shape.Locals, SlotSource{Kind: SourceFrameAddress, Bits: localsPtr})
	store(shape.BCP, SlotSource{Kind: SourceConst, Bits: int64(m.CodeBase) + int64(s.BCI)})
	store(shape.InitialSP, SlotSource{Kind: SourceFrameAddress, Bits: monitorTop})

	// A long or double is stored in the slot of its second half.
	for i, v := range s.Locals {
		if v.Kind == KindVoid {
			continue
		}
		idx := i
		if v.Kind.IsDoubleWord() {
			idx++
		}
		plan.Stores = append(plan.Stores, SlotStore{Offset: localsPtr - int64(idx)*8, Source: u.capture(v)})
	}
	for j, v := range s.Expressions {
		if v.Kind == KindVoid {
			continue
		}
		idx := j
		if v.Kind.IsDoubleWord() {
			idx++
		}
		plan.Stores = append(plan.Stores, SlotStore{Offset: monitorTop - int64(idx+1)*8, Source: u.capture(v)})
	}
	for k, mon := range s.Monitors {
		off := shape.MonitorOffset(k)
		plan.Stores = append(plan.Stores,
			SlotStore{Offset: off, Source: u.capture(LocationValue(KindAddress, mon.BasicLock))},
			SlotStore{Offset: off + 8, Source: u.capture(mon.Owner)},
		)
	}
}

// UnrollBlockOffsets are the byte offsets of the fields of an encoded UnrollBlock.
var UnrollBlockOffsets = struct {
	SizeOfDeoptimizedFrame, CallerAdjustment, NumberOfFrames, TotalFrameSizes int32
	FrameSizes, FramePCs, UnpackKind, Values                                  int32
	CaptureRoutine, FillRoutine                                               int32
	HeaderSize                                                                int32
}{
	SizeOfDeoptimizedFrame: 0,
	CallerAdjustment:       4,
	NumberOfFrames:         8,
	TotalFrameSizes:        12,
	FrameSizes:             16,
	FramePCs:               24,
	UnpackKind:             32,
	Values:                 40,
	CaptureRoutine:         48,
	FillRoutine:            56,
	HeaderSize:             64,
}

// Encode returns the memory image of u as read by the deoptimization blob
// when placed at base. The header is followed by the frame sizes, the frame
// pcs and room for the captured values.
func (u *UnrollBlock) Encode(base uint64) []byte {
	off := UnrollBlockOffsets
	n := u.NumberOfFrames()
	sizesAt := int(off.HeaderSize)
	pcsAt := sizesAt + n*8
	valuesAt := pcsAt + (n+1)*8
	buf := make([]byte, valuesAt+len(u.Values)*8)

	le := binary.LittleEndian
	le.PutUint32(buf[off.SizeOfDeoptimizedFrame:], uint32(u.SizeOfDeoptimizedFrame))
	le.PutUint32(buf[off.CallerAdjustment:], uint32(u.CallerAdjustment))
	le.PutUint32(buf[off.NumberOfFrames:], uint32(n))
	le.PutUint32(buf[off.TotalFrameSizes:], uint32(u.TotalFrameSizes()))
	le.PutUint64(buf[off.FrameSizes:], base+uint64(sizesAt))
	le.PutUint64(buf[off.FramePCs:], base+uint64(pcsAt))
	le.PutUint32(buf[off.UnpackKind:], uint32(u.Kind))
	le.PutUint64(buf[off.Values:], base+uint64(valuesAt))
	le.PutUint64(buf[off.CaptureRoutine:], u.CaptureRoutine)
	le.PutUint64(buf[off.FillRoutine:], u.FillRoutine)
	for i, s := range u.FrameSizes {
		le.PutUint64(buf[sizesAt+i*8:], uint64(s))
	}
	for i, pc := range u.FramePCs {
		le.PutUint64(buf[pcsAt+i*8:], pc)
	}
	return buf
}

// ValuesOffset returns the offset of the captured values in the image returned by Encode.
func (u *UnrollBlock) ValuesOffset() int {
	n := u.NumberOfFrames()
	return int(UnrollBlockOffsets.HeaderSize) + n*8 + (n+1)*8
}

// String implements fmt.Stringer.
func (u *UnrollBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "UnrollBlock{kind=%s deopt_frame=%d caller_adjust=%d frames=%d}\n",
		u.Kind, u.SizeOfDeoptimizedFrame, u.CallerAdjustment, u.NumberOfFrames())
	for i, f := range u.Frames {
		fmt.Fprintf(&sb, "  #%d %s@%d size=%d stores=%d\n", i, f.Method.Name, f.BCI, f.Size, len(f.Stores))
	}
	return sb.String()
}
