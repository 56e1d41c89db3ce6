package backend

import (
	"fmt"
	"strings"
)

// Opcode is the operation of an Instruction.
type Opcode uint16

const (
	OpInvalid Opcode = iota
	// OpLabel binds Instruction.Label at this point.
	OpLabel
	OpNop
	// OpMove copies In[0] to Result. Either side may be a register, a stack
	// slot or memory; In[0] may also be a constant.
	OpMove
	// OpAdd and the following arithmetic opcodes compute Result = In[0] op In[1].
	OpAdd
	OpSub
	OpMul
	// OpDiv and OpRem check the divisor for zero when Info is set.
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpUshr
	// OpNeg computes Result = -In[0].
	OpNeg
	// OpCmpBranch jumps to Target if In[0] Cond In[1] holds. Float compares
	// honor UnorderedIsTrue.
	OpCmpBranch
	// OpBranch jumps to Target.
	OpBranch
	// OpCmove computes Result = (In[0] Cond In[1]) ? In[2] : In[3].
	OpCmove
	// OpCmp3 computes Result = -1, 0 or 1 comparing In[0] with In[1]. For
	// floats an unordered compare yields -1 if UnorderedIsTrue, 1 otherwise.
	OpCmp3
	// OpConvert converts In[0] into Result according to Conv.
	OpConvert
	// OpInstanceOf computes Result = In[0] instanceof TypeCheck.Klass.
	OpInstanceOf
	// OpCheckCast throws unless In[0] is null or an instance of TypeCheck.Klass. Result receives In[0].
	OpCheckCast
	// OpStoreCheck throws unless In[0] may be stored into the object array In[1].
	OpStoreCheck
	// OpProfileType records the type of In[0] in a type profile cell.
	OpProfileType
	OpLock
	OpUnlock
	// OpCAS compares the value at address register In[0] with In[1] and
	// stores In[2] on match. Result is 1 on success, 0 otherwise.
	OpCAS
	// OpXadd adds In[1] to the value at In[0]. Result receives the old value.
	OpXadd
	// OpXchg swaps In[1] with the value at In[0]. Result receives the old value.
	OpXchg
	OpAllocObject
	OpAllocArray
	// OpThrow throws the exception oop In[1]. In[0] receives the throwing pc.
	OpThrow
	// OpUnwind continues unwinding with the exception oop In[0].
	OpUnwind
	// OpReturn leaves the method, returning In[0] if present.
	OpReturn
	// OpSafepoint polls for a pending safepoint.
	OpSafepoint
	// OpCallRuntime calls a runtime entry with arguments already in place.
	OpCallRuntime
	// OpCall calls compiled code at Call.Target.
	OpCall
	// OpNullCheck throws a NullPointerException if In[0] is null.
	OpNullCheck
	// OpRangeCheck throws an ArrayIndexOutOfBoundsException unless 0 <= In[0] < In[1].
	OpRangeCheck
	// OpMembar emits a memory barrier ordering Membar.
	OpMembar
	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpInvalid:     "invalid",
	OpLabel:       "label",
	OpNop:         "nop",
	OpMove:        "move",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpDiv:         "div",
	OpRem:         "rem",
	OpAnd:         "and",
	OpOr:          "or",
	OpXor:         "xor",
	OpShl:         "shl",
	OpShr:         "shr",
	OpUshr:        "ushr",
	OpNeg:         "neg",
	OpCmpBranch:   "cmp_branch",
	OpBranch:      "branch",
	OpCmove:       "cmove",
	OpCmp3:        "cmp3",
	OpConvert:     "convert",
	OpInstanceOf:  "instanceof",
	OpCheckCast:   "checkcast",
	OpStoreCheck:  "store_check",
	OpProfileType: "profile_type",
	OpLock:        "lock",
	OpUnlock:      "unlock",
	OpCAS:         "cas",
	OpXadd:        "xadd",
	OpXchg:        "xchg",
	OpAllocObject: "alloc_object",
	OpAllocArray:  "alloc_array",
	OpThrow:       "throw",
	OpUnwind:      "unwind",
	OpReturn:      "return",
	OpSafepoint:   "safepoint",
	OpCallRuntime: "call_runtime",
	OpCall:        "call",
	OpNullCheck:   "null_check",
	OpRangeCheck:  "range_check",
	OpMembar:      "membar",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if o < numOpcodes {
		return opcodeNames[o]
	}
	return fmt.Sprintf("opcode(%d)", uint16(o))
}

// OpcodeFromString is the inverse of Opcode.String.
func OpcodeFromString(s string) (Opcode, bool) {
	for i, n := range opcodeNames {
		if n == s && Opcode(i) != OpInvalid {
			return Opcode(i), true
		}
	}
	return OpInvalid, false
}

// Condition is the predicate of compares.
type Condition byte

const (
	CondEqual Condition = iota
	CondNotEqual
	CondLess
	CondLessEqual
	CondGreater
	CondGreaterEqual
	// CondBelowEqual and CondAboveEqual compare unsigned.
	CondBelowEqual
	CondAboveEqual
	CondAlways
)

var conditionNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge", "be", "ae", "always"}

// String implements fmt.Stringer.
func (c Condition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return fmt.Sprintf("cond(%d)", byte(c))
}

// ConditionFromString is the inverse of Condition.String.
func ConditionFromString(s string) (Condition, bool) {
	for i, n := range conditionNames {
		if n == s {
			return Condition(i), true
		}
	}
	return 0, false
}

// Negate returns the condition which holds exactly when c does not.
func (c Condition) Negate() Condition {
	switch c {
	case CondEqual:
		return CondNotEqual
	case CondNotEqual:
		return CondEqual
	case CondLess:
		return CondGreaterEqual
	case CondLessEqual:
		return CondGreater
	case CondGreater:
		return CondLessEqual
	case CondGreaterEqual:
		return CondLess
	default:
		panic(fmt.Sprintf("BUG: cannot negate %s", c))
	}
}

// Commute returns the condition d such that (a c b) == (b d a).
func (c Condition) Commute() Condition {
	switch c {
	case CondEqual, CondNotEqual, CondAlways:
		return c
	case CondLess:
		return CondGreater
	case CondLessEqual:
		return CondGreaterEqual
	case CondGreater:
		return CondLess
	case CondGreaterEqual:
		return CondLessEqual
	case CondBelowEqual:
		return CondAboveEqual
	case CondAboveEqual:
		return CondBelowEqual
	default:
		panic("BUG")
	}
}

// Conversion is a numeric conversion of the managed language.
type Conversion byte

const (
	ConvI2L Conversion = iota
	ConvL2I
	ConvI2B
	ConvI2C
	ConvI2S
	ConvI2F
	ConvI2D
	ConvL2F
	ConvL2D
	ConvF2D
	ConvD2F
	ConvF2I
	ConvF2L
	ConvD2I
	ConvD2L
)

var conversionNames = [...]string{"i2l", "l2i", "i2b", "i2c", "i2s", "i2f", "i2d", "l2f", "l2d", "f2d", "d2f", "f2i", "f2l", "d2i", "d2l"}

// String implements fmt.Stringer.
func (c Conversion) String() string {
	if int(c) < len(conversionNames) {
		return conversionNames[c]
	}
	return fmt.Sprintf("conv(%d)", byte(c))
}

// ConversionFromString is the inverse of Conversion.String.
func ConversionFromString(s string) (Conversion, bool) {
	for i, n := range conversionNames {
		if n == s {
			return Conversion(i), true
		}
	}
	return 0, false
}

// MemoryOrder is a set of orderings a barrier must enforce.
type MemoryOrder byte

const (
	OrderLoadLoad MemoryOrder = 1 << iota
	OrderStoreStore
	OrderLoadStore
	OrderStoreLoad
	OrderAnyAny = OrderLoadLoad | OrderStoreStore | OrderLoadStore | OrderStoreLoad
)

// TypeCheckInfo is the payload of OpInstanceOf, OpCheckCast and OpStoreCheck.
type TypeCheckInfo struct {
	// Klass is the address of the type descriptor checked against. Unused by OpStoreCheck.
	Klass uint64
	// SuperCheckOffset is the super check offset of Klass.
	SuperCheckOffset int32
	// FastCheck is set when Klass has no subtypes, so a single compare decides.
	FastCheck bool
	// Tmp1, Tmp2 and Tmp3 are scratch registers. Tmp3 may be illegal.
	Tmp1, Tmp2, Tmp3 Operand
	// Profile is set when the check updates a receiver type profile.
	Profile *ProfileSite
}

// ProfileSite is a receiver type profile entry.
type ProfileSite struct {
	// MDP is the address of the profile entry.
	MDP uint64
	// Rows is the number of receiver rows of the entry.
	Rows int
}

// ProfileTypeInfo is the payload of OpProfileType.
type ProfileTypeInfo struct {
	// Cell is the address of the type profile cell.
	Cell uint64
	// Current is the cell value observed at compile time.
	Current uint64
	// ExactKlass is the statically known type of the value, zero if unknown.
	ExactKlass uint64
	// NotNull is set when the value is known to be non-null.
	NotNull bool
	Tmp     Operand
}

// LockInfo is the payload of OpLock and OpUnlock.
type LockInfo struct {
	// Obj holds the object. Lock holds the address of the on-stack lock slot.
	Obj, Lock Operand
	// Hdr and Scratch are temporaries.
	Hdr, Scratch Operand
}

// AllocInfo is the payload of OpAllocObject and OpAllocArray.
type AllocInfo struct {
	// Klass holds the type descriptor of the new object.
	Klass Operand
	// ObjectSize is the instance size in bytes, for OpAllocObject.
	ObjectSize int
	// InitCheck requests a check that the type is fully initialized.
	InitCheck bool
	// Len holds the array length and ElementKind the element kind, for OpAllocArray.
	Len         Operand
	ElementKind ValueKind
	Tmp1, Tmp2  Operand
	Tmp3        Operand
}

// CallInfo is the payload of OpCall and OpCallRuntime.
type CallInfo struct {
	Entry  RuntimeEntry
	Target uint64
}

// CodeEmitInfo is the debug information of a site where execution may stop:
// calls, safepoint polls and implicit exceptions.
type CodeEmitInfo struct {
	// Scope describes the inlined frames at the site, innermost first.
	Scope *ScopeDesc
	// Live is the set of operands live at the site.
	Live []Operand
}

// MonitorSize is the size in bytes of one lock slot of a compiled frame.
const MonitorSize = 16

// ReservedArgumentArea is the size in bytes of the area at the bottom of every
// compiled frame where slow path stubs store the parameters of runtime calls.
const ReservedArgumentArea = 16

// LabelID identifies an OpLabel within a Program.
type LabelID int

// Instruction is one LIR operation. Instructions are immutable once appended to a Program.
type Instruction struct {
	Op     Opcode
	In     []Operand
	Result Operand
	Cond   Condition
	// UnorderedIsTrue is the outcome of float compares involving NaN.
	UnorderedIsTrue bool
	Conv            Conversion
	Membar          MemoryOrder
	Label, Target   LabelID
	Info            *CodeEmitInfo
	TypeCheck       *TypeCheckInfo
	ProfileType     *ProfileTypeInfo
	Lock            *LockInfo
	Alloc           *AllocInfo
	Call            *CallInfo
	// Tmp holds the scratch operands of opcodes without a payload.
	Tmp []Operand
}

// String implements fmt.Stringer.
func (i *Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Op.String())
	switch i.Op {
	case OpLabel:
		fmt.Fprintf(&sb, " L%d", i.Label)
		return sb.String()
	case OpCmpBranch, OpCmove:
		fmt.Fprintf(&sb, " [%s]", i.Cond)
	case OpConvert:
		fmt.Fprintf(&sb, " [%s]", i.Conv)
	}
	for _, in := range i.In {
		sb.WriteByte(' ')
		sb.WriteString(in.String())
	}
	if !i.Result.IsIllegal() {
		sb.WriteString(" -> ")
		sb.WriteString(i.Result.String())
	}
	if i.Op == OpCmpBranch || i.Op == OpBranch {
		fmt.Fprintf(&sb, " L%d", i.Target)
	}
	return sb.String()
}

// Program is the LIR of one compiled method.
type Program struct {
	// Name identifies the method in logs and bailouts.
	Name string
	// FrameSize is the size in bytes of the compiled frame including the saved fp and ra.
	FrameSize int
	// Synchronized is set when the method holds the receiver's monitor in lock slot 0.
	Synchronized bool
	// MonitorOffset is the sp relative byte offset of lock slot 0. Lock slot k
	// is MonitorSize bytes above slot k-1: the displaced header, then the object.
	MonitorOffset int
	// HasFPU is set when the method uses float registers.
	HasFPU       bool
	Instructions []*Instruction
	labels       int
}

// NewProgram returns an empty Program.
func NewProgram(name string, frameSize int) *Program {
	return &Program{Name: name, FrameSize: frameSize}
}

// NewLabel allocates a label id.
func (p *Program) NewLabel() LabelID {
	p.labels++
	return LabelID(p.labels)
}

// NumLabels returns the number of allocated labels. Ids range over [1, NumLabels].
func (p *Program) NumLabels() int { return p.labels }

// Append adds an instruction.
func (p *Program) Append(i *Instruction) {
	if i.Op == OpLabel && int(i.Label) > p.labels {
		p.labels = int(i.Label)
	}
	if (i.Op == OpCmpBranch || i.Op == OpBranch) && int(i.Target) > p.labels {
		p.labels = int(i.Target)
	}
	p.Instructions = append(p.Instructions, i)
}

// Bind appends an OpLabel for l.
func (p *Program) Bind(l LabelID) { p.Append(&Instruction{Op: OpLabel, Label: l}) }

// Op2 appends an instruction computing result from left and right.
func (p *Program) Op2(op Opcode, left, right, result Operand, info *CodeEmitInfo) {
	p.Append(&Instruction{Op: op, In: []Operand{left, right}, Result: result, Info: info})
}

// Move appends a move of src into dst.
func (p *Program) Move(src, dst Operand) {
	p.Append(&Instruction{Op: OpMove, In: []Operand{src}, Result: dst})
}

// CmpBranch appends a conditional branch.
func (p *Program) CmpBranch(cond Condition, left, right Operand, target LabelID) {
	p.Append(&Instruction{Op: OpCmpBranch, Cond: cond, In: []Operand{left, right}, Target: target})
}

// Return appends a return of result, which may be IllegalOperand.
func (p *Program) Return(result Operand) {
	in := []Operand{}
	if !result.IsIllegal() {
		in = append(in, result)
	}
	p.Append(&Instruction{Op: OpReturn, In: in})
}

// String returns a listing of the program.
func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "program %s (frame %d)\n", p.Name, p.FrameSize)
	for _, i := range p.Instructions {
		if i.Op != OpLabel {
			sb.WriteString("  ")
		}
		sb.WriteString(i.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
