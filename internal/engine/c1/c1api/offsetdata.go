package c1api

// Offset represents an offset of a field of a runtime structure.
type Offset int32

// I64 encodes an Offset as int64 for convenience.
func (o Offset) I64() int64 {
	return int64(o)
}

// I32 encodes an Offset as int32 for convenience.
func (o Offset) I32() int32 {
	return int32(o)
}

// ThreadOffsets are the offsets of the per-thread fields which generated code reads and writes.
var ThreadOffsets = ThreadOffsetData{
	ThreadState:         0x1a0,
	PendingException:    0x08,
	ExceptionOop:        0x1b0,
	ExceptionPC:         0x1b8,
	CalleeTarget:        0x1c0,
	JNIEnvironment:      0x1c8,
	ActiveHandles:       0x38,
	LastJavaSP:          0x1d0,
	LastJavaFP:          0x1d8,
	LastJavaPC:          0x1e0,
	SuspendFlags:        0x1e8,
	PollingWord:         0x1f0,
	StackGuardState:     0x1f8,
	TLABTop:             0x60,
	TLABEnd:             0x68,
	VMResult:            0x200,
	PendingJNIException: 0x208,
	VMResult2:           0x210,
	SavedExceptionPC:    0x218,
}

// ThreadOffsetData allows the code generators to get the offsets of the fields
// of a managed thread. This is globally unique.
type ThreadOffsetData struct {
	// ThreadState is the 32-bit thread state word, see ThreadState values.
	ThreadState Offset
	// PendingException holds the exception raised by a runtime call, or zero.
	PendingException Offset
	// ExceptionOop and ExceptionPC carry an in-flight exception between stubs.
	ExceptionOop, ExceptionPC Offset
	// CalleeTarget is where i2c adapters stash the callee method.
	CalleeTarget Offset
	// JNIEnvironment is the embedded JNIEnv passed as first native argument.
	JNIEnvironment Offset
	// ActiveHandles points to the active JNI handle block.
	ActiveHandles Offset
	// LastJavaSP, LastJavaFP and LastJavaPC form the frame anchor.
	LastJavaSP, LastJavaFP, LastJavaPC Offset
	// SuspendFlags is non-zero when the thread must be suspended on return from native.
	SuspendFlags Offset
	// PollingWord is the thread-local safepoint poll word. Bit 0 set requests a safepoint.
	PollingWord Offset
	// StackGuardState is a byte, see StackGuardYellowReservedDisabled.
	StackGuardState Offset
	// TLABTop and TLABEnd delimit the thread local allocation buffer.
	TLABTop, TLABEnd Offset
	// VMResult receives oop results of runtime calls, VMResult2 metadata results.
	VMResult, VMResult2 Offset
	// SavedExceptionPC is the pc of the poll which sent the thread to the safepoint handler.
	SavedExceptionPC Offset
	// PendingJNIException is cleared after native calls when checking JNI usage.
	PendingJNIException Offset
}

// ThreadState values stored into ThreadOffsetData.ThreadState.
type ThreadState int32

const (
	ThreadInNative      ThreadState = 4
	ThreadInNativeTrans ThreadState = 5
	ThreadInVM          ThreadState = 6
	ThreadInJava        ThreadState = 8
)

// StackGuardYellowReservedDisabled is the stack guard state after the yellow zone was disabled.
const StackGuardYellowReservedDisabled = 2

// SafepointPollBit is the bit of the polling word which requests a stop.
const SafepointPollBit = 1

// ObjectLayout describes object headers.
var ObjectLayout = ObjectLayoutData{
	MarkOffset:               0,
	KlassOffset:              8,
	ArrayLengthOffset:        16,
	ArrayLengthOffsetNarrow:  12,
	InstanceHeaderSize:       16,
	InstanceHeaderSizeNarrow: 12,
	MinObjAlignment:          8,
}

// ArrayBaseOffset returns the offset of element 0 of arrays: the header rounded up to a word.
func (d *ObjectLayoutData) ArrayBaseOffset(compressedKlass bool) int32 {
	lengthOffset := d.ArrayLengthOffset
	if compressedKlass {
		lengthOffset = d.ArrayLengthOffsetNarrow
	}
	return (lengthOffset.I32() + 4 + 7) &^ 7
}

// ArrayLengthOffsetFor returns the offset of the length field.
func (d *ObjectLayoutData) ArrayLengthOffsetFor(compressedKlass bool) Offset {
	if compressedKlass {
		return d.ArrayLengthOffsetNarrow
	}
	return d.ArrayLengthOffset
}

// MaxArrayAllocationLength is the largest length the allocation fast path accepts.
const MaxArrayAllocationLength = 0x00ffffff

// MarkPrototype is the mark word of a freshly allocated, unlocked object.
const MarkPrototype = 0x1

// ObjectLayoutData describes where the header words live in an object.
type ObjectLayoutData struct {
	MarkOffset  Offset
	KlassOffset Offset
	// ArrayLengthOffset is used with full klass pointers, ArrayLengthOffsetNarrow with compressed ones.
	ArrayLengthOffset, ArrayLengthOffsetNarrow Offset
	// InstanceHeaderSize is the size of mark+klass in bytes.
	InstanceHeaderSize, InstanceHeaderSizeNarrow int32
	MinObjAlignment                              int32
}

// Mark word lock bits.
const (
	MarkLockMask      = 0x3
	MarkUnlockedValue = 0x1
	MarkMonitorValue  = 0x2
	MarkBiasedPattern = 0x5
	MarkBiasedMask    = 0x7
	// MarkBiasedLockBit tells biased marks from unlocked ones.
	MarkBiasedLockBit = 0x4
)

// KlassOffsets are the offsets inside a type descriptor.
var KlassOffsets = KlassOffsetData{
	LayoutHelper:        0x08,
	SuperCheckOffset:    0x0c,
	SecondarySuperCache: 0x20,
	SecondarySupers:     0x28,
	PrimarySupers:       0x30,
	JavaMirror:          0x70,
	InitState:          0x120,
	ElementKlass:        0xd8,
	PrototypeHeader:     0xa8,
}

// KlassOffsetData describes the fields of a type descriptor used by type checks and allocation.
type KlassOffsetData struct {
	LayoutHelper Offset
	// SuperCheckOffset holds the offset, relative to the descriptor, of the slot a
	// fast subtype check must compare against.
	SuperCheckOffset Offset
	// SecondarySuperCache caches the last secondary super hit.
	SecondarySuperCache Offset
	// SecondarySupers points to the array of secondary supers.
	SecondarySupers Offset
	// PrimarySupers is the start of the fixed-depth primary supers display.
	PrimarySupers Offset
	JavaMirror    Offset
	InitState     Offset
	// ElementKlass is valid for object array descriptors.
	ElementKlass    Offset
	PrototypeHeader Offset
}

// Layout of the secondary supers array: a 32-bit length, then the type
// descriptor pointers.
const (
	SecondarySupersLengthOffset Offset = 0
	SecondarySupersDataOffset   Offset = 8
)

// PrimarySuperLimit is the depth of the primary supers display.
const PrimarySuperLimit = 8

// KlassFullyInitialized is the value of the init state byte once static initialization finished.
const KlassFullyInitialized = 4

// MethodOffsets are the offsets inside a method descriptor.
var MethodOffsets = MethodOffsetData{
	Code:             0x48,
	FromCompiled:     0x38,
	InterpreterEntry: 0x40,
	ConstMethod:      0x08,
}

// MethodOffsetData describes the fields of a method descriptor used by adapters.
type MethodOffsetData struct {
	// Code is the installed compiled code or zero.
	Code Offset
	// FromCompiled is the entry used by compiled callers.
	FromCompiled Offset
	// InterpreterEntry is the interpreter entry point.
	InterpreterEntry Offset
	ConstMethod      Offset
}

// ICHolderOffsets describe the compiled inline cache holder loaded by unverified entries.
var ICHolderOffsets = ICHolderOffsetData{HolderMetadata: 0, HolderKlass: 8}

// ICHolderOffsetData describes a compiled inline cache holder.
type ICHolderOffsetData struct {
	HolderMetadata, HolderKlass Offset
}

// JNIHandleBlockTopOffset is the offset of the top index in a JNI handle block.
const JNIHandleBlockTopOffset Offset = 0x100

// BasicLockDisplacedHeaderOffset is the offset of the displaced mark word in an on-stack lock.
const BasicLockDisplacedHeaderOffset Offset = 0

// Profiling layout of a method data entry.
const (
	// ProfileFlagsOffset is the byte holding the data flags, bit 0 records a null seen.
	ProfileFlagsOffset Offset = 1
	// ProfileCountOffset is the call/check counter of a counter entry.
	ProfileCountOffset Offset = 8
	// ProfileFirstRowOffset is the first receiver row of a receiver type entry.
	ProfileFirstRowOffset Offset = 16
	// ProfileRowSize is the size of one (receiver, count) row.
	ProfileRowSize = 16
	// ProfileNullSeenByte is or-ed into the flags byte when a null receiver is observed.
	ProfileNullSeenByte = 1
	// ProfileCounterIncrement is added to a counter per observation.
	ProfileCounterIncrement = 1
)

// Type profile cell bits. A cell holds a type descriptor address or-ed with these flags.
const (
	TypeEntryNullSeen  = 1
	TypeEntryUnknown   = 2
	TypeEntryKlassMask = ^int64(3)
)
