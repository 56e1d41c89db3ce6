package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// Integer registers.
const (
	x0 backend.RealReg = iota
	x1
	x2
	x3
	x4
	x5
	x6
	x7
	x8
	x9
	x10
	x11
	x12
	x13
	x14
	x15
	x16
	x17
	x18
	x19
	x20
	x21
	x22
	x23
	x24
	x25
	x26
	x27
	x28
	x29
	x30
	x31
)

// Float registers.
const (
	f0 backend.RealReg = 32 + iota
	f1
	f2
	f3
	f4
	f5
	f6
	f7
	f8
	f9
	f10
	f11
	f12
	f13
	f14
	f15
	f16
	f17
	f18
	f19
	f20
	f21
	f22
	f23
	f24
	f25
	f26
	f27
	f28
	f29
	f30
	f31
)

// Registers with a fixed role.
const (
	zr = x0
	ra = x1
	sp = x2
	// t0 and t1 are the scratch registers of the macro assembler. LIR never names them.
	t0 = x5
	t1 = x6
	t2 = x7
	fp = x8
	// moveScratch breaks cycles when shuffling arguments.
	moveScratch = x9

	// esp is the interpreter's expression stack pointer.
	esp       = x20
	xbcp      = x22
	xthread   = x23
	xlocals   = x24
	xcpool    = x26
	xheapbase = x27
	// xmethod holds the callee method descriptor on calls into adapters and the interpreter.
	xmethod = x31
)

// Native argument registers.
var (
	cArgRegs  = []backend.RealReg{x10, x11, x12, x13, x14, x15, x16, x17}
	cFArgRegs = []backend.RealReg{f10, f11, f12, f13, f14, f15, f16, f17}
)

// Managed argument registers. The managed convention is the native one
// shifted by one integer register, so that non-static native methods with
// few arguments need no shuffling when the environment pointer is inserted.
var (
	jArgRegs  = []backend.RealReg{x11, x12, x13, x14, x15, x16, x17, x10}
	jFArgRegs = []backend.RealReg{f10, f11, f12, f13, f14, f15, f16, f17}
)

// JavaConvention is the managed calling convention between compiled methods,
// adapters and the interpreter.
var JavaConvention = &backend.CallingConvention{
	Name:        "java",
	Kind:        backend.ConventionManaged,
	IntArgs:     jArgRegs,
	FloatArgs:   jFArgRegs,
	IntResult:   x10,
	FloatResult: f10,
	// Saved fp and ra.
	IncomingBias: 4,
}

// NativeConvention is the platform C calling convention.
var NativeConvention = &backend.CallingConvention{
	Name:         "native",
	Kind:         backend.ConventionNative,
	IntArgs:      cArgRegs,
	FloatArgs:    cFArgRegs,
	IntResult:    x10,
	FloatResult:  f10,
	IncomingBias: 4,
}

// InterpreterFrame is the layout of interpreter frames, in words from fp.
// fp points at the saved fp, the return address is right above it.
var InterpreterFrame = &backend.InterpreterFrameShape{
	SenderSP:       -1,
	LastSP:         -2,
	Method:         -3,
	Mirror:         -4,
	MDP:            -5,
	Cache:          -6,
	Locals:         -7,
	BCP:            -8,
	InitialSP:      -9,
	SenderSPFromFP: 2,
	MonitorWords:   2,
}

var intRegNames = [32]string{
	"zr", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var floatRegNames = [32]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

// RegName returns the ABI name of r.
func RegName(r backend.RealReg) string {
	switch {
	case !r.IsValid():
		return "invalid"
	case r.IsFloat():
		return floatRegNames[r.Encoding()]
	default:
		return intRegNames[r.Encoding()]
	}
}

// isReservedReg returns true for the registers LIR operands may not use.
func isReservedReg(r backend.RealReg) bool {
	switch r {
	case zr, sp, fp, ra, t0, t1, xthread, x3, x4:
		return true
	}
	return false
}
