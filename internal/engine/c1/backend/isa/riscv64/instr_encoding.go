package riscv64

import (
	"fmt"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// op is a machine instruction of the RV64IMAFD subset used by the code generators.
type op uint16

const (
	opInvalid op = iota
	opLUI
	opAUIPC
	opJAL
	opJALR
	opBEQ
	opBNE
	opBLT
	opBGE
	opBLTU
	opBGEU
	opLB
	opLH
	opLW
	opLD
	opLBU
	opLHU
	opLWU
	opSB
	opSH
	opSW
	opSD
	opADDI
	opSLTI
	opSLTIU
	opXORI
	opORI
	opANDI
	opSLLI
	opSRLI
	opSRAI
	opADD
	opSUB
	opSLL
	opSLT
	opSLTU
	opXOR
	opSRL
	opSRA
	opOR
	opAND
	opADDIW
	opSLLIW
	opSRLIW
	opSRAIW
	opADDW
	opSUBW
	opSLLW
	opSRLW
	opSRAW
	opMUL
	opMULH
	opMULHU
	opDIV
	opDIVU
	opREM
	opREMU
	opMULW
	opDIVW
	opDIVUW
	opREMW
	opREMUW
	opFENCE
	opFENCEI
	opECALL
	opEBREAK
	opLRW
	opSCW
	opAMOSWAPW
	opAMOADDW
	opLRD
	opSCD
	opAMOSWAPD
	opAMOADDD
	opFLW
	opFLD
	opFSW
	opFSD
	opFADDS
	opFSUBS
	opFMULS
	opFDIVS
	opFSGNJS
	opFSGNJNS
	opFEQS
	opFLTS
	opFLES
	opFCVTWS
	opFCVTLS
	opFCVTSW
	opFCVTSL
	opFMVXW
	opFMVWX
	opFADDD
	opFSUBD
	opFMULD
	opFDIVD
	opFSGNJD
	opFSGNJND
	opFEQD
	opFLTD
	opFLED
	opFCVTWD
	opFCVTLD
	opFCVTDW
	opFCVTDL
	opFMVXD
	opFMVDX
	opFCVTSD
	opFCVTDS
	numOps
)

// format is the encoding format of an op, which also decides how it is printed.
type format byte

const (
	formatR format = iota
	formatI
	formatLoad
	formatStore
	formatB
	formatU
	formatJ
	formatJALR
	// formatShift64 has a 6-bit shift amount, formatShift32 a 5-bit one.
	formatShift64
	formatShift32
	formatFence
	formatSystem
	formatAMO
	formatLR
	// formatFArith is a float op with a rounding mode field.
	formatFArith
	// formatFFixed has funct3 fixed, such as sign injection and compares.
	formatFFixed
	// formatFCvt has rs2 fixed and a rounding mode.
	formatFCvt
	// formatFMv has rs2 and funct3 fixed.
	formatFMv
)

// Register classes of the operands of an op.
const (
	classNone byte = iota
	classInt
	classFloat
)

type opInfo struct {
	name   string
	format format
	opcode uint32
	funct3 uint32
	// funct7 is the high part: funct7 for R formats, funct6<<1 for 64-bit
	// shifts, funct5<<2 for atomics, the fixed immediate of system ops.
	funct7 uint32
	// rs2 is the fixed rs2 field of formatFCvt, formatFMv and formatLR.
	rs2             uint32
	rdC, rs1C, rs2C byte
}

const (
	opcodeLoad    = 0x03
	opcodeLoadFP  = 0x07
	opcodeMiscMem = 0x0f
	opcodeOpImm   = 0x13
	opcodeAUIPC   = 0x17
	opcodeOpImm32 = 0x1b
	opcodeStore   = 0x23
	opcodeStoreFP = 0x27
	opcodeAMO     = 0x2f
	opcodeOp      = 0x33
	opcodeLUI     = 0x37
	opcodeOp32    = 0x3b
	opcodeOpFP    = 0x53
	opcodeBranch  = 0x63
	opcodeJALR    = 0x67
	opcodeJAL     = 0x6f
	opcodeSystem  = 0x73
)

func iop(name string, f format, opcode, funct3 uint32) opInfo {
	return opInfo{name: name, format: f, opcode: opcode, funct3: funct3, rdC: classInt, rs1C: classInt}
}

func rop(name string, opcode, funct3, funct7 uint32) opInfo {
	return opInfo{name: name, format: formatR, opcode: opcode, funct3: funct3, funct7: funct7, rdC: classInt, rs1C: classInt, rs2C: classInt}
}

func fop(name string, f format, funct7, funct3, rs2 uint32, rdC, rs1C, rs2C byte) opInfo {
	return opInfo{name: name, format: f, opcode: opcodeOpFP, funct3: funct3, funct7: funct7, rs2: rs2, rdC: rdC, rs1C: rs1C, rs2C: rs2C}
}

func amo(name string, f format, funct3, funct5 uint32) opInfo {
	info := opInfo{name: name, format: f, opcode: opcodeAMO, funct3: funct3, funct7: funct5 << 2, rdC: classInt, rs1C: classInt}
	if f == formatAMO {
		info.rs2C = classInt
	}
	return info
}

var opInfos = [numOps]opInfo{
	opLUI:   {name: "lui", format: formatU, opcode: opcodeLUI, rdC: classInt},
	opAUIPC: {name: "auipc", format: formatU, opcode: opcodeAUIPC, rdC: classInt},
	opJAL:   {name: "jal", format: formatJ, opcode: opcodeJAL, rdC: classInt},
	opJALR:  iop("jalr", formatJALR, opcodeJALR, 0),

	opBEQ:  {name: "beq", format: formatB, opcode: opcodeBranch, funct3: 0, rs1C: classInt, rs2C: classInt},
	opBNE:  {name: "bne", format: formatB, opcode: opcodeBranch, funct3: 1, rs1C: classInt, rs2C: classInt},
	opBLT:  {name: "blt", format: formatB, opcode: opcodeBranch, funct3: 4, rs1C: classInt, rs2C: classInt},
	opBGE:  {name: "bge", format: formatB, opcode: opcodeBranch, funct3: 5, rs1C: classInt, rs2C: classInt},
	opBLTU: {name: "bltu", format: formatB, opcode: opcodeBranch, funct3: 6, rs1C: classInt, rs2C: classInt},
	opBGEU: {name: "bgeu", format: formatB, opcode: opcodeBranch, funct3: 7, rs1C: classInt, rs2C: classInt},

	opLB:  iop("lb", formatLoad, opcodeLoad, 0),
	opLH:  iop("lh", formatLoad, opcodeLoad, 1),
	opLW:  iop("lw", formatLoad, opcodeLoad, 2),
	opLD:  iop("ld", formatLoad, opcodeLoad, 3),
	opLBU: iop("lbu", formatLoad, opcodeLoad, 4),
	opLHU: iop("lhu", formatLoad, opcodeLoad, 5),
	opLWU: iop("lwu", formatLoad, opcodeLoad, 6),

	opSB: {name: "sb", format: formatStore, opcode: opcodeStore, funct3: 0, rs1C: classInt, rs2C: classInt},
	opSH: {name: "sh", format: formatStore, opcode: opcodeStore, funct3: 1, rs1C: classInt, rs2C: classInt},
	opSW: {name: "sw", format: formatStore, opcode: opcodeStore, funct3: 2, rs1C: classInt, rs2C: classInt},
	opSD: {name: "sd", format: formatStore, opcode: opcodeStore, funct3: 3, rs1C: classInt, rs2C: classInt},

	opADDI:  iop("addi", formatI, opcodeOpImm, 0),
	opSLTI:  iop("slti", formatI, opcodeOpImm, 2),
	opSLTIU: iop("sltiu", formatI, opcodeOpImm, 3),
	opXORI:  iop("xori", formatI, opcodeOpImm, 4),
	opORI:   iop("ori", formatI, opcodeOpImm, 6),
	opANDI:  iop("andi", formatI, opcodeOpImm, 7),
	opSLLI:  {name: "slli", format: formatShift64, opcode: opcodeOpImm, funct3: 1, funct7: 0, rdC: classInt, rs1C: classInt},
	opSRLI:  {name: "srli", format: formatShift64, opcode: opcodeOpImm, funct3: 5, funct7: 0, rdC: classInt, rs1C: classInt},
	opSRAI:  {name: "srai", format: formatShift64, opcode: opcodeOpImm, funct3: 5, funct7: 0x20, rdC: classInt, rs1C: classInt},

	opADD:  rop("add", opcodeOp, 0, 0),
	opSUB:  rop("sub", opcodeOp, 0, 0x20),
	opSLL:  rop("sll", opcodeOp, 1, 0),
	opSLT:  rop("slt", opcodeOp, 2, 0),
	opSLTU: rop("sltu", opcodeOp, 3, 0),
	opXOR:  rop("xor", opcodeOp, 4, 0),
	opSRL:  rop("srl", opcodeOp, 5, 0),
	opSRA:  rop("sra", opcodeOp, 5, 0x20),
	opOR:   rop("or", opcodeOp, 6, 0),
	opAND:  rop("and", opcodeOp, 7, 0),

	opADDIW: iop("addiw", formatI, opcodeOpImm32, 0),
	opSLLIW: {name: "slliw", format: formatShift32, opcode: opcodeOpImm32, funct3: 1, funct7: 0, rdC: classInt, rs1C: classInt},
	opSRLIW: {name: "srliw", format: formatShift32, opcode: opcodeOpImm32, funct3: 5, funct7: 0, rdC: classInt, rs1C: classInt},
	opSRAIW: {name: "sraiw", format: formatShift32, opcode: opcodeOpImm32, funct3: 5, funct7: 0x20, rdC: classInt, rs1C: classInt},
	opADDW:  rop("addw", opcodeOp32, 0, 0),
	opSUBW:  rop("subw", opcodeOp32, 0, 0x20),
	opSLLW:  rop("sllw", opcodeOp32, 1, 0),
	opSRLW:  rop("srlw", opcodeOp32, 5, 0),
	opSRAW:  rop("sraw", opcodeOp32, 5, 0x20),

	opMUL:   rop("mul", opcodeOp, 0, 1),
	opMULH:  rop("mulh", opcodeOp, 1, 1),
	opMULHU: rop("mulhu", opcodeOp, 3, 1),
	opDIV:   rop("div", opcodeOp, 4, 1),
	opDIVU:  rop("divu", opcodeOp, 5, 1),
	opREM:   rop("rem", opcodeOp, 6, 1),
	opREMU:  rop("remu", opcodeOp, 7, 1),
	opMULW:  rop("mulw", opcodeOp32, 0, 1),
	opDIVW:  rop("divw", opcodeOp32, 4, 1),
	opDIVUW: rop("divuw", opcodeOp32, 5, 1),
	opREMW:  rop("remw", opcodeOp32, 6, 1),
	opREMUW: rop("remuw", opcodeOp32, 7, 1),

	opFENCE:  {name: "fence", format: formatFence, opcode: opcodeMiscMem, funct3: 0},
	opFENCEI: {name: "fence.i", format: formatSystem, opcode: opcodeMiscMem, funct3: 1},
	opECALL:  {name: "ecall", format: formatSystem, opcode: opcodeSystem, funct7: 0},
	opEBREAK: {name: "ebreak", format: formatSystem, opcode: opcodeSystem, funct7: 1},

	opLRW:      amo("lr.w", formatLR, 2, 0b00010),
	opSCW:      amo("sc.w", formatAMO, 2, 0b00011),
	opAMOSWAPW: amo("amoswap.w", formatAMO, 2, 0b00001),
	opAMOADDW:  amo("amoadd.w", formatAMO, 2, 0b00000),
	opLRD:      amo("lr.d", formatLR, 3, 0b00010),
	opSCD:      amo("sc.d", formatAMO, 3, 0b00011),
	opAMOSWAPD: amo("amoswap.d", formatAMO, 3, 0b00001),
	opAMOADDD:  amo("amoadd.d", formatAMO, 3, 0b00000),

	opFLW: {name: "flw", format: formatLoad, opcode: opcodeLoadFP, funct3: 2, rdC: classFloat, rs1C: classInt},
	opFLD: {name: "fld", format: formatLoad, opcode: opcodeLoadFP, funct3: 3, rdC: classFloat, rs1C: classInt},
	opFSW: {name: "fsw", format: formatStore, opcode: opcodeStoreFP, funct3: 2, rs1C: classInt, rs2C: classFloat},
	opFSD: {name: "fsd", format: formatStore, opcode: opcodeStoreFP, funct3: 3, rs1C: classInt, rs2C: classFloat},

	opFADDS:   fop("fadd.s", formatFArith, 0b0000000, 0, 0, classFloat, classFloat, classFloat),
	opFSUBS:   fop("fsub.s", formatFArith, 0b0000100, 0, 0, classFloat, classFloat, classFloat),
	opFMULS:   fop("fmul.s", formatFArith, 0b0001000, 0, 0, classFloat, classFloat, classFloat),
	opFDIVS:   fop("fdiv.s", formatFArith, 0b0001100, 0, 0, classFloat, classFloat, classFloat),
	opFSGNJS:  fop("fsgnj.s", formatFFixed, 0b0010000, 0, 0, classFloat, classFloat, classFloat),
	opFSGNJNS: fop("fsgnjn.s", formatFFixed, 0b0010000, 1, 0, classFloat, classFloat, classFloat),
	opFEQS:    fop("feq.s", formatFFixed, 0b1010000, 2, 0, classInt, classFloat, classFloat),
	opFLTS:    fop("flt.s", formatFFixed, 0b1010000, 1, 0, classInt, classFloat, classFloat),
	opFLES:    fop("fle.s", formatFFixed, 0b1010000, 0, 0, classInt, classFloat, classFloat),
	opFCVTWS:  fop("fcvt.w.s", formatFCvt, 0b1100000, 0, 0, classInt, classFloat, classNone),
	opFCVTLS:  fop("fcvt.l.s", formatFCvt, 0b1100000, 0, 2, classInt, classFloat, classNone),
	opFCVTSW:  fop("fcvt.s.w", formatFCvt, 0b1101000, 0, 0, classFloat, classInt, classNone),
	opFCVTSL:  fop("fcvt.s.l", formatFCvt, 0b1101000, 0, 2, classFloat, classInt, classNone),
	opFMVXW:   fop("fmv.x.w", formatFMv, 0b1110000, 0, 0, classInt, classFloat, classNone),
	opFMVWX:   fop("fmv.w.x", formatFMv, 0b1111000, 0, 0, classFloat, classInt, classNone),

	opFADDD:   fop("fadd.d", formatFArith, 0b0000001, 0, 0, classFloat, classFloat, classFloat),
	opFSUBD:   fop("fsub.d", formatFArith, 0b0000101, 0, 0, classFloat, classFloat, classFloat),
	opFMULD:   fop("fmul.d", formatFArith, 0b0001001, 0, 0, classFloat, classFloat, classFloat),
	opFDIVD:   fop("fdiv.d", formatFArith, 0b0001101, 0, 0, classFloat, classFloat, classFloat),
	opFSGNJD:  fop("fsgnj.d", formatFFixed, 0b0010001, 0, 0, classFloat, classFloat, classFloat),
	opFSGNJND: fop("fsgnjn.d", formatFFixed, 0b0010001, 1, 0, classFloat, classFloat, classFloat),
	opFEQD:    fop("feq.d", formatFFixed, 0b1010001, 2, 0, classInt, classFloat, classFloat),
	opFLTD:    fop("flt.d", formatFFixed, 0b1010001, 1, 0, classInt, classFloat, classFloat),
	opFLED:    fop("fle.d", formatFFixed, 0b1010001, 0, 0, classInt, classFloat, classFloat),
	opFCVTWD:  fop("fcvt.w.d", formatFCvt, 0b1100001, 0, 0, classInt, classFloat, classNone),
	opFCVTLD:  fop("fcvt.l.d", formatFCvt, 0b1100001, 0, 2, classInt, classFloat, classNone),
	opFCVTDW:  fop("fcvt.d.w", formatFCvt, 0b1101001, 0, 0, classFloat, classInt, classNone),
	opFCVTDL:  fop("fcvt.d.l", formatFCvt, 0b1101001, 0, 2, classFloat, classInt, classNone),
	opFMVXD:   fop("fmv.x.d", formatFMv, 0b1110001, 0, 0, classInt, classFloat, classNone),
	opFMVDX:   fop("fmv.d.x", formatFMv, 0b1111001, 0, 0, classFloat, classInt, classNone),
	opFCVTSD:  fop("fcvt.s.d", formatFCvt, 0b0100000, 0, 1, classFloat, classFloat, classNone),
	opFCVTDS:  fop("fcvt.d.s", formatFCvt, 0b0100001, 0, 0, classFloat, classFloat, classNone),
}

// String implements fmt.Stringer.
func (o op) String() string {
	if o > opInvalid && o < numOps {
		return opInfos[o].name
	}
	return fmt.Sprintf("op(%d)", uint16(o))
}

// Rounding modes of float instructions.
const (
	rmRTZ = 0b001
	rmDYN = 0b111
)

// Fence operand bits.
const (
	fenceW = 1 << iota
	fenceR
	fenceO
	fenceI
)

func regBits(r backend.RealReg) uint32 {
	if r == backend.RealRegInvalid {
		return 0
	}
	return r.Encoding()
}

func fitsSigned(v int64, bits uint) bool {
	lim := int64(1) << (bits - 1)
	return v >= -lim && v < lim
}

// isImm12 returns true if v fits the immediate of I and S formats.
func isImm12(v int64) bool { return fitsSigned(v, 12) }

func encodeR(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(opcode, funct3 uint32, rd, rs1 uint32, imm int64) uint32 {
	return uint32(imm&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(opcode, funct3 uint32, rs1, rs2 uint32, imm int64) uint32 {
	u := uint32(imm & 0xfff)
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

// bImmBits returns the immediate bits of a B-type instruction for the byte offset off.
func bImmBits(off int64) uint32 {
	u := uint32(off)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | (u>>1&0xf)<<8 | (u>>11&1)<<7
}

const bImmMask = 0xfe000f80

// jImmBits returns the immediate bits of a J-type instruction for the byte offset off.
func jImmBits(off int64) uint32 {
	u := uint32(off)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12
}

const jImmMask = 0xfffff000

func encodeB(funct3 uint32, rs1, rs2 uint32, off int64) uint32 {
	return bImmBits(off) | rs2<<20 | rs1<<15 | funct3<<12 | opcodeBranch
}

func encodeU(opcode uint32, rd uint32, imm20 int64) uint32 {
	return uint32(imm20&0xfffff)<<12 | rd<<7 | opcode
}

func encodeJ(rd uint32, off int64) uint32 {
	return jImmBits(off) | rd<<7 | opcodeJAL
}

// encode returns the machine word of o. imm is the immediate, the byte
// offset of branches, the shift amount of shifts, pred<<4|succ of fences
// and the rounding mode of float ops; aqrl are the ordering bits of atomics.
func (o op) encode(rd, rs1, rs2 backend.RealReg, imm int64, aqrl uint32) uint32 {
	info := &opInfos[o]
	d, s1, s2 := regBits(rd), regBits(rs1), regBits(rs2)
	switch info.format {
	case formatR:
		return encodeR(info.opcode, info.funct3, info.funct7, d, s1, s2)
	case formatI, formatLoad, formatJALR:
		return encodeI(info.opcode, info.funct3, d, s1, imm)
	case formatStore:
		return encodeS(info.opcode, info.funct3, s1, s2, imm)
	case formatB:
		return encodeB(info.funct3, s1, s2, imm)
	case formatU:
		return encodeU(info.opcode, d, imm)
	case formatJ:
		return encodeJ(d, imm)
	case formatShift64:
		return encodeI(info.opcode, info.funct3, d, s1, int64(info.funct7)<<5|imm&0x3f)
	case formatShift32:
		return encodeI(info.opcode, info.funct3, d, s1, int64(info.funct7)<<5|imm&0x1f)
	case formatFence:
		return encodeI(info.opcode, info.funct3, 0, 0, imm&0xff)
	case formatSystem:
		return encodeI(info.opcode, info.funct3, 0, 0, int64(info.funct7))
	case formatAMO:
		return encodeR(info.opcode, info.funct3, info.funct7|aqrl, d, s1, s2)
	case formatLR:
		return encodeR(info.opcode, info.funct3, info.funct7|aqrl, d, s1, 0)
	case formatFArith:
		return encodeR(info.opcode, uint32(imm)&7, info.funct7, d, s1, s2)
	case formatFFixed:
		return encodeR(info.opcode, info.funct3, info.funct7, d, s1, s2)
	case formatFCvt:
		return encodeR(info.opcode, uint32(imm)&7, info.funct7, d, s1, info.rs2)
	case formatFMv:
		return encodeR(info.opcode, info.funct3, info.funct7, d, s1, info.rs2)
	default:
		panic(fmt.Sprintf("BUG: cannot encode %s", o))
	}
}

// mask returns the bits of a word which identify o, and their expected value.
func (o op) mask() (mask, match uint32) {
	info := &opInfos[o]
	switch info.format {
	case formatU, formatJ:
		return 0x7f, info.opcode
	case formatI, formatLoad, formatStore, formatB, formatJALR, formatFence:
		return 0x707f, info.funct3<<12 | info.opcode
	case formatR, formatFFixed:
		return 0xfe00707f, info.funct7<<25 | info.funct3<<12 | info.opcode
	case formatShift64:
		return 0xfc00707f, info.funct7<<25 | info.funct3<<12 | info.opcode
	case formatShift32:
		return 0xfe00707f, info.funct7<<25 | info.funct3<<12 | info.opcode
	case formatSystem:
		return 0xffffffff, o.encode(backend.RealRegInvalid, backend.RealRegInvalid, backend.RealRegInvalid, 0, 0)
	case formatAMO:
		return 0xf800707f, info.funct7<<25 | info.funct3<<12 | info.opcode
	case formatLR:
		return 0xf9f0707f, info.funct7<<25 | info.funct3<<12 | info.opcode
	case formatFArith:
		return 0xfe00007f, info.funct7<<25 | info.opcode
	case formatFCvt:
		return 0xfff0007f, info.funct7<<25 | info.rs2<<20 | info.opcode
	case formatFMv:
		return 0xfff0707f, info.funct7<<25 | info.rs2<<20 | info.funct3<<12 | info.opcode
	default:
		panic("BUG")
	}
}
