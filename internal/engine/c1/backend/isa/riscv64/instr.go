package riscv64

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/riscv"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/asm/golang_asm"
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// Inst is a decoded machine instruction.
type Inst struct {
	Op           op
	Rd, Rs1, Rs2 backend.RealReg
	// Imm is the sign-extended immediate: the byte offset of branches and
	// jumps, the upper 20 bits of lui and auipc, the shift amount of shifts
	// and pred<<4|succ of fences.
	Imm int64
	// Aqrl holds the ordering bits of atomics, RM the rounding mode of float ops.
	Aqrl, RM uint32
}

func sext(v uint32, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(v)<<shift) >> shift
}

func regOf(class byte, bits uint32) backend.RealReg {
	switch class {
	case classInt:
		return backend.IntReg(int(bits))
	case classFloat:
		return backend.FloatReg(int(bits))
	default:
		return backend.RealRegInvalid
	}
}

// Decode decodes the machine word w. It returns false for words outside of
// the instruction subset produced by the code generators.
func Decode(w uint32) (Inst, bool) {
	for o := opInvalid + 1; o < numOps; o++ {
		mask, match := o.mask()
		if w&mask != match {
			continue
		}
		info := &opInfos[o]
		in := Inst{
			Op:  o,
			Rd:  regOf(info.rdC, w>>7&0x1f),
			Rs1: regOf(info.rs1C, w>>15&0x1f),
			Rs2: regOf(info.rs2C, w>>20&0x1f),
		}
		switch info.format {
		case formatI, formatLoad, formatJALR:
			in.Imm = sext(w>>20, 12)
		case formatStore:
			in.Imm = sext(w>>25<<5|w>>7&0x1f, 12)
		case formatB:
			in.Imm = sext(w>>31<<12|w>>7&1<<11|w>>25&0x3f<<5|w>>8&0xf<<1, 13)
		case formatU:
			in.Imm = sext(w>>12, 20)
		case formatJ:
			in.Imm = sext(w>>31<<20|w>>12&0xff<<12|w>>20&1<<11|w>>21&0x3ff<<1, 21)
		case formatShift64:
			in.Imm = int64(w >> 20 & 0x3f)
		case formatShift32:
			in.Imm = int64(w >> 20 & 0x1f)
		case formatFence:
			in.Imm = int64(w >> 20 & 0xff)
		case formatAMO, formatLR:
			in.Aqrl = w >> 25 & 3
		case formatFArith, formatFCvt:
			in.RM = w >> 12 & 7
		}
		return in, true
	}
	return Inst{}, false
}

var roundingModes = [8]string{"rne", "rtz", "rdn", "rup", "rmm", "rm5", "rm6", "dyn"}

func fenceSet(bits int64) string {
	var sb strings.Builder
	for i, c := range "iorw" {
		if bits&(8>>i) != 0 {
			sb.WriteRune(c)
		}
	}
	if sb.Len() == 0 {
		return "0"
	}
	return sb.String()
}

func aqrlSuffix(aqrl uint32) string {
	switch aqrl {
	case 1:
		return ".rl"
	case 2:
		return ".aq"
	case 3:
		return ".aqrl"
	}
	return ""
}

// String returns the instruction in the usual assembler syntax with ABI
// register names.
func (i Inst) String() string {
	info := &opInfos[i.Op]
	rd, rs1, rs2 := RegName(i.Rd), RegName(i.Rs1), RegName(i.Rs2)
	switch info.format {
	case formatR, formatFFixed:
		return fmt.Sprintf("%s %s, %s, %s", info.name, rd, rs1, rs2)
	case formatFArith:
		s := fmt.Sprintf("%s %s, %s, %s", info.name, rd, rs1, rs2)
		if i.RM != rmDYN {
			s += ", " + roundingModes[i.RM]
		}
		return s
	case formatI:
		if i.Op == opADDI && i.Imm == 0 {
			if i.Rd == zr && i.Rs1 == zr {
				return "nop"
			}
			return fmt.Sprintf("mv %s, %s", rd, rs1)
		}
		return fmt.Sprintf("%s %s, %s, %d", info.name, rd, rs1, i.Imm)
	case formatShift64, formatShift32:
		return fmt.Sprintf("%s %s, %s, %d", info.name, rd, rs1, i.Imm)
	case formatLoad:
		return fmt.Sprintf("%s %s, %d(%s)", info.name, rd, i.Imm, rs1)
	case formatStore:
		return fmt.Sprintf("%s %s, %d(%s)", info.name, rs2, i.Imm, rs1)
	case formatB:
		return fmt.Sprintf("%s %s, %s, %d", info.name, rs1, rs2, i.Imm)
	case formatU:
		return fmt.Sprintf("%s %s, 0x%x", info.name, rd, i.Imm&0xfffff)
	case formatJ:
		return fmt.Sprintf("%s %s, %d", info.name, rd, i.Imm)
	case formatJALR:
		if i.Rd == zr && i.Rs1 == ra && i.Imm == 0 {
			return "ret"
		}
		return fmt.Sprintf("%s %s, %d(%s)", info.name, rd, i.Imm, rs1)
	case formatFence:
		return fmt.Sprintf("%s %s, %s", info.name, fenceSet(i.Imm>>4), fenceSet(i.Imm&0xf))
	case formatSystem:
		return info.name
	case formatAMO:
		return fmt.Sprintf("%s%s %s, %s, (%s)", info.name, aqrlSuffix(i.Aqrl), rd, rs2, rs1)
	case formatLR:
		return fmt.Sprintf("%s%s %s, (%s)", info.name, aqrlSuffix(i.Aqrl), rd, rs1)
	case formatFCvt:
		s := fmt.Sprintf("%s %s, %s", info.name, rd, rs1)
		if i.RM != rmDYN {
			s += ", " + roundingModes[i.RM]
		}
		return s
	case formatFMv:
		return fmt.Sprintf("%s %s, %s", info.name, rd, rs1)
	default:
		panic("BUG")
	}
}

var goOps = [numOps]obj.As{
	opLUI: riscv.ALUI, opAUIPC: riscv.AAUIPC, opJAL: riscv.AJAL, opJALR: riscv.AJALR,
	opBEQ: riscv.ABEQ, opBNE: riscv.ABNE, opBLT: riscv.ABLT, opBGE: riscv.ABGE, opBLTU: riscv.ABLTU, opBGEU: riscv.ABGEU,
	opLB: riscv.ALB, opLH: riscv.ALH, opLW: riscv.ALW, opLD: riscv.ALD, opLBU: riscv.ALBU, opLHU: riscv.ALHU, opLWU: riscv.ALWU,
	opSB: riscv.ASB, opSH: riscv.ASH, opSW: riscv.ASW, opSD: riscv.ASD,
	opADDI: riscv.AADDI, opSLTI: riscv.ASLTI, opSLTIU: riscv.ASLTIU, opXORI: riscv.AXORI, opORI: riscv.AORI, opANDI: riscv.AANDI,
	opSLLI: riscv.ASLLI, opSRLI: riscv.ASRLI, opSRAI: riscv.ASRAI,
	opADD: riscv.AADD, opSUB: riscv.ASUB, opSLL: riscv.ASLL, opSLT: riscv.ASLT, opSLTU: riscv.ASLTU,
	opXOR: riscv.AXOR, opSRL: riscv.ASRL, opSRA: riscv.ASRA, opOR: riscv.AOR, opAND: riscv.AAND,
	opADDIW: riscv.AADDIW, opSLLIW: riscv.ASLLIW, opSRLIW: riscv.ASRLIW, opSRAIW: riscv.ASRAIW,
	opADDW: riscv.AADDW, opSUBW: riscv.ASUBW, opSLLW: riscv.ASLLW, opSRLW: riscv.ASRLW, opSRAW: riscv.ASRAW,
	opMUL: riscv.AMUL, opMULH: riscv.AMULH, opMULHU: riscv.AMULHU, opDIV: riscv.ADIV, opDIVU: riscv.ADIVU,
	opREM: riscv.AREM, opREMU: riscv.AREMU, opMULW: riscv.AMULW, opDIVW: riscv.ADIVW, opDIVUW: riscv.ADIVUW,
	opREMW: riscv.AREMW, opREMUW: riscv.AREMUW,
	opFENCE: riscv.AFENCE, opFENCEI: riscv.AFENCEI, opECALL: riscv.AECALL, opEBREAK: riscv.AEBREAK,
	opLRW: riscv.ALRW, opSCW: riscv.ASCW, opAMOSWAPW: riscv.AAMOSWAPW, opAMOADDW: riscv.AAMOADDW,
	opLRD: riscv.ALRD, opSCD: riscv.ASCD, opAMOSWAPD: riscv.AAMOSWAPD, opAMOADDD: riscv.AAMOADDD,
	opFLW: riscv.AFLW, opFLD: riscv.AFLD, opFSW: riscv.AFSW, opFSD: riscv.AFSD,
	opFADDS: riscv.AFADDS, opFSUBS: riscv.AFSUBS, opFMULS: riscv.AFMULS, opFDIVS: riscv.AFDIVS,
	opFSGNJS: riscv.AFSGNJS, opFSGNJNS: riscv.AFSGNJNS, opFEQS: riscv.AFEQS, opFLTS: riscv.AFLTS, opFLES: riscv.AFLES,
	opFCVTWS: riscv.AFCVTWS, opFCVTLS: riscv.AFCVTLS, opFCVTSW: riscv.AFCVTSW, opFCVTSL: riscv.AFCVTSL,
	opFMVXW: riscv.AFMVXW, opFMVWX: riscv.AFMVWX,
	opFADDD: riscv.AFADDD, opFSUBD: riscv.AFSUBD, opFMULD: riscv.AFMULD, opFDIVD: riscv.AFDIVD,
	opFSGNJD: riscv.AFSGNJD, opFSGNJND: riscv.AFSGNJND, opFEQD: riscv.AFEQD, opFLTD: riscv.AFLTD, opFLED: riscv.AFLED,
	opFCVTWD: riscv.AFCVTWD, opFCVTLD: riscv.AFCVTLD, opFCVTDW: riscv.AFCVTDW, opFCVTDL: riscv.AFCVTDL,
	opFMVXD: riscv.AFMVXD, opFMVDX: riscv.AFMVDX, opFCVTSD: riscv.AFCVTSD, opFCVTDS: riscv.AFCVTDS,
}

func goReg(r backend.RealReg) golang_asm.Operand {
	if r.IsFloat() {
		return golang_asm.Operand{Reg: golang_asm.FloatRegister(uint8(r.Encoding()))}
	}
	return golang_asm.Operand{Reg: golang_asm.IntRegister(uint8(r.Encoding()))}
}

func goImm(v int64) golang_asm.Operand {
	return golang_asm.Operand{Imm: v, Kind: golang_asm.OperandKindImm}
}

func goMem(base backend.RealReg, disp int64) golang_asm.Operand {
	return golang_asm.Operand{Reg: golang_asm.IntRegister(uint8(base.Encoding())), Imm: disp, Kind: golang_asm.OperandKindMem}
}

// GoSyntax returns the instruction in the syntax of the Go assembler.
func (i Inst) GoSyntax() string {
	as := goOps[i.Op]
	switch opInfos[i.Op].format {
	case formatR, formatFFixed, formatFArith:
		return golang_asm.Format(as, goReg(i.Rd), goReg(i.Rs1), goReg(i.Rs2))
	case formatI, formatShift64, formatShift32:
		return golang_asm.Format(as, goReg(i.Rd), goReg(i.Rs1), goImm(i.Imm))
	case formatLoad:
		return golang_asm.Format(as, goReg(i.Rd), goMem(i.Rs1, i.Imm))
	case formatStore:
		return golang_asm.Format(as, goMem(i.Rs1, i.Imm), goReg(i.Rs2))
	case formatB:
		return golang_asm.Format(as, goImm(i.Imm), goReg(i.Rs2), goReg(i.Rs1))
	case formatU:
		return golang_asm.Format(as, goReg(i.Rd), goImm(i.Imm))
	case formatJ:
		return golang_asm.Format(as, goImm(i.Imm), goReg(i.Rd))
	case formatJALR:
		return golang_asm.Format(as, goMem(i.Rs1, i.Imm), goReg(i.Rd))
	case formatAMO:
		return golang_asm.Format(as, goReg(i.Rd), goMem(i.Rs1, 0), goReg(i.Rs2))
	case formatLR:
		return golang_asm.Format(as, goReg(i.Rd), goMem(i.Rs1, 0))
	case formatFCvt, formatFMv:
		return golang_asm.Format(as, goReg(i.Rd), goReg(i.Rs1))
	default:
		return golang_asm.Format(as)
	}
}

// Disassemble returns one line per word of code placed at base. Words which
// do not decode are printed as data.
func Disassemble(code []byte, base uint64, goSyntax bool) []string {
	lines := make([]string, 0, len(code)/4)
	for off := 0; off+4 <= len(code); off += 4 {
		w := binary.LittleEndian.Uint32(code[off:])
		text := fmt.Sprintf(".word 0x%08x", w)
		if in, ok := Decode(w); ok {
			if goSyntax {
				text = in.GoSyntax()
			} else {
				text = in.String()
			}
		}
		lines = append(lines, fmt.Sprintf("%#x: %08x  %s", base+uint64(off), w, text))
	}
	return lines
}
