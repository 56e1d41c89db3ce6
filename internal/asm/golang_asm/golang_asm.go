// Package golang_asm bridges riscv64 instruction listings to the naming used by
// the Go assembler, as implemented by github.com/twitchyliquid64/golang-asm.
//
// Listings produced in this syntax can be pasted into a Go .s file for the
// riscv64 port, which makes it easy to cross-check hand-written encodings.
package golang_asm

import (
	"fmt"
	"strings"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/riscv"
)

// Mnemonic returns the Go assembler mnemonic of the instruction, e.g. "ADDW".
func Mnemonic(as obj.As) string {
	return as.String()
}

// IntRegister returns the Go assembler name of the integer register xN.
func IntRegister(n uint8) string {
	if n > 31 {
		panic(fmt.Sprintf("BUG: invalid integer register x%d", n))
	}
	return obj.Rconv(int(riscv.REG_X0) + int(n))
}

// FloatRegister returns the Go assembler name of the float register fN.
func FloatRegister(n uint8) string {
	if n > 31 {
		panic(fmt.Sprintf("BUG: invalid float register f%d", n))
	}
	return obj.Rconv(int(riscv.REG_F0) + int(n))
}

// Operand is one operand of a listing line.
type Operand struct {
	// Reg is the register name, empty for immediates and memory operands without a base.
	Reg string
	// Imm is the immediate or displacement.
	Imm int64
	// Kind selects how the operand is printed.
	Kind OperandKind
}

// OperandKind is the kind of Operand.
type OperandKind byte

const (
	OperandKindReg OperandKind = iota
	OperandKindImm
	OperandKindMem
)

// Format returns a line in Go assembler syntax. Operands are given in the
// machine order (destination first) and printed in Go order, which lists the
// sources first and the destination last.
func Format(as obj.As, ops ...Operand) string {
	var sb strings.Builder
	sb.WriteString(Mnemonic(as))
	if len(ops) == 0 {
		return sb.String()
	}
	sb.WriteByte('\t')
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Kind {
		case OperandKindReg:
			sb.WriteString(op.Reg)
		case OperandKindImm:
			fmt.Fprintf(&sb, "$%d", op.Imm)
		case OperandKindMem:
			fmt.Fprintf(&sb, "%d(%s)", op.Imm, op.Reg)
		}
		if i != 0 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
