package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// programFile is a LIR method:
//
//	name: max
//	frame: 32
//	code:
//	  - op: cmp_branch
//	    cond: ge
//	    in: ["int:x11", "int:x12"]
//	    target: 1
//	  - op: move
//	    in: ["int:x12"]
//	    result: int:x11
//	  - label: 1
//	  - op: move
//	    in: ["int:x11"]
//	    result: int:x10
//	  - op: return
//	    in: ["int:x10"]
//
// Operands are written kind:value, where value is a register (x10, f10), a
// stack byte offset (stack[8]), a constant (42) or an address ([x11+16]),
// the way Program.String prints them.
type programFile struct {
	Name         string      `yaml:"name"`
	Frame        int         `yaml:"frame"`
	Synchronized bool        `yaml:"synchronized"`
	HasFPU       bool        `yaml:"hasFPU"`
	Code         []instrSpec `yaml:"code"`
}

type instrSpec struct {
	Label           int      `yaml:"label"`
	Op              string   `yaml:"op"`
	Cond            string   `yaml:"cond"`
	UnorderedIsTrue bool     `yaml:"unorderedIsTrue"`
	Conv            string   `yaml:"conv"`
	In              []string `yaml:"in"`
	Result          string   `yaml:"result"`
	Target          int      `yaml:"target"`
	// Checked gives div and rem a zero check.
	Checked bool `yaml:"checked"`
}

// textOpcodes are the opcodes a program file can express. The others need
// type descriptors, scopes or call targets.
var textOpcodes = map[backend.Opcode]bool{
	backend.OpNop: true, backend.OpMove: true,
	backend.OpAdd: true, backend.OpSub: true, backend.OpMul: true, backend.OpDiv: true, backend.OpRem: true,
	backend.OpAnd: true, backend.OpOr: true, backend.OpXor: true,
	backend.OpShl: true, backend.OpShr: true, backend.OpUshr: true, backend.OpNeg: true,
	backend.OpCmpBranch: true, backend.OpBranch: true, backend.OpCmove: true, backend.OpCmp3: true,
	backend.OpConvert: true, backend.OpReturn: true, backend.OpSafepoint: true,
}

func readProgram(path string) (*backend.Program, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	return parseProgram(data)
}

func parseProgram(data []byte) (*backend.Program, error) {
	var pf programFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("parsing program: %w", err)
	}
	if pf.Name == "" {
		return nil, errors.New("program has no name")
	}
	prog := backend.NewProgram(pf.Name, pf.Frame)
	prog.Synchronized, prog.HasFPU = pf.Synchronized, pf.HasFPU
	for i, is := range pf.Code {
		ins, err := is.instruction()
		if err != nil {
			return nil, fmt.Errorf("%s: instruction %d: %w", pf.Name, i, err)
		}
		prog.Append(ins)
	}
	return prog, nil
}

func (is *instrSpec) instruction() (*backend.Instruction, error) {
	if is.Op == "" || is.Op == "label" {
		if is.Label <= 0 {
			return nil, errors.New("labels are numbered from 1")
		}
		return &backend.Instruction{Op: backend.OpLabel, Label: backend.LabelID(is.Label)}, nil
	}
	op, ok := backend.OpcodeFromString(is.Op)
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", is.Op)
	}
	if !textOpcodes[op] {
		return nil, fmt.Errorf("opcode %s cannot be written in a program file", op)
	}
	ins := &backend.Instruction{Op: op, Target: backend.LabelID(is.Target), UnorderedIsTrue: is.UnorderedIsTrue}
	for _, s := range is.In {
		o, err := parseOperand(s)
		if err != nil {
			return nil, err
		}
		ins.In = append(ins.In, o)
	}
	if is.Result != "" {
		o, err := parseOperand(is.Result)
		if err != nil {
			return nil, err
		}
		ins.Result = o
	}

	switch op {
	case backend.OpCmpBranch, backend.OpCmove:
		if ins.Cond, ok = backend.ConditionFromString(is.Cond); !ok {
			return nil, fmt.Errorf("unknown condition %q", is.Cond)
		}
	case backend.OpConvert:
		if ins.Conv, ok = backend.ConversionFromString(is.Conv); !ok {
			return nil, fmt.Errorf("unknown conversion %q", is.Conv)
		}
	case backend.OpDiv, backend.OpRem:
		if is.Checked {
			ins.Info = &backend.CodeEmitInfo{}
		}
	case backend.OpSafepoint:
		ins.Info = &backend.CodeEmitInfo{}
	}
	if (op == backend.OpCmpBranch || op == backend.OpBranch) && is.Target <= 0 {
		return nil, fmt.Errorf("%s has no target", op)
	}
	return ins, nil
}

// parseOperand parses an operand in the form printed by backend.Operand.String.
func parseOperand(s string) (backend.Operand, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return backend.IllegalOperand, fmt.Errorf("operand %q has no kind", s)
	}
	kindName, value := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	kind, ok := parseKind(kindName)
	if !ok {
		return backend.IllegalOperand, fmt.Errorf("operand %q: unknown kind %q", s, kindName)
	}

	switch {
	case value == "":
		return backend.IllegalOperand, fmt.Errorf("operand %q has no value", s)
	case strings.HasPrefix(value, "stack[") && strings.HasSuffix(value, "]"):
		off, err := strconv.Atoi(value[len("stack[") : len(value)-1])
		if err != nil || off < 0 || off%backend.StackSlotSize != 0 {
			return backend.IllegalOperand, fmt.Errorf("invalid stack offset %q", value)
		}
		return backend.StackOperand(off/backend.StackSlotSize, kind), nil
	case strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
		a, err := parseAddress(value[1 : len(value)-1])
		if err != nil {
			return backend.IllegalOperand, err
		}
		return backend.AddressOperand(a, kind), nil
	case value[0] != 'x' && value[0] != 'f':
		return parseConstant(value, kind)
	}

	r, err := parseReg(value)
	if err != nil {
		return backend.IllegalOperand, err
	}
	switch {
	case r.IsFloat() != kind.IsFloat():
		return backend.IllegalOperand, fmt.Errorf("%s cannot hold %s", r, kind)
	case r.IsFloat():
		return backend.FloatRegisterOperand(r, kind), nil
	default:
		return backend.RegisterOperand(r, kind), nil
	}
}

var operandKinds = []backend.ValueKind{
	backend.KindBoolean, backend.KindChar, backend.KindFloat, backend.KindDouble,
	backend.KindByte, backend.KindShort, backend.KindInt, backend.KindLong,
	backend.KindObject, backend.KindArray, backend.KindAddress, backend.KindNarrowOop,
	backend.KindMetadata, backend.KindNarrowKlass,
}

func parseKind(s string) (backend.ValueKind, bool) {
	for _, k := range operandKinds {
		if k.String() == s {
			return k, true
		}
	}
	return backend.KindInvalid, false
}

func parseReg(s string) (backend.RealReg, error) {
	if len(s) < 2 || (s[0] != 'x' && s[0] != 'f') {
		return backend.RealRegInvalid, fmt.Errorf("invalid register %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n > 31 {
		return backend.RealRegInvalid, fmt.Errorf("invalid register %q", s)
	}
	if s[0] == 'f' {
		return backend.FloatReg(n), nil
	}
	return backend.IntReg(n), nil
}

// parseAddress parses reg, reg+disp or reg-disp.
func parseAddress(s string) (backend.Address, error) {
	i := strings.IndexAny(s, "+-")
	if i < 0 {
		r, err := parseReg(s)
		return backend.BaseDisp(r, 0), err
	}
	r, err := parseReg(s[:i])
	if err != nil {
		return backend.Address{}, err
	}
	disp, err := strconv.ParseInt(s[i:], 0, 64)
	if err != nil {
		return backend.Address{}, fmt.Errorf("invalid displacement in [%s]", s)
	}
	return backend.BaseDisp(r, disp), nil
}

func parseConstant(s string, kind backend.ValueKind) (backend.Operand, error) {
	var (
		o   backend.Operand
		err error
	)
	switch kind {
	case backend.KindInt:
		var v int64
		if v, err = strconv.ParseInt(s, 0, 32); err == nil {
			o = backend.IntConst(int32(v))
		}
	case backend.KindLong:
		var v int64
		if v, err = strconv.ParseInt(s, 0, 64); err == nil {
			o = backend.LongConst(v)
		}
	case backend.KindFloat:
		var v float64
		if v, err = strconv.ParseFloat(s, 32); err == nil {
			o = backend.FloatConst(float32(v))
		}
	case backend.KindDouble:
		var v float64
		if v, err = strconv.ParseFloat(s, 64); err == nil {
			o = backend.DoubleConst(v)
		}
	case backend.KindObject, backend.KindAddress, backend.KindMetadata:
		var v uint64
		if v, err = strconv.ParseUint(s, 0, 64); err == nil {
			switch kind {
			case backend.KindObject:
				o = backend.ObjectConst(v)
			case backend.KindAddress:
				o = backend.AddressConst(v)
			default:
				o = backend.MetadataConst(v)
			}
		}
	default:
		return backend.IllegalOperand, fmt.Errorf("no %s constants", kind)
	}
	if err != nil {
		return backend.IllegalOperand, fmt.Errorf("invalid %s constant %q", kind, s)
	}
	return o, nil
}
