package riscv64

import (
	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// The register save area built by saveLiveRegisters, from sp upwards: the
// float registers, the integer registers but zr, ra, sp and fp, then the saved
// fp and ra pushed by enter.
const (
	regSaveFloatWords = 32
	regSaveIntWords   = 28
	regSaveAreaSize   = (regSaveFloatWords + regSaveIntWords) * 8
	// regSaveFrameSize is the size of the whole frame including fp and ra.
	regSaveFrameSize = regSaveAreaSize + 16
)

// savedIntRegs are the integer registers in save order.
var savedIntRegs = func() []backend.RealReg {
	var ret []backend.RealReg
	for r := x3; r <= x31; r++ {
		if r != fp {
			ret = append(ret, r)
		}
	}
	return ret
}()

// savedRegOffset returns the sp relative offset of the save slot of r.
func savedRegOffset(r backend.RealReg) int64 {
	switch {
	case r.IsFloat():
		return int64(r.Encoding()) * 8
	case r == fp:
		return regSaveAreaSize
	case r == ra:
		return regSaveAreaSize + 8
	}
	for i, s := range savedIntRegs {
		if s == r {
			return int64(regSaveFloatWords+i) * 8
		}
	}
	panic("BUG: register " + RegName(r) + " is not saved")
}

// saveLiveRegisters pushes a frame holding every register and returns the
// map describing where the registers of the caller are saved. The map goes
// to the return address of the runtime call made from the frame.
func (m *MacroAssembler) saveLiveRegisters() *backend.OopMap {
	m.enter()
	m.addi(sp, sp, -regSaveAreaSize)
	for i := 0; i < regSaveFloatWords; i++ {
		r := backend.FloatReg(i)
		m.store(opFSD, r, sp, savedRegOffset(r))
	}
	for _, r := range savedIntRegs {
		m.sd(r, sp, savedRegOffset(r))
	}

	om := backend.NewOopMap(regSaveFrameSize / backend.StackSlotSize)
	slot := func(r backend.RealReg) backend.Location {
		return backend.StackLocation(int(savedRegOffset(r) / backend.StackSlotSize))
	}
	for i := 0; i < regSaveFloatWords; i++ {
		r := backend.FloatReg(i)
		om.SetCalleeSaved(slot(r), r)
	}
	for _, r := range savedIntRegs {
		switch r {
		case xthread, t0, t1:
			continue
		}
		om.SetCalleeSaved(slot(r), r)
	}
	om.SetCalleeSaved(slot(fp), fp)
	om.SetCalleeSaved(slot(ra), ra)
	return om
}

// restoreLiveRegisters pops the frame pushed by saveLiveRegisters.
func (m *MacroAssembler) restoreLiveRegisters() {
	for i := 0; i < regSaveFloatWords; i++ {
		r := backend.FloatReg(i)
		m.load(opFLD, r, sp, savedRegOffset(r))
	}
	for _, r := range savedIntRegs {
		m.ld(r, sp, savedRegOffset(r))
	}
	m.addi(sp, sp, regSaveAreaSize)
	m.ld(fp, sp, 0)
	m.ld(ra, sp, 8)
	m.addi(sp, sp, 16)
}

// restoreResultRegisters pops the frame pushed by saveLiveRegisters,
// restoring only the result registers.
func (m *MacroAssembler) restoreResultRegisters() {
	m.load(opFLD, f10, sp, savedRegOffset(f10))
	m.ld(x10, sp, savedRegOffset(x10))
	m.addi(sp, sp, regSaveAreaSize)
	m.ld(fp, sp, 0)
	m.ld(ra, sp, 8)
	m.addi(sp, sp, 16)
}
