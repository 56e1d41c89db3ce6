package backend

import "fmt"

// RuntimeEntry names a routine of the runtime which generated code calls out to.
// The routines live outside the code generator; their addresses are supplied
// through RuntimeEntries.
type RuntimeEntry byte

const (
	EntryInvalid RuntimeEntry = iota
	// EntryHandleException dispatches the exception in x10 thrown at the pc in x13.
	EntryHandleException
	// EntryHandleExceptionNoFPU is EntryHandleException for methods which do not touch float registers.
	EntryHandleExceptionNoFPU
	// EntryUnwindException continues unwinding into the caller.
	EntryUnwindException
	// EntryForwardException forwards the pending exception of the thread.
	EntryForwardException
	// EntryICMiss resolves an inline cache miss.
	EntryICMiss
	// EntrySlowSubtypeCheck walks the secondary supers of a type.
	EntrySlowSubtypeCheck
	EntryMonitorEnter
	EntryMonitorExit
	EntryNewInstance
	EntryNewTypeArray
	EntryNewObjectArray
	EntryThrowRangeCheck
	EntryThrowDivZero
	EntryThrowNullPointer
	EntryThrowClassCast
	EntryThrowArrayStore
	// EntryFixupCallersCallsite patches a caller which still calls through the interpreter.
	EntryFixupCallersCallsite
	// EntryCompleteMonitorLockingC and EntryCompleteMonitorUnlockingC are the slow paths of native wrappers.
	EntryCompleteMonitorLockingC
	EntryCompleteMonitorUnlockingC
	// EntryCheckSpecialConditionForNativeTrans blocks a thread returning from native during a safepoint.
	EntryCheckSpecialConditionForNativeTrans
	EntryReguardYellowPages
	EntryFetchUnrollInfo
	EntryUnpackFrames
	// EntryHandlePollingPageException is called by the safepoint handler blob.
	EntryHandlePollingPageException
	// EntryResolveStaticCall and EntryResolveVirtualCall are called by the resolve blobs.
	EntryResolveStaticCall
	EntryResolveVirtualCall
	// EntryICMissStub is the shared code which unverified entries jump to on a receiver mismatch.
	EntryICMissStub
	// EntryDeoptBlobUnpack is the deoptimization entry installed in compiled code.
	EntryDeoptBlobUnpack
	// EntrySafepointHandler is the safepoint handler blob which poll stubs jump to.
	EntrySafepointHandler
	numRuntimeEntries
)

var runtimeEntryNames = [numRuntimeEntries]string{
	EntryInvalid:                             "invalid",
	EntryHandleException:                     "handle_exception",
	EntryHandleExceptionNoFPU:                "handle_exception_nofpu",
	EntryUnwindException:                     "unwind_exception",
	EntryForwardException:                    "forward_exception",
	EntryICMiss:                              "ic_miss",
	EntrySlowSubtypeCheck:                    "slow_subtype_check",
	EntryMonitorEnter:                        "monitorenter",
	EntryMonitorExit:                         "monitorexit",
	EntryNewInstance:                         "new_instance",
	EntryNewTypeArray:                        "new_type_array",
	EntryNewObjectArray:                      "new_object_array",
	EntryThrowRangeCheck:                     "throw_range_check",
	EntryThrowDivZero:                        "throw_div0",
	EntryThrowNullPointer:                    "throw_null_pointer",
	EntryThrowClassCast:                      "throw_class_cast",
	EntryThrowArrayStore:                     "throw_array_store",
	EntryFixupCallersCallsite:                "fixup_callers_callsite",
	EntryCompleteMonitorLockingC:             "complete_monitor_locking_C",
	EntryCompleteMonitorUnlockingC:           "complete_monitor_unlocking_C",
	EntryCheckSpecialConditionForNativeTrans: "check_special_condition_for_native_trans",
	EntryReguardYellowPages:                  "reguard_yellow_pages",
	EntryFetchUnrollInfo:                     "fetch_unroll_info",
	EntryUnpackFrames:                        "unpack_frames",
	EntryHandlePollingPageException:          "handle_polling_page_exception",
	EntryResolveStaticCall:                   "resolve_static_call",
	EntryResolveVirtualCall:                  "resolve_virtual_call",
	EntryICMissStub:                          "ic_miss_stub",
	EntryDeoptBlobUnpack:                     "deopt_blob_unpack",
	EntrySafepointHandler:                    "safepoint_handler",
}

// String implements fmt.Stringer.
func (e RuntimeEntry) String() string {
	if e < numRuntimeEntries {
		return runtimeEntryNames[e]
	}
	return fmt.Sprintf("entry(%d)", byte(e))
}

// RuntimeEntryFromString is the inverse of RuntimeEntry.String.
func RuntimeEntryFromString(s string) (RuntimeEntry, bool) {
	for i, n := range runtimeEntryNames {
		if n == s && RuntimeEntry(i) != EntryInvalid {
			return RuntimeEntry(i), true
		}
	}
	return EntryInvalid, false
}

// AllRuntimeEntries returns every valid RuntimeEntry.
func AllRuntimeEntries() []RuntimeEntry {
	ret := make([]RuntimeEntry, 0, numRuntimeEntries-1)
	for e := EntryInvalid + 1; e < numRuntimeEntries; e++ {
		ret = append(ret, e)
	}
	return ret
}

// RuntimeEntries maps entries to absolute addresses.
type RuntimeEntries struct {
	addrs [numRuntimeEntries]uint64
}

// Set records the address of e.
func (r *RuntimeEntries) Set(e RuntimeEntry, addr uint64) {
	r.addrs[e] = addr
}

// Address returns the address of e. It panics when e was never set, since
// calling address zero can only be a configuration bug.
func (r *RuntimeEntries) Address(e RuntimeEntry) uint64 {
	a := r.addrs[e]
	if a == 0 {
		panic(fmt.Sprintf("BUG: runtime entry %s has no address", e))
	}
	return a
}

// Lookup returns the entry installed at addr.
func (r *RuntimeEntries) Lookup(addr uint64) (RuntimeEntry, bool) {
	for i, a := range r.addrs {
		if a == addr && a != 0 {
			return RuntimeEntry(i), true
		}
	}
	return EntryInvalid, false
}

// SyntheticRuntimeEntries returns entries at distinct, 16-byte aligned
// addresses starting at base. It is used by tools and tests which never run
// the runtime routines for real.
func SyntheticRuntimeEntries(base uint64) *RuntimeEntries {
	r := &RuntimeEntries{}
	for _, e := range AllRuntimeEntries() {
		r.Set(e, base+uint64(e)*16)
	}
	return r
}
