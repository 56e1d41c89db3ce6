package c1api

// Debug switches of the backend, kept together so that turning one on does not
// require hunting for it.

// ----- Output prints -----
// These consts must be disabled by default. Enable them only when debugging.

const (
	PrintLIR                  = false
	PrintFinalizedMachineCode = false
)

// ----- Validations -----

const (
	// AssertionsEnabled turns on the checks which raise PreconditionError for
	// malformed input. Production builds assume well-formed LIR and may turn
	// this off.
	AssertionsEnabled = true
	// BlockCommentsEnabled records block comments in the assembler listing.
	BlockCommentsEnabled = true
)
