package c1api

import (
	"errors"
	"fmt"
)

// Bailout aborts one generation unit. It is recoverable: the method keeps
// running in the interpreter and compilation may be retried later.
type Bailout struct {
	// Reason is a short human readable description, such as "code buffer overflow".
	Reason string
	// Unit names the method or stub whose generation was abandoned.
	Unit string
}

// Error implements error.
func (b *Bailout) Error() string {
	if b.Unit == "" {
		return "bailout: " + b.Reason
	}
	return fmt.Sprintf("bailout in %s: %s", b.Unit, b.Reason)
}

// NewBailout returns a *Bailout.
func NewBailout(unit, reason string) *Bailout {
	return &Bailout{Unit: unit, Reason: reason}
}

// IsBailout returns true if err is or wraps a *Bailout.
func IsBailout(err error) bool {
	var b *Bailout
	return errors.As(err, &b)
}

// PreconditionError reports malformed input to the code generator, such as
// aliased operand registers or inconsistent type-check parameters. It is a
// programming error of the caller and is raised with panic.
type PreconditionError struct {
	Msg string
}

// Error implements error.
func (e *PreconditionError) Error() string {
	return "precondition violated: " + e.Msg
}

// Preconditionf panics with a *PreconditionError.
func Preconditionf(format string, args ...interface{}) {
	panic(&PreconditionError{Msg: fmt.Sprintf(format, args...)})
}

// Check panics with a *PreconditionError when assertions are enabled and cond is false.
func Check(cond bool, format string, args ...interface{}) {
	if AssertionsEnabled && !cond {
		Preconditionf(format, args...)
	}
}

// RecoverPrecondition, deferred, turns a *PreconditionError panic into *err.
// Any other panic is raised again.
func RecoverPrecondition(err *error) {
	if r := recover(); r != nil {
		pe, ok := r.(*PreconditionError)
		if !ok {
			panic(r)
		}
		*err = pe
	}
}
