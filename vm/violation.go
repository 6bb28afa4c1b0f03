package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/sjsrt/vm/types"
)

// Reason classifies a type violation.
type Reason uint8

const (
	// ReasonTagMismatch: a value does not have the required type.
	ReasonTagMismatch Reason = iota + 1
	// ReasonMissingProperty: a migration found no value for a required
	// property anywhere on the prototype chain.
	ReasonMissingProperty
	// ReasonSlotBudget: a migration needed more fixed slots than the
	// object has.
	ReasonSlotBudget
	// ReasonCapacity: a bounded stack (coercion depth, subtyping
	// hypotheses, argument stack) overflowed.
	ReasonCapacity
	// ReasonArity: a call passed the wrong number of arguments.
	ReasonArity
	// ReasonNotCallable: a call target is not a closure.
	ReasonNotCallable
)

var reasonNames = [...]string{
	ReasonTagMismatch:     "tag mismatch",
	ReasonMissingProperty: "missing property",
	ReasonSlotBudget:      "slot budget exceeded",
	ReasonCapacity:        "capacity exhausted",
	ReasonArity:           "arity mismatch",
	ReasonNotCallable:     "not callable",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) && reasonNames[r] != "" {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", r)
}

// TypeViolation is the one fatal error of the runtime. It is raised with
// panic after the fail-stop flag has been set.
type TypeViolation struct {
	Reason Reason
	Detail string
}

func (e *TypeViolation) Error() string {
	return "type violation: " + e.Reason.String() + ": " + e.Detail
}

// violate sets the fail-stop flag, logs, and panics with a *TypeViolation.
func (rt *Runtime) violate(reason Reason, format string, args ...any) {
	tv := &TypeViolation{Reason: reason, Detail: fmt.Sprintf(format, args...)}
	rt.dirty = true
	rt.log.Critical(tv.Error(), "session", rt.session, "reason", reason.String())
	panic(tv)
}

// Protect runs fn and returns the *TypeViolation it raised, if any. Other
// panics propagate. The fail-stop flag stays set; Protect only lets a host
// report the failure instead of crashing. Arguments pushed inside fn are
// discarded.
func (rt *Runtime) Protect(fn func()) (err error) {
	nargs, depth := len(rt.args), rt.depth
	defer func() {
		if r := recover(); r != nil {
			tv, ok := r.(*TypeViolation)
			if !ok {
				panic(r)
			}
			if len(rt.args) > nargs {
				rt.args = rt.args[:nargs]
			}
			rt.depth = depth
			err = tv
		}
	}()
	fn()
	return nil
}

// TryCoerce is Coerce for hosts: a violation is returned as an error.
func (rt *Runtime) TryCoerce(v Value, t *types.Tag) (out Value, err error) {
	err = rt.Protect(func() { out = rt.Coerce(v, t) })
	return out, err
}

// AsViolation extracts a *TypeViolation from err.
func AsViolation(err error) (*TypeViolation, bool) {
	var tv *TypeViolation
	ok := errors.As(err, &tv)
	return tv, ok
}

// describe renders a value with its record kind and type for messages.
func (rt *Runtime) describe(v Value) string {
	r := rt.Record(v)
	if r == nil {
		return v.String()
	}
	if r.tag == nil {
		return fmt.Sprintf("untyped %s %s", r.Kind, v)
	}
	return fmt.Sprintf("%s %s: %s", r.Kind, v, rt.FormatTag(r.tag))
}
