package lsm

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is the only error TableMemory.Create can return. Every
// other precondition miss is a contract violation: the caller (the write
// pipeline) is the designated gatekeeper of capacity and lifecycle
// discipline, and recovering from a violation here would mask a defect
// in that pipeline rather than surface it.
var ErrOutOfMemory = errors.New("lsm: out of memory")

// ContractViolation is panicked when a TableMemory operation is called
// outside its documented precondition: wrong lifecycle state, a Put past
// capacity, or a read that requires a sort the caller skipped. It is
// never returned as an error, matching the distilled specification's
// "fatal, not catchable" propagation policy.
type ContractViolation struct {
	Op    string
	Label string
	Cause string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("lsm: contract violation in %s (%s): %s", e.Op, e.Label, e.Cause)
}

func violate(op, label, cause string) {
	panic(&ContractViolation{Op: op, Label: label, Cause: cause})
}
