package network

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDesignSnapshot is returned by off-design solves when no design
	// snapshot is supplied.
	ErrNoDesignSnapshot = errors.New("network: off-design solve requires a design snapshot")

	// ErrStaleSnapshot is returned when a snapshot was captured on a
	// different topology revision than the one being solved.
	ErrStaleSnapshot = errors.New("network: design snapshot is stale, topology changed since capture")
)

// SpecificationError reports an inconsistent or incomplete set of user
// specifications: an over-determined stream, a parameter conflict, or a
// system whose unknown and equation counts do not match. It is always
// detected before iterating starts.
type SpecificationError struct {
	Context string // stream or component label, or "system"
	Reason  string

	// unknown/equation counts for system-level errors, zero otherwise
	NbUnknowns  int
	NbEquations int
}

func (e *SpecificationError) Error() string {
	if e.NbUnknowns != 0 || e.NbEquations != 0 {
		return fmt.Sprintf("network: %s: %s (%d unknowns, %d equations)", e.Context, e.Reason, e.NbUnknowns, e.NbEquations)
	}
	if e.Context == "" || e.Context == "network" {
		return "network: " + e.Reason
	}
	return fmt.Sprintf("network: %s: %s", e.Context, e.Reason)
}

// StructuralError reports a malformed topology: dangling ports, duplicate
// bindings, unresolvable compositions or a closed loop without a cycle
// closer.
type StructuralError struct {
	Context string
	Reason  string
}

func (e *StructuralError) Error() string {
	if e.Context == "" || e.Context == "network" {
		return "network: " + e.Reason
	}
	return fmt.Sprintf("network: %s: %s", e.Context, e.Reason)
}
