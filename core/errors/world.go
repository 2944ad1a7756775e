// Package errors collects the closed error-kind catalogue used across the
// world runtime. Each subsystem gets its own file so the set stays easy to
// audit; callers match on the sentinel values, never on error strings.
package errors

import stderrors "errors"

// Validation failures surface as ActionRejected events; they are never
// fatal and never abort a tick.
var (
	ErrMalformedAction     = stderrors.New("world: action payload malformed")
	ErrUnknownActionKind   = stderrors.New("world: unknown action kind")
	ErrInsufficientData    = stderrors.New("world: insufficient_resource.data")
	ErrInsufficientPower   = stderrors.New("world: insufficient_resource.power")
	ErrInsufficientCompute = stderrors.New("world: insufficient_resource.compute")
	ErrUnknownAgent        = stderrors.New("world: unknown agent")
	ErrUnknownLocation     = stderrors.New("world: unknown location")
	ErrUnknownAsset        = stderrors.New("world: unknown asset")
	ErrNotOwner            = stderrors.New("world: asset not owned by actor")
)

// ErrInvariantViolation is fatal: it halts the tick and demands a diagnostic
// dump rather than being recovered locally.
type ErrInvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *ErrInvariantViolation) Error() string {
	return "world: invariant violation (" + e.Invariant + "): " + e.Detail
}

// NewInvariantViolation constructs a fatal invariant error.
func NewInvariantViolation(invariant, detail string) error {
	return &ErrInvariantViolation{Invariant: invariant, Detail: detail}
}
