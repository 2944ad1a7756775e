package errors

import stderrors "errors"

// Module governance and sandbox failures. A rejected module-change reverts
// the lifecycle transition; it never panics.
var (
	ErrIdentityMismatch      = stderrors.New("module: identity hash mismatch")
	ErrRoleAbiMismatch       = stderrors.New("module: role/abi-contract incoherent")
	ErrActivationConflict    = stderrors.New("module: another module of this kind is already active for this game mode")
	ErrShadowValidationFail  = stderrors.New("module: shadow validation failed on target post-state")
	ErrFuelExhausted         = stderrors.New("module: fuel_exhausted")
	ErrModuleMemoryExceeded  = stderrors.New("module: memory limit exceeded")
	ErrModuleTimeExceeded    = stderrors.New("module: wall-clock budget exceeded")
	ErrModuleOutputTooLarge  = stderrors.New("module: output size exceeds limit")
	ErrDirectiveRejected     = stderrors.New("module: directive rejected")
	ErrModuleNotActive       = stderrors.New("module: module not active")
	ErrInsufficientPowerBill = stderrors.New("module: insufficient power balance for metered call")
)
