package dapi

import (
	"errors"
	"fmt"

	"github.com/blockberries/dapi/types"
)

// Validation failure reasons.
const (
	ReasonMissingPacket       = "missing packet"
	ReasonDecode              = "decode error"
	ReasonHeaderDecode        = "header decode error"
	ReasonFingerprintMismatch = "fingerprint mismatch"
	ReasonInvalidArgument     = "invalid argument"
)

// ValidationError reports malformed or inconsistent input. No backend
// has been called when a ValidationError is returned.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dapi: %s: %v", e.Reason, e.Err)
	}
	return "dapi: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a ValidationError with an optional cause.
func NewValidationError(reason string, cause error) *ValidationError {
	return &ValidationError{Reason: reason, Err: cause}
}

// IsValidation checks whether an error is a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// Stage names the backend step of a submission.
type Stage uint8

const (
	StageStore Stage = iota + 1
	StageBroadcast
)

func (s Stage) String() string {
	switch s {
	case StageStore:
		return "store"
	case StageBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// BackendError reports a failure of the packet store or the ledger
// node.
//
// A broadcast failure leaves the packet in the store with nothing on
// the ledger referencing it. PacketStored and Fingerprint let an
// operator reconcile that; nothing removes the packet automatically.
type BackendError struct {
	Stage        Stage
	PacketStored bool
	Fingerprint  types.Hash
	Err          error
}

func (e *BackendError) Error() string {
	if e.PacketStored {
		return fmt.Sprintf("dapi: %s failed (packet %s already stored): %v", e.Stage, e.Fingerprint, e.Err)
	}
	return fmt.Sprintf("dapi: %s failed: %v", e.Stage, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackend checks whether an error is a BackendError and returns it.
func IsBackend(err error) (*BackendError, bool) {
	var b *BackendError
	if errors.As(err, &b) {
		return b, true
	}
	return nil, false
}
