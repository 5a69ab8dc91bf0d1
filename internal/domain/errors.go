package domain

import "errors"

// Call state conflicts. The control API maps them to 409.
var (
	ErrAlreadyInCall  = errors.New("already in a call")
	ErrNotRinging     = errors.New("no call is ringing")
	ErrCallMismatch   = errors.New("call id does not match the active call")
	ErrNoWaitingCall  = errors.New("no waiting call")
	ErrNotInCall      = errors.New("not in a call")
	ErrAlreadySharing = errors.New("screen share already active")
	ErrNotSharing     = errors.New("screen share not active")
	ErrInvalidParams  = errors.New("invalid call parameters")
)

// Backend failures during call setup. Mapped to 502.
var (
	ErrNoCallID = errors.New("backend did not assign a call id")
	ErrBackend  = errors.New("backend request failed")
)

// Media acquisition failures. Mapped to 422.
var (
	ErrDeviceNotFound           = errors.New("media device not found")
	ErrPermissionDenied         = errors.New("media permission denied")
	ErrDeviceBusy               = errors.New("media device busy")
	ErrConstraintsUnsatisfiable = errors.New("media constraints cannot be satisfied")
	ErrMediaUnknown             = errors.New("media capture failed")
)
