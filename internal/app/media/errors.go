package media

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceClient/internal/domain"
)

type ErrorKind string

const (
	KindDeviceNotFound           ErrorKind = "device-not-found"
	KindPermissionDenied         ErrorKind = "permission-denied"
	KindDeviceBusy               ErrorKind = "device-busy"
	KindConstraintsUnsatisfiable ErrorKind = "constraints-unsatisfiable"
	KindOther                    ErrorKind = "other"
)

var userMessages = map[ErrorKind]string{
	KindDeviceNotFound:           "No microphone or camera was found. Connect a device and try again.",
	KindPermissionDenied:         "Access to the microphone or camera was denied. Allow access and try again.",
	KindDeviceBusy:               "The microphone or camera is being used by another application.",
	KindConstraintsUnsatisfiable: "Your device does not support the requested media settings.",
	KindOther:                    "Could not start the microphone or camera.",
}

var sentinels = map[ErrorKind]error{
	KindDeviceNotFound:           domain.ErrDeviceNotFound,
	KindPermissionDenied:         domain.ErrPermissionDenied,
	KindDeviceBusy:               domain.ErrDeviceBusy,
	KindConstraintsUnsatisfiable: domain.ErrConstraintsUnsatisfiable,
	KindOther:                    domain.ErrMediaUnknown,
}

// Error is a classified capture failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes both the domain sentinel for the kind and the cause.
func (e *Error) Unwrap() []error {
	out := []error{sentinels[e.Kind]}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// UserMessage is the text shown to the user for this failure.
func (e *Error) UserMessage() string {
	if m, ok := userMessages[e.Kind]; ok {
		return m
	}
	return userMessages[KindOther]
}

// Classify maps a device error onto an Error. Devices report failures by
// wrapping the domain media sentinels.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	for _, kind := range []ErrorKind{
		KindDeviceNotFound,
		KindPermissionDenied,
		KindDeviceBusy,
		KindConstraintsUnsatisfiable,
	} {
		if errors.Is(err, sentinels[kind]) {
			return &Error{Kind: kind, Err: err}
		}
	}
	return &Error{Kind: KindOther, Err: err}
}
