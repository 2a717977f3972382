package main

import (
	"context"
	"errors"

	"github.com/srg/lilo/internal/device"
)

// communicationError marks a failure talking to a timer. Users get a short
// reason; the wrapped error goes to the debug log.
type communicationError struct {
	err error
}

func (e *communicationError) Error() string { return e.err.Error() }
func (e *communicationError) Unwrap() error { return e.err }

func communication(err error) error {
	if err == nil {
		return nil
	}
	return &communicationError{err: err}
}

// FormatUserError renders err for the terminal.
func FormatUserError(err error) string {
	var comm *communicationError
	if !errors.As(err, &comm) {
		return err.Error()
	}
	return "communication failure: " + failureReason(comm.err)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "bluetooth is turned off"
	case errors.Is(err, device.ErrConnectTimeout):
		return "device did not respond"
	case errors.Is(err, device.ErrCommandTimeout):
		return "command timed out"
	case errors.Is(err, device.ErrPeripheralInErrorState):
		return "bluetooth adapter unavailable"
	case errors.Is(err, device.ErrCharacteristicNotFound):
		return "not supported by this device"
	case errors.Is(err, device.ErrNotConnected):
		return "connection lost"
	case errors.Is(err, device.ErrQueueClosed):
		return "driver closed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return "unexpected device error"
	}
}
