package device

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// Is makes every NotFoundError match ErrCharacteristicNotFound, so callers can
// treat a missing service and a missing characteristic alike.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrCharacteristicNotFound
}

// ConnectionFault represents the specific kind of connection failure
type ConnectionFault string

const (
	NotConnected     ConnectionFault = "not_connected"
	AlreadyConnected ConnectionFault = "already_connected"
	ConnectTimeout   ConnectionFault = "connect_timeout"
	InErrorState     ConnectionFault = "peripheral_in_error_state"
	BluetoothOff     ConnectionFault = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	Fault ConnectionFault
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Fault)
	}
	return fmt.Sprintf("%s: %s", e.Fault, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by Fault
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.Fault == t.Fault
}

// Predefined sentinel errors for connection faults
var (
	ErrNotConnected     = &ConnectionError{Fault: NotConnected}
	ErrAlreadyConnected = &ConnectionError{Fault: AlreadyConnected}
	ErrConnectTimeout   = &ConnectionError{Fault: ConnectTimeout}
	ErrBluetoothOff     = &ConnectionError{Fault: BluetoothOff}

	// ErrPeripheralInErrorState is terminal: the handle must be discarded and re-acquired.
	ErrPeripheralInErrorState = &ConnectionError{Fault: InErrorState}
)

// Operation errors
var (
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrCommandTimeout         = errors.New("command timed out")
	ErrQueueClosed            = errors.New("queue closed, dropping command")
	ErrUnsupported            = errors.New("unsupported")
)

// MalformedPayloadError reports an attribute payload with an unexpected length.
// It never reaches driver callers: the driver logs it and reports the value as unknown.
type MalformedPayloadError struct {
	Attribute string
	Want      int
	Payload   []byte
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: want %d bytes, got %d (%s)",
		e.Attribute, e.Want, len(e.Payload), hex.EncodeToString(e.Payload))
}

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "central manager has invalid state"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionFault reports whether err is a ConnectionError with the given fault
func IsConnectionFault(err error, fault ConnectionFault) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.Fault == fault
	}
	return false
}
