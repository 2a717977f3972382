package device

import "fmt"

// ConnectionState is the connection state of one peripheral handle.
type ConnectionState uint8

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
	Error
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("ConnectionState(%d)", uint8(s))
	}
}

// IsTerminal reports whether no further transition out of the state is possible.
func (s ConnectionState) IsTerminal() bool {
	return s == Error
}
