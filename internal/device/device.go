package device

import (
	"context"
)

// Advertisement is the subset of a BLE advertisement the discovery layer needs.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
}

// Scanner represents a BLE backend capable of scanning for advertisements
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Characteristic is a discovered GATT characteristic handle.
// Handles are only valid for the connection they were discovered on.
type Characteristic interface {
	ServiceUUID() string
	UUID() string
}

// Peripheral is one connection-oriented remote endpoint.
//
// Connect must honour ctx cancellation by aborting the in-flight attempt.
// State changes caused by Connect, Disconnect or by the link dropping are
// reported to listeners registered with OnStateChange.
type Peripheral interface {
	Address() string
	State() ConnectionState

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	DiscoverCharacteristics(ctx context.Context) ([]Characteristic, error)
	Read(ctx context.Context, char Characteristic) ([]byte, error)
	Write(ctx context.Context, char Characteristic, data []byte, withResponse bool) error

	// OnStateChange registers fn for state changes and returns a func that removes it.
	OnStateChange(fn func(ConnectionState)) (unsubscribe func())
}

// FindCharacteristic looks up a characteristic by service and characteristic UUID.
// Both UUIDs are normalized, so any textual UUID form matches.
func FindCharacteristic(chars []Characteristic, service, uuid string) (Characteristic, error) {
	normalizedService := NormalizeUUID(service)
	normalizedChar := NormalizeUUID(uuid)

	serviceSeen := false
	for _, c := range chars {
		if NormalizeUUID(c.ServiceUUID()) != normalizedService {
			continue
		}
		serviceSeen = true
		if NormalizeUUID(c.UUID()) == normalizedChar {
			return c, nil
		}
	}

	if !serviceSeen {
		return nil, &NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
}
