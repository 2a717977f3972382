// Package device defines the transport contracts the LILO driver is built on.
//
// It holds:
//   - the Peripheral and Characteristic contracts a BLE backend must satisfy
//   - the closed ConnectionState enum shared by transports and the connection state machine
//   - the error taxonomy (timeouts, terminal error state, missing characteristics, closed queues)
//   - UUID normalisation so lookups do not depend on the textual UUID form
//
// Concrete go-ble backed implementations live in the go-ble subpackage.
package device
