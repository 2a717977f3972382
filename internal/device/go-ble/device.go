package goble

import (
	"sync"

	"github.com/go-ble/ble"
)

// DeviceFactory creates the local ble.Device (can be overridden in tests).
// The default implementation is platform specific.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

var (
	deviceMu sync.Mutex
	shared   ble.Device
)

// openDevice returns the adapter shared by scanning and every peripheral,
// creating it on first use.
func openDevice() (ble.Device, error) {
	deviceMu.Lock()
	defer deviceMu.Unlock()

	if shared != nil {
		return shared, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	shared = dev
	return dev, nil
}

// CloseDevice stops the shared adapter, if it was opened.
func CloseDevice() error {
	deviceMu.Lock()
	defer deviceMu.Unlock()

	if shared == nil {
		return nil
	}
	err := shared.Stop()
	shared = nil
	return err
}
