//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/lilo/internal/device"
)

func newDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: BLE on %s", device.ErrUnsupported, runtime.GOOS)
}
