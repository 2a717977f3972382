package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/lilo/internal/device"
)

// advertisementSource is the shared adapter seen as a device.Scanner.
type advertisementSource struct {
	dev ble.Device
}

// NewScanner returns a device.Scanner reading from the shared adapter.
func NewScanner() (device.Scanner, error) {
	dev, err := openDevice()
	if err != nil {
		return nil, device.NormalizeError(err)
	}
	return &advertisementSource{dev: dev}, nil
}

func (s *advertisementSource) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	return device.NormalizeError(s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(snapshot(adv))
	}))
}
