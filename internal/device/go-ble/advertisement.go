package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/lilo/internal/device"
)

// advertisement is a copy of one received ble.Advertisement. Handlers may
// keep it after the scan callback returns.
type advertisement struct {
	name        string
	addr        string
	rssi        int
	connectable bool
	services    []string
}

func snapshot(adv ble.Advertisement) device.Advertisement {
	a := &advertisement{
		name:        adv.LocalName(),
		rssi:        adv.RSSI(),
		connectable: adv.Connectable(),
	}
	if addr := adv.Addr(); addr != nil {
		a.addr = normalizeAddress(addr.String())
	}
	for _, svc := range adv.Services() {
		a.services = append(a.services, device.NormalizeUUID(svc.String()))
	}
	return a
}

func (a *advertisement) LocalName() string  { return a.name }
func (a *advertisement) Addr() string       { return a.addr }
func (a *advertisement) RSSI() int          { return a.rssi }
func (a *advertisement) Connectable() bool  { return a.connectable }
func (a *advertisement) Services() []string { return a.services }
