package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/groutine"
)

// gattClient is the part of ble.Client the peripheral uses.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// errDeviceUnavailable marks failures to open the local BLE adapter.
var errDeviceUnavailable = errors.New("BLE adapter unavailable")

// dial connects to address through the shared adapter (can be overridden in tests).
var dial = func(ctx context.Context, address string) (gattClient, error) {
	dev, err := openDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDeviceUnavailable, err)
	}
	return dev.Dial(ctx, ble.NewAddr(address))
}

// characteristic is a discovered handle, valid for the connection that discovered it.
type characteristic struct {
	service string
	raw     *ble.Characteristic
}

func (c *characteristic) ServiceUUID() string { return c.service }
func (c *characteristic) UUID() string        { return device.NormalizeUUID(c.raw.UUID.String()) }

// Peripheral implements device.Peripheral on top of go-ble.
type Peripheral struct {
	address string
	logger  *logrus.Logger

	mu        sync.Mutex
	state     device.ConnectionState
	client    gattClient
	done      chan struct{} // closed when the current client is released
	listeners map[int]func(device.ConnectionState)
	nextID    int
}

// NewPeripheral creates a disconnected peripheral for address.
func NewPeripheral(address string, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{
		address:   normalizeAddress(address),
		logger:    logger,
		listeners: make(map[int]func(device.ConnectionState)),
	}
}

func normalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

func (p *Peripheral) Address() string { return p.address }

func (p *Peripheral) State() device.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect dials the peripheral. ctx bounds the dial; cancelling it aborts the attempt.
// Failing to open the local adapter moves the peripheral to the Error state.
func (p *Peripheral) Connect(ctx context.Context) error {
	if p.address == "" {
		return fmt.Errorf("device address is empty")
	}

	p.mu.Lock()
	if p.client != nil {
		p.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	p.mu.Unlock()

	p.setState(device.Connecting)
	p.logger.WithField("address", p.address).Debug("Dialing BLE device...")

	client, err := dial(ctx, p.address)
	if err != nil {
		if errors.Is(err, errDeviceUnavailable) {
			p.logger.WithField("error", err).Error("Failed to create BLE device")
			p.setState(device.Error)
			return device.NormalizeError(err)
		}
		p.setState(device.Disconnected)
		return fmt.Errorf("failed to connect to device with address %q: %w", p.address, device.NormalizeError(err))
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.client = client
	p.done = done
	p.mu.Unlock()

	p.setState(device.Connected)
	p.monitor(client, done)
	return nil
}

// monitor watches the client's Disconnected channel, when the platform provides one.
func (p *Peripheral) monitor(client gattClient, done chan struct{}) {
	watcher, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		p.logger.Debug("Client does not support Disconnected() channel")
		return
	}

	groutine.Go(context.Background(), "ble-connection-monitor:"+p.address, func(ctx context.Context) {
		select {
		case <-watcher.Disconnected():
			p.linkLost(client)
		case <-done:
		}
	})
}

func (p *Peripheral) linkLost(client gattClient) {
	p.mu.Lock()
	if p.client != client {
		p.mu.Unlock()
		return
	}
	p.client = nil
	close(p.done)
	p.done = nil
	p.mu.Unlock()

	p.logger.WithField("address", p.address).Warn("Peripheral reported disconnection")
	p.setState(device.Disconnected)
}

// Disconnect cancels the current connection.
func (p *Peripheral) Disconnect(_ context.Context) error {
	p.mu.Lock()
	client, done := p.client, p.done
	p.client, p.done = nil, nil
	p.mu.Unlock()

	if client == nil {
		p.logger.WithField("address", p.address).Debug("Disconnect called but already disconnected")
		p.setState(device.Disconnected)
		return nil
	}

	p.setState(device.Disconnecting)
	close(done)
	err := client.CancelConnection()
	p.setState(device.Disconnected)

	if err != nil {
		p.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return device.NormalizeError(err)
	}
	return nil
}

func (p *Peripheral) current() (gattClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, device.ErrNotConnected
	}
	return p.client, nil
}

// DiscoverCharacteristics discovers the full GATT profile of the connected peripheral.
func (p *Peripheral) DiscoverCharacteristics(_ context.Context) ([]device.Characteristic, error) {
	client, err := p.current()
	if err != nil {
		return nil, err
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}

	var chars []device.Characteristic
	for _, svc := range profile.Services {
		serviceUUID := device.NormalizeUUID(svc.UUID.String())
		for _, c := range svc.Characteristics {
			chars = append(chars, &characteristic{service: serviceUUID, raw: c})
		}
	}

	p.logger.WithFields(logrus.Fields{
		"address":         p.address,
		"services":        len(profile.Services),
		"characteristics": len(chars),
	}).Debug("Profile discovered successfully")
	return chars, nil
}

func (p *Peripheral) handle(char device.Characteristic) (*characteristic, error) {
	c, ok := char.(*characteristic)
	if !ok || c.raw == nil {
		return nil, fmt.Errorf("characteristic %s was not discovered by this peripheral", char.UUID())
	}
	return c, nil
}

func (p *Peripheral) Read(_ context.Context, char device.Characteristic) ([]byte, error) {
	client, err := p.current()
	if err != nil {
		return nil, err
	}
	c, err := p.handle(char)
	if err != nil {
		return nil, err
	}

	data, err := client.ReadCharacteristic(c.raw)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.UUID(), device.NormalizeError(err))
	}
	return data, nil
}

func (p *Peripheral) Write(_ context.Context, char device.Characteristic, data []byte, withResponse bool) error {
	client, err := p.current()
	if err != nil {
		return err
	}
	c, err := p.handle(char)
	if err != nil {
		return err
	}

	if err := client.WriteCharacteristic(c.raw, data, !withResponse); err != nil {
		return fmt.Errorf("write %s: %w", c.UUID(), device.NormalizeError(err))
	}
	return nil
}

func (p *Peripheral) OnStateChange(fn func(device.ConnectionState)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Peripheral) setState(s device.ConnectionState) {
	p.mu.Lock()
	if p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	listeners := make([]func(device.ConnectionState), 0, len(p.listeners))
	for id := 0; id < p.nextID; id++ {
		if fn, ok := p.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
