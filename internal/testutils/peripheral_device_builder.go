package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/lilo/internal/device"
)

// FakeCharacteristic is a characteristic handle produced by FakePeripheral.
type FakeCharacteristic struct {
	Service string
	Char    string
}

func (c *FakeCharacteristic) ServiceUUID() string { return c.Service }
func (c *FakeCharacteristic) UUID() string        { return c.Char }

// WriteCall records one Write on a FakePeripheral.
type WriteCall struct {
	Service      string
	UUID         string
	Data         []byte
	WithResponse bool
}

// FakePeripheral is an in-memory device.Peripheral with a configurable GATT
// profile, call counters and failure hooks.
type FakePeripheral struct {
	address string

	mu        sync.Mutex
	state     device.ConnectionState
	chars     []*FakeCharacteristic
	values    map[string][]byte
	listeners map[int]func(device.ConnectionState)
	nextID    int

	connects    int
	disconnects int
	discovers   int
	reads       []string
	writes      []WriteCall
	calls       []string // "connect" and "disconnect" in call order

	// Failure hooks. Set before the peripheral is used.
	ConnectDelay   time.Duration
	ConnectErr     error
	ConnectHang    bool // Connect blocks until its context is done
	DisconnectErr  error
	DisconnectGate <-chan struct{} // Disconnect blocks in Disconnecting until closed
	ReadErr        error
	WriteErr       error
}

func charKey(service, uuid string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(uuid)
}

func (p *FakePeripheral) Address() string { return p.address }

func (p *FakePeripheral) State() device.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *FakePeripheral) Connect(ctx context.Context) error {
	p.mu.Lock()
	p.connects++
	p.calls = append(p.calls, "connect")
	hang, delay, connectErr := p.ConnectHang, p.ConnectDelay, p.ConnectErr
	p.mu.Unlock()

	p.setState(device.Connecting)

	if hang {
		<-ctx.Done()
		p.setState(device.Disconnected)
		return ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			p.setState(device.Disconnected)
			return ctx.Err()
		}
	}
	if connectErr != nil {
		p.setState(device.Disconnected)
		return connectErr
	}

	p.setState(device.Connected)
	return nil
}

func (p *FakePeripheral) Disconnect(_ context.Context) error {
	p.mu.Lock()
	p.disconnects++
	p.calls = append(p.calls, "disconnect")
	disconnectErr, gate := p.DisconnectErr, p.DisconnectGate
	p.mu.Unlock()

	p.setState(device.Disconnecting)
	if gate != nil {
		<-gate
	}
	p.setState(device.Disconnected)
	return disconnectErr
}

func (p *FakePeripheral) DiscoverCharacteristics(_ context.Context) ([]device.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != device.Connected {
		return nil, device.ErrNotConnected
	}
	p.discovers++

	chars := make([]device.Characteristic, 0, len(p.chars))
	for _, c := range p.chars {
		chars = append(chars, c)
	}
	return chars, nil
}

func (p *FakePeripheral) Read(_ context.Context, char device.Characteristic) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != device.Connected {
		return nil, device.ErrNotConnected
	}
	key := charKey(char.ServiceUUID(), char.UUID())
	p.reads = append(p.reads, key)
	if p.ReadErr != nil {
		return nil, p.ReadErr
	}
	return append([]byte{}, p.values[key]...), nil
}

func (p *FakePeripheral) Write(_ context.Context, char device.Characteristic, data []byte, withResponse bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != device.Connected {
		return device.ErrNotConnected
	}
	p.writes = append(p.writes, WriteCall{
		Service:      device.NormalizeUUID(char.ServiceUUID()),
		UUID:         device.NormalizeUUID(char.UUID()),
		Data:         append([]byte{}, data...),
		WithResponse: withResponse,
	})
	if p.WriteErr != nil {
		return p.WriteErr
	}
	p.values[charKey(char.ServiceUUID(), char.UUID())] = append([]byte{}, data...)
	return nil
}

func (p *FakePeripheral) OnStateChange(fn func(device.ConnectionState)) func() {
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

// DropLink simulates the remote side going away.
func (p *FakePeripheral) DropLink() {
	p.setState(device.Disconnected)
}

// Fail moves the peripheral to the Error state.
func (p *FakePeripheral) Fail() {
	p.setState(device.Error)
}

// SetValue replaces the stored value of a characteristic.
func (p *FakePeripheral) SetValue(service, uuid string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[charKey(service, uuid)] = append([]byte{}, value...)
}

// Value returns the stored value of a characteristic.
func (p *FakePeripheral) Value(service, uuid string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte{}, p.values[charKey(service, uuid)]...)
}

func (p *FakePeripheral) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

func (p *FakePeripheral) Disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

func (p *FakePeripheral) Discovers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovers
}

// Reads returns the "service/char" keys of every Read, in order.
// Calls returns connect and disconnect calls in order.
func (p *FakePeripheral) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *FakePeripheral) Reads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.reads...)
}

func (p *FakePeripheral) Writes() []WriteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WriteCall(nil), p.writes...)
}

func (p *FakePeripheral) setState(s device.ConnectionState) {
	p.mu.Lock()
	if p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	listeners := make([]func(device.ConnectionState), 0, len(p.listeners))
	for i := 0; i < p.nextID; i++ {
		if fn, ok := p.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// PeripheralBuilder builds a FakePeripheral with a GATT profile.
type PeripheralBuilder struct {
	address string
	state   device.ConnectionState
	service string
	chars   []*FakeCharacteristic
	values  map[string][]byte
}

// NewPeripheralBuilder creates a builder for a disconnected peripheral at address.
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{
		address: address,
		state:   device.Disconnected,
		values:  make(map[string][]byte),
	}
}

// WithService starts a service; following characteristics belong to it.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.service = uuid
	return b
}

// WithCharacteristic adds a characteristic with an initial value to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid string, value []byte) *PeripheralBuilder {
	if b.service == "" {
		panic("WithCharacteristic called before WithService")
	}
	b.chars = append(b.chars, &FakeCharacteristic{Service: b.service, Char: uuid})
	if value != nil {
		b.values[charKey(b.service, uuid)] = append([]byte{}, value...)
	}
	return b
}

// WithState sets the initial connection state.
func (b *PeripheralBuilder) WithState(s device.ConnectionState) *PeripheralBuilder {
	b.state = s
	return b
}

func (b *PeripheralBuilder) Build() *FakePeripheral {
	values := make(map[string][]byte, len(b.values))
	for k, v := range b.values {
		values[k] = v
	}
	return &FakePeripheral{
		address:   b.address,
		state:     b.state,
		chars:     append([]*FakeCharacteristic(nil), b.chars...),
		values:    values,
		listeners: make(map[int]func(device.ConnectionState)),
	}
}
