// Package lilo drives the LILO garden light timer.
//
// Every attribute access runs as one command on the peripheral's queue, which
// opens the BLE connection on demand and releases it after an idle period.
// Characteristic handles are discovered once per connection and dropped when
// the link goes down.
package lilo

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/connection"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/queue"
)

// LocalName is the advertised local name of every LILO timer.
const LocalName = "LILO"

// IsLilo reports whether adv comes from a LILO timer.
func IsLilo(adv device.Advertisement) bool {
	return adv != nil && adv.LocalName() == LocalName
}

// Options configures a driver. Zero values fall back to package defaults.
type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	IdleTimeout    time.Duration

	// Now returns the wall clock used to synchronise the device clock.
	Now func() time.Time
}

// Lilo is the driver for one LILO timer.
type Lilo struct {
	peripheral device.Peripheral
	machine    *connection.Machine
	queue      *queue.Queue
	logger     *logrus.Logger
	now        func() time.Time

	mu    sync.Mutex
	chars []device.Characteristic // nil until discovered on the current connection
}

// New creates a driver for peripheral. No connection is made until the first command.
func New(peripheral device.Peripheral, opts Options, logger *logrus.Logger) *Lilo {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Lilo{
		peripheral: peripheral,
		logger:     logger,
		now:        opts.Now,
	}

	l.machine = connection.NewMachine(peripheral, connection.Options{
		ConnectTimeout: opts.ConnectTimeout,
	}, logger)
	l.machine.OnTransition(func(_, to device.ConnectionState) {
		if to == device.Disconnected || to.IsTerminal() {
			l.invalidate()
		}
	})

	l.queue = queue.New(l.machine, queue.Options{
		Name:           peripheral.Address(),
		CommandTimeout: opts.CommandTimeout,
		IdleTimeout:    opts.IdleTimeout,
	}, logger)

	return l
}

func (l *Lilo) Address() string {
	return l.peripheral.Address()
}

// State returns the connection state of the underlying peripheral.
func (l *Lilo) State() device.ConnectionState {
	return l.machine.State()
}

// Close drains queued commands, releases the connection and detaches from the
// peripheral. Commands issued afterwards fail with device.ErrQueueClosed.
func (l *Lilo) Close(ctx context.Context) error {
	err := l.queue.Close(ctx)
	l.machine.Close()

	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"address": l.Address(),
			"error":   err,
		}).Warn("Closed with errors")
		return err
	}
	l.logger.WithField("address", l.Address()).Debug("Closed")
	return nil
}

func (l *Lilo) invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.chars != nil {
		l.logger.WithField("address", l.Address()).Debug("Dropping characteristic cache")
	}
	l.chars = nil
}

// characteristic locates a characteristic, discovering the profile on first use
// after each connect. Only called from queue commands.
func (l *Lilo) characteristic(ctx context.Context, service, uuid string) (device.Characteristic, error) {
	l.mu.Lock()
	chars := l.chars
	l.mu.Unlock()

	if chars == nil {
		discovered, err := l.peripheral.DiscoverCharacteristics(ctx)
		if err != nil {
			return nil, device.NormalizeError(err)
		}
		l.logger.WithFields(logrus.Fields{
			"address":         l.Address(),
			"characteristics": len(discovered),
		}).Debug("Discovered characteristics")

		l.mu.Lock()
		l.chars = discovered
		l.mu.Unlock()
		chars = discovered
	}

	return device.FindCharacteristic(chars, service, uuid)
}
