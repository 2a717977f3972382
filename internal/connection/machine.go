// Package connection drives the connection of a single peripheral through the
// Disconnected, Connecting, Connected, Disconnecting and Error states.
//
// The Machine is the only component allowed to call Connect and Disconnect on
// a device.Peripheral. It mirrors transport state reports into a stateless
// transition table, so the current state is always the result of a permitted
// transition and never of an ad-hoc assignment.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/device"
)

// DefaultConnectTimeout bounds a single transport connect attempt.
const DefaultConnectTimeout = 90 * time.Second

type trigger string

const (
	triggerDial     trigger = "dial"
	triggerLinkUp   trigger = "link_up"
	triggerHangup   trigger = "hangup"
	triggerLinkDown trigger = "link_down"
	triggerFault    trigger = "fault"
)

// triggerFor maps a transport-reported state to the trigger that leads into it.
func triggerFor(s device.ConnectionState) trigger {
	switch s {
	case device.Connecting:
		return triggerDial
	case device.Connected:
		return triggerLinkUp
	case device.Disconnecting:
		return triggerHangup
	case device.Error:
		return triggerFault
	default:
		return triggerLinkDown
	}
}

// Options configures a Machine.
type Options struct {
	ConnectTimeout time.Duration
}

// TransitionFunc observes a state change.
type TransitionFunc func(from, to device.ConnectionState)

// Machine tracks and drives one peripheral's connection.
type Machine struct {
	peripheral     device.Peripheral
	logger         *logrus.Logger
	connectTimeout time.Duration

	mu        sync.Mutex
	state     device.ConnectionState
	fsm       *stateless.StateMachine
	changed   chan struct{} // closed and replaced on every state change
	listeners []TransitionFunc

	unsubscribe func()
}

// NewMachine creates a Machine for peripheral, starting from the state the transport reports.
func NewMachine(peripheral device.Peripheral, opts Options, logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	m := &Machine{
		peripheral:     peripheral,
		logger:         logger,
		connectTimeout: opts.ConnectTimeout,
		state:          peripheral.State(),
		changed:        make(chan struct{}),
	}
	m.fsm = newTransitionTable(m)
	m.unsubscribe = peripheral.OnStateChange(m.observe)

	return m
}

// newTransitionTable configures every (state, trigger) pair. Pairs left out are
// unreachable through Connect/Disconnect and are reported by Fire as errors.
func newTransitionTable(m *Machine) *stateless.StateMachine {
	fsm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) { return m.state, nil },
		func(_ context.Context, s stateless.State) error {
			m.state = s.(device.ConnectionState)
			return nil
		},
		stateless.FiringImmediate,
	)

	fsm.Configure(device.Disconnected).
		Permit(triggerDial, device.Connecting).
		Permit(triggerLinkUp, device.Connected).
		Permit(triggerFault, device.Error).
		Ignore(triggerLinkDown).
		Ignore(triggerHangup)

	fsm.Configure(device.Connecting).
		Permit(triggerLinkUp, device.Connected).
		Permit(triggerLinkDown, device.Disconnected).
		Permit(triggerHangup, device.Disconnecting).
		Permit(triggerFault, device.Error).
		Ignore(triggerDial)

	fsm.Configure(device.Connected).
		Permit(triggerHangup, device.Disconnecting).
		Permit(triggerLinkDown, device.Disconnected).
		Permit(triggerFault, device.Error).
		Ignore(triggerDial).
		Ignore(triggerLinkUp)

	// A dial while a disconnect is still running never happens: Connect waits it out.
	fsm.Configure(device.Disconnecting).
		Permit(triggerLinkDown, device.Disconnected).
		Permit(triggerLinkUp, device.Connected).
		Permit(triggerFault, device.Error).
		Ignore(triggerHangup)

	// Error is terminal; Connect refuses to dial from it.
	fsm.Configure(device.Error).
		Ignore(triggerLinkUp).
		Ignore(triggerLinkDown).
		Ignore(triggerHangup).
		Ignore(triggerFault)

	return fsm
}

// State returns the current connection state.
func (m *Machine) State() device.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTransition registers fn to be called after every state change.
// Listeners run outside the machine lock, in registration order.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Close detaches the machine from transport state reports.
func (m *Machine) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Connect brings the peripheral to Connected.
//
//   - Connected: returns immediately.
//   - Connecting: waits for the attempt in flight, without dialing again.
//   - Disconnecting: waits for the disconnect to finish, then retries.
//   - Disconnected: dials, bounded by the connect timeout.
//   - Error: fails with device.ErrPeripheralInErrorState.
func (m *Machine) Connect(ctx context.Context) error {
	address := m.peripheral.Address()

	for {
		state, changed, claimed := m.claimDial()
		if claimed {
			return m.dial(ctx)
		}

		switch state {
		case device.Connected:
			m.logger.WithField("address", address).Debug("Already connected")
			return nil

		case device.Error:
			m.logger.WithField("address", address).Warn("Peripheral is in error state")
			return fmt.Errorf("connect %s: %w", address, device.ErrPeripheralInErrorState)

		case device.Connecting:
			m.logger.WithField("address", address).Debug("Waiting for connection in progress")
			if err := m.waitChange(ctx, changed, m.connectTimeout); err != nil {
				return err
			}

		case device.Disconnecting:
			m.logger.WithField("address", address).Debug("Waiting for disconnect to finish before reconnecting")
			if err := m.waitChange(ctx, changed, m.connectTimeout); err != nil {
				return err
			}

		default:
			return fmt.Errorf("connect %s: unexpected state %s", address, state)
		}
	}
}

// dial issues one transport connect attempt. The caller has already moved the
// machine to Connecting.
func (m *Machine) dial(ctx context.Context) error {
	address := m.peripheral.Address()

	m.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": m.connectTimeout,
	}).Info("Connecting to peripheral...")

	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- m.peripheral.Connect(dialCtx)
	}()

	var err error
	select {
	case err = <-result:
	case <-dialCtx.Done():
		err = dialCtx.Err()
	}

	if err == nil {
		m.fire(triggerLinkUp)
		m.logger.WithField("address", address).Info("Peripheral connected")
		return nil
	}

	// Cancelling dialCtx (deferred) aborts the attempt still in flight.
	if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"timeout": m.connectTimeout,
		}).Warn("Timeout connecting to peripheral")
		m.resync(device.Disconnected)
		return &device.ConnectionError{
			Fault: device.ConnectTimeout,
			Msg:   fmt.Sprintf("%s after %v", address, m.connectTimeout),
		}
	}

	m.logger.WithFields(logrus.Fields{
		"address": address,
		"error":   err,
	}).Error("Failed to connect to peripheral")
	m.resync(m.peripheral.State())
	return fmt.Errorf("connect %s: %w", address, err)
}

// Disconnect releases the connection. It is a no-op when already
// Disconnected or Disconnecting.
func (m *Machine) Disconnect(ctx context.Context) error {
	address := m.peripheral.Address()

	switch m.State() {
	case device.Disconnected, device.Disconnecting:
		m.logger.WithField("address", address).Debug("Disconnect called but already disconnected")
		return nil
	}

	m.fire(triggerHangup)
	m.logger.WithField("address", address).Info("Disconnecting from peripheral...")

	if err := m.peripheral.Disconnect(ctx); err != nil {
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Peripheral disconnected with errors")
		m.resync(m.peripheral.State())
		return fmt.Errorf("disconnect %s: %w", address, err)
	}

	m.fire(triggerLinkDown)
	m.logger.WithField("address", address).Info("Peripheral disconnected")
	return nil
}

// observe mirrors a transport state report.
func (m *Machine) observe(s device.ConnectionState) {
	m.fire(triggerFor(s))
}

// claimDial moves Disconnected to Connecting atomically, so concurrent callers
// never dial twice. Otherwise it returns the current state and its change channel.
func (m *Machine) claimDial() (device.ConnectionState, <-chan struct{}, bool) {
	m.mu.Lock()
	if m.state != device.Disconnected {
		defer m.mu.Unlock()
		return m.state, m.changed, false
	}

	from := m.state
	_ = m.fsm.Fire(triggerDial) // always permitted from Disconnected
	m.commitLocked(from)
	return device.Connecting, nil, true
}

// fire applies t and notifies listeners if the state changed.
func (m *Machine) fire(t trigger) {
	m.mu.Lock()
	from := m.state
	if err := m.fsm.Fire(t); err != nil {
		m.mu.Unlock()
		m.logger.WithFields(logrus.Fields{
			"address": m.peripheral.Address(),
			"state":   from,
			"trigger": string(t),
			"error":   err,
		}).Warn("Unexpected connection transition, resynchronizing with transport")
		m.resync(m.peripheral.State())
		return
	}
	m.commitLocked(from)
}

// resync forces the state to s, bypassing the table. Used only after a failed
// attempt, when the transport is the authority on where the link ended up.
func (m *Machine) resync(s device.ConnectionState) {
	m.mu.Lock()
	from := m.state
	m.state = s
	m.commitLocked(from)
}

// commitLocked must be called with mu held; it releases mu.
func (m *Machine) commitLocked(from device.ConnectionState) {
	to := m.state
	if from == to {
		m.mu.Unlock()
		return
	}

	close(m.changed)
	m.changed = make(chan struct{})
	listeners := append([]TransitionFunc(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"address": m.peripheral.Address(),
		"from":    from,
		"to":      to,
	}).Debug("Connection state changed")

	for _, fn := range listeners {
		fn(from, to)
	}
}

func (m *Machine) waitChange(ctx context.Context, changed <-chan struct{}, limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &device.ConnectionError{
			Fault: device.ConnectTimeout,
			Msg:   fmt.Sprintf("%s still %s after %v", m.peripheral.Address(), m.State(), limit),
		}
	}
}
