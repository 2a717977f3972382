package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lilo/internal/device"
	goble "github.com/srg/lilo/internal/device/go-ble"
	"github.com/srg/lilo/internal/lilo"
	"github.com/srg/lilo/internal/registry"
	"github.com/srg/lilo/pkg/config"
)

// Transport hooks, replaced in tests.
var (
	newPeripheral = func(address string, logger *logrus.Logger) (device.Peripheral, error) {
		return goble.NewPeripheral(address, logger), nil
	}
	newScanner     = goble.NewScanner
	releaseAdapter = goble.CloseDevice
	wallClock      = time.Now
)

// session holds what one command invocation needs: configuration, logger and
// the drivers it opened. close releases every connection and the adapter.
type session struct {
	cfg      *config.Config
	logger   *logrus.Logger
	drivers  *registry.Registry
	ctx      context.Context
	stopWait context.CancelFunc
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := cfg.DriverOptions()
	opts.Now = wallClock

	s := &session{cfg: cfg, logger: logger}
	s.drivers = registry.New(func(address string) (*lilo.Lilo, error) {
		p, err := newPeripheral(address, logger)
		if err != nil {
			return nil, err
		}
		return lilo.New(p, opts, logger), nil
	}, logger)

	s.ctx, s.stopWait = signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	return s, nil
}

// driver returns the driver for address.
func (s *session) driver(address string) (*lilo.Lilo, error) {
	d, err := s.drivers.Get(address)
	if err != nil {
		return nil, s.fail(err)
	}
	return d, nil
}

// fail logs err in full and marks it as a communication failure for the user.
func (s *session) fail(err error) error {
	if err == nil {
		return nil
	}
	s.logger.WithError(err).Debug("Command failed")
	return communication(err)
}

// close drains and disconnects every driver, then releases the adapter.
func (s *session) close() {
	defer s.stopWait()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
	defer cancel()

	if err := s.drivers.CloseAll(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to release connections")
	}
	if err := releaseAdapter(); err != nil {
		s.logger.WithError(err).Debug("Failed to stop BLE adapter")
	}
}

// addresses returns args, or the configured devices when no address was given.
func (s *session) addresses(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(s.cfg.Devices) == 0 {
		return nil, fmt.Errorf("no device address given and no devices configured")
	}
	return s.cfg.Devices, nil
}
