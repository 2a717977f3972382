package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/lilo"
	"github.com/srg/lilo/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake device identification
const (
	TestDeviceAddress1 = "C4:64:E3:00:00:01"
	TestDeviceAddress2 = "C4:64:E3:00:00:02"
)

// CommandTestSuite runs cobra commands against fake timers instead of the BLE adapter.
type CommandTestSuite struct {
	suite.Suite

	mu             sync.Mutex
	peripherals    map[string]*testutils.FakePeripheral
	advertisements []device.Advertisement
	adapterStops   int

	configPath string
	restore    func()
}

func (s *CommandTestSuite) SetupTest() {
	s.peripherals = make(map[string]*testutils.FakePeripheral)
	s.advertisements = nil
	s.adapterStops = 0
	s.WriteConfig("idle_timeout: 1m\ncommand_timeout: 2s\nconnect_timeout: 2s\n")

	origPeripheral, origScanner, origRelease, origClock := newPeripheral, newScanner, releaseAdapter, wallClock
	s.restore = func() {
		newPeripheral, newScanner, releaseAdapter, wallClock = origPeripheral, origScanner, origRelease, origClock
	}

	newPeripheral = func(address string, _ *logrus.Logger) (device.Peripheral, error) {
		return s.Peripheral(address), nil
	}
	newScanner = func() (device.Scanner, error) {
		return testutils.NewFakeScanner(s.advertisements...), nil
	}
	releaseAdapter = func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.adapterStops++
		return nil
	}
	wallClock = func() time.Time {
		return time.Date(2024, time.June, 1, 17, 0, 30, 0, time.Local)
	}

	// Flag values survive between Execute calls on the shared command tree.
	scanDuration, scanFormat, scanAllowList, scanAll = 0, "", nil, false
	statusFormat = ""
	clockSync = false
	_ = rootCmd.PersistentFlags().Set("log-level", "")
}

func (s *CommandTestSuite) TearDownTest() {
	s.restore()
}

// WriteConfig replaces the config file every command of the test reads.
func (s *CommandTestSuite) WriteConfig(content string) {
	s.configPath = filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(s.configPath, []byte(content), 0o600))
}

// Peripheral returns the fake timer at address, creating one that is on,
// scheduled all day and synchronised to the test clock.
func (s *CommandTestSuite) Peripheral(address string) *testutils.FakePeripheral {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(address)
	if p, ok := s.peripherals[key]; ok {
		return p
	}

	p := testutils.NewPeripheralBuilder(key).
		WithService(lilo.ServiceDeviceInformation).
		WithCharacteristic(lilo.CharacteristicManufacturer, []byte("Lilo GmbH\x00")).
		WithCharacteristic(lilo.CharacteristicFirmwareRevision, []byte("2.1.0")).
		WithService(lilo.ServiceSettings).
		WithCharacteristic(lilo.CharacteristicIntensity, lilo.EncodeIntensity(lilo.IntensityScheduled)).
		WithCharacteristic(lilo.CharacteristicSchedule, lilo.EncodeSchedule(&lilo.AlwaysOn)).
		WithService(lilo.ServiceClock).
		WithCharacteristic(lilo.CharacteristicClock, []byte{17, 0}).
		Build()
	s.peripherals[key] = p
	return p
}

// ExecuteCommand runs the root command with args and returns stdout, stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(append(args, "--config", s.configPath))
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}
