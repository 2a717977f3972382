package testutils

import (
	"time"

	"github.com/stretchr/testify/suite"
)

// PeripheralSuite is a reusable testify suite that hands every test a fresh
// FakePeripheral and a recording logger.
//
// Custom profile usage:
//
//	type SwitchSuite struct {
//	    testutils.PeripheralSuite
//	}
//
//	func (s *SwitchSuite) SetupTest() {
//	    s.WithPeripheral("AA:BB:CC:DD:EE:FF").
//	        WithService("180a").
//	        WithCharacteristic("2a29", []byte("LILO"))
//
//	    s.PeripheralSuite.SetupTest() // call parent last to apply configuration
//	}
type PeripheralSuite struct {
	suite.Suite

	Helper      *TestHelper
	TestTimeout time.Duration

	Peripheral *FakePeripheral

	builder *PeripheralBuilder
}

// WithPeripheral starts configuring the peripheral for the next test.
func (s *PeripheralSuite) WithPeripheral(address string) *PeripheralBuilder {
	s.builder = NewPeripheralBuilder(address)
	return s.builder
}

// SetupTest builds the configured peripheral, or an empty one at a fixed address.
func (s *PeripheralSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	if s.TestTimeout == 0 {
		s.TestTimeout = 2 * time.Second
	}

	if s.builder == nil {
		s.builder = NewPeripheralBuilder("00:00:00:00:00:01")
	}
	s.Peripheral = s.builder.Build()
}

// TearDownTest drops the builder so the next test starts from scratch.
func (s *PeripheralSuite) TearDownTest() {
	s.builder = nil
}
