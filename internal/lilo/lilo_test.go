package lilo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/lilo"
	"github.com/srg/lilo/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const testAddress = "C4:64:E3:00:11:22"

type LiloTestSuite struct {
	testutils.PeripheralSuite

	now    time.Time
	driver *lilo.Lilo
}

// SetupTest builds a timer that is off, has no schedule and an uninitialised clock.
// Tests adjust values with Peripheral.SetValue before issuing commands.
func (suite *LiloTestSuite) SetupTest() {
	suite.WithPeripheral(testAddress).
		WithService(lilo.ServiceDeviceInformation).
		WithCharacteristic(lilo.CharacteristicManufacturer, []byte("Lilo GmbH\x00")).
		WithCharacteristic(lilo.CharacteristicFirmwareRevision, []byte("2.1.0")).
		WithService(lilo.ServiceSettings).
		WithCharacteristic(lilo.CharacteristicIntensity, []byte{0x00}).
		WithCharacteristic(lilo.CharacteristicSchedule, []byte{0x00}).
		WithService(lilo.ServiceClock).
		WithCharacteristic(lilo.CharacteristicClock, []byte{0x94})

	suite.PeripheralSuite.SetupTest()
	suite.now = time.Date(2024, time.June, 1, 17, 0, 30, 0, time.Local)
	suite.driver = suite.newDriver(suite.Peripheral)
}

func (suite *LiloTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), suite.TestTimeout)
	defer cancel()
	_ = suite.driver.Close(ctx)
	suite.PeripheralSuite.TearDownTest()
}

func (suite *LiloTestSuite) newDriver(p device.Peripheral) *lilo.Lilo {
	return lilo.New(p, lilo.Options{
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
		IdleTimeout:    time.Minute,
		Now:            func() time.Time { return suite.now },
	}, suite.Helper.Logger)
}

func (suite *LiloTestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), suite.TestTimeout)
	suite.T().Cleanup(cancel)
	return ctx
}

func (suite *LiloTestSuite) setIntensity(i lilo.Intensity) {
	suite.Peripheral.SetValue(lilo.ServiceSettings, lilo.CharacteristicIntensity, lilo.EncodeIntensity(i))
}

func (suite *LiloTestSuite) setSchedule(s *lilo.Schedule) {
	suite.Peripheral.SetValue(lilo.ServiceSettings, lilo.CharacteristicSchedule, lilo.EncodeSchedule(s))
}

func (suite *LiloTestSuite) setClock(hour, minute uint8) {
	suite.Peripheral.SetValue(lilo.ServiceClock, lilo.CharacteristicClock, []byte{hour, minute})
}

func (suite *LiloTestSuite) TestOnValue() {
	// GOAL: Verify the derived on/off state follows intensity, clock and schedule
	//
	// TEST SCENARIO: Various attribute combinations → OnValue → expected state

	suite.Run("intensity off short-circuits", func() {
		suite.setIntensity(lilo.IntensityOff)
		suite.setSchedule(&lilo.Schedule{OnHour: 8, OffHour: 17})
		suite.setClock(12, 0)
		reads := len(suite.Peripheral.Reads())

		state, err := suite.driver.OnValue(suite.ctx())

		suite.Require().NoError(err)
		suite.Assert().Equal(lilo.Off, state, "intensity 0 MUST mean off")
		suite.Assert().Len(suite.Peripheral.Reads(), reads+1, "MUST read only the intensity")
	})

	suite.Run("inside the window at off time", func() {
		suite.setIntensity(lilo.IntensityScheduled)
		suite.setSchedule(&lilo.Schedule{OnHour: 8, OnMinute: 0, OffHour: 17, OffMinute: 0})
		suite.setClock(17, 0)

		state, err := suite.driver.OnValue(suite.ctx())

		suite.Require().NoError(err)
		suite.Assert().Equal(lilo.On, state, "off time MUST be inclusive")
	})

	suite.Run("one minute past off time", func() {
		suite.setClock(17, 1)

		state, err := suite.driver.OnValue(suite.ctx())

		suite.Require().NoError(err)
		suite.Assert().Equal(lilo.Off, state)
	})

	suite.Run("uninitialised clock", func() {
		suite.Peripheral.SetValue(lilo.ServiceClock, lilo.CharacteristicClock, []byte{0x94})

		state, err := suite.driver.OnValue(suite.ctx())

		suite.Require().NoError(err, "uninitialised clock MUST NOT be an error")
		suite.Assert().Equal(lilo.Unknown, state)
	})

	suite.Run("no schedule", func() {
		suite.setClock(12, 0)
		suite.setSchedule(nil)

		state, err := suite.driver.OnValue(suite.ctx())

		suite.Require().NoError(err)
		suite.Assert().Equal(lilo.Unknown, state)
	})
}

func (suite *LiloTestSuite) TestOnValueOffWithoutClockService() {
	// GOAL: Verify intensity 0 means off even when clock and schedule are not supported
	//
	// TEST SCENARIO: Device exposes only the intensity → intensity 0 → Off, no error

	p := testutils.NewPeripheralBuilder("C4:64:E3:00:11:33").
		WithService(lilo.ServiceSettings).
		WithCharacteristic(lilo.CharacteristicIntensity, []byte{0x00}).
		Build()
	driver := suite.newDriver(p)
	defer driver.Close(context.Background())

	state, err := driver.OnValue(suite.ctx())

	suite.Require().NoError(err)
	suite.Assert().Equal(lilo.Off, state)

	p.SetValue(lilo.ServiceSettings, lilo.CharacteristicIntensity, []byte{0x03})
	state, err = driver.OnValue(suite.ctx())
	suite.Require().NoError(err, "an unsupported clock MUST NOT be an error")
	suite.Assert().Equal(lilo.Unknown, state)
}

func (suite *LiloTestSuite) TestSetOnIsIdempotent() {
	// GOAL: Verify switching on writes clock, schedule and intensity once, and nothing on repeat
	//
	// TEST SCENARIO: Off timer → SetOnValue(true) → 3 writes without response → SetOnValue(true) again → no writes

	suite.setClock(9, 15)

	suite.Require().NoError(suite.driver.SetOnValue(suite.ctx(), true))

	writes := suite.Peripheral.Writes()
	suite.Require().Len(writes, 3, "MUST write clock, schedule and intensity")
	suite.Assert().Equal([]byte{17, 0}, writes[0].Data, "clock MUST be synced to wall-clock HH:MM first")
	suite.Assert().Equal([]byte{0, 0, 23, 59}, writes[1].Data, "schedule MUST be the always-on window")
	suite.Assert().Equal([]byte{0x03}, writes[2].Data, "intensity MUST be scheduled")
	for _, w := range writes {
		suite.Assert().False(w.WithResponse, "writes MUST be without response")
	}

	suite.Require().NoError(suite.driver.SetOnValue(suite.ctx(), true))
	suite.Assert().Len(suite.Peripheral.Writes(), 3, "second SetOnValue(true) MUST NOT write")
}

func (suite *LiloTestSuite) TestSetOnFromInitialIntensity() {
	// GOAL: Verify the factory intensity counts as set when switching on
	//
	// TEST SCENARIO: Intensity -2, schedule already always-on → SetOnValue(true) → no writes

	suite.setIntensity(lilo.IntensityInitial)
	suite.setSchedule(&lilo.AlwaysOn)
	suite.setClock(17, 0)

	suite.Require().NoError(suite.driver.SetOnValue(suite.ctx(), true))

	suite.Assert().Empty(suite.Peripheral.Writes(), "initial intensity with always-on schedule MUST be a no-op")
}

func (suite *LiloTestSuite) TestSetOffFromInitialIntensity() {
	// GOAL: Verify a timer reporting on with the factory intensity can be switched off
	//
	// TEST SCENARIO: Intensity -2, always-on schedule, clock 17:00 → OnValue on → SetOnValue(false) → intensity 0 written → OnValue off

	suite.setIntensity(lilo.IntensityInitial)
	suite.setSchedule(&lilo.AlwaysOn)
	suite.setClock(17, 0)

	state, err := suite.driver.OnValue(suite.ctx())
	suite.Require().NoError(err)
	suite.Require().Equal(lilo.On, state)

	suite.Require().NoError(suite.driver.SetOnValue(suite.ctx(), false))

	writes := suite.Peripheral.Writes()
	suite.Require().NotEmpty(writes, "initial intensity MUST be switched off")
	suite.Assert().Equal([]byte{0x00}, writes[0].Data)

	state, err = suite.driver.OnValue(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().Equal(lilo.Off, state)
}

func (suite *LiloTestSuite) TestSetOff() {
	// GOAL: Verify switching off writes intensity then syncs the clock, and does nothing when already off
	//
	// TEST SCENARIO: Intensity 0 → SetOnValue(false) → no writes; intensity 3 → intensity 0 and clock written

	suite.Require().NoError(suite.driver.SetOnValue(suite.ctx(), false))
	suite.Assert().Empty(suite.Peripheral.Writes(), "already off MUST NOT write")

	suite.setIntensity(lilo.IntensityScheduled)
	suite.setClock(3, 0)

	suite.Require().NoError(suite.driver.SetOnValue(suite.ctx(), false))

	writes := suite.Peripheral.Writes()
	suite.Require().Len(writes, 2)
	suite.Assert().Equal([]byte{0x00}, writes[0].Data, "intensity MUST be written first")
	suite.Assert().Equal([]byte{17, 0}, writes[1].Data, "clock MUST be synced")
}

func (suite *LiloTestSuite) TestMalformedPayloadWarnsOnce() {
	// GOAL: Verify a wrong-length payload becomes nil with exactly one warning
	//
	// TEST SCENARIO: Intensity payload of 2 bytes → ReadIntensity → nil, no error → one warning entry

	suite.Peripheral.SetValue(lilo.ServiceSettings, lilo.CharacteristicIntensity, []byte{0x03, 0x00})
	suite.Helper.Reset()

	intensity, err := suite.driver.ReadIntensity(suite.ctx())

	suite.Assert().NoError(err, "malformed payload MUST NOT be an error")
	suite.Assert().Nil(intensity)
	suite.Require().Len(suite.Helper.Warnings(), 1, "MUST log exactly one warning")
	suite.Assert().Equal("intensity", suite.Helper.Warnings()[0].Data["attribute"])
}

func (suite *LiloTestSuite) TestScheduleAndClockRoundTrip() {
	// GOAL: Verify schedule and clock writes are read back, and clearing a schedule writes the empty marker
	//
	// TEST SCENARIO: Write schedule and clock → read back → clear schedule → reads nil

	window := lilo.Schedule{OnHour: 19, OnMinute: 30, OffHour: 23, OffMinute: 0}
	suite.Require().NoError(suite.driver.WriteSchedule(suite.ctx(), &window))
	suite.Require().NoError(suite.driver.WriteClock(suite.ctx(), lilo.TimeOfDay{Hour: 20, Minute: 5}))

	schedule, err := suite.driver.ReadSchedule(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().Equal(window, *schedule)

	clock, err := suite.driver.ReadClock(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().Equal(lilo.TimeOfDay{Hour: 20, Minute: 5}, *clock)

	suite.Require().NoError(suite.driver.WriteSchedule(suite.ctx(), nil))
	suite.Assert().Equal([]byte{0x00}, suite.Peripheral.Value(lilo.ServiceSettings, lilo.CharacteristicSchedule))

	err = suite.driver.WriteSchedule(suite.ctx(), &lilo.Schedule{OnHour: 25})
	suite.Assert().Error(err, "out of range schedule MUST be rejected before any write")
}

func (suite *LiloTestSuite) TestSyncClock() {
	// GOAL: Verify SyncClock writes only when the device clock differs from wall clock
	//
	// TEST SCENARIO: Clock 17:00 → no write; clock 16:59 → one write

	suite.setClock(17, 0)
	wrote, err := suite.driver.SyncClock(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().False(wrote)

	suite.setClock(16, 59)
	wrote, err = suite.driver.SyncClock(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().True(wrote)
	suite.Assert().Equal([]byte{17, 0}, suite.Peripheral.Value(lilo.ServiceClock, lilo.CharacteristicClock))
}

func (suite *LiloTestSuite) TestDeviceInformation() {
	// GOAL: Verify manufacturer and firmware strings are read from the device information service
	//
	// TEST SCENARIO: Read both → trailing NULs trimmed

	name, err := suite.driver.ManufacturerName(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().Equal("Lilo GmbH", name)

	revision, err := suite.driver.FirmwareRevision(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().Equal("2.1.0", revision)
}

func (suite *LiloTestSuite) TestMissingCharacteristic() {
	// GOAL: Verify an absent characteristic is reported as not found, not as a nil value
	//
	// TEST SCENARIO: Device without device information → ManufacturerName → ErrCharacteristicNotFound

	p := testutils.NewPeripheralBuilder("C4:64:E3:00:11:44").
		WithService(lilo.ServiceSettings).
		WithCharacteristic(lilo.CharacteristicIntensity, []byte{0x00}).
		Build()
	driver := suite.newDriver(p)
	defer driver.Close(context.Background())

	_, err := driver.ManufacturerName(suite.ctx())

	suite.Assert().ErrorIs(err, device.ErrCharacteristicNotFound)
	var notFound *device.NotFoundError
	suite.Require().ErrorAs(err, &notFound)
	suite.Assert().Equal("service", notFound.Resource)
}

func (suite *LiloTestSuite) TestCharacteristicCacheInvalidatedOnDisconnect() {
	// GOAL: Verify handles are discovered once per connection and dropped when the link goes down
	//
	// TEST SCENARIO: Two reads → one discovery → link drops → next read rediscovers

	_, err := suite.driver.ReadIntensity(suite.ctx())
	suite.Require().NoError(err)
	_, err = suite.driver.ReadSchedule(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().Equal(1, suite.Peripheral.Discovers(), "MUST discover once per connection")

	suite.Peripheral.DropLink()

	_, err = suite.driver.ReadIntensity(suite.ctx())
	suite.Require().NoError(err)
	suite.Assert().Equal(2, suite.Peripheral.Connects(), "MUST reconnect after the link dropped")
	suite.Assert().Equal(2, suite.Peripheral.Discovers(), "MUST rediscover after reconnect")
}

func (suite *LiloTestSuite) TestTransportErrorPropagates() {
	// GOAL: Verify transport failures reach the caller of OnValue
	//
	// TEST SCENARIO: Read fails → OnValue returns the error with Unknown

	readErr := errors.New("att: read failed")
	suite.Peripheral.ReadErr = readErr

	state, err := suite.driver.OnValue(suite.ctx())

	suite.Assert().ErrorIs(err, readErr)
	suite.Assert().Equal(lilo.Unknown, state)
}

func (suite *LiloTestSuite) TestClose() {
	// GOAL: Verify Close releases the connection once and rejects later commands
	//
	// TEST SCENARIO: Read → Close → one disconnect → ReadIntensity fails with ErrQueueClosed

	_, err := suite.driver.ReadIntensity(suite.ctx())
	suite.Require().NoError(err)

	suite.Require().NoError(suite.driver.Close(suite.ctx()))
	suite.Assert().Equal(1, suite.Peripheral.Disconnects())
	suite.Assert().Equal(device.Disconnected, suite.driver.State())

	_, err = suite.driver.ReadIntensity(suite.ctx())
	suite.Assert().ErrorIs(err, device.ErrQueueClosed)
	suite.Assert().Equal(1, suite.Peripheral.Connects(), "closed driver MUST NOT reconnect")
}

func TestLiloTestSuite(t *testing.T) {
	suite.Run(t, new(LiloTestSuite))
}

func TestIsLilo(t *testing.T) {
	suite.Run(t, new(isLiloSuite))
}

type isLiloSuite struct {
	suite.Suite
}

func (s *isLiloSuite) TestMatchesLocalName() {
	s.True(lilo.IsLilo(testutils.NewAdvertisementBuilder().WithName("LILO").Build()))
	s.False(lilo.IsLilo(testutils.NewAdvertisementBuilder().WithName("lilo").Build()), "match MUST be exact")
	s.False(lilo.IsLilo(testutils.NewAdvertisementBuilder().WithName("Hue").Build()))
	s.False(lilo.IsLilo(nil))
}
