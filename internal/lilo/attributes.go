package lilo

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/queue"
)

// GATT identifiers of the LILO profile.
const (
	ServiceDeviceInformation       = "180a"
	CharacteristicManufacturer     = "2a29"
	CharacteristicFirmwareRevision = "2a26"

	ServiceSettings         = "53e11631-b840-4b21-93ce-081726ddc739"
	CharacteristicIntensity = "53e11632-b840-4b21-93ce-081726ddc739"
	CharacteristicSchedule  = "53e11633-b840-4b21-93ce-081726ddc739"

	ServiceClock        = "53e12188-b840-4b21-93ce-081726ddc739"
	CharacteristicClock = "53e12189-b840-4b21-93ce-081726ddc739"
)

// readAttribute runs one queue command that locates the characteristic, reads
// it and decodes the payload. A malformed payload is logged once and reported
// as a nil value.
func readAttribute[T any](ctx context.Context, l *Lilo, name, service, uuid string, decode func([]byte) (*T, error)) (*T, error) {
	return queue.Do(ctx, l.queue, func(ctx context.Context) (*T, error) {
		char, err := l.characteristic(ctx, service, uuid)
		if err != nil {
			return nil, err
		}

		raw, err := l.peripheral.Read(ctx, char)
		if err != nil {
			return nil, device.NormalizeError(err)
		}

		value, err := decode(raw)
		var malformed *device.MalformedPayloadError
		if errors.As(err, &malformed) {
			l.logger.WithFields(logrus.Fields{
				"address":   l.Address(),
				"attribute": name,
				"error":     err,
			}).Warn("Read illegal value from LILO")
			return nil, nil
		}
		return value, err
	})
}

// writeAttribute runs one queue command that writes data without response.
func (l *Lilo) writeAttribute(ctx context.Context, service, uuid string, data []byte) error {
	return l.queue.Push(ctx, func(ctx context.Context) error {
		char, err := l.characteristic(ctx, service, uuid)
		if err != nil {
			return err
		}
		return device.NormalizeError(l.peripheral.Write(ctx, char, data, false))
	})
}

// ReadIntensity returns the intensity, or nil if the payload was malformed.
// A device without the characteristic yields an error matching device.ErrCharacteristicNotFound.
func (l *Lilo) ReadIntensity(ctx context.Context) (*Intensity, error) {
	return readAttribute(ctx, l, "intensity", ServiceSettings, CharacteristicIntensity, func(b []byte) (*Intensity, error) {
		i, err := DecodeIntensity(b)
		if err != nil {
			return nil, err
		}
		return &i, nil
	})
}

func (l *Lilo) WriteIntensity(ctx context.Context, i Intensity) error {
	l.logger.WithFields(logrus.Fields{
		"address":   l.Address(),
		"intensity": i,
	}).Debug("Setting intensity")
	return l.writeAttribute(ctx, ServiceSettings, CharacteristicIntensity, EncodeIntensity(i))
}

// ReadSchedule returns the schedule, or nil if none is set or the payload was malformed.
func (l *Lilo) ReadSchedule(ctx context.Context) (*Schedule, error) {
	return readAttribute(ctx, l, "schedule", ServiceSettings, CharacteristicSchedule, DecodeSchedule)
}

// WriteSchedule stores s; nil clears the schedule.
func (l *Lilo) WriteSchedule(ctx context.Context, s *Schedule) error {
	fields := logrus.Fields{"address": l.Address(), "schedule": "none"}
	if s != nil {
		if err := s.Validate(); err != nil {
			return err
		}
		fields["schedule"] = s.String()
	}
	l.logger.WithFields(fields).Debug("Setting schedule")
	return l.writeAttribute(ctx, ServiceSettings, CharacteristicSchedule, EncodeSchedule(s))
}

// ReadClock returns the device clock, or nil if it was never set or the payload was malformed.
func (l *Lilo) ReadClock(ctx context.Context) (*TimeOfDay, error) {
	return readAttribute(ctx, l, "clock", ServiceClock, CharacteristicClock, DecodeTimeOfDay)
}

func (l *Lilo) WriteClock(ctx context.Context, t TimeOfDay) error {
	if err := t.Validate(); err != nil {
		return err
	}
	l.logger.WithFields(logrus.Fields{
		"address": l.Address(),
		"clock":   t.String(),
	}).Debug("Setting clock")
	return l.writeAttribute(ctx, ServiceClock, CharacteristicClock, EncodeTimeOfDay(t))
}

// ManufacturerName reads the device information manufacturer string.
func (l *Lilo) ManufacturerName(ctx context.Context) (string, error) {
	return l.readString(ctx, "manufacturer", ServiceDeviceInformation, CharacteristicManufacturer)
}

// FirmwareRevision reads the device information firmware string.
func (l *Lilo) FirmwareRevision(ctx context.Context) (string, error) {
	return l.readString(ctx, "firmware", ServiceDeviceInformation, CharacteristicFirmwareRevision)
}

func (l *Lilo) readString(ctx context.Context, name, service, uuid string) (string, error) {
	s, err := readAttribute(ctx, l, name, service, uuid, func(b []byte) (*string, error) {
		s := strings.TrimRight(string(b), "\x00")
		return &s, nil
	})
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}
