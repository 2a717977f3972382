package lilo

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/device"
)

// OnOffState is the derived switch state of a timer.
type OnOffState int

const (
	Unknown OnOffState = iota
	Off
	On
)

func (s OnOffState) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unknown"
	}
}

// isSet treats an unreadable intensity as unset.
func isSet(i *Intensity) bool {
	return i != nil && i.IsSet()
}

// unsupported reports whether err only says the attribute does not exist.
func unsupported(err error) bool {
	return errors.Is(err, device.ErrCharacteristicNotFound)
}

// OnValue derives whether the light is on now.
//
// An intensity of IntensityOff means Off without reading anything else.
// Otherwise the device clock must lie within the schedule window; when either
// is unset, malformed or unsupported the result is Unknown. Only transport
// failures are returned as errors.
func (l *Lilo) OnValue(ctx context.Context) (OnOffState, error) {
	intensity, err := l.ReadIntensity(ctx)
	if err != nil && !unsupported(err) {
		return Unknown, err
	}
	if intensity != nil && *intensity == IntensityOff {
		return Off, nil
	}

	clock, err := l.ReadClock(ctx)
	if err != nil && !unsupported(err) {
		return Unknown, err
	}
	if clock == nil {
		return Unknown, nil
	}

	schedule, err := l.ReadSchedule(ctx)
	if err != nil && !unsupported(err) {
		return Unknown, err
	}
	if schedule == nil {
		return Unknown, nil
	}

	if schedule.WrapsMidnight() {
		l.logger.WithFields(logrus.Fields{
			"address":  l.Address(),
			"schedule": schedule.String(),
		}).Debug("Schedule crosses midnight, comparing as a same-day window")
	}

	if schedule.Contains(*clock) {
		return On, nil
	}
	return Off, nil
}

// SetOnValue switches the light on or off, writing only what differs.
func (l *Lilo) SetOnValue(ctx context.Context, on bool) error {
	if on {
		return l.setOn(ctx)
	}
	return l.setOff(ctx)
}

func (l *Lilo) setOn(ctx context.Context) error {
	intensity, err := l.ReadIntensity(ctx)
	if err != nil {
		return err
	}
	schedule, err := l.ReadSchedule(ctx)
	if err != nil {
		return err
	}

	if isSet(intensity) && schedule != nil && *schedule == AlwaysOn {
		l.logger.WithField("address", l.Address()).Debug("Already on")
		return nil
	}

	if _, err := l.SyncClock(ctx); err != nil {
		return err
	}
	if schedule == nil || *schedule != AlwaysOn {
		if err := l.WriteSchedule(ctx, &AlwaysOn); err != nil {
			return err
		}
	}
	if !isSet(intensity) {
		if err := l.WriteIntensity(ctx, IntensityScheduled); err != nil {
			return err
		}
	}

	l.logger.WithField("address", l.Address()).Info("Switched on")
	return nil
}

func (l *Lilo) setOff(ctx context.Context) error {
	intensity, err := l.ReadIntensity(ctx)
	if err != nil {
		return err
	}
	if !isSet(intensity) {
		l.logger.WithField("address", l.Address()).Debug("Already off")
		return nil
	}

	if err := l.WriteIntensity(ctx, IntensityOff); err != nil {
		return err
	}
	if _, err := l.SyncClock(ctx); err != nil {
		return err
	}

	l.logger.WithField("address", l.Address()).Info("Switched off")
	return nil
}

// SyncClock sets the device clock to the current wall-clock hour and minute
// unless it already shows them. It reports whether a write was made.
func (l *Lilo) SyncClock(ctx context.Context) (bool, error) {
	now := l.now()
	want := TimeOfDay{Hour: uint8(now.Hour()), Minute: uint8(now.Minute())}

	current, err := l.ReadClock(ctx)
	if err != nil {
		return false, err
	}
	if current != nil && *current == want {
		return false, nil
	}

	if err := l.WriteClock(ctx, want); err != nil {
		return false, err
	}
	return true, nil
}
