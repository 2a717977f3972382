package lilo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/srg/lilo/internal/device"
)

// Intensity is the light power level, one signed byte on the wire.
type Intensity int8

const (
	IntensityInitial   Intensity = -2 // factory default, never written by a user
	IntensityOff       Intensity = 0
	IntensityScheduled Intensity = 3 // on, following the schedule
)

// IsSet reports whether the intensity switches the light on at all.
// Only IntensityOff is unset; IntensityInitial counts as set.
func (i Intensity) IsSet() bool {
	return i != IntensityOff
}

func (i Intensity) String() string {
	switch i {
	case IntensityInitial:
		return "initial"
	case IntensityOff:
		return "off"
	case IntensityScheduled:
		return "scheduled"
	default:
		return strconv.Itoa(int(i))
	}
}

// TimeOfDay is the device clock, hour and minute.
type TimeOfDay struct {
	Hour   uint8
	Minute uint8
}

func (t TimeOfDay) minutes() int {
	return int(t.Hour)*60 + int(t.Minute)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Validate checks the hour and minute ranges.
func (t TimeOfDay) Validate() error {
	if t.Hour > 23 || t.Minute > 59 {
		return fmt.Errorf("invalid time of day %02d:%02d", t.Hour, t.Minute)
	}
	return nil
}

// Schedule is the daily on/off window.
type Schedule struct {
	OnHour    uint8
	OnMinute  uint8
	OffHour   uint8
	OffMinute uint8
}

// AlwaysOn is the window the switch uses to keep the light on all day.
var AlwaysOn = Schedule{OnHour: 0, OnMinute: 0, OffHour: 23, OffMinute: 59}

func (s Schedule) On() TimeOfDay  { return TimeOfDay{Hour: s.OnHour, Minute: s.OnMinute} }
func (s Schedule) Off() TimeOfDay { return TimeOfDay{Hour: s.OffHour, Minute: s.OffMinute} }

// Contains reports whether t falls inside the window, both bounds inclusive.
// A window whose off time is before its on time (crossing midnight) contains nothing.
// TODO: decide whether wrapping windows should match across midnight once the device behaviour is confirmed.
func (s Schedule) Contains(t TimeOfDay) bool {
	now := t.minutes()
	return s.On().minutes() <= now && now <= s.Off().minutes()
}

// WrapsMidnight reports whether the off time is earlier than the on time.
func (s Schedule) WrapsMidnight() bool {
	return s.Off().minutes() < s.On().minutes()
}

func (s Schedule) String() string {
	return s.On().String() + " - " + s.Off().String()
}

func (s Schedule) Validate() error {
	if err := s.On().Validate(); err != nil {
		return fmt.Errorf("schedule on: %w", err)
	}
	if err := s.Off().Validate(); err != nil {
		return fmt.Errorf("schedule off: %w", err)
	}
	return nil
}

const (
	clockUninitialised = 0x94
	scheduleEmpty      = 0x00
)

// DecodeIntensity decodes a one byte intensity payload.
func DecodeIntensity(b []byte) (Intensity, error) {
	if len(b) != 1 {
		return 0, &device.MalformedPayloadError{Attribute: "intensity", Want: 1, Payload: b}
	}
	return Intensity(int8(b[0])), nil
}

func EncodeIntensity(i Intensity) []byte {
	return []byte{byte(i)}
}

// DecodeSchedule decodes a schedule payload. The single empty byte means no
// schedule is set and decodes to nil.
func DecodeSchedule(b []byte) (*Schedule, error) {
	if len(b) == 1 && b[0] == scheduleEmpty {
		return nil, nil
	}
	if len(b) != 4 {
		return nil, &device.MalformedPayloadError{Attribute: "schedule", Want: 4, Payload: b}
	}
	return &Schedule{OnHour: b[0], OnMinute: b[1], OffHour: b[2], OffMinute: b[3]}, nil
}

// EncodeSchedule packs s; a nil schedule encodes to the empty marker, which clears it.
func EncodeSchedule(s *Schedule) []byte {
	if s == nil {
		return []byte{scheduleEmpty}
	}
	return []byte{s.OnHour, s.OnMinute, s.OffHour, s.OffMinute}
}

// DecodeTimeOfDay decodes a clock payload. The 0x94 marker means the clock was
// never set and decodes to nil.
func DecodeTimeOfDay(b []byte) (*TimeOfDay, error) {
	if len(b) == 1 && b[0] == clockUninitialised {
		return nil, nil
	}
	if len(b) != 2 {
		return nil, &device.MalformedPayloadError{Attribute: "clock", Want: 2, Payload: b}
	}
	return &TimeOfDay{Hour: b[0], Minute: b[1]}, nil
}

func EncodeTimeOfDay(t TimeOfDay) []byte {
	return []byte{t.Hour, t.Minute}
}

// ParseTimeOfDay parses "HH:MM" (or "H:MM").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err := strconv.ParseUint(hh, 10, 8)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.ParseUint(mm, 10, 8)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}

	t := TimeOfDay{Hour: uint8(hour), Minute: uint8(minute)}
	if err := t.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}

// ParseSchedule parses "HH:MM-HH:MM", spaces around the dash allowed.
func ParseSchedule(s string) (Schedule, error) {
	on, off, ok := strings.Cut(s, "-")
	if !ok {
		return Schedule{}, fmt.Errorf("invalid schedule %q: want HH:MM-HH:MM", s)
	}
	onTime, err := ParseTimeOfDay(on)
	if err != nil {
		return Schedule{}, err
	}
	offTime, err := ParseTimeOfDay(off)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{
		OnHour:    onTime.Hour,
		OnMinute:  onTime.Minute,
		OffHour:   offTime.Hour,
		OffMinute: offTime.Minute,
	}, nil
}
