package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/device"
	"github.com/srg/lilo/internal/lilo"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EventType marks if the device was newly discovered or updated
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

func (t EventType) String() string {
	if t == EventNew {
		return "new"
	}
	return "updated"
}

type Event struct {
	Type          EventType
	Advertisement device.Advertisement
}

// eventBuffer is the number of undelivered events kept before the oldest is overwritten.
const eventBuffer = 100

// Options configures scanning behavior
type Options struct {
	Duration        time.Duration
	DuplicateFilter bool
	// LocalName matches the advertised local name exactly; empty accepts any name.
	LocalName string
	// AllowList restricts results to these addresses (case-insensitive).
	AllowList []string
}

// DefaultOptions returns options that find LILO timers for ten seconds.
func DefaultOptions() *Options {
	return &Options{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
		LocalName:       lilo.LocalName,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	source device.Scanner
	events *ringChannel[Event]
	logger *logrus.Logger

	mu    sync.Mutex
	found *orderedmap.OrderedMap[string, device.Advertisement]
	opts  *Options
}

// New creates a scanner reading advertisements from source.
func New(source device.Scanner, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		source: source,
		events: newRingChannel[Event](eventBuffer),
		logger: logger,
	}
}

// Scan listens for advertisements until opts.Duration elapses or ctx is done,
// and returns the matching peripherals in discovery order, one per address.
// A Duration of zero scans until ctx is done.
func (s *Scanner) Scan(ctx context.Context, opts *Options) ([]device.Advertisement, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	s.mu.Lock()
	if s.opts != nil {
		s.mu.Unlock()
		return nil, errors.New("scan already in progress")
	}
	s.found = orderedmap.New[string, device.Advertisement]()
	s.opts = opts
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.opts = nil
		s.mu.Unlock()
	}()

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithFields(logrus.Fields{
		"duration":   opts.Duration,
		"local_name": opts.LocalName,
	}).Info("Starting BLE scan...")

	err := s.source.Scan(ctx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]device.Advertisement, 0, s.found.Len())
	for pair := s.found.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}

	s.logger.WithField("device_count", len(result)).Info("BLE scan completed")
	return result, nil
}

// handleAdvertisement runs on the transport's callback; it must not block.
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts == nil || !s.include(adv) {
		return
	}

	address := strings.ToUpper(adv.Addr())
	_, present := s.found.Set(address, adv)

	event := Event{Type: EventUpdated, Advertisement: adv}
	if !present {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  adv.LocalName(),
			"address": address,
			"rssi":    adv.RSSI(),
		}).Info("Discovered new device")
	}

	if s.events.forceSend(event) {
		s.logger.WithField("address", address).Debug("Scan event buffer full, dropped oldest event")
	}
}

func (s *Scanner) include(adv device.Advertisement) bool {
	if adv.Addr() == "" {
		return false
	}
	if s.opts.LocalName != "" && adv.LocalName() != s.opts.LocalName {
		return false
	}
	if len(s.opts.AllowList) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowList {
		if strings.EqualFold(strings.TrimSpace(allowed), adv.Addr()) {
			return true
		}
	}
	return false
}

// Events returns discovery events. Unread events are overwritten oldest first.
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}

// Dropped reports how many events were overwritten before being read.
func (s *Scanner) Dropped() int64 {
	return s.events.Dropped()
}
