package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/srg/lilo/internal/device"
)

// FakeAdvertisement is a static device.Advertisement.
type FakeAdvertisement struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Signal        int      `json:"rssi"`
	IsConnectable bool     `json:"connectable"`
	ServiceUUIDs  []string `json:"services"`
}

func (a *FakeAdvertisement) LocalName() string  { return a.Name }
func (a *FakeAdvertisement) Addr() string       { return a.Address }
func (a *FakeAdvertisement) RSSI() int          { return a.Signal }
func (a *FakeAdvertisement) Connectable() bool  { return a.IsConnectable }
func (a *FakeAdvertisement) Services() []string { return a.ServiceUUIDs }

// AdvertisementBuilder builds FakeAdvertisement values with a fluent API.
// The builder starts with connectable=true and RSSI -50.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{Signal: -50, IsConnectable: true}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Signal = rssi
	return b
}

// WithServices adds service UUIDs in short or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceUUIDs = append(b.adv.ServiceUUIDs, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(jsonStr), &b.adv); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}
	return b
}

func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	adv.ServiceUUIDs = append([]string(nil), b.adv.ServiceUUIDs...)
	return &adv
}

// FakeScanner replays advertisements to every Scan call, then blocks until the
// scan context is done, the way a radio scan does.
type FakeScanner struct {
	mu             sync.Mutex
	advertisements []device.Advertisement
	scans          int

	// Err is returned immediately instead of scanning.
	Err error
}

func NewFakeScanner(advs ...device.Advertisement) *FakeScanner {
	return &FakeScanner{advertisements: advs}
}

func (s *FakeScanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	s.mu.Lock()
	s.scans++
	advs := append([]device.Advertisement(nil), s.advertisements...)
	scanErr := s.Err
	s.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}
	for _, adv := range advs {
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Scans returns how many times Scan was called.
func (s *FakeScanner) Scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}
