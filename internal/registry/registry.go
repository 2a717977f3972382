// Package registry keeps one live driver per timer address.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/lilo"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Get after CloseAll.
var ErrClosed = errors.New("registry closed")

// Factory creates the driver for address.
type Factory func(address string) (*lilo.Lilo, error)

// Registry maps peripheral addresses to drivers. Addresses are compared case-insensitively.
type Registry struct {
	factory Factory
	logger  *logrus.Logger
	drivers *hashmap.Map[string, *lilo.Lilo]

	mu     sync.Mutex // serialises creation and removal
	closed bool
}

func New(factory Factory, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		factory: factory,
		logger:  logger,
		drivers: hashmap.New[string, *lilo.Lilo](),
	}
}

func key(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// Get returns the driver for address, creating it on first use.
func (r *Registry) Get(address string) (*lilo.Lilo, error) {
	k := key(address)
	if k == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if driver, ok := r.drivers.Get(k); ok {
		return driver, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if driver, ok := r.drivers.Get(k); ok {
		return driver, nil
	}

	driver, err := r.factory(k)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver for %s: %w", k, err)
	}
	r.drivers.Set(k, driver)

	r.logger.WithField("address", k).Debug("Registered driver")
	return driver, nil
}

func (r *Registry) Len() int {
	return r.drivers.Len()
}

// Addresses returns the registered addresses in no particular order.
func (r *Registry) Addresses() []string {
	addresses := make([]string, 0, r.drivers.Len())
	r.drivers.Range(func(k string, _ *lilo.Lilo) bool {
		addresses = append(addresses, k)
		return true
	})
	return addresses
}

// Remove closes and forgets the driver for address. Unknown addresses are ignored.
func (r *Registry) Remove(ctx context.Context, address string) error {
	k := key(address)

	r.mu.Lock()
	driver, ok := r.drivers.Get(k)
	if ok {
		r.drivers.Del(k)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return driver.Close(ctx)
}

// CloseAll closes every driver concurrently and returns the joined errors.
// Later Get calls fail with ErrClosed.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	var keys []string
	var drivers []*lilo.Lilo
	r.drivers.Range(func(k string, driver *lilo.Lilo) bool {
		keys = append(keys, k)
		drivers = append(drivers, driver)
		return true
	})
	for _, k := range keys {
		r.drivers.Del(k)
	}
	r.mu.Unlock()

	// errgroup keeps only the first error; errs keeps one slot per driver.
	errs := make([]error, len(drivers))
	var g errgroup.Group
	for i, driver := range drivers {
		g.Go(func() error {
			if err := driver.Close(ctx); err != nil {
				errs[i] = fmt.Errorf("close %s: %w", driver.Address(), err)
			}
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.WithFields(logrus.Fields{
			"drivers": len(drivers),
			"error":   err,
		}).Warn("Some drivers failed to close")
	} else {
		r.logger.WithField("drivers", len(drivers)).Debug("Closed all drivers")
	}
	return errors.Join(errs...)
}
